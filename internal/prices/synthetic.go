package prices

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/wonny/diversifier/internal/contracts"
)

// SyntheticConfig describes a factor-driven random market
type SyntheticConfig struct {
	Universe   []contracts.Listing
	Start      time.Time
	Days       int     // business days generated
	Seed       int64   // 0 = time-seeded
	Drift      float64 // mean daily return
	MarketVol  float64 // common factor daily vol
	SectorVol  float64 // per-sector factor daily vol
	IdioVol    float64 // per-asset noise daily vol
	StartPrice float64
}

// DefaultSyntheticConfig returns a two-year market over universe
func DefaultSyntheticConfig(universe []contracts.Listing) SyntheticConfig {
	return SyntheticConfig{
		Universe:   universe,
		Start:      time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC),
		Days:       504,
		Seed:       42,
		Drift:      0.0004,
		MarketVol:  0.008,
		SectorVol:  0.006,
		IdioVol:    0.012,
		StartPrice: 100,
	}
}

// SyntheticUniverse names perSector tickers per sector, e.g. TECH01
func SyntheticUniverse(sectors []string, perSector int) []contracts.Listing {
	out := make([]contracts.Listing, 0, len(sectors)*perSector)
	for _, sector := range sectors {
		prefix := strings.ToUpper(strings.ReplaceAll(sector, " ", ""))
		if len(prefix) > 4 {
			prefix = prefix[:4]
		}
		for i := 1; i <= perSector; i++ {
			out = append(out, contracts.Listing{Ticker: fmt.Sprintf("%s%02d", prefix, i), Sector: sector})
		}
	}
	return out
}

// BusinessDays returns n weekdays starting on or after start
func BusinessDays(start time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	for d := start; len(out) < n; d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		out = append(out, d)
	}
	return out
}

// GenerateSynthetic draws price series where assets share a market factor
// and a sector factor, so same-sector names are correlated
func GenerateSynthetic(cfg SyntheticConfig) []*contracts.PriceSeries {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	dates := BusinessDays(cfg.Start, cfg.Days)

	type asset struct {
		drift, beta float64
		price       float64
		volume      float64
	}
	assets := make([]asset, len(cfg.Universe))
	series := make([]*contracts.PriceSeries, len(cfg.Universe))
	for i, l := range cfg.Universe {
		assets[i] = asset{
			drift:  cfg.Drift + rng.NormFloat64()*cfg.Drift,
			beta:   0.6 + 0.8*rng.Float64(),
			price:  cfg.StartPrice * (0.5 + rng.Float64()),
			volume: 1e5 + 9e5*rng.Float64(),
		}
		series[i] = &contracts.PriceSeries{Ticker: l.Ticker, Bars: make([]contracts.PriceBar, 0, len(dates))}
	}

	for _, d := range dates {
		market := rng.NormFloat64() * cfg.MarketVol
		sectorShock := make(map[string]float64)
		for _, l := range cfg.Universe {
			if _, ok := sectorShock[l.Sector]; !ok {
				sectorShock[l.Sector] = rng.NormFloat64() * cfg.SectorVol
			}
		}

		for i, l := range cfg.Universe {
			a := &assets[i]
			r := a.drift + a.beta*market + sectorShock[l.Sector] + rng.NormFloat64()*cfg.IdioVol
			open := a.price
			a.price = math.Max(0.01, a.price*(1+r))
			spread := math.Abs(rng.NormFloat64()) * cfg.IdioVol * a.price

			series[i].Bars = append(series[i].Bars, contracts.PriceBar{
				Date:     d,
				Open:     open,
				High:     math.Max(open, a.price) + spread,
				Low:      math.Max(0.01, math.Min(open, a.price)-spread),
				Close:    a.price,
				AdjClose: a.price,
				Volume:   int64(a.volume * (0.5 + rng.Float64())),
			})
		}
	}
	return series
}
