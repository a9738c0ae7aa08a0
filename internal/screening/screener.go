package screening

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/wonny/diversifier/internal/contracts"
	"github.com/wonny/diversifier/internal/risk"
	"github.com/wonny/diversifier/pkg/logger"
)

// Config holds screening thresholds
type Config struct {
	Lookback      int     `yaml:"lookback"`       // trailing returns per ticker
	MinHistory    int     `yaml:"min_history"`    // minimum returns inside the lookback
	MinAvgVolume  float64 `yaml:"min_avg_volume"` // shares per day
	MinVolatility float64 `yaml:"min_volatility"` // daily, 0 = no floor
	MaxVolatility float64 `yaml:"max_volatility"` // daily, 0 = no ceiling
	RiskFreeRate  float64 `yaml:"risk_free_rate"`
}

// DefaultConfig returns default screening thresholds
func DefaultConfig() Config {
	return Config{
		Lookback:     252,
		MinHistory:   60,
		RiskFreeRate: 0.02,
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.Lookback < 2 {
		return fmt.Errorf("lookback must be >= 2, got %d", c.Lookback)
	}
	if c.MinHistory < 2 || c.MinHistory > c.Lookback {
		return fmt.Errorf("min_history must be in [2, lookback], got %d", c.MinHistory)
	}
	if c.MinVolatility < 0 || c.MaxVolatility < 0 {
		return fmt.Errorf("volatility bounds must be >= 0")
	}
	if c.MaxVolatility > 0 && c.MaxVolatility < c.MinVolatility {
		return fmt.Errorf("max_volatility %v below min_volatility %v", c.MaxVolatility, c.MinVolatility)
	}
	return nil
}

// Result is the ranked candidate list plus every rejected listing
type Result struct {
	Metrics  []contracts.AssetMetric `json:"metrics"`
	Excluded map[string]string       `json:"excluded"` // ticker -> reason
}

// Screener turns a universe and its price history into ranked candidate metrics
type Screener struct {
	config Config
	logger *logger.Logger
}

// NewScreener creates a new screener
func NewScreener(config Config, log *logger.Logger) (*Screener, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("screening config: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Screener{config: config, logger: log.WithComponent("screening")}, nil
}

// Screen computes trailing metrics per listing and ranks survivors by Sharpe.
// A listing that fails is excluded with a reason; only context errors abort.
// ⭐ SSOT: 후보 종목 지표 계산은 여기서만
func (s *Screener) Screen(ctx context.Context, provider contracts.PriceProvider, universe []contracts.Listing) (*Result, error) {
	result := &Result{
		Metrics:  make([]contracts.AssetMetric, 0, len(universe)),
		Excluded: make(map[string]string),
	}

	seen := make(map[string]bool, len(universe))
	for _, listing := range universe {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if seen[listing.Ticker] {
			result.Excluded[listing.Ticker] = "duplicate listing"
			continue
		}
		seen[listing.Ticker] = true

		series, err := provider.PriceSeries(ctx, listing.Ticker)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if errors.Is(err, contracts.ErrTemporalLeakage) {
				return nil, err
			}
			if errors.Is(err, contracts.ErrNotFound) {
				result.Excluded[listing.Ticker] = "not found"
			} else {
				result.Excluded[listing.Ticker] = fmt.Sprintf("load failed: %v", err)
			}
			continue
		}

		metric, reason := s.measure(listing, series)
		if reason != "" {
			result.Excluded[listing.Ticker] = reason
			continue
		}
		result.Metrics = append(result.Metrics, metric)
	}

	sort.SliceStable(result.Metrics, func(i, j int) bool {
		a, b := result.Metrics[i], result.Metrics[j]
		if a.Sharpe != b.Sharpe {
			return a.Sharpe > b.Sharpe
		}
		return a.Ticker < b.Ticker
	})

	s.logger.WithFields(map[string]interface{}{
		"universe":   len(universe),
		"candidates": len(result.Metrics),
		"excluded":   len(result.Excluded),
	}).Info("Screening completed")

	return result, nil
}

// measure computes one listing's metric or returns the exclusion reason
func (s *Screener) measure(listing contracts.Listing, series *contracts.PriceSeries) (contracts.AssetMetric, string) {
	if err := series.Validate(); err != nil {
		return contracts.AssetMetric{}, fmt.Sprintf("invalid series: %v", err)
	}

	bars := series.Bars
	if len(bars) > s.config.Lookback+1 {
		bars = bars[len(bars)-s.config.Lookback-1:]
	}

	daily := make([]float64, 0, len(bars))
	for i := 1; i < len(bars); i++ {
		prev, cur := bars[i-1].Price(), bars[i].Price()
		if prev <= 0 || cur <= 0 {
			continue
		}
		daily = append(daily, cur/prev-1)
	}
	if len(daily) < s.config.MinHistory {
		return contracts.AssetMetric{}, fmt.Sprintf("insufficient history (%d returns)", len(daily))
	}

	// 우선순위 순서로 체크
	vol := stat.StdDev(daily, nil)
	if vol == 0 || math.IsNaN(vol) {
		return contracts.AssetMetric{}, "zero volatility"
	}
	if s.config.MinVolatility > 0 && vol < s.config.MinVolatility {
		return contracts.AssetMetric{}, fmt.Sprintf("volatility below floor (%.4f)", vol)
	}
	if s.config.MaxVolatility > 0 && vol > s.config.MaxVolatility {
		return contracts.AssetMetric{}, fmt.Sprintf("volatility above ceiling (%.4f)", vol)
	}

	volume := 0.0
	for _, b := range bars {
		volume += float64(b.Volume)
	}
	avgVolume := volume / float64(len(bars))
	if avgVolume < s.config.MinAvgVolume {
		return contracts.AssetMetric{}, fmt.Sprintf("average volume below minimum (%.0f)", avgVolume)
	}

	sharpe, _ := risk.AnnualizedSharpe(daily, s.config.RiskFreeRate)
	latest := bars[len(bars)-1]

	return contracts.AssetMetric{
		Ticker:      listing.Ticker,
		Sector:      listing.Sector,
		TotalReturn: risk.TotalReturn(daily),
		Volatility:  vol,
		Sharpe:      sharpe,
		AvgVolume:   avgVolume,
		LatestPrice: latest.Price(),
		LatestDate:  latest.Date,
	}, ""
}

// Source adapts the screener to contracts.CandidateSource
func (s *Screener) Source(provider contracts.PriceProvider, universe []contracts.Listing) contracts.CandidateSource {
	return &source{screener: s, provider: provider, universe: universe}
}

type source struct {
	screener *Screener
	provider contracts.PriceProvider
	universe []contracts.Listing
}

func (src *source) CandidateMetrics(ctx context.Context) ([]contracts.AssetMetric, error) {
	res, err := src.screener.Screen(ctx, src.provider, src.universe)
	if err != nil {
		return nil, err
	}
	return res.Metrics, nil
}
