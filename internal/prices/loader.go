package prices

import (
	"context"
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/diversifier/internal/contracts"
)

// LoadSeries fetches series for tickers concurrently, preserving ticker order.
// Tickers that fail are reported in missing instead of aborting the load;
// context cancellation and temporal leakage abort.
func LoadSeries(ctx context.Context, provider contracts.PriceProvider, tickers []string, workers int) ([]*contracts.PriceSeries, map[string]string, error) {
	if workers < 1 {
		workers = 1
	}
	out := make([]*contracts.PriceSeries, len(tickers))
	reasons := make([]string, len(tickers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, ticker := range tickers {
		i, ticker := i, ticker
		g.Go(func() error {
			ps, err := provider.PriceSeries(gctx, ticker)
			if err != nil {
				if errors.Is(err, contracts.ErrTemporalLeakage) || gctx.Err() != nil {
					return err
				}
				reasons[i] = err.Error()
				return nil
			}
			out[i] = ps
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	series := make([]*contracts.PriceSeries, 0, len(tickers))
	missing := make(map[string]string)
	for i, ps := range out {
		if ps == nil {
			missing[tickers[i]] = reasons[i]
			continue
		}
		series = append(series, ps)
	}
	return series, missing, nil
}

// LatestPrices returns the most recent valid price per ticker.
// Tickers without one are left out of the map.
func LatestPrices(ctx context.Context, provider contracts.PriceProvider, tickers []string) (map[string]float64, error) {
	out := make(map[string]float64, len(tickers))
	for _, t := range tickers {
		ps, err := provider.PriceSeries(ctx, t)
		if err != nil {
			if errors.Is(err, contracts.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("latest price %s: %w", t, err)
		}
		for i := ps.Len() - 1; i >= 0; i-- {
			p := ps.Bars[i].Price()
			if p > 0 && !math.IsInf(p, 0) {
				out[t] = p
				break
			}
		}
	}
	return out, nil
}
