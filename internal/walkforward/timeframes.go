package walkforward

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wonny/diversifier/internal/contracts"
)

// Timeframe is a trailing window that ends at the validation end date
type Timeframe struct {
	Name   string `json:"name"`
	Months int    `json:"months"`
}

// TimeframesFromMonths names each window "6mo", "1yr", "2yr" ...; non-positive entries are skipped
func TimeframesFromMonths(months []int) []Timeframe {
	out := make([]Timeframe, 0, len(months))
	seen := make(map[int]bool, len(months))
	for _, m := range months {
		if m <= 0 || seen[m] {
			continue
		}
		seen[m] = true
		name := fmt.Sprintf("%dmo", m)
		if m%12 == 0 {
			name = fmt.Sprintf("%dyr", m/12)
		}
		out = append(out, Timeframe{Name: name, Months: m})
	}
	return out
}

// DefaultTimeframes returns 6 months, 1, 2, 5 and 10 years
func DefaultTimeframes() []Timeframe {
	return TimeframesFromMonths([]int{6, 12, 24, 60, 120})
}

// TimeframeResult is the out-of-sample outcome of one trailing window
type TimeframeResult struct {
	Timeframe Timeframe `json:"timeframe"`
	contracts.WalkForwardResult
}

// RunTimeframes selects at end minus each window length and measures through end.
// A window reaching back before the price history is recorded as failed.
func (v *Validator) RunTimeframes(ctx context.Context, provider contracts.PriceProvider, universe []contracts.Listing, end time.Time, frames []Timeframe) ([]TimeframeResult, error) {
	if provider == nil {
		return nil, fmt.Errorf("walkforward: no price provider")
	}
	if end.IsZero() {
		return nil, fmt.Errorf("walkforward: timeframes need an end date")
	}
	runID := uuid.NewString()
	log := v.logger.WithRun(runID)

	out := make([]TimeframeResult, len(frames))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.config.Workers)
	for i, tf := range frames {
		i, tf := i, tf
		g.Go(func() error {
			res, err := v.evaluate(gctx, provider, universe, window{
				pipeline: v.pipeline,
				runID:    fmt.Sprintf("%s-%s", runID, tf.Name),
				cutoff:   end.AddDate(0, -tf.Months, 0),
				end:      end,
			})
			if err != nil {
				return fmt.Errorf("timeframe %s: %w", tf.Name, err)
			}
			out[i] = TimeframeResult{Timeframe: tf, WalkForwardResult: *res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	evaluated := 0
	for _, r := range out {
		if r.OK() {
			evaluated++
		}
	}
	log.WithFields(map[string]interface{}{
		"timeframes": len(out),
		"evaluated":  evaluated,
		"end":        end.Format("2006-01-02"),
	}).Info("Timeframe validation completed")
	return out, nil
}
