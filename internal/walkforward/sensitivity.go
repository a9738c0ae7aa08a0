package walkforward

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/wonny/diversifier/internal/brain"
	"github.com/wonny/diversifier/internal/contracts"
	"github.com/wonny/diversifier/pkg/logger"
)

// IntRange is an inclusive parameter range; the zero range keeps the base value
type IntRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

func (r IntRange) unset() bool {
	return r.Min == 0 && r.Max == 0
}

func (r IntRange) draw(rng *rand.Rand, base int) int {
	if r.unset() {
		return base
	}
	return r.Min + rng.Intn(r.Max-r.Min+1)
}

func (r IntRange) validate(name string, floor int) error {
	if r.unset() {
		return nil
	}
	if r.Min < floor || r.Max < r.Min {
		return fmt.Errorf("%s range [%d, %d] must satisfy %d <= min <= max", name, r.Min, r.Max, floor)
	}
	return nil
}

// SensitivityConfig re-runs selection with randomly drawn parameters.
// A strategy that only works for one parameter set is overfitted.
type SensitivityConfig struct {
	Draws  int   `json:"draws"`  // 0 disables the mode
	Seed   int64 `json:"seed"`   // 0 = time-seeded
	Months int   `json:"months"` // select at end minus Months, measure through end

	TargetSize           IntRange `json:"target_size"`
	MaxPerSector         IntRange `json:"max_per_sector"`
	MinSectors           IntRange `json:"min_sectors"`
	ScreeningLookback    IntRange `json:"screening_lookback"`
	CorrelationLookback  IntRange `json:"correlation_lookback"`
	OptimizationLookback IntRange `json:"optimization_lookback"`
}

// DefaultSensitivity draws 100 parameter sets around a one-year window
func DefaultSensitivity() SensitivityConfig {
	return SensitivityConfig{
		Draws:                100,
		Seed:                 42,
		Months:               12,
		TargetSize:           IntRange{Min: 8, Max: 15},
		MaxPerSector:         IntRange{Min: 2, Max: 4},
		MinSectors:           IntRange{Min: 3, Max: 5},
		ScreeningLookback:    IntRange{Min: 126, Max: 504},
		CorrelationLookback:  IntRange{Min: 126, Max: 504},
		OptimizationLookback: IntRange{Min: 126, Max: 504},
	}
}

// Validate checks the configuration; a disabled mode is always valid
func (c *SensitivityConfig) Validate() error {
	if c.Draws < 0 {
		return fmt.Errorf("draws must be >= 0, got %d", c.Draws)
	}
	if c.Draws == 0 {
		return nil
	}
	if c.Months < 1 {
		return fmt.Errorf("months must be >= 1, got %d", c.Months)
	}
	checks := []struct {
		name  string
		r     IntRange
		floor int
	}{
		{"target_size", c.TargetSize, 1},
		{"max_per_sector", c.MaxPerSector, 1},
		{"min_sectors", c.MinSectors, 0},
		{"screening_lookback", c.ScreeningLookback, 2},
		{"correlation_lookback", c.CorrelationLookback, 0},
		{"optimization_lookback", c.OptimizationLookback, 0},
	}
	for _, ch := range checks {
		if err := ch.r.validate(ch.name, ch.floor); err != nil {
			return err
		}
	}
	return nil
}

// ParamDraw is one randomly drawn parameter set
type ParamDraw struct {
	TargetSize           int   `json:"target_size"`
	MaxPerSector         int   `json:"max_per_sector"`
	MinSectors           int   `json:"min_sectors"`
	ScreeningLookback    int   `json:"screening_lookback"`
	CorrelationLookback  int   `json:"correlation_lookback"`
	OptimizationLookback int   `json:"optimization_lookback"`
	OptimizerSeed        int64 `json:"optimizer_seed"`
}

// apply overlays the draw on a base pipeline configuration
func (d ParamDraw) apply(base brain.Config) brain.Config {
	cfg := base
	cfg.Selection.TargetSize = d.TargetSize
	cfg.Selection.MaxPerSector = d.MaxPerSector
	cfg.Selection.MinSectors = d.MinSectors
	cfg.Selection.BlackList = append([]string{}, base.Selection.BlackList...)
	cfg.Screening.Lookback = d.ScreeningLookback
	if cfg.Screening.MinHistory > cfg.Screening.Lookback {
		cfg.Screening.MinHistory = cfg.Screening.Lookback
	}
	cfg.CorrelationLookback = d.CorrelationLookback
	cfg.Optimizer.Lookback = d.OptimizationLookback
	cfg.Optimizer.Seed = d.OptimizerSeed
	return cfg
}

// drawParams generates every draw up front so results do not depend on scheduling
func drawParams(c SensitivityConfig, base brain.Config) []ParamDraw {
	seed := c.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	out := make([]ParamDraw, c.Draws)
	for i := range out {
		out[i] = ParamDraw{
			TargetSize:           c.TargetSize.draw(rng, base.Selection.TargetSize),
			MaxPerSector:         c.MaxPerSector.draw(rng, base.Selection.MaxPerSector),
			MinSectors:           c.MinSectors.draw(rng, base.Selection.MinSectors),
			ScreeningLookback:    c.ScreeningLookback.draw(rng, base.Screening.Lookback),
			CorrelationLookback:  c.CorrelationLookback.draw(rng, base.CorrelationLookback),
			OptimizationLookback: c.OptimizationLookback.draw(rng, base.Optimizer.Lookback),
			// 0 would mean time-seeded
			OptimizerSeed: rng.Int63n(math.MaxInt64-1) + 1,
		}
	}
	return out
}

// SensitivityDraw is the forward outcome of one parameter draw
type SensitivityDraw struct {
	Draw        int       `json:"draw"`
	Params      ParamDraw `json:"params"`
	Tickers     []string  `json:"tickers,omitempty"`
	TotalReturn float64   `json:"total_return"`
	Sharpe      float64   `json:"sharpe"`
	MaxDrawdown float64   `json:"max_drawdown"`
	Error       string    `json:"error,omitempty"`
}

// Sensitivity summarises the spread of outcomes across parameter draws.
// Percentages are 0-100.
type Sensitivity struct {
	Cutoff    time.Time `json:"cutoff"`
	End       time.Time `json:"end"`
	Draws     int       `json:"draws"`
	Evaluated int       `json:"evaluated"`
	Failed    int       `json:"failed"`

	ProfitablePct     float64 `json:"profitable_pct"`
	PositiveSharpePct float64 `json:"positive_sharpe_pct"`

	MeanSharpe   float64 `json:"mean_sharpe"`
	MedianSharpe float64 `json:"median_sharpe"`
	StdevSharpe  float64 `json:"stdev_sharpe"`
	MinSharpe    float64 `json:"min_sharpe"`
	MaxSharpe    float64 `json:"max_sharpe"`
	P25Sharpe    float64 `json:"p25_sharpe"`
	P75Sharpe    float64 `json:"p75_sharpe"`
	// SharpeSpread is the interquartile range P75 - P25
	SharpeSpread float64 `json:"sharpe_spread"`

	MeanReturn  float64 `json:"mean_return"`
	StdevReturn float64 `json:"stdev_return"`

	Results []SensitivityDraw `json:"results"`
}

// RunSensitivity selects at end minus c.Months under each parameter draw and measures
// through end. A draw whose configuration or selection fails is recorded, not fatal.
func (v *Validator) RunSensitivity(ctx context.Context, provider contracts.PriceProvider, universe []contracts.Listing, end time.Time, c SensitivityConfig) (*Sensitivity, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("sensitivity config: %w", err)
	}
	if c.Draws == 0 {
		return nil, fmt.Errorf("sensitivity: no draws requested")
	}
	if provider == nil {
		return nil, fmt.Errorf("walkforward: no price provider")
	}
	if end.IsZero() {
		return nil, fmt.Errorf("walkforward: sensitivity needs an end date")
	}

	runID := uuid.NewString()
	log := v.logger.WithRun(runID)
	cutoff := end.AddDate(0, -c.Months, 0)
	base := v.pipeline.Config()
	draws := drawParams(c, base)

	log.WithFields(map[string]interface{}{
		"draws":  c.Draws,
		"seed":   c.Seed,
		"cutoff": cutoff.Format("2006-01-02"),
		"end":    end.Format("2006-01-02"),
	}).Info("Starting parameter sensitivity")

	results := make([]SensitivityDraw, len(draws))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.config.Workers)
	for i, params := range draws {
		i, params := i, params
		g.Go(func() error {
			res := SensitivityDraw{Draw: i + 1, Params: params}
			pipeline, err := brain.NewOrchestrator(params.apply(base), nil, logger.Nop())
			if err != nil {
				res.Error = fmt.Sprintf("invalid parameters: %v", err)
				results[i] = res
				return nil
			}
			period, err := v.evaluate(gctx, provider, universe, window{
				pipeline: pipeline,
				runID:    fmt.Sprintf("%s-d%03d", runID, i+1),
				cutoff:   cutoff,
				end:      end,
			})
			if err != nil {
				return fmt.Errorf("draw %d: %w", i+1, err)
			}
			if period.Portfolio != nil {
				res.Tickers = period.Portfolio.Tickers()
			}
			if period.OK() {
				res.TotalReturn, res.Sharpe, res.MaxDrawdown = period.TotalReturn, period.Sharpe, period.MaxDrawdown
			} else {
				res.Error = period.Error
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Parameter sensitivity aborted")
		return nil, err
	}

	s := summarizeSensitivity(results)
	s.Cutoff, s.End = cutoff, end

	log.WithFields(map[string]interface{}{
		"evaluated":       s.Evaluated,
		"failed":          s.Failed,
		"positive_sharpe": fmt.Sprintf("%.0f%%", s.PositiveSharpePct),
		"sharpe_spread":   fmt.Sprintf("%.2f", s.SharpeSpread),
	}).Info("Parameter sensitivity completed")
	return s, nil
}

// summarizeSensitivity aggregates the evaluated draws; failed draws only count toward Failed
func summarizeSensitivity(results []SensitivityDraw) *Sensitivity {
	s := &Sensitivity{Draws: len(results), Results: results}
	var sharpes, totals []float64
	for _, r := range results {
		if r.Error != "" || math.IsNaN(r.Sharpe) {
			s.Failed++
			continue
		}
		sharpes = append(sharpes, r.Sharpe)
		totals = append(totals, r.TotalReturn)
	}
	s.Evaluated = len(sharpes)
	if s.Evaluated == 0 {
		return s
	}

	profitable, positive := 0, 0
	for i := range sharpes {
		if totals[i] > 0 {
			profitable++
		}
		if sharpes[i] > 0 {
			positive++
		}
	}
	n := float64(s.Evaluated)
	s.ProfitablePct = float64(profitable) / n * 100
	s.PositiveSharpePct = float64(positive) / n * 100

	s.MeanSharpe = stat.Mean(sharpes, nil)
	s.MeanReturn = stat.Mean(totals, nil)
	if s.Evaluated >= 2 {
		s.StdevSharpe = stat.StdDev(sharpes, nil)
		s.StdevReturn = stat.StdDev(totals, nil)
	}

	sorted := append([]float64(nil), sharpes...)
	sort.Float64s(sorted)
	s.MinSharpe, s.MaxSharpe = sorted[0], sorted[len(sorted)-1]
	s.MedianSharpe = stat.Quantile(0.5, stat.LinInterp, sorted, nil)
	s.P25Sharpe = stat.Quantile(0.25, stat.LinInterp, sorted, nil)
	s.P75Sharpe = stat.Quantile(0.75, stat.LinInterp, sorted, nil)
	s.SharpeSpread = s.P75Sharpe - s.P25Sharpe
	return s
}
