package walkforward

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wonny/diversifier/internal/brain"
	"github.com/wonny/diversifier/internal/contracts"
	"github.com/wonny/diversifier/internal/prices"
	"github.com/wonny/diversifier/internal/risk"
	"github.com/wonny/diversifier/pkg/logger"
	"github.com/wonny/diversifier/pkg/metrics"
)

// Report is the outcome of one walk-forward run
type Report struct {
	RunID     string                        `json:"run_id"`
	StartedAt time.Time                     `json:"started_at"`
	Config    Config                        `json:"config"`
	Periods   []contracts.WalkForwardResult `json:"periods"` // ascending by cutoff
	Summary   Summary                       `json:"summary"`
	Warnings  []string                      `json:"warnings,omitempty"`
	Duration  time.Duration                 `json:"duration"`

	// Set by RunSuite
	Timeframes  []TimeframeResult `json:"timeframes,omitempty"`
	Sensitivity *Sensitivity      `json:"sensitivity,omitempty"`
	Assessment  *Assessment       `json:"assessment,omitempty"`
}

// Verdict returns the overall score and tier: the assessment when one was made,
// the walk-forward summary otherwise
func (r *Report) Verdict() (float64, string) {
	if r.Assessment != nil {
		return r.Assessment.Score, r.Assessment.Recommendation
	}
	return r.Summary.RobustnessScore, r.Summary.Recommendation
}

// Validator re-runs the pipeline at historical cutoffs and measures what followed
// ⭐ SSOT: 선택은 cutoff 이전 데이터만, 측정은 이후 데이터만
type Validator struct {
	config   Config
	pipeline *brain.Orchestrator
	recorder *metrics.Recorder
	logger   *logger.Logger
}

// NewValidator creates a walk-forward validator over a pipeline
func NewValidator(config Config, pipeline *brain.Orchestrator, recorder *metrics.Recorder, log *logger.Logger) (*Validator, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("walkforward config: %w", err)
	}
	if pipeline == nil {
		return nil, fmt.Errorf("walkforward: pipeline is nil")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Validator{
		config:   config,
		pipeline: pipeline,
		recorder: recorder,
		logger:   log.WithComponent("walkforward"),
	}, nil
}

// Config returns the validator configuration
func (v *Validator) Config() Config {
	return v.config
}

// Run evaluates every cutoff. A period that cannot be selected or measured is recorded
// with its error; temporal leakage and cancellation abort the whole run.
func (v *Validator) Run(ctx context.Context, provider contracts.PriceProvider, universe []contracts.Listing, cutoffs []time.Time) (*Report, error) {
	if provider == nil {
		return nil, fmt.Errorf("walkforward: no price provider")
	}
	if len(cutoffs) == 0 {
		return nil, fmt.Errorf("walkforward: no cutoff dates")
	}

	start := time.Now()
	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: start,
		Config:    v.config,
	}
	log := v.logger.WithRun(report.RunID)

	sorted := append([]time.Time(nil), cutoffs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	log.WithFields(map[string]interface{}{
		"periods":   len(sorted),
		"first":     sorted[0].Format("2006-01-02"),
		"last":      sorted[len(sorted)-1].Format("2006-01-02"),
		"holding":   v.config.HoldingPeriod,
		"weights":   v.config.Weights,
		"benchmark": v.config.Benchmark,
	}).Info("Starting walk-forward validation")

	report.Periods = make([]contracts.WalkForwardResult, len(sorted))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.config.Workers)
	for i, cutoff := range sorted {
		i, cutoff := i, cutoff
		g.Go(func() error {
			period, err := v.runPeriod(gctx, provider, universe, cutoff, fmt.Sprintf("%s-p%02d", report.RunID, i+1))
			if err != nil {
				return err
			}
			report.Periods[i] = *period
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		v.recorder.RecordRun("walkforward", false)
		log.WithError(err).Error("Walk-forward validation aborted")
		return nil, err
	}

	report.Summary, report.Warnings = Summarize(report.Periods, v.config.StabilityCV)
	report.Duration = time.Since(start)

	v.recorder.RecordRun("walkforward", true)
	v.recorder.SetWalkForward("mean_sharpe", report.Summary.MeanSharpe)
	v.recorder.SetWalkForward("win_rate", report.Summary.WinRate)
	v.recorder.SetWalkForward("robustness_score", report.Summary.RobustnessScore)

	log.WithFields(map[string]interface{}{
		"evaluated":   report.Summary.Evaluated,
		"failed":      report.Summary.Failed,
		"mean_sharpe": fmt.Sprintf("%.2f", report.Summary.MeanSharpe),
		"win_rate":    fmt.Sprintf("%.0f%%", report.Summary.WinRate*100),
		"stable":      report.Summary.Stable,
		"score":       fmt.Sprintf("%.1f", report.Summary.RobustnessScore),
		"duration_ms": report.Duration.Milliseconds(),
	}).Info("Walk-forward validation completed")

	return report, nil
}

// window is one select-then-measure evaluation
type window struct {
	pipeline *brain.Orchestrator
	runID    string
	cutoff   time.Time
	holding  int       // trading days measured after cutoff, 0 = up to end
	end      time.Time // zero = no calendar bound
}

// RunSuite runs the walk-forward cutoffs, then the configured timeframes and parameter
// sensitivity up to end, and combines them into one Assessment. A zero end means today.
func (v *Validator) RunSuite(ctx context.Context, provider contracts.PriceProvider, universe []contracts.Listing, cutoffs []time.Time, end time.Time) (*Report, error) {
	report, err := v.Run(ctx, provider, universe, cutoffs)
	if err != nil {
		return nil, err
	}
	if end.IsZero() {
		now := time.Now().UTC()
		end = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}

	if len(v.config.Timeframes) > 0 {
		report.Timeframes, err = v.RunTimeframes(ctx, provider, universe, end, v.config.Timeframes)
		if err != nil {
			return nil, err
		}
	}
	if v.config.Sensitivity.Draws > 0 {
		report.Sensitivity, err = v.RunSensitivity(ctx, provider, universe, end, v.config.Sensitivity)
		if err != nil {
			return nil, err
		}
	}

	a := Assess(report.Timeframes, report.Periods, report.Sensitivity)
	report.Assessment = &a
	report.Warnings = append(report.Warnings, a.Warnings...)
	report.Duration = time.Since(report.StartedAt)

	v.recorder.SetWalkForward("overall_score", a.Score)
	v.logger.WithRun(report.RunID).WithFields(map[string]interface{}{
		"timeframes":     len(report.Timeframes),
		"sensitivity":    report.Sensitivity != nil,
		"score":          fmt.Sprintf("%.1f", a.Score),
		"recommendation": a.Recommendation,
	}).Info("Validation suite completed")
	return report, nil
}

// runPeriod evaluates one walk-forward cutoff over the configured holding period
func (v *Validator) runPeriod(ctx context.Context, provider contracts.PriceProvider, universe []contracts.Listing, cutoff time.Time, runID string) (*contracts.WalkForwardResult, error) {
	return v.evaluate(ctx, provider, universe, window{
		pipeline: v.pipeline,
		runID:    runID,
		cutoff:   cutoff,
		holding:  v.config.HoldingPeriod,
	})
}

// evaluate selects as of the cutoff, then measures the window on unrestricted data.
// Only fatal errors are returned; anything else is recorded on the result.
func (v *Validator) evaluate(ctx context.Context, provider contracts.PriceProvider, universe []contracts.Listing, w window) (*contracts.WalkForwardResult, error) {
	cutoff := w.cutoff
	period := &contracts.WalkForwardResult{SelectionDate: cutoff}
	log := v.logger.WithRun(w.runID).WithField("cutoff", cutoff.Format("2006-01-02"))

	// SELECT: the orchestrator reads through an as-of view bounded by cutoff
	run, err := w.pipeline.Run(ctx, brain.RunConfig{
		RunID:            w.runID,
		Provider:         provider,
		Universe:         universe,
		AsOf:             cutoff,
		SkipOptimization: v.config.Weights == contracts.WeightsEqual,
	})
	if err != nil {
		if fatal(ctx, err) {
			return nil, fmt.Errorf("period %s: %w", cutoff.Format("2006-01-02"), err)
		}
		period.Error = fmt.Sprintf("selection failed: %v", err)
		log.WithError(err).Warn("Period selection failed")
		return period, nil
	}
	period.Portfolio = run.Portfolio
	period.Warnings = append(period.Warnings, run.Portfolio.Warnings...)

	weights, err := v.weights(run)
	if err != nil {
		period.Error = err.Error()
		return period, nil
	}
	period.Weights = &weights

	// HOLD + MEASURE: future data is now revealed
	tickers := append([]string(nil), weights.Tickers...)
	if v.config.Benchmark != "" {
		tickers = append(tickers, v.config.Benchmark)
	}
	loaded, missing, err := prices.LoadSeries(ctx, provider, tickers, len(tickers))
	if err != nil {
		if fatal(ctx, err) {
			return nil, err
		}
		period.Error = fmt.Sprintf("forward prices: %v", err)
		return period, nil
	}
	series := make(map[string]*contracts.PriceSeries, len(loaded))
	for _, s := range loaded {
		series[s.Ticker] = s
	}
	var benchmark *contracts.PriceSeries
	if v.config.Benchmark != "" {
		benchmark = series[v.config.Benchmark]
		if benchmark == nil {
			period.Warnings = append(period.Warnings, fmt.Sprintf("benchmark %s unavailable: %s", v.config.Benchmark, missing[v.config.Benchmark]))
		}
	}

	fw, err := measureForward(weights, series, benchmark, cutoff, w.end, w.holding)
	if err != nil {
		period.Error = fmt.Sprintf("forward measurement: %v", err)
		return period, nil
	}
	if len(fw.dropped) > 0 {
		period.Warnings = append(period.Warnings, fmt.Sprintf("members without forward prices: %v", fw.dropped))
	}
	if len(fw.dates) < v.config.MinForwardDays {
		period.Error = fmt.Sprintf("only %d forward days after cutoff (need %d)", len(fw.dates), v.config.MinForwardDays)
		return period, nil
	}
	if w.holding > 0 && len(fw.dates) < w.holding {
		period.Warnings = append(period.Warnings, fmt.Sprintf("holding window truncated to %d of %d days", len(fw.dates), w.holding))
	}

	perf := risk.Measure(fw.portfolio, v.config.RiskFreeRate)
	period.HoldingEnd = fw.dates[len(fw.dates)-1]
	period.TradingDays = perf.TradingDays
	period.TotalReturn = perf.TotalReturn
	period.AnnualizedReturn = perf.AnnualizedReturn
	period.Volatility = perf.Volatility
	period.Sharpe = perf.Sharpe
	period.MaxDrawdown = perf.MaxDrawdown
	period.VaR = perf.VaR.VaR
	period.CVaR = perf.VaR.CVaR

	if fw.benchmark != nil {
		period.HasBenchmark = true
		period.BenchmarkReturn = risk.TotalReturn(fw.benchmark)
		period.Alpha = period.TotalReturn - period.BenchmarkReturn
		if beta, corr, ok := risk.Relative(fw.portfolio, fw.benchmark); ok {
			period.Beta, period.Correlation = beta, corr
		}
	}

	log.WithFields(map[string]interface{}{
		"selected":     run.Portfolio.Size(),
		"holding_end":  period.HoldingEnd.Format("2006-01-02"),
		"total_return": fmt.Sprintf("%.2f%%", period.TotalReturn*100),
		"sharpe":       fmt.Sprintf("%.2f", period.Sharpe),
	}).Info("Period evaluated")

	return period, nil
}

// weights picks the configured vector; equal weight is derived from the portfolio directly
func (v *Validator) weights(run *brain.RunResult) (contracts.WeightVector, error) {
	if v.config.Weights == contracts.WeightsEqual {
		tickers := run.Portfolio.Tickers()
		if len(tickers) == 0 {
			return contracts.WeightVector{}, fmt.Errorf("empty portfolio")
		}
		w := make([]float64, len(tickers))
		for i := range w {
			w[i] = 1 / float64(len(tickers))
		}
		return contracts.WeightVector{Name: contracts.WeightsEqual, Tickers: tickers, Weights: w}, nil
	}
	w, ok := run.Weights(v.config.Weights)
	if !ok {
		return contracts.WeightVector{}, fmt.Errorf("no %s weights", v.config.Weights)
	}
	return w, nil
}

func fatal(ctx context.Context, err error) bool {
	return errors.Is(err, contracts.ErrTemporalLeakage) || ctx.Err() != nil
}
