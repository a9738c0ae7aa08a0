package brain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/diversifier/internal/contracts"
	"github.com/wonny/diversifier/internal/correlation"
	"github.com/wonny/diversifier/internal/optimizer"
	"github.com/wonny/diversifier/internal/prices"
	"github.com/wonny/diversifier/internal/returns"
	"github.com/wonny/diversifier/internal/screening"
	"github.com/wonny/diversifier/internal/selection"
	"github.com/wonny/diversifier/pkg/logger"
	"github.com/wonny/diversifier/pkg/metrics"
)

// Stage names recorded in RunResult.CompletedStages
const (
	StageScreening   = "screening"
	StageReturns     = "returns"
	StageCorrelation = "correlation"
	StageSelection   = "selection"
	StageOptimizer   = "optimizer"
)

// Config holds every component configuration of one pipeline
type Config struct {
	Screening           screening.Config
	Selection           selection.Config
	Optimizer           optimizer.Config
	CorrelationLookback int // trailing returns for correlation, 0 = all
	LoadWorkers         int // concurrent price loads
}

// DefaultConfig returns the default pipeline configuration
func DefaultConfig() Config {
	return Config{
		Screening:           screening.DefaultConfig(),
		Selection:           selection.DefaultConfig(),
		Optimizer:           optimizer.DefaultConfig(),
		CorrelationLookback: 252,
		LoadWorkers:         8,
	}
}

// RunConfig describes one pipeline run
type RunConfig struct {
	RunID    string // generated when empty
	Provider contracts.PriceProvider
	Universe []contracts.Listing
	// AsOf restricts every read to bars on or before it; zero means latest data
	AsOf time.Time
	// SkipOptimization stops after selection
	SkipOptimization bool
}

// RunResult holds the outputs of every completed stage
type RunResult struct {
	RunID           string                  `json:"run_id"`
	AsOf            time.Time               `json:"as_of"`
	StartedAt       time.Time               `json:"started_at"`
	Success         bool                    `json:"success"`
	Error           string                  `json:"error,omitempty"`
	CompletedStages []string                `json:"completed_stages"`
	Candidates      []contracts.AssetMetric `json:"candidates"`
	Excluded        map[string]string       `json:"excluded"` // ticker -> "stage: reason"
	Correlation     *correlation.Matrix     `json:"-"`
	Portfolio       *contracts.Portfolio    `json:"portfolio,omitempty"`
	Frontier        *optimizer.Frontier     `json:"frontier,omitempty"`
	LatestPrices    map[string]float64      `json:"latest_prices"`
	MaxObserved     time.Time               `json:"max_observed,omitempty"` // latest bar read under AsOf
	Warnings        []string                `json:"warnings,omitempty"`
	Duration        time.Duration           `json:"duration"`
}

// Weights returns the named weight vector of the run
func (r *RunResult) Weights(name string) (contracts.WeightVector, bool) {
	if r.Frontier == nil {
		return contracts.WeightVector{}, false
	}
	return r.Frontier.ByName(name)
}

// Orchestrator runs screening → returns → correlation → selection → optimisation
// ⭐ SSOT: 파이프라인 조율은 여기서만
type Orchestrator struct {
	config    Config
	screener  *screening.Screener
	builder   *returns.Builder
	estimator *correlation.Estimator
	selector  *selection.Selector
	optimizer *optimizer.Optimizer
	recorder  *metrics.Recorder
	logger    *logger.Logger
}

// NewOrchestrator validates config and builds every component
func NewOrchestrator(config Config, recorder *metrics.Recorder, log *logger.Logger) (*Orchestrator, error) {
	if log == nil {
		log = logger.Nop()
	}
	if config.CorrelationLookback < 0 {
		return nil, fmt.Errorf("correlation lookback must be >= 0, got %d", config.CorrelationLookback)
	}
	if config.LoadWorkers < 1 {
		config.LoadWorkers = 1
	}

	screener, err := screening.NewScreener(config.Screening, log)
	if err != nil {
		return nil, err
	}
	selector, err := selection.NewSelector(config.Selection, log)
	if err != nil {
		return nil, err
	}
	opt, err := optimizer.NewOptimizer(config.Optimizer, log)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		config:    config,
		screener:  screener,
		builder:   returns.NewBuilder(log),
		estimator: correlation.NewEstimator(log),
		selector:  selector,
		optimizer: opt,
		recorder:  recorder,
		logger:    log.WithComponent("brain"),
	}, nil
}

// Config returns the pipeline configuration
func (o *Orchestrator) Config() Config {
	return o.config
}

// Run executes the pipeline. A failed stage returns the partial result together
// with the error; an under-filled portfolio is a warning, not a failure.
func (o *Orchestrator) Run(ctx context.Context, cfg RunConfig) (*RunResult, error) {
	start := time.Now()
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	result := &RunResult{
		RunID:           cfg.RunID,
		AsOf:            cfg.AsOf,
		StartedAt:       start,
		CompletedStages: make([]string, 0, 5),
		Excluded:        make(map[string]string),
	}
	log := o.logger.WithRun(cfg.RunID)

	if cfg.Provider == nil {
		return o.fail(result, start, fmt.Errorf("no price provider"))
	}

	provider := cfg.Provider
	var view *prices.AsOfView
	if !cfg.AsOf.IsZero() {
		view = prices.NewAsOfView(cfg.Provider, cfg.AsOf, log)
		view.OnViolation(func(*contracts.TemporalLeakageError) { o.recorder.RecordLeakage() })
		provider = view
	}

	log.WithFields(map[string]interface{}{
		"universe": len(cfg.Universe),
		"as_of":    formatDate(cfg.AsOf),
	}).Info("Starting pipeline run")

	err := o.run(ctx, cfg, provider, result, log)
	if view != nil {
		result.MaxObserved = view.MaxObserved()
	}
	if err != nil {
		return o.fail(result, start, err)
	}

	result.Success = true
	result.Duration = time.Since(start)
	o.recorder.RecordRun("pipeline", true)

	log.WithFields(map[string]interface{}{
		"duration_ms": result.Duration.Milliseconds(),
		"stages":      len(result.CompletedStages),
		"selected":    result.Portfolio.Size(),
		"warnings":    len(result.Warnings),
	}).Info("Pipeline run completed")

	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, cfg RunConfig, provider contracts.PriceProvider, result *RunResult, log *logger.Logger) error {
	// 1. screening
	stageStart := time.Now()
	screened, err := o.screener.Screen(ctx, provider, cfg.Universe)
	if err != nil {
		return fmt.Errorf("%s: %w", StageScreening, err)
	}
	o.exclude(result, StageScreening, screened.Excluded)
	if len(screened.Metrics) < 2 {
		return fmt.Errorf("%s: %w", StageScreening, &contracts.InsufficientDataError{
			Op:     StageScreening,
			Detail: fmt.Sprintf("%d candidates passed screening", len(screened.Metrics)),
		})
	}
	result.Candidates = screened.Metrics
	o.completed(log, result, StageScreening, stageStart)

	// 2. returns
	stageStart = time.Now()
	tickers := make([]string, len(screened.Metrics))
	for i, m := range screened.Metrics {
		tickers[i] = m.Ticker
	}
	series, missing, err := prices.LoadSeries(ctx, provider, tickers, o.config.LoadWorkers)
	if err != nil {
		return fmt.Errorf("%s: %w", StageReturns, err)
	}
	o.exclude(result, StageReturns, missing)

	built, err := o.builder.Build(series, returns.Options{Lookback: o.config.CorrelationLookback})
	if err != nil {
		return fmt.Errorf("%s: %w", StageReturns, err)
	}
	o.exclude(result, StageReturns, built.Excluded)
	result.LatestPrices = latestPrices(series)
	o.completed(log, result, StageReturns, stageStart)

	// 3. correlation
	stageStart = time.Now()
	corr, err := o.estimator.Estimate(built.Matrix, 0)
	if err != nil {
		return fmt.Errorf("%s: %w", StageCorrelation, err)
	}
	result.Correlation = corr
	o.completed(log, result, StageCorrelation, stageStart)

	// 4. selection
	stageStart = time.Now()
	portfolio, err := o.selector.Select(screened.Metrics, corr)
	if err != nil {
		return fmt.Errorf("%s: %w", StageSelection, err)
	}
	if !cfg.AsOf.IsZero() {
		portfolio.AsOf = cfg.AsOf
	} else if dates := built.Matrix.Dates(); len(dates) > 0 {
		portfolio.AsOf = dates[len(dates)-1]
	}
	result.Portfolio = portfolio
	o.recorder.RecordExcluded(StageSelection, len(portfolio.Excluded))
	result.Warnings = append(result.Warnings, portfolio.Warnings...)
	if portfolio.Underfilled {
		o.recorder.RecordUnderfill()
	}
	o.completed(log, result, StageSelection, stageStart)

	if cfg.SkipOptimization {
		return nil
	}

	// 5. optimisation over the selected members
	stageStart = time.Now()
	members := make([]*contracts.PriceSeries, 0, portfolio.Size())
	for _, s := range series {
		if portfolio.Contains(s.Ticker) {
			members = append(members, s)
		}
	}
	memberReturns, err := o.builder.Build(members, returns.Options{Lookback: o.config.Optimizer.Lookback})
	if err != nil {
		return fmt.Errorf("%s: %w", StageOptimizer, err)
	}
	// keep portfolio order for the weight vectors
	rm, err := memberReturns.Matrix.Select(portfolio.Tickers())
	if err != nil {
		return fmt.Errorf("%s: %w", StageOptimizer, err)
	}
	frontier, err := o.optimizer.Optimize(ctx, rm)
	if err != nil {
		return fmt.Errorf("%s: %w", StageOptimizer, err)
	}
	result.Frontier = frontier
	result.Warnings = append(result.Warnings, frontier.Warnings...)
	o.recorder.RecordFrontier(len(frontier.Samples), frontier.DegenerateSamples, frontier.RejectedSamples)
	o.completed(log, result, StageOptimizer, stageStart)

	return nil
}

func (o *Orchestrator) completed(log *logger.Logger, result *RunResult, stage string, started time.Time) {
	elapsed := time.Since(started)
	result.CompletedStages = append(result.CompletedStages, stage)
	o.recorder.ObserveStage(stage, elapsed)
	log.WithFields(map[string]interface{}{
		"stage":       stage,
		"duration_ms": elapsed.Milliseconds(),
	}).Debug("Stage completed")
}

func (o *Orchestrator) exclude(result *RunResult, stage string, excluded map[string]string) {
	for ticker, reason := range excluded {
		result.Excluded[ticker] = stage + ": " + reason
	}
	o.recorder.RecordExcluded(stage, len(excluded))
}

func (o *Orchestrator) fail(result *RunResult, start time.Time, err error) (*RunResult, error) {
	result.Error = err.Error()
	result.Duration = time.Since(start)
	o.recorder.RecordRun("pipeline", false)

	entry := o.logger.WithRun(result.RunID).WithError(err).WithField("stages", result.CompletedStages)
	if errors.Is(err, contracts.ErrTemporalLeakage) {
		entry.Error("Pipeline aborted by temporal leakage")
	} else {
		entry.Warn("Pipeline run failed")
	}
	return result, err
}

func latestPrices(series []*contracts.PriceSeries) map[string]float64 {
	out := make(map[string]float64, len(series))
	for _, s := range series {
		for i := s.Len() - 1; i >= 0; i-- {
			p := s.Bars[i].Price()
			if p > 0 && !math.IsInf(p, 0) {
				out[s.Ticker] = p
				break
			}
		}
	}
	return out
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "latest"
	}
	return t.Format("2006-01-02")
}
