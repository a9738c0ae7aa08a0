package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/diversifier/internal/contracts"
	"github.com/wonny/diversifier/internal/walkforward"
	"github.com/wonny/diversifier/pkg/logger"
)

// ReportPublisher receives each walk-forward report
type ReportPublisher interface {
	PublishReport(report *walkforward.Report)
}

// ReportSaver persists walk-forward reports
type ReportSaver interface {
	SaveWalkForward(ctx context.Context, report *walkforward.Report, strategyID, configHash string) error
}

// ValidationConfig wires a WalkForwardJob; Saver and Clock are optional
type ValidationConfig struct {
	Schedule   string
	Validator  *walkforward.Validator
	Provider   contracts.PriceProvider
	Universe   UniverseSource
	Cutoffs    func(end time.Time) []time.Time
	Publisher  ReportPublisher
	Saver      ReportSaver
	StrategyID string
	ConfigHash string
	Clock      func() time.Time
}

// WalkForwardJob re-validates the strategy on a schedule
type WalkForwardJob struct {
	cfg    ValidationConfig
	logger *logger.Logger
}

// NewWalkForwardJob creates a new validation job
func NewWalkForwardJob(cfg ValidationConfig, log *logger.Logger) (*WalkForwardJob, error) {
	if cfg.Validator == nil || cfg.Provider == nil || cfg.Universe == nil || cfg.Cutoffs == nil || cfg.Publisher == nil {
		return nil, fmt.Errorf("walk-forward job: validator, provider, universe, cutoffs and publisher are required")
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &WalkForwardJob{cfg: cfg, logger: log.WithComponent("walkforward_job")}, nil
}

// Name returns the job name
func (j *WalkForwardJob) Name() string {
	return "walkforward_validation"
}

// Schedule returns the cron schedule (with seconds)
func (j *WalkForwardJob) Schedule() string {
	return j.cfg.Schedule
}

// Run validates at cutoffs counted back from today, plus any configured timeframes
// and parameter draws ending today
func (j *WalkForwardJob) Run(ctx context.Context) error {
	now := j.cfg.Clock().UTC()
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	universe, err := j.cfg.Universe.Universe(ctx)
	if err != nil {
		return fmt.Errorf("load universe: %w", err)
	}

	report, err := j.cfg.Validator.RunSuite(ctx, j.cfg.Provider, universe, j.cfg.Cutoffs(end), end)
	if err != nil {
		return err
	}

	if j.cfg.Saver != nil {
		if err := j.cfg.Saver.SaveWalkForward(ctx, report, j.cfg.StrategyID, j.cfg.ConfigHash); err != nil {
			j.logger.WithError(err).Error("Failed to persist walk-forward report")
			report.Warnings = append(report.Warnings, "report was not persisted: "+err.Error())
		}
	}
	j.cfg.Publisher.PublishReport(report)

	score, tier := report.Verdict()
	j.logger.WithFields(map[string]interface{}{
		"periods":        report.Summary.Periods,
		"evaluated":      report.Summary.Evaluated,
		"score":          fmt.Sprintf("%.1f", score),
		"recommendation": tier,
	}).Info("Walk-forward validation completed")
	return nil
}
