package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/diversifier/internal/brain"
	"github.com/wonny/diversifier/internal/contracts"
	"github.com/wonny/diversifier/internal/portfolio"
	"github.com/wonny/diversifier/internal/strategyconfig"
	"github.com/wonny/diversifier/pkg/logger"
)

// UniverseSource lists the candidate universe
type UniverseSource interface {
	Universe(ctx context.Context) ([]contracts.Listing, error)
}

// Publisher receives each rebuilt portfolio (the API run store)
type Publisher interface {
	Publish(ctx context.Context, rec *portfolio.Record)
}

// RunSaver persists rebuilt portfolios
type RunSaver interface {
	SaveRun(ctx context.Context, rec *portfolio.Record) error
}

// RebuildConfig wires a PortfolioRebuildJob; Saver and Snapshot are optional
type RebuildConfig struct {
	Schedule  string
	Pipeline  *brain.Orchestrator
	Provider  contracts.PriceProvider
	Universe  UniverseSource
	Snapshot  *strategyconfig.Snapshot
	Publisher Publisher
	Saver     RunSaver
}

// PortfolioRebuildJob rebuilds the portfolio from the latest prices
// ⭐ SSOT: 포트폴리오 재구성 스케줄은 이 Job에서만
type PortfolioRebuildJob struct {
	cfg    RebuildConfig
	logger *logger.Logger
}

// NewPortfolioRebuildJob creates a new rebuild job
func NewPortfolioRebuildJob(cfg RebuildConfig, log *logger.Logger) (*PortfolioRebuildJob, error) {
	if cfg.Pipeline == nil || cfg.Provider == nil || cfg.Universe == nil || cfg.Publisher == nil {
		return nil, fmt.Errorf("rebuild job: pipeline, provider, universe and publisher are required")
	}
	return &PortfolioRebuildJob{cfg: cfg, logger: log.WithComponent("rebuild_job")}, nil
}

// Name returns the job name
func (j *PortfolioRebuildJob) Name() string {
	return "portfolio_rebuild"
}

// Schedule returns the cron schedule (with seconds)
func (j *PortfolioRebuildJob) Schedule() string {
	return j.cfg.Schedule
}

// Run executes a rebuild
func (j *PortfolioRebuildJob) Run(ctx context.Context) error {
	_, err := j.Rebuild(ctx)
	return err
}

// Rebuild runs the pipeline, persists the record when a saver is set and publishes it.
// A persistence failure is reported as a warning on the record, not as an error.
func (j *PortfolioRebuildJob) Rebuild(ctx context.Context) (*portfolio.Record, error) {
	universe, err := j.cfg.Universe.Universe(ctx)
	if err != nil {
		return nil, fmt.Errorf("load universe: %w", err)
	}

	run, err := j.cfg.Pipeline.Run(ctx, brain.RunConfig{
		Provider: j.cfg.Provider,
		Universe: universe,
	})
	if err != nil {
		return nil, err
	}

	rec, err := portfolio.NewRecord(run, j.cfg.Snapshot)
	if err != nil {
		return nil, err
	}
	log := j.logger.WithRun(rec.RunID)

	if j.cfg.Saver != nil {
		if err := j.cfg.Saver.SaveRun(ctx, rec); err != nil {
			log.WithError(err).Error("Failed to persist rebuilt portfolio")
			rec.Warnings = append(rec.Warnings, "run was not persisted: "+err.Error())
		}
	}

	j.cfg.Publisher.Publish(ctx, rec)

	log.WithFields(map[string]interface{}{
		"universe":    len(universe),
		"selected":    rec.Portfolio.Size(),
		"underfilled": rec.Portfolio.Underfilled,
		"excluded":    len(rec.Excluded),
	}).Info("Portfolio rebuilt")

	return rec, nil
}
