package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/wonny/diversifier/internal/brain"
	"github.com/wonny/diversifier/internal/contracts"
	"github.com/wonny/diversifier/internal/portfolio"
	"github.com/wonny/diversifier/internal/prices"
	"github.com/wonny/diversifier/internal/scheduler/jobs"
	"github.com/wonny/diversifier/internal/strategyconfig"
	"github.com/wonny/diversifier/internal/walkforward"
	"github.com/wonny/diversifier/pkg/config"
	"github.com/wonny/diversifier/pkg/database"
	"github.com/wonny/diversifier/pkg/httputil"
	"github.com/wonny/diversifier/pkg/logger"
	"github.com/wonny/diversifier/pkg/metrics"
	"github.com/wonny/diversifier/pkg/redis"
)

// runtime holds everything a command needs, built once from env + flags
// ⭐ SSOT: 커맨드 의존성 조립은 여기서만
type runtime struct {
	cfg      *config.Config
	log      *logger.Logger
	recorder *metrics.Recorder

	strategy *strategyconfig.Config
	snapshot *strategyconfig.Snapshot

	provider contracts.PriceProvider
	upstream contracts.PriceProvider // http source feeding the postgres store, if configured
	cache    *prices.CachedProvider  // nil when Redis is disabled
	universe jobs.UniverseSource

	db        *database.DB // nil without DATABASE_URL
	redis     *redis.Client
	priceRepo *prices.Repository
	runRepo   *portfolio.Repository
}

func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyFlags(cfg)

	rt := &runtime{cfg: cfg, log: logger.New(cfg), recorder: metrics.New()}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	if err := rt.loadStrategy(); err != nil {
		return nil, err
	}
	if err := rt.connect(ctx); err != nil {
		return nil, err
	}
	if err := rt.buildProvider(ctx); err != nil {
		return nil, err
	}

	ok = true
	return rt, nil
}

func applyFlags(cfg *config.Config) {
	if strategyPath != "" {
		cfg.StrategyPath = strategyPath
	}
	if priceSource != "" {
		cfg.Prices.Source = priceSource
	}
	if pricesDir != "" {
		cfg.Prices.CSVDir = pricesDir
	}
	if universePath != "" {
		cfg.Prices.UniversePath = universePath
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
}

// loadStrategy reads the strategy YAML; a missing default file falls back to built-in defaults
func (rt *runtime) loadStrategy() error {
	cfg, data, err := strategyconfig.Load(rt.cfg.StrategyPath)
	if errors.Is(err, os.ErrNotExist) && strategyPath == "" {
		rt.log.WithField("path", rt.cfg.StrategyPath).Info("Strategy file not found, using defaults")
		cfg, data = strategyconfig.Default(), nil
	} else if err != nil {
		return fmt.Errorf("load strategy: %w", err)
	}

	for _, w := range strategyconfig.Warn(cfg) {
		rt.log.WithField("code", w.Code).Warn(w.Message)
	}

	snapshot, err := strategyconfig.NewSnapshot(cfg, data)
	if err != nil {
		return fmt.Errorf("strategy snapshot: %w", err)
	}
	rt.strategy, rt.snapshot = cfg, snapshot
	return nil
}

func (rt *runtime) connect(ctx context.Context) error {
	if rt.cfg.Database.Enabled() {
		db, err := database.New(ctx, rt.cfg.Database)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		rt.db = db
		rt.priceRepo = prices.NewRepository(db.Pool)
		rt.runRepo = portfolio.NewRepository(db)
	}

	client, err := redis.New(ctx, rt.cfg.Redis)
	if err != nil {
		return err
	}
	rt.redis = client
	return nil
}

func (rt *runtime) buildProvider(ctx context.Context) error {
	pc := rt.cfg.Prices

	var base contracts.PriceProvider
	switch pc.Source {
	case "csv":
		store, skipped, err := prices.LoadCSVDir(pc.CSVDir)
		if err != nil {
			return err
		}
		for ticker, reason := range skipped {
			rt.log.WithFields(map[string]interface{}{"ticker": ticker, "reason": reason}).Warn("Skipped unreadable price file")
		}
		base = store
	case "postgres":
		if rt.priceRepo == nil {
			return fmt.Errorf("postgres price source requires DATABASE_URL")
		}
		if err := rt.priceRepo.EnsureSchema(ctx); err != nil {
			return err
		}
		base = rt.priceRepo
	case "http":
		source, err := rt.httpSource()
		if err != nil {
			return err
		}
		base = source
	default:
		return fmt.Errorf("unknown price source %q", pc.Source)
	}

	// postgres + URL template: the http source keeps the store fresh via price_sync
	if pc.Source == "postgres" && pc.URLTemplate != "" {
		source, err := rt.httpSource()
		if err != nil {
			return err
		}
		rt.upstream = source
	}

	rt.provider = base
	if rt.redis.Enabled() {
		rt.cache = prices.NewCachedProvider(base, rt.redis, rt.cfg.Redis.PriceTTL, rt.log)
		rt.provider = rt.cache
	}

	// A universe file wins; otherwise postgres listings
	if _, err := os.Stat(pc.UniversePath); err == nil || pc.Source != "postgres" {
		listings, err := prices.LoadUniverse(pc.UniversePath)
		if err != nil {
			return err
		}
		rt.universe = prices.StaticUniverse(listings)
	} else {
		rt.universe = rt.priceRepo
	}
	return nil
}

func (rt *runtime) httpSource() (contracts.PriceProvider, error) {
	pc := rt.cfg.Prices
	if pc.URLTemplate == "" {
		return nil, fmt.Errorf("http price source requires PRICE_URL_TEMPLATE")
	}
	client := httputil.New(pc, rt.log)
	if pc.Format == "html" {
		return prices.NewHTMLSource(client, pc.URLTemplate, pc.MaxPages)
	}
	return prices.NewHTTPSource(client, pc.URLTemplate)
}

func (rt *runtime) pipeline() (*brain.Orchestrator, error) {
	return brain.NewOrchestrator(rt.strategy.Pipeline(), rt.recorder, rt.log)
}

// validator builds the walk-forward validator; mutate may override the strategy settings
func (rt *runtime) validator(mutate ...func(*walkforward.Config)) (*walkforward.Validator, error) {
	pipeline, err := rt.pipeline()
	if err != nil {
		return nil, err
	}
	cfg := rt.strategy.Validation()
	for _, m := range mutate {
		m(&cfg)
	}
	return walkforward.NewValidator(cfg, pipeline, rt.recorder, rt.log)
}

// runSaver returns nil (not a typed nil) without a database
func (rt *runtime) runSaver() jobs.RunSaver {
	if rt.runRepo == nil {
		return nil
	}
	return rt.runRepo
}

func (rt *runtime) Close() {
	if rt.db != nil {
		rt.db.Close()
	}
	if rt.redis != nil {
		_ = rt.redis.Close()
	}
}
