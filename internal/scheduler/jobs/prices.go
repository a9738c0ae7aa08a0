package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/diversifier/internal/contracts"
	"github.com/wonny/diversifier/pkg/logger"
)

// SeriesSaver stores fetched series (prices.Repository)
type SeriesSaver interface {
	SaveSeries(ctx context.Context, series *contracts.PriceSeries) error
}

// PriceSyncJob copies full histories from an upstream source into the store
// ⭐ SSOT: 가격 수집 스케줄은 이 Job에서만
type PriceSyncJob struct {
	schedule string
	upstream contracts.PriceProvider
	store    SeriesSaver
	universe UniverseSource
	workers  int
	logger   *logger.Logger
}

// NewPriceSyncJob creates a new price sync job
func NewPriceSyncJob(schedule string, upstream contracts.PriceProvider, store SeriesSaver, universe UniverseSource, workers int, log *logger.Logger) *PriceSyncJob {
	if workers < 1 {
		workers = 1
	}
	return &PriceSyncJob{
		schedule: schedule,
		upstream: upstream,
		store:    store,
		universe: universe,
		workers:  workers,
		logger:   log.WithComponent("price_sync"),
	}
}

// Name returns the job name
func (j *PriceSyncJob) Name() string {
	return "price_sync"
}

// Schedule returns the cron schedule (with seconds)
func (j *PriceSyncJob) Schedule() string {
	return j.schedule
}

// Run syncs every listed ticker. Individual failures are collected;
// the job fails only when nothing could be synced.
func (j *PriceSyncJob) Run(ctx context.Context) error {
	universe, err := j.universe.Universe(ctx)
	if err != nil {
		return fmt.Errorf("load universe: %w", err)
	}

	var (
		mu     sync.Mutex
		failed = make(map[string]string)
		synced int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.workers)
	for _, l := range universe {
		ticker := l.Ticker
		g.Go(func() error {
			err := j.sync(gctx, ticker)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed[ticker] = err.Error()
				return nil
			}
			synced++
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	if len(failed) > 0 {
		tickers := make([]string, 0, len(failed))
		for t := range failed {
			tickers = append(tickers, t)
		}
		sort.Strings(tickers)
		j.logger.WithFields(map[string]interface{}{
			"failed":  len(failed),
			"tickers": tickers,
		}).Warn("Some tickers could not be synced")
	}
	if synced == 0 && len(universe) > 0 {
		return fmt.Errorf("price sync: all %d tickers failed", len(universe))
	}

	j.logger.WithFields(map[string]interface{}{
		"synced": synced,
		"failed": len(failed),
	}).Info("Price sync completed")
	return nil
}

func (j *PriceSyncJob) sync(ctx context.Context, ticker string) error {
	series, err := j.upstream.PriceSeries(ctx, ticker)
	if err != nil {
		return err
	}
	if err := series.Validate(); err != nil {
		return err
	}
	return j.store.SaveSeries(ctx, series)
}

// Invalidator drops cached series (prices.CachedProvider)
type Invalidator interface {
	Invalidate(ctx context.Context, ticker string) error
}

// CacheRefreshJob evicts cached series so the next run sees new bars
type CacheRefreshJob struct {
	schedule string
	cache    Invalidator
	universe UniverseSource
	logger   *logger.Logger
}

// NewCacheRefreshJob creates a new cache refresh job
func NewCacheRefreshJob(schedule string, cache Invalidator, universe UniverseSource, log *logger.Logger) *CacheRefreshJob {
	return &CacheRefreshJob{
		schedule: schedule,
		cache:    cache,
		universe: universe,
		logger:   log.WithComponent("cache_refresh"),
	}
}

// Name returns the job name
func (j *CacheRefreshJob) Name() string {
	return "price_cache_refresh"
}

// Schedule returns the cron schedule (with seconds)
func (j *CacheRefreshJob) Schedule() string {
	return j.schedule
}

// Run executes the cache refresh
func (j *CacheRefreshJob) Run(ctx context.Context) error {
	universe, err := j.universe.Universe(ctx)
	if err != nil {
		return fmt.Errorf("load universe: %w", err)
	}

	for _, l := range universe {
		if err := j.cache.Invalidate(ctx, l.Ticker); err != nil {
			return fmt.Errorf("invalidate %s: %w", l.Ticker, err)
		}
	}

	j.logger.WithField("tickers", len(universe)).Debug("Price cache refreshed")
	return nil
}
