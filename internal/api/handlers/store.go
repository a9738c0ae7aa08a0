package handlers

import (
	"context"
	"errors"
	"sync"

	"github.com/wonny/diversifier/internal/portfolio"
	"github.com/wonny/diversifier/internal/walkforward"
	"github.com/wonny/diversifier/pkg/logger"
	"github.com/wonny/diversifier/pkg/redis"
)

// RecordLoader reads persisted runs
type RecordLoader interface {
	GetLatestRun(ctx context.Context) (*portfolio.Record, error)
}

// RunStore holds what the API serves: the latest run and walk-forward report.
// Lookups fall through memory, then the shared Redis cache, then the repository.
// ⭐ SSOT: API가 제공하는 최신 결과는 여기서만 관리
type RunStore struct {
	mu     sync.RWMutex
	latest *portfolio.Record
	report *walkforward.Report

	cache *redis.Cache
	repo  RecordLoader
	log   *logger.Logger
}

// NewRunStore creates a store; cache and repo may be nil
func NewRunStore(cache *redis.Cache, repo RecordLoader, log *logger.Logger) *RunStore {
	return &RunStore{
		cache: cache,
		repo:  repo,
		log:   log.WithComponent("run_store"),
	}
}

// Publish makes rec the latest run
func (s *RunStore) Publish(ctx context.Context, rec *portfolio.Record) {
	s.mu.Lock()
	s.latest = rec
	s.mu.Unlock()

	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, redis.LatestRunKey(), rec, redis.TTLDaily); err != nil {
		s.log.WithError(err).Warn("Failed to cache latest run")
	}
}

// PublishReport makes report the latest walk-forward report
func (s *RunStore) PublishReport(report *walkforward.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report = report
}

// Latest returns the most recent run or portfolio.ErrNoRuns
func (s *RunStore) Latest(ctx context.Context) (*portfolio.Record, error) {
	s.mu.RLock()
	rec := s.latest
	s.mu.RUnlock()
	if rec != nil {
		return rec, nil
	}

	if s.cache != nil {
		var cached portfolio.Record
		found, err := s.cache.Get(ctx, redis.LatestRunKey(), &cached)
		if err != nil {
			s.log.WithError(err).Warn("Failed to read cached run")
		} else if found {
			return &cached, nil
		}
	}

	if s.repo == nil {
		return nil, portfolio.ErrNoRuns
	}
	rec, err := s.repo.GetLatestRun(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.latest == nil {
		s.latest = rec
	}
	s.mu.Unlock()
	return rec, nil
}

// Report returns the latest walk-forward report, nil before any
func (s *RunStore) Report() *walkforward.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.report
}

func isNoRuns(err error) bool {
	return errors.Is(err, portfolio.ErrNoRuns)
}
