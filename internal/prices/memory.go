package prices

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wonny/diversifier/internal/contracts"
)

// MemoryStore is an in-memory PriceProvider. Callers always receive copies.
type MemoryStore struct {
	mu     sync.RWMutex
	series map[string]*contracts.PriceSeries
}

// NewMemoryStore creates a store holding the given series
func NewMemoryStore(series ...*contracts.PriceSeries) *MemoryStore {
	s := &MemoryStore{series: make(map[string]*contracts.PriceSeries, len(series))}
	for _, ps := range series {
		s.Put(ps)
	}
	return s
}

// Put stores a copy of series, replacing any previous history for the ticker
func (s *MemoryStore) Put(series *contracts.PriceSeries) {
	if series == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.series[series.Ticker] = series.Clone()
}

// Tickers returns stored tickers in ascending order
func (s *MemoryStore) Tickers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.series))
	for t := range s.series {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// PriceSeries returns the full history of ticker
func (s *MemoryStore) PriceSeries(_ context.Context, ticker string) (*contracts.PriceSeries, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ps, ok := s.series[ticker]
	if !ok || ps.Len() == 0 {
		return nil, fmt.Errorf("%s: %w", ticker, contracts.ErrNotFound)
	}
	return ps.Clone(), nil
}

// PriceSeriesAsOf returns history dated on or before asOf
func (s *MemoryStore) PriceSeriesAsOf(_ context.Context, ticker string, asOf time.Time) (*contracts.PriceSeries, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ps, ok := s.series[ticker]
	if !ok {
		return nil, fmt.Errorf("%s: %w", ticker, contracts.ErrNotFound)
	}
	out := ps.AsOf(asOf)
	if out.Len() == 0 {
		return nil, notFoundAsOf(ticker, asOf)
	}
	return out, nil
}

func notFoundAsOf(ticker string, asOf time.Time) error {
	return fmt.Errorf("%s as of %s: %w", ticker, asOf.Format(DateLayout), contracts.ErrNotFound)
}

// StaticUniverse serves a fixed listing, e.g. one read from a universe CSV
type StaticUniverse []contracts.Listing

// Universe returns a copy of the listings
func (u StaticUniverse) Universe(context.Context) ([]contracts.Listing, error) {
	return append([]contracts.Listing(nil), u...), nil
}
