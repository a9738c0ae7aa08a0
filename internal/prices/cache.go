package prices

import (
	"context"
	"time"

	"github.com/wonny/diversifier/internal/contracts"
	"github.com/wonny/diversifier/pkg/logger"
	"github.com/wonny/diversifier/pkg/redis"
)

// CachedProvider is a read-through Redis cache of full series.
// As-of reads are cut from the cached full series so the cache never
// needs a key per cutoff.
type CachedProvider struct {
	next   contracts.PriceProvider
	cache  *redis.Cache
	ttl    time.Duration
	logger *logger.Logger
}

// NewCachedProvider wraps next with a cache; a disabled client passes straight through
func NewCachedProvider(next contracts.PriceProvider, client *redis.Client, ttl time.Duration, log *logger.Logger) *CachedProvider {
	if log == nil {
		log = logger.Nop()
	}
	if ttl <= 0 {
		ttl = redis.TTLLong
	}
	return &CachedProvider{
		next:   next,
		cache:  redis.NewCache(client, "diversifier"),
		ttl:    ttl,
		logger: log.WithComponent("price_cache"),
	}
}

// PriceSeries serves from cache, falling back to the wrapped provider
func (c *CachedProvider) PriceSeries(ctx context.Context, ticker string) (*contracts.PriceSeries, error) {
	key := redis.SeriesKey(ticker)

	var cached contracts.PriceSeries
	found, err := c.cache.Get(ctx, key, &cached)
	if err != nil {
		c.logger.WithError(err).WithField("ticker", ticker).Warn("Price cache read failed")
	}
	if found {
		return &cached, nil
	}

	series, err := c.next.PriceSeries(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, series, c.ttl); err != nil {
		c.logger.WithError(err).WithField("ticker", ticker).Warn("Price cache write failed")
	}
	return series, nil
}

// PriceSeriesAsOf truncates the cached full series
func (c *CachedProvider) PriceSeriesAsOf(ctx context.Context, ticker string, asOf time.Time) (*contracts.PriceSeries, error) {
	series, err := c.PriceSeries(ctx, ticker)
	if err != nil {
		return nil, err
	}
	out := series.AsOf(asOf)
	if out.Len() == 0 {
		return nil, notFoundAsOf(ticker, asOf)
	}
	return out, nil
}

// Invalidate drops ticker from the cache
func (c *CachedProvider) Invalidate(ctx context.Context, ticker string) error {
	return c.cache.Delete(ctx, redis.SeriesKey(ticker))
}
