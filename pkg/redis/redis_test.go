package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/diversifier/pkg/config"
)

func TestNew_Disabled(t *testing.T) {
	client, err := New(context.Background(), config.RedisConfig{Enabled: false})
	require.NoError(t, err)
	assert.False(t, client.Enabled())
	assert.NoError(t, client.Close())
}

func TestRateLimiter_DisabledAllowsAll(t *testing.T) {
	limiter := NewRateLimiter(Disabled(), "test")

	allowed, remaining, err := limiter.Allow(context.Background(), APIRateLimit("127.0.0.1"))
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 60, remaining)
}

func TestCache_DisabledIsNoop(t *testing.T) {
	cache := NewCache(Disabled(), "test")
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", "v", time.Minute))

	var got string
	found, err := cache.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, cache.Delete(ctx, "k"))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "prices:series:AAPL", SeriesKey("AAPL"))
	assert.Equal(t, "runs:latest", LatestRunKey())
}

func integrationClient(t *testing.T) *Client {
	t.Helper()
	host := os.Getenv("REDIS_HOST")
	if host == "" || testing.Short() {
		t.Skip("REDIS_HOST not set, skipping integration test")
	}
	port := os.Getenv("REDIS_PORT")
	if port == "" {
		port = "6379"
	}
	client, err := New(context.Background(), config.RedisConfig{Enabled: true, Host: host, Port: port})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestCache_RoundTrip(t *testing.T) {
	client := integrationClient(t)
	cache := NewCache(client, "diversifier-test")
	ctx := context.Background()

	type payload struct{ N int }
	require.NoError(t, cache.Set(ctx, "roundtrip", payload{N: 7}, time.Minute))
	t.Cleanup(func() { _ = cache.Delete(ctx, "roundtrip") })

	var got payload
	found, err := cache.Get(ctx, "roundtrip", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 7, got.N)
}

func TestRateLimiter_Window(t *testing.T) {
	client := integrationClient(t)
	limiter := NewRateLimiter(client, "diversifier-test")
	cfg := RateLimitConfig{Key: time.Now().Format(time.RFC3339Nano), Limit: 2, Window: time.Minute}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, _, err := limiter.Allow(ctx, cfg)
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, remaining, err := limiter.Allow(ctx, cfg)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Zero(t, remaining)
}
