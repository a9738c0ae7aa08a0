package screening

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/diversifier/internal/contracts"
	"github.com/wonny/diversifier/internal/prices"
	"github.com/wonny/diversifier/internal/risk"
)

// path compounds daily returns from 100, repeating pattern n times
func path(ticker string, volume int64, n int, pattern ...float64) *contracts.PriceSeries {
	dates := prices.BusinessDays(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), n*len(pattern)+1)
	s := &contracts.PriceSeries{Ticker: ticker}
	p := 100.0
	s.Bars = append(s.Bars, contracts.PriceBar{Date: dates[0], Close: p, Volume: volume})
	for i := 1; i < len(dates); i++ {
		p *= 1 + pattern[(i-1)%len(pattern)]
		s.Bars = append(s.Bars, contracts.PriceBar{Date: dates[i], Close: p, Volume: volume})
	}
	return s
}

func testScreener(t *testing.T, mutate func(*Config)) *Screener {
	t.Helper()
	cfg := DefaultConfig()
	cfg.MinHistory = 10
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewScreener(cfg, nil)
	require.NoError(t, err)
	return s
}

func TestScreen_RanksBySharpe(t *testing.T) {
	store := prices.NewMemoryStore(
		path("LOW", 1000, 20, 0.01, -0.009),
		path("HIGH", 1000, 20, 0.02, -0.01),
		path("NEG", 1000, 20, 0.01, -0.012),
	)
	universe := []contracts.Listing{
		{Ticker: "LOW", Sector: "Tech"},
		{Ticker: "HIGH", Sector: "Energy"},
		{Ticker: "NEG", Sector: "Tech"},
	}

	res, err := testScreener(t, nil).Screen(context.Background(), store, universe)
	require.NoError(t, err)
	require.Len(t, res.Metrics, 3)
	assert.Empty(t, res.Excluded)

	assert.Equal(t, "HIGH", res.Metrics[0].Ticker)
	assert.Equal(t, "LOW", res.Metrics[1].Ticker)
	assert.Equal(t, "NEG", res.Metrics[2].Ticker)
	assert.Less(t, res.Metrics[2].Sharpe, 0.0)

	high := res.Metrics[0]
	assert.Equal(t, "Energy", high.Sector)
	assert.InDelta(t, 1000, high.AvgVolume, 1e-9)
	assert.Greater(t, high.Volatility, 0.0)

	last, _ := store.PriceSeries(context.Background(), "HIGH")
	lastBar, _ := last.Last()
	assert.Equal(t, lastBar.Close, high.LatestPrice)
	assert.Equal(t, lastBar.Date, high.LatestDate)
	assert.InDelta(t, lastBar.Close/100-1, high.TotalReturn, 1e-9)
}

func TestScreen_SharpeDefinition(t *testing.T) {
	store := prices.NewMemoryStore(path("AAA", 1000, 10, 0.01, -0.005, 0.002))

	res, err := testScreener(t, nil).Screen(context.Background(), store,
		[]contracts.Listing{{Ticker: "AAA", Sector: "Tech"}})
	require.NoError(t, err)
	require.Len(t, res.Metrics, 1)

	daily := make([]float64, 0, 30)
	for i := 0; i < 10; i++ {
		daily = append(daily, 0.01, -0.005, 0.002)
	}
	want, ok := risk.AnnualizedSharpe(daily, 0.02)
	require.True(t, ok)
	assert.InDelta(t, want, res.Metrics[0].Sharpe, 1e-9)
}

func TestScreen_UsesTrailingLookback(t *testing.T) {
	// 40 flat-ish days then 10 strong days; lookback 10 sees only the strong part
	s := path("AAA", 1000, 20, 0.001, -0.001)
	p := s.Bars[len(s.Bars)-1].Close
	d := s.Bars[len(s.Bars)-1].Date
	for i := 0; i < 10; i++ {
		d = d.AddDate(0, 0, 1)
		if i%2 == 0 {
			p *= 1.02
		} else {
			p *= 1.01
		}
		s.Bars = append(s.Bars, contracts.PriceBar{Date: d, Close: p, Volume: 1000})
	}
	store := prices.NewMemoryStore(s)

	res, err := testScreener(t, func(c *Config) { c.Lookback = 10 }).Screen(context.Background(), store,
		[]contracts.Listing{{Ticker: "AAA", Sector: "Tech"}})
	require.NoError(t, err)
	require.Len(t, res.Metrics, 1)
	assert.InDelta(t, 1.02*1.02*1.02*1.02*1.02*1.01*1.01*1.01*1.01*1.01-1, res.Metrics[0].TotalReturn, 1e-9)
}

func TestScreen_Exclusions(t *testing.T) {
	flat := path("FLAT", 1000, 30, 0)
	store := prices.NewMemoryStore(
		path("GOOD", 1000, 20, 0.01, -0.005),
		path("SHORT", 1000, 2, 0.01, -0.005),
		flat,
		path("THIN", 10, 20, 0.01, -0.005),
		path("WILD", 1000, 20, 0.2, -0.15),
	)
	universe := []contracts.Listing{
		{Ticker: "GOOD", Sector: "Tech"},
		{Ticker: "GOOD", Sector: "Tech"},
		{Ticker: "MISSING", Sector: "Tech"},
		{Ticker: "SHORT", Sector: "Tech"},
		{Ticker: "FLAT", Sector: "Tech"},
		{Ticker: "THIN", Sector: "Tech"},
		{Ticker: "WILD", Sector: "Tech"},
	}

	res, err := testScreener(t, func(c *Config) {
		c.MinAvgVolume = 100
		c.MaxVolatility = 0.1
	}).Screen(context.Background(), store, universe)
	require.NoError(t, err)

	require.Len(t, res.Metrics, 1)
	assert.Equal(t, "GOOD", res.Metrics[0].Ticker)

	assert.Equal(t, "duplicate listing", res.Excluded["GOOD"])
	assert.Equal(t, "not found", res.Excluded["MISSING"])
	assert.Contains(t, res.Excluded["SHORT"], "insufficient history")
	assert.Equal(t, "zero volatility", res.Excluded["FLAT"])
	assert.Contains(t, res.Excluded["THIN"], "average volume")
	assert.Contains(t, res.Excluded["WILD"], "volatility above ceiling")
}

func TestScreen_TiesBreakByTicker(t *testing.T) {
	store := prices.NewMemoryStore(
		path("BBB", 1000, 20, 0.01, -0.005),
		path("AAA", 1000, 20, 0.01, -0.005),
	)
	res, err := testScreener(t, nil).Screen(context.Background(), store, []contracts.Listing{
		{Ticker: "BBB", Sector: "Tech"},
		{Ticker: "AAA", Sector: "Tech"},
	})
	require.NoError(t, err)
	require.Len(t, res.Metrics, 2)
	assert.Equal(t, "AAA", res.Metrics[0].Ticker)
}

func TestScreen_AsOfViewHidesFuture(t *testing.T) {
	full := path("AAA", 1000, 30, 0.01, -0.005)
	cutoff := full.Bars[20].Date
	view := prices.NewAsOfView(prices.NewMemoryStore(full), cutoff, nil)

	res, err := testScreener(t, nil).Screen(context.Background(), view,
		[]contracts.Listing{{Ticker: "AAA", Sector: "Tech"}})
	require.NoError(t, err)
	require.Len(t, res.Metrics, 1)
	assert.Equal(t, cutoff, res.Metrics[0].LatestDate)
	assert.Equal(t, cutoff, view.MaxObserved())
}

func TestSource(t *testing.T) {
	store := prices.NewMemoryStore(path("AAA", 1000, 20, 0.01, -0.005))
	src := testScreener(t, nil).Source(store, []contracts.Listing{{Ticker: "AAA", Sector: "Tech"}})

	metrics, err := src.CandidateMetrics(context.Background())
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	assert.Equal(t, "AAA", metrics[0].Ticker)
}

func TestScreen_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := testScreener(t, nil).Screen(ctx, prices.NewMemoryStore(), []contracts.Listing{{Ticker: "AAA"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"lookback", func(c *Config) { c.Lookback = 1 }},
		{"min history above lookback", func(c *Config) { c.MinHistory = 300 }},
		{"negative vol", func(c *Config) { c.MinVolatility = -1 }},
		{"inverted vol bounds", func(c *Config) { c.MinVolatility = 0.05; c.MaxVolatility = 0.01 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := NewScreener(cfg, nil)
			assert.Error(t, err)
		})
	}
}
