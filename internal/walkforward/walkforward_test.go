package walkforward

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/diversifier/internal/brain"
	"github.com/wonny/diversifier/internal/contracts"
	"github.com/wonny/diversifier/internal/prices"
)

func market(t *testing.T) ([]contracts.Listing, []*contracts.PriceSeries, []time.Time) {
	t.Helper()
	universe := prices.SyntheticUniverse([]string{"Tech", "Energy", "Health", "Finance", "Utilities"}, 5)
	cfg := prices.DefaultSyntheticConfig(universe)
	return universe, prices.GenerateSynthetic(cfg), prices.BusinessDays(cfg.Start, cfg.Days)
}

func testValidator(t *testing.T, mutate func(*Config)) *Validator {
	t.Helper()
	pcfg := brain.DefaultConfig()
	pcfg.Optimizer.Simulations = 500
	pipeline, err := brain.NewOrchestrator(pcfg, nil, nil)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.HoldingPeriod = 63
	if mutate != nil {
		mutate(&cfg)
	}
	v, err := NewValidator(cfg, pipeline, nil, nil)
	require.NoError(t, err)
	return v
}

// leakyProvider ignores the as-of bound
type leakyProvider struct {
	*prices.MemoryStore
}

func (p leakyProvider) PriceSeriesAsOf(ctx context.Context, ticker string, _ time.Time) (*contracts.PriceSeries, error) {
	return p.MemoryStore.PriceSeries(ctx, ticker)
}

func TestValidator_Run(t *testing.T) {
	universe, series, calendar := market(t)
	cutoffs := RollingCutoffs(calendar, 300, 63, 63)
	require.Len(t, cutoffs, 3)

	// passed out of order on purpose
	shuffled := []time.Time{cutoffs[2], cutoffs[0], cutoffs[1]}
	report, err := testValidator(t, nil).Run(context.Background(), prices.NewMemoryStore(series...), universe, shuffled)
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	require.Len(t, report.Periods, 3)
	for i, p := range report.Periods {
		require.True(t, p.OK(), p.Error)
		assert.True(t, p.SelectionDate.Equal(cutoffs[i]))
		assert.Equal(t, 63, p.TradingDays)
		assert.True(t, p.HoldingEnd.After(p.SelectionDate))
		assert.LessOrEqual(t, p.MaxDrawdown, 0.0)

		require.NotNil(t, p.Portfolio)
		assert.Equal(t, 10, p.Portfolio.Size())
		assert.True(t, p.Portfolio.AsOf.Equal(cutoffs[i]))
		require.NotNil(t, p.Weights)
		assert.Equal(t, contracts.WeightsEqual, p.Weights.Name)
		assert.NoError(t, p.Weights.Validate(1e-9))
		assert.False(t, p.HasBenchmark)
	}
	idx := 299
	assert.True(t, report.Periods[0].HoldingEnd.Equal(calendar[idx+63]))

	assert.Equal(t, 3, report.Summary.Periods)
	assert.Equal(t, 3, report.Summary.Evaluated)
	assert.Zero(t, report.Summary.Failed)
	assert.GreaterOrEqual(t, report.Summary.RobustnessScore, 0.0)
	assert.LessOrEqual(t, report.Summary.RobustnessScore, 100.0)
	assert.NotEmpty(t, report.Summary.Recommendation)
}

func TestValidator_SelectionIgnoresFuture(t *testing.T) {
	universe, series, calendar := market(t)
	cutoffs := RollingCutoffs(calendar, 300, 63, 100)

	shocked := prices.NewMemoryStore()
	for i, s := range series {
		c := s.Clone()
		for j := range c.Bars {
			if c.Bars[j].Date.After(cutoffs[0]) {
				factor := 50.0
				if i%3 == 0 {
					factor = 0.02
				}
				c.Bars[j].Close *= factor
				c.Bars[j].AdjClose *= factor
			}
		}
		shocked.Put(c)
	}

	// only the bars visible at the cutoff
	masked := prices.NewMemoryStore()
	for _, s := range series {
		masked.Put(s.AsOf(cutoffs[0]))
	}

	v := testValidator(t, nil)
	a, err := v.Run(context.Background(), prices.NewMemoryStore(series...), universe, cutoffs[:1])
	require.NoError(t, err)
	b, err := v.Run(context.Background(), shocked, universe, cutoffs[:1])
	require.NoError(t, err)
	m, err := v.Run(context.Background(), masked, universe, cutoffs[:1])
	require.NoError(t, err)

	require.True(t, a.Periods[0].OK())
	require.True(t, b.Periods[0].OK())
	require.NotNil(t, m.Periods[0].Portfolio, m.Periods[0].Error)
	assert.Equal(t, a.Periods[0].Portfolio.Tickers(), b.Periods[0].Portfolio.Tickers())
	assert.Equal(t, m.Periods[0].Portfolio.Tickers(), b.Periods[0].Portfolio.Tickers())
	// the measured window does see the shock
	assert.NotEqual(t, a.Periods[0].TotalReturn, b.Periods[0].TotalReturn)
}

func TestValidator_Benchmark(t *testing.T) {
	universe, series, calendar := market(t)
	cutoffs := RollingCutoffs(calendar, 300, 63, 63)

	report, err := testValidator(t, func(c *Config) { c.Benchmark = "TECH01" }).
		Run(context.Background(), prices.NewMemoryStore(series...), universe, cutoffs)
	require.NoError(t, err)

	for _, p := range report.Periods {
		require.True(t, p.OK(), p.Error)
		assert.True(t, p.HasBenchmark)
		assert.InDelta(t, p.TotalReturn-p.BenchmarkReturn, p.Alpha, 1e-12)
		assert.GreaterOrEqual(t, p.Correlation, -1.0)
		assert.LessOrEqual(t, p.Correlation, 1.0)
	}
	assert.True(t, report.Summary.HasBenchmark)
}

func TestValidator_MissingBenchmarkWarns(t *testing.T) {
	universe, series, calendar := market(t)
	cutoffs := RollingCutoffs(calendar, 300, 63, 63)

	report, err := testValidator(t, func(c *Config) { c.Benchmark = "NOPE" }).
		Run(context.Background(), prices.NewMemoryStore(series...), universe, cutoffs[:1])
	require.NoError(t, err)
	p := report.Periods[0]
	require.True(t, p.OK())
	assert.False(t, p.HasBenchmark)
	assert.NotEmpty(t, p.Warnings)
}

func TestValidator_OptimisedWeights(t *testing.T) {
	universe, series, calendar := market(t)
	cutoffs := RollingCutoffs(calendar, 300, 63, 63)

	report, err := testValidator(t, func(c *Config) { c.Weights = contracts.WeightsMaxSharpe }).
		Run(context.Background(), prices.NewMemoryStore(series...), universe, cutoffs[:1])
	require.NoError(t, err)
	p := report.Periods[0]
	require.True(t, p.OK(), p.Error)
	assert.Equal(t, contracts.WeightsMaxSharpe, p.Weights.Name)
	assert.NoError(t, p.Weights.Validate(1e-9))
}

func TestValidator_FailedPeriodsRecorded(t *testing.T) {
	universe, series, calendar := market(t)
	cutoffs := []time.Time{
		time.Date(2010, 1, 4, 0, 0, 0, 0, time.UTC), // before any data
		calendar[350],
		calendar[len(calendar)-4], // 3 forward days
	}

	report, err := testValidator(t, nil).Run(context.Background(), prices.NewMemoryStore(series...), universe, cutoffs)
	require.NoError(t, err)
	require.Len(t, report.Periods, 3)

	assert.False(t, report.Periods[0].OK())
	assert.Contains(t, report.Periods[0].Error, "selection failed")
	assert.True(t, report.Periods[1].OK())
	assert.False(t, report.Periods[2].OK())
	assert.Contains(t, report.Periods[2].Error, "forward days")

	assert.Equal(t, 1, report.Summary.Evaluated)
	assert.Equal(t, 2, report.Summary.Failed)
	assert.False(t, report.Summary.Stable)
	assert.NotEmpty(t, report.Warnings)
}

func TestValidator_LeakageAborts(t *testing.T) {
	universe, series, calendar := market(t)

	_, err := testValidator(t, nil).Run(context.Background(), leakyProvider{prices.NewMemoryStore(series...)}, universe, []time.Time{calendar[300]})
	require.Error(t, err)
	assert.ErrorIs(t, err, contracts.ErrTemporalLeakage)
}

func TestValidator_Errors(t *testing.T) {
	universe, series, _ := market(t)
	v := testValidator(t, nil)

	_, err := v.Run(context.Background(), nil, universe, []time.Time{time.Now()})
	assert.Error(t, err)

	_, err = v.Run(context.Background(), prices.NewMemoryStore(series...), universe, nil)
	assert.Error(t, err)

	_, err = NewValidator(DefaultConfig(), nil, nil, nil)
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"holding too short", func(c *Config) { c.HoldingPeriod = 1 }, true},
		{"min forward above holding", func(c *Config) { c.MinForwardDays = 200 }, true},
		{"zero cv", func(c *Config) { c.StabilityCV = 0 }, true},
		{"unknown weights", func(c *Config) { c.Weights = "risk_parity" }, true},
		{"no workers", func(c *Config) { c.Workers = 0 }, true},
		{"min variance", func(c *Config) { c.Weights = contracts.WeightsMinVariance }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
