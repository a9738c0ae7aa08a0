package walkforward

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/diversifier/internal/brain"
	"github.com/wonny/diversifier/internal/prices"
)

func TestSensitivityConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*SensitivityConfig)
		wantErr bool
	}{
		{"defaults", func(*SensitivityConfig) {}, false},
		{"disabled ignores ranges", func(c *SensitivityConfig) { c.Draws = 0; c.TargetSize = IntRange{Min: 5, Max: 1} }, false},
		{"zero range keeps base", func(c *SensitivityConfig) { c.MinSectors = IntRange{} }, false},
		{"negative draws", func(c *SensitivityConfig) { c.Draws = -1 }, true},
		{"no window", func(c *SensitivityConfig) { c.Months = 0 }, true},
		{"inverted range", func(c *SensitivityConfig) { c.MaxPerSector = IntRange{Min: 4, Max: 2} }, true},
		{"target below one", func(c *SensitivityConfig) { c.TargetSize = IntRange{Min: 0, Max: 3} }, true},
		{"lookback below two", func(c *SensitivityConfig) { c.ScreeningLookback = IntRange{Min: 1, Max: 10} }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultSensitivity()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDrawParams(t *testing.T) {
	base := brain.DefaultConfig()
	c := DefaultSensitivity()
	c.Draws = 200
	c.MinSectors = IntRange{}

	a := drawParams(c, base)
	b := drawParams(c, base)
	require.Len(t, a, 200)
	assert.Equal(t, a, b, "same seed draws the same parameters")

	c.Seed = 7
	assert.NotEqual(t, a, drawParams(c, base))

	seenTarget := make(map[int]bool)
	for _, d := range a {
		assert.GreaterOrEqual(t, d.TargetSize, 8)
		assert.LessOrEqual(t, d.TargetSize, 15)
		assert.GreaterOrEqual(t, d.MaxPerSector, 2)
		assert.LessOrEqual(t, d.MaxPerSector, 4)
		assert.GreaterOrEqual(t, d.ScreeningLookback, 126)
		assert.LessOrEqual(t, d.ScreeningLookback, 504)
		assert.Equal(t, base.Selection.MinSectors, d.MinSectors)
		assert.NotZero(t, d.OptimizerSeed)
		seenTarget[d.TargetSize] = true
	}
	// both ends of the inclusive range are reachable
	assert.True(t, seenTarget[8])
	assert.True(t, seenTarget[15])
}

func TestParamDraw_Apply(t *testing.T) {
	base := brain.DefaultConfig()
	base.Selection.BlackList = []string{"BAD"}
	d := ParamDraw{
		TargetSize:           6,
		MaxPerSector:         2,
		MinSectors:           3,
		ScreeningLookback:    40,
		CorrelationLookback:  90,
		OptimizationLookback: 120,
		OptimizerSeed:        99,
	}

	cfg := d.apply(base)
	assert.Equal(t, 6, cfg.Selection.TargetSize)
	assert.Equal(t, 2, cfg.Selection.MaxPerSector)
	assert.Equal(t, 3, cfg.Selection.MinSectors)
	assert.Equal(t, 40, cfg.Screening.Lookback)
	// min history follows a lookback drawn below it
	assert.Equal(t, 40, cfg.Screening.MinHistory)
	assert.Equal(t, 90, cfg.CorrelationLookback)
	assert.Equal(t, 120, cfg.Optimizer.Lookback)
	assert.Equal(t, int64(99), cfg.Optimizer.Seed)
	assert.NoError(t, cfg.Screening.Validate())

	cfg.Selection.BlackList[0] = "CHANGED"
	assert.Equal(t, "BAD", base.Selection.BlackList[0])
}

func TestSummarizeSensitivity(t *testing.T) {
	results := []SensitivityDraw{
		{Draw: 1, TotalReturn: 0.05, Sharpe: 1.5},
		{Draw: 2, TotalReturn: -0.02, Sharpe: -0.5},
		{Draw: 3, Error: "selection failed"},
		{Draw: 4, TotalReturn: 0.03, Sharpe: 1.0},
		{Draw: 5, TotalReturn: 0.01, Sharpe: 0.2},
	}

	s := summarizeSensitivity(results)
	assert.Equal(t, 5, s.Draws)
	assert.Equal(t, 4, s.Evaluated)
	assert.Equal(t, 1, s.Failed)
	assert.InDelta(t, 75.0, s.ProfitablePct, 1e-12)
	assert.InDelta(t, 75.0, s.PositiveSharpePct, 1e-12)
	assert.InDelta(t, 0.55, s.MeanSharpe, 1e-12)
	assert.InDelta(t, 0.0175, s.MeanReturn, 1e-12)
	assert.Equal(t, -0.5, s.MinSharpe)
	assert.Equal(t, 1.5, s.MaxSharpe)
	assert.InDelta(t, -0.5, s.P25Sharpe, 1e-12)
	assert.InDelta(t, 0.2, s.MedianSharpe, 1e-12)
	assert.InDelta(t, 1.0, s.P75Sharpe, 1e-12)
	assert.InDelta(t, 1.5, s.SharpeSpread, 1e-12)
	assert.Greater(t, s.StdevSharpe, 0.0)
	assert.Len(t, s.Results, 5)

	empty := summarizeSensitivity([]SensitivityDraw{{Draw: 1, Error: "x"}})
	assert.Zero(t, empty.Evaluated)
	assert.Zero(t, empty.PositiveSharpePct)
}

func TestValidator_RunSensitivity(t *testing.T) {
	universe, series, calendar := market(t)
	end := calendar[len(calendar)-1]
	store := prices.NewMemoryStore(series...)

	c := SensitivityConfig{
		Draws:               6,
		Seed:                11,
		Months:              6,
		TargetSize:          IntRange{Min: 4, Max: 8},
		MaxPerSector:        IntRange{Min: 1, Max: 3},
		MinSectors:          IntRange{Min: 0, Max: 3},
		ScreeningLookback:   IntRange{Min: 60, Max: 200},
		CorrelationLookback: IntRange{Min: 0, Max: 120},
	}

	v := testValidator(t, nil)
	a, err := v.RunSensitivity(context.Background(), store, universe, end, c)
	require.NoError(t, err)

	assert.True(t, a.Cutoff.Equal(end.AddDate(0, -6, 0)))
	assert.True(t, a.End.Equal(end))
	assert.Equal(t, 6, a.Draws)
	assert.Equal(t, 6, a.Evaluated+a.Failed)
	require.Positive(t, a.Evaluated)
	require.Len(t, a.Results, 6)
	for i, r := range a.Results {
		assert.Equal(t, i+1, r.Draw)
		if r.Error == "" {
			assert.LessOrEqual(t, len(r.Tickers), r.Params.TargetSize)
			assert.NotEmpty(t, r.Tickers)
			assert.LessOrEqual(t, r.MaxDrawdown, 0.0)
		}
	}
	assert.LessOrEqual(t, a.MinSharpe, a.P25Sharpe)
	assert.LessOrEqual(t, a.P25Sharpe, a.MedianSharpe)
	assert.LessOrEqual(t, a.MedianSharpe, a.P75Sharpe)
	assert.LessOrEqual(t, a.P75Sharpe, a.MaxSharpe)
	assert.InDelta(t, a.P75Sharpe-a.P25Sharpe, a.SharpeSpread, 1e-12)

	// same seed, same draws, same outcome
	b, err := v.RunSensitivity(context.Background(), store, universe, end, c)
	require.NoError(t, err)
	assert.Equal(t, a.Results, b.Results)
}

func TestValidator_RunSensitivityErrors(t *testing.T) {
	universe, series, calendar := market(t)
	store := prices.NewMemoryStore(series...)
	v := testValidator(t, nil)

	tests := []struct {
		name string
		c    SensitivityConfig
		end  time.Time
	}{
		{"no draws", SensitivityConfig{}, calendar[len(calendar)-1]},
		{"invalid ranges", SensitivityConfig{Draws: 2, Months: 6, TargetSize: IntRange{Min: 3, Max: 1}}, calendar[len(calendar)-1]},
		{"no end date", SensitivityConfig{Draws: 2, Months: 6}, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.RunSensitivity(context.Background(), store, universe, tt.end, tt.c)
			assert.Error(t, err)
		})
	}
}
