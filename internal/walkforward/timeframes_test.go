package walkforward

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/diversifier/internal/prices"
)

func TestTimeframesFromMonths(t *testing.T) {
	tests := []struct {
		name   string
		months []int
		want   []Timeframe
	}{
		{"defaults", []int{6, 12, 24, 60, 120}, []Timeframe{
			{"6mo", 6}, {"1yr", 12}, {"2yr", 24}, {"5yr", 60}, {"10yr", 120},
		}},
		{"odd months", []int{18, 3}, []Timeframe{{"18mo", 18}, {"3mo", 3}}},
		{"skips invalid and repeated", []int{0, 12, -6, 12}, []Timeframe{{"1yr", 12}}},
		{"empty", nil, []Timeframe{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TimeframesFromMonths(tt.months))
		})
	}
	assert.Equal(t, TimeframesFromMonths([]int{6, 12, 24, 60, 120}), DefaultTimeframes())
}

func TestConfig_ValidateTimeframes(t *testing.T) {
	tests := []struct {
		name    string
		frames  []Timeframe
		wantErr bool
	}{
		{"none", nil, false},
		{"defaults", DefaultTimeframes(), false},
		{"zero months", []Timeframe{{"0mo", 0}}, true},
		{"unnamed", []Timeframe{{"", 6}}, true},
		{"duplicate name", []Timeframe{{"1yr", 12}, {"1yr", 12}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Timeframes = tt.frames
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidator_RunTimeframes(t *testing.T) {
	universe, series, calendar := market(t)
	end := calendar[len(calendar)-1]
	frames := TimeframesFromMonths([]int{6, 12, 24})

	results, err := testValidator(t, nil).RunTimeframes(context.Background(), prices.NewMemoryStore(series...), universe, end, frames)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, r := range results[:2] {
		require.True(t, r.OK(), r.Error)
		assert.Equal(t, frames[i], r.Timeframe)
		assert.True(t, r.SelectionDate.Equal(end.AddDate(0, -frames[i].Months, 0)))
		// measured through end, not over the walk-forward holding period
		assert.True(t, r.HoldingEnd.Equal(end))
		assert.Greater(t, r.TradingDays, 63)
		require.NotNil(t, r.Portfolio)
		assert.NotEmpty(t, r.Portfolio.Tickers())
	}
	assert.Greater(t, results[1].TradingDays, results[0].TradingDays)

	// two years back is before the first bar
	assert.Equal(t, "2yr", results[2].Timeframe.Name)
	assert.False(t, results[2].OK())

	bare := results[0]
	bare.Portfolio, bare.Weights = nil, nil
	data, err := json.Marshal(bare)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"timeframe":{"name":"6mo","months":6}`)
	assert.Contains(t, string(data), `"selection_date"`)
}

func TestValidator_RunTimeframesErrors(t *testing.T) {
	universe, series, _ := market(t)
	v := testValidator(t, nil)

	_, err := v.RunTimeframes(context.Background(), prices.NewMemoryStore(series...), universe, time.Time{}, DefaultTimeframes())
	assert.Error(t, err)
	_, err = v.RunTimeframes(context.Background(), nil, universe, time.Now(), DefaultTimeframes())
	assert.Error(t, err)
}

func TestValidator_RunSuite(t *testing.T) {
	universe, series, calendar := market(t)
	end := calendar[len(calendar)-1]
	cutoffs := RollingCutoffs(calendar, 300, 63, 63)

	v := testValidator(t, func(c *Config) {
		c.Timeframes = TimeframesFromMonths([]int{6, 12})
		c.Sensitivity = SensitivityConfig{
			Draws:      4,
			Seed:       3,
			Months:     6,
			TargetSize: IntRange{Min: 5, Max: 10},
		}
	})
	report, err := v.RunSuite(context.Background(), prices.NewMemoryStore(series...), universe, cutoffs, end)
	require.NoError(t, err)

	assert.Len(t, report.Periods, len(cutoffs))
	assert.Len(t, report.Timeframes, 2)
	require.NotNil(t, report.Sensitivity)
	assert.Equal(t, 4, report.Sensitivity.Draws)

	a := report.Assessment
	require.NotNil(t, a)
	names := make([]string, len(a.Components))
	for i, c := range a.Components {
		names[i] = c.Name
	}
	assert.Equal(t, []string{ComponentTimeframes, ComponentWalkForward, ComponentSensitivity, ComponentSharpe}, names)
	assert.GreaterOrEqual(t, a.Score, 0.0)
	assert.LessOrEqual(t, a.Score, 100.0)
	assert.Equal(t, Recommend(a.Score), a.Recommendation)

	score, tier := report.Verdict()
	assert.Equal(t, a.Score, score)
	assert.Equal(t, a.Recommendation, tier)
	for _, w := range a.Warnings {
		assert.Contains(t, report.Warnings, w)
	}
}

func TestValidator_RunSuiteWalkForwardOnly(t *testing.T) {
	universe, series, calendar := market(t)
	cutoffs := RollingCutoffs(calendar, 300, 63, 63)

	report, err := testValidator(t, nil).RunSuite(context.Background(), prices.NewMemoryStore(series...), universe, cutoffs, calendar[len(calendar)-1])
	require.NoError(t, err)

	assert.Empty(t, report.Timeframes)
	assert.Nil(t, report.Sensitivity)
	require.NotNil(t, report.Assessment)
	for _, c := range report.Assessment.Components {
		assert.NotEqual(t, ComponentTimeframes, c.Name)
		assert.NotEqual(t, ComponentSensitivity, c.Name)
	}
}
