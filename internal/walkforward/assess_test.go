package walkforward

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/diversifier/internal/contracts"
)

func timeframeResults(sharpes ...float64) []TimeframeResult {
	out := make([]TimeframeResult, len(sharpes))
	for i, s := range sharpes {
		out[i] = TimeframeResult{
			Timeframe:         Timeframe{Name: "tf", Months: 6 * (i + 1)},
			WalkForwardResult: period(s/10, s),
		}
	}
	return out
}

func periods(sharpes ...float64) []contracts.WalkForwardResult {
	out := make([]contracts.WalkForwardResult, len(sharpes))
	for i, s := range sharpes {
		out[i] = period(s/10, s)
	}
	return out
}

func TestAssess(t *testing.T) {
	tests := []struct {
		name        string
		timeframes  []TimeframeResult
		periods     []contracts.WalkForwardResult
		sensitivity *Sensitivity
		score       float64
		tier        string
		components  []string
		warnings    []string
	}{
		{
			name:        "every mode strong",
			timeframes:  timeframeResults(1.2, 1.5),
			periods:     periods(1.1, 1.0),
			sensitivity: &Sensitivity{Evaluated: 10, PositiveSharpePct: 100},
			score:       100,
			tier:        TierStrong,
			components:  []string{ComponentTimeframes, ComponentWalkForward, ComponentSensitivity, ComponentSharpe},
		},
		{
			// 0.25×50 + 0.35×75 + 0.25×60 + 0.15×25
			name:        "mixed",
			timeframes:  timeframeResults(0.5, -0.2),
			periods:     periods(0.4, 0.6, -0.1, 0.3),
			sensitivity: &Sensitivity{Evaluated: 20, PositiveSharpePct: 60},
			score:       57.5,
			tier:        TierModerate,
			components:  []string{ComponentTimeframes, ComponentWalkForward, ComponentSensitivity, ComponentSharpe},
			warnings: []string{
				"only 50% of timeframes had a positive Sharpe",
				"only 60% of parameter draws had a positive Sharpe",
			},
		},
		{
			// weights re-normalised to 0.7 / 0.3
			name:       "walk-forward only",
			periods:    periods(1.0, -0.5),
			score:      0.7*50 + 0.3*25,
			tier:       TierWeak,
			components: []string{ComponentWalkForward, ComponentSharpe},
		},
		{
			name:        "sensitivity without evaluated draws is left out",
			periods:     periods(-0.4, -0.2, 0.1),
			sensitivity: &Sensitivity{Draws: 5, Failed: 5},
			score:       0.7 * 100.0 / 3,
			tier:        TierFail,
			components:  []string{ComponentWalkForward, ComponentSharpe},
			warnings:    []string{"only 33% of walk-forward periods had a positive Sharpe"},
		},
		{
			name:       "failed and undefined results are ignored",
			timeframes: []TimeframeResult{{WalkForwardResult: contracts.WalkForwardResult{Error: "no data"}}},
			periods:    []contracts.WalkForwardResult{{Error: "selection failed"}, period(0, math.NaN())},
			score:      0,
			tier:       TierFail,
			warnings:   []string{"no validation mode evaluated anything"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Assess(tt.timeframes, tt.periods, tt.sensitivity)
			assert.InDelta(t, tt.score, a.Score, 1e-9)
			assert.Equal(t, tt.tier, a.Recommendation)
			assert.Equal(t, tt.warnings, a.Warnings)

			names := make([]string, len(a.Components))
			total := 0.0
			for i, c := range a.Components {
				names[i] = c.Name
				total += c.Weight
				assert.GreaterOrEqual(t, c.Score, 0.0)
				assert.LessOrEqual(t, c.Score, 100.0)
			}
			if len(tt.components) == 0 {
				assert.Empty(t, a.Components)
				return
			}
			assert.Equal(t, tt.components, names)
			assert.InDelta(t, 1.0, total, 1e-12)
		})
	}
}

func TestAssess_FullWeights(t *testing.T) {
	a := Assess(timeframeResults(1), periods(1), &Sensitivity{Evaluated: 1, PositiveSharpePct: 100})
	require.Len(t, a.Components, 4)
	want := map[string]float64{
		ComponentTimeframes:  0.25,
		ComponentWalkForward: 0.35,
		ComponentSensitivity: 0.25,
		ComponentSharpe:      0.15,
	}
	for _, c := range a.Components {
		assert.InDelta(t, want[c.Name], c.Weight, 1e-12, c.Name)
	}
}

func TestReport_Verdict(t *testing.T) {
	r := &Report{Summary: Summary{RobustnessScore: 42, Recommendation: TierWeak}}
	score, tier := r.Verdict()
	assert.Equal(t, 42.0, score)
	assert.Equal(t, TierWeak, tier)

	r.Assessment = &Assessment{Score: 75, Recommendation: TierStrong}
	score, tier = r.Verdict()
	assert.Equal(t, 75.0, score)
	assert.Equal(t, TierStrong, tier)
}
