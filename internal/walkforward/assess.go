package walkforward

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/wonny/diversifier/internal/contracts"
)

// Components of the overall robustness score and their weights
const (
	ComponentTimeframes  = "timeframe_consistency"
	ComponentWalkForward = "walkforward_stability"
	ComponentSensitivity = "parameter_robustness"
	ComponentSharpe      = "sharpe_quality"

	weightTimeframes  = 0.25
	weightWalkForward = 0.35
	weightSensitivity = 0.25
	weightSharpe      = 0.15
)

// Warning thresholds, as share of positive-Sharpe outcomes (0-100)
const (
	minTimeframePositive   = 60
	minWalkForwardPositive = 50
	minSensitivityPositive = 70
)

// ScoreComponent is one 0-100 input of the overall score
type ScoreComponent struct {
	Name   string  `json:"name"`
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"` // re-normalised over the components that ran
}

// Assessment is the overall verdict across every validation mode
type Assessment struct {
	Components     []ScoreComponent `json:"components"`
	Score          float64          `json:"score"` // 0-100
	Recommendation string           `json:"recommendation"`
	Warnings       []string         `json:"warnings,omitempty"`
}

// Assess weighs timeframe consistency 0.25, walk-forward stability 0.35, parameter
// robustness 0.25 and average Sharpe quality 0.15. A mode that evaluated nothing is left
// out and the remaining weights are re-normalised.
func Assess(timeframes []TimeframeResult, periods []contracts.WalkForwardResult, sensitivity *Sensitivity) Assessment {
	a := Assessment{Recommendation: TierFail}

	type part struct {
		name   string
		score  float64
		weight float64
	}
	var parts []part
	var pooled []float64

	tfSharpes := make([]float64, 0, len(timeframes))
	for _, r := range timeframes {
		if r.OK() && !math.IsNaN(r.Sharpe) {
			tfSharpes = append(tfSharpes, r.Sharpe)
		}
	}
	if len(tfSharpes) > 0 {
		pct := positivePct(tfSharpes)
		parts = append(parts, part{ComponentTimeframes, pct, weightTimeframes})
		pooled = append(pooled, tfSharpes...)
		if pct < minTimeframePositive {
			a.Warnings = append(a.Warnings, fmt.Sprintf("only %.0f%% of timeframes had a positive Sharpe", pct))
		}
	}

	wfSharpes := make([]float64, 0, len(periods))
	for _, p := range periods {
		if p.OK() && !math.IsNaN(p.Sharpe) {
			wfSharpes = append(wfSharpes, p.Sharpe)
		}
	}
	if len(wfSharpes) > 0 {
		pct := positivePct(wfSharpes)
		parts = append(parts, part{ComponentWalkForward, pct, weightWalkForward})
		pooled = append(pooled, wfSharpes...)
		if pct < minWalkForwardPositive {
			a.Warnings = append(a.Warnings, fmt.Sprintf("only %.0f%% of walk-forward periods had a positive Sharpe", pct))
		}
	}

	if sensitivity != nil && sensitivity.Evaluated > 0 {
		pct := sensitivity.PositiveSharpePct
		parts = append(parts, part{ComponentSensitivity, pct, weightSensitivity})
		if pct < minSensitivityPositive {
			a.Warnings = append(a.Warnings, fmt.Sprintf("only %.0f%% of parameter draws had a positive Sharpe", pct))
		}
	}

	if len(pooled) > 0 {
		// full marks at an average Sharpe of 1.0
		quality := math.Min(math.Max(stat.Mean(pooled, nil), 0)*100, 100)
		parts = append(parts, part{ComponentSharpe, quality, weightSharpe})
	}

	if len(parts) == 0 {
		a.Warnings = append(a.Warnings, "no validation mode evaluated anything")
		return a
	}

	total := 0.0
	for _, p := range parts {
		total += p.weight
	}
	for _, p := range parts {
		w := p.weight / total
		a.Components = append(a.Components, ScoreComponent{Name: p.name, Score: p.score, Weight: w})
		a.Score += p.score * w
	}
	a.Recommendation = Recommend(a.Score)
	return a
}

func positivePct(sharpes []float64) float64 {
	positive := 0
	for _, v := range sharpes {
		if v > 0 {
			positive++
		}
	}
	return float64(positive) / float64(len(sharpes)) * 100
}
