package walkforward

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/wonny/diversifier/internal/contracts"
)

// Recommendation tiers of the robustness score
const (
	TierStrong   = "STRONG"
	TierModerate = "MODERATE"
	TierWeak     = "WEAK"
	TierFail     = "FAIL"
)

// Summary aggregates the evaluated periods
type Summary struct {
	Periods   int `json:"periods"`
	Evaluated int `json:"evaluated"`
	Failed    int `json:"failed"`

	MeanReturn  float64 `json:"mean_return"`
	MeanSharpe  float64 `json:"mean_sharpe"`
	StdevSharpe float64 `json:"stdev_sharpe"`
	// CV is stdev/|mean| of Sharpe; 0 (never stable) when the mean is 0
	CV      float64 `json:"cv"`
	Stable  bool    `json:"stable"`
	WinRate float64 `json:"win_rate"` // share of periods with positive total return

	HasBenchmark bool    `json:"has_benchmark"`
	MeanAlpha    float64 `json:"mean_alpha"`
	MeanBeta     float64 `json:"mean_beta"`

	WorstDrawdown float64 `json:"worst_drawdown"`

	RobustnessScore float64 `json:"robustness_score"` // 0-100
	Recommendation  string  `json:"recommendation"`
}

// Summarize aggregates evaluated periods; failed periods only count toward Failed
func Summarize(periods []contracts.WalkForwardResult, stabilityCV float64) (Summary, []string) {
	s := Summary{Periods: len(periods), Recommendation: TierFail}
	var warnings []string

	var sharpes, totals, alphas, betas []float64
	for _, p := range periods {
		if !p.OK() {
			s.Failed++
			continue
		}
		sharpes = append(sharpes, p.Sharpe)
		totals = append(totals, p.TotalReturn)
		if p.HasBenchmark {
			alphas = append(alphas, p.Alpha)
			betas = append(betas, p.Beta)
		}
		s.WorstDrawdown = math.Min(s.WorstDrawdown, p.MaxDrawdown)
	}
	s.Evaluated = len(sharpes)
	if s.Failed > 0 {
		warnings = append(warnings, fmt.Sprintf("%d of %d periods could not be evaluated", s.Failed, s.Periods))
	}
	if s.Evaluated == 0 {
		warnings = append(warnings, "no period was evaluated")
		return s, warnings
	}

	s.MeanReturn = stat.Mean(totals, nil)
	s.MeanSharpe = stat.Mean(sharpes, nil)
	if s.Evaluated >= 2 {
		s.StdevSharpe = stat.StdDev(sharpes, nil)
	}
	if s.MeanSharpe != 0 {
		s.CV = s.StdevSharpe / math.Abs(s.MeanSharpe)
	}
	s.Stable = s.Evaluated >= 2 && s.MeanSharpe > 0 && s.CV < stabilityCV

	wins := 0
	for _, r := range totals {
		if r > 0 {
			wins++
		}
	}
	s.WinRate = float64(wins) / float64(s.Evaluated)

	if len(alphas) > 0 {
		s.HasBenchmark = true
		s.MeanAlpha = stat.Mean(alphas, nil)
		s.MeanBeta = stat.Mean(betas, nil)
	}

	s.RobustnessScore = RobustnessScore(sharpes)
	s.Recommendation = Recommend(s.RobustnessScore)

	if s.Evaluated < 2 {
		warnings = append(warnings, "a single period cannot show consistency")
	} else if !s.Stable {
		warnings = append(warnings, fmt.Sprintf("Sharpe is unstable across periods (cv %.2f, threshold %.2f)", s.CV, stabilityCV))
	}
	if s.WinRate < 0.5 {
		warnings = append(warnings, fmt.Sprintf("only %.0f%% of periods were profitable", s.WinRate*100))
	}
	if s.HasBenchmark && s.MeanAlpha < 0 {
		warnings = append(warnings, fmt.Sprintf("mean alpha vs benchmark is negative (%.2f%%)", s.MeanAlpha*100))
	}
	return s, warnings
}

// RobustnessScore blends the share of positive-Sharpe periods (up to 50 points)
// with the average Sharpe (50 points at Sharpe 1.0 or better)
func RobustnessScore(sharpes []float64) float64 {
	if len(sharpes) == 0 {
		return 0
	}
	quality := math.Min(math.Max(stat.Mean(sharpes, nil), 0)*50, 50)
	return positivePct(sharpes)*0.5 + quality
}

// Recommend maps a robustness score to its tier
func Recommend(score float64) string {
	switch {
	case score >= 70:
		return TierStrong
	case score >= 50:
		return TierModerate
	case score >= 30:
		return TierWeak
	default:
		return TierFail
	}
}
