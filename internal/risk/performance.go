package risk

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// TradingDays is the annualisation factor for daily returns
const TradingDays = 252

// DefaultVaRConfidence is used by Measure
const DefaultVaRConfidence = 0.95

// Performance summarises a daily return stream
type Performance struct {
	TradingDays      int       `json:"trading_days"`
	TotalReturn      float64   `json:"total_return"`      // ∏(1+r) - 1
	AnnualizedReturn float64   `json:"annualized_return"` // (1+total)^(252/days) - 1
	Volatility       float64   `json:"volatility"`        // sample stdev × √252
	Sharpe           float64   `json:"sharpe"`            // 0 when volatility is 0
	MaxDrawdown      float64   `json:"max_drawdown"`      // ≤ 0
	VaR              VaRResult `json:"var"`
}

// Measure computes compounded performance of daily returns
func Measure(daily []float64, riskFree float64) Performance {
	p := Performance{TradingDays: len(daily), VaR: VaRResult{Confidence: DefaultVaRConfidence}}
	if len(daily) == 0 {
		return p
	}

	p.TotalReturn = TotalReturn(daily)
	growth := 1 + p.TotalReturn
	if growth > 0 {
		p.AnnualizedReturn = math.Pow(growth, float64(TradingDays)/float64(len(daily))) - 1
	} else {
		p.AnnualizedReturn = -1
	}

	if len(daily) >= 2 {
		p.Volatility = stat.StdDev(daily, nil) * math.Sqrt(TradingDays)
	}
	if p.Volatility > 0 {
		p.Sharpe = (p.AnnualizedReturn - riskFree) / p.Volatility
	}

	p.MaxDrawdown = MaxDrawdown(daily)
	p.VaR = HistoricalVaR(daily, DefaultVaRConfidence)
	return p
}

// TotalReturn compounds daily returns
func TotalReturn(daily []float64) float64 {
	growth := 1.0
	for _, r := range daily {
		growth *= 1 + r
	}
	return growth - 1
}

// MaxDrawdown returns the deepest fall of the compounded curve from its running peak.
// The curve starts at 1 so a loss on the first day counts.
func MaxDrawdown(daily []float64) float64 {
	equity, peak, worst := 1.0, 1.0, 0.0
	for _, r := range daily {
		equity *= 1 + r
		if equity > peak {
			peak = equity
		}
		if dd := equity/peak - 1; dd < worst {
			worst = dd
		}
	}
	return worst
}

// AnnualizedSharpe is (mean×252 - rf) / (stdev×√252) over daily returns.
// ok is false with fewer than 2 returns or zero volatility.
func AnnualizedSharpe(daily []float64, riskFree float64) (sharpe float64, ok bool) {
	if len(daily) < 2 {
		return 0, false
	}
	mean, std := stat.MeanStdDev(daily, nil)
	if std == 0 || math.IsNaN(std) {
		return 0, false
	}
	return (mean*TradingDays - riskFree) / (std * math.Sqrt(TradingDays)), true
}

// Relative computes beta and correlation of a return stream against a benchmark
// aligned day by day. ok is false when either is undefined.
func Relative(portfolio, benchmark []float64) (beta, correlation float64, ok bool) {
	if len(portfolio) != len(benchmark) || len(portfolio) < 2 {
		return 0, 0, false
	}
	benchVar := stat.Variance(benchmark, nil)
	portVar := stat.Variance(portfolio, nil)
	if benchVar == 0 || portVar == 0 {
		return 0, 0, false
	}
	beta = stat.Covariance(portfolio, benchmark, nil) / benchVar
	correlation = stat.Correlation(portfolio, benchmark, nil)
	return beta, math.Max(-1, math.Min(1, correlation)), true
}
