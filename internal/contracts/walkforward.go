package contracts

import "time"

// WalkForwardResult is the out-of-sample outcome of one cutoff window.
// Immutable once computed.
type WalkForwardResult struct {
	SelectionDate time.Time     `json:"selection_date"`
	HoldingEnd    time.Time     `json:"holding_end"`
	Portfolio     *Portfolio    `json:"portfolio"`
	Weights       *WeightVector `json:"weights"`

	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	Volatility       float64 `json:"volatility"`
	Sharpe           float64 `json:"sharpe"`
	MaxDrawdown      float64 `json:"max_drawdown"` // <= 0
	VaR              float64 `json:"var_95"`       // one-day historical VaR, positive loss
	CVaR             float64 `json:"cvar_95"`
	TradingDays      int     `json:"trading_days"`

	HasBenchmark    bool    `json:"has_benchmark"`
	BenchmarkReturn float64 `json:"benchmark_return"`
	Alpha           float64 `json:"alpha"`
	Beta            float64 `json:"beta"`
	Correlation     float64 `json:"correlation"`

	Warnings []string `json:"warnings,omitempty"`

	// Error is set when the window could not be evaluated; metrics are zero then
	Error string `json:"error,omitempty"`
}

// OK reports whether the window produced metrics
func (r *WalkForwardResult) OK() bool {
	return r.Error == ""
}
