package contracts

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// SelectionStage records how a member entered the portfolio
type SelectionStage string

const (
	StageSeed SelectionStage = "seed"
	StageFill SelectionStage = "fill"
)

// PortfolioMember is one selected asset
type PortfolioMember struct {
	Asset          AssetMetric    `json:"asset"`
	Rank           int            `json:"rank"` // 1-based position in the ranked candidate pool
	Stage          SelectionStage `json:"stage"`
	Score          float64        `json:"score"`           // score at the moment of selection
	AvgCorrelation float64        `json:"avg_correlation"` // mean |corr| against the other members
}

// Portfolio is the output of the greedy selector.
// Underfilled is set when fewer than TargetSize members could be chosen.
// ⭐ SSOT: 선택 → 최적화 단계 전달
type Portfolio struct {
	AsOf            time.Time         `json:"as_of"`
	Members         []PortfolioMember `json:"members"`
	TargetSize      int               `json:"target_size"`
	Underfilled     bool              `json:"underfilled"`
	DistinctSectors int               `json:"distinct_sectors"`
	MinSectorsMet   bool              `json:"min_sectors_met"`
	Bench           []AssetMetric     `json:"bench"`              // next-best alternates
	Excluded        map[string]string `json:"excluded,omitempty"` // ticker -> reason
	Warnings        []string          `json:"warnings,omitempty"`
}

// Size returns the number of members
func (p *Portfolio) Size() int {
	return len(p.Members)
}

// Tickers returns member tickers in selection order
func (p *Portfolio) Tickers() []string {
	out := make([]string, len(p.Members))
	for i, m := range p.Members {
		out[i] = m.Asset.Ticker
	}
	return out
}

// Contains reports whether ticker is a member
func (p *Portfolio) Contains(ticker string) bool {
	for _, m := range p.Members {
		if m.Asset.Ticker == ticker {
			return true
		}
	}
	return false
}

// SectorCounts returns members per sector
func (p *Portfolio) SectorCounts() map[string]int {
	counts := make(map[string]int)
	for _, m := range p.Members {
		counts[m.Asset.Sector]++
	}
	return counts
}

// MeanCorrelation averages the members' internal correlation
func (p *Portfolio) MeanCorrelation() float64 {
	if len(p.Members) == 0 {
		return 0
	}
	sum := 0.0
	for _, m := range p.Members {
		sum += m.AvgCorrelation
	}
	return sum / float64(len(p.Members))
}

// Err reports an under-filled portfolio as ErrConstraintUnsatisfiable.
// The portfolio itself stays usable as a partial result.
func (p *Portfolio) Err() error {
	if !p.Underfilled {
		return nil
	}
	return fmt.Errorf("%w: selected %d of %d", ErrConstraintUnsatisfiable, len(p.Members), p.TargetSize)
}

// WeightVector is one named allocation over portfolio members
type WeightVector struct {
	Name           string    `json:"name"` // max_sharpe, min_variance, equal_weight
	Tickers        []string  `json:"tickers"`
	Weights        []float64 `json:"weights"`
	ExpectedReturn float64   `json:"expected_return"` // annualised
	Volatility     float64   `json:"volatility"`      // annualised
	Sharpe         float64   `json:"sharpe"`
}

const (
	WeightsMaxSharpe   = "max_sharpe"
	WeightsMinVariance = "min_variance"
	WeightsEqual       = "equal_weight"
)

// Sum returns the total weight
func (w *WeightVector) Sum() float64 {
	total := 0.0
	for _, v := range w.Weights {
		total += v
	}
	return total
}

// Weight returns the weight of ticker
func (w *WeightVector) Weight(ticker string) (float64, bool) {
	for i, t := range w.Tickers {
		if t == ticker {
			return w.Weights[i], true
		}
	}
	return 0, false
}

// Validate checks long-only, fully-invested weights within tol
func (w *WeightVector) Validate(tol float64) error {
	if len(w.Tickers) != len(w.Weights) {
		return fmt.Errorf("%s: %d tickers but %d weights", w.Name, len(w.Tickers), len(w.Weights))
	}
	for i, v := range w.Weights {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("%s: invalid weight %v for %s", w.Name, v, w.Tickers[i])
		}
	}
	if math.Abs(w.Sum()-1) > tol {
		return fmt.Errorf("%s: weights sum to %v", w.Name, w.Sum())
	}
	return nil
}

type weightVectorJSON struct {
	Name           string    `json:"name"`
	Tickers        []string  `json:"tickers"`
	Weights        []float64 `json:"weights"`
	ExpectedReturn float64   `json:"expected_return"`
	Volatility     float64   `json:"volatility"`
	Sharpe         *float64  `json:"sharpe"` // null when volatility is 0
}

// MarshalJSON writes an undefined Sharpe as null
func (w WeightVector) MarshalJSON() ([]byte, error) {
	out := weightVectorJSON{
		Name:           w.Name,
		Tickers:        w.Tickers,
		Weights:        w.Weights,
		ExpectedReturn: w.ExpectedReturn,
		Volatility:     w.Volatility,
	}
	if !math.IsNaN(w.Sharpe) && !math.IsInf(w.Sharpe, 0) {
		sharpe := w.Sharpe
		out.Sharpe = &sharpe
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads a null Sharpe back as NaN
func (w *WeightVector) UnmarshalJSON(data []byte) error {
	var in weightVectorJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*w = WeightVector{
		Name:           in.Name,
		Tickers:        in.Tickers,
		Weights:        in.Weights,
		ExpectedReturn: in.ExpectedReturn,
		Volatility:     in.Volatility,
		Sharpe:         math.NaN(),
	}
	if in.Sharpe != nil {
		w.Sharpe = *in.Sharpe
	}
	return nil
}
