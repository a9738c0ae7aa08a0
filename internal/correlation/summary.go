package correlation

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Summary describes the finite upper triangle of a correlation matrix
type Summary struct {
	Pairs          int     `json:"pairs"`
	UndefinedPairs int     `json:"undefined_pairs"`
	Mean           float64 `json:"mean"`
	StdDev         float64 `json:"std_dev"`
	Max            float64 `json:"max"`
	Min            float64 `json:"min"`
}

// Summarize aggregates the defined off-diagonal entries
func Summarize(m *Matrix) Summary {
	var vals []float64
	s := Summary{}
	for i := 0; i < m.Size(); i++ {
		for j := i + 1; j < m.Size(); j++ {
			v := m.Get(i, j)
			if math.IsNaN(v) {
				s.UndefinedPairs++
				continue
			}
			vals = append(vals, v)
		}
	}
	s.Pairs = len(vals)
	if len(vals) == 0 {
		return s
	}

	s.Mean = stat.Mean(vals, nil)
	if len(vals) > 1 {
		s.StdDev = stat.StdDev(vals, nil)
	}
	s.Max, s.Min = vals[0], vals[0]
	for _, v := range vals[1:] {
		s.Max = math.Max(s.Max, v)
		s.Min = math.Min(s.Min, v)
	}
	return s
}

// Pair is one ticker pair and its correlation
type Pair struct {
	A           string  `json:"a"`
	B           string  `json:"b"`
	Correlation float64 `json:"correlation"`
}

// HighlyCorrelatedPairs lists pairs with |corr| >= threshold, strongest first.
// Ties keep matrix order.
func HighlyCorrelatedPairs(m *Matrix, threshold float64) []Pair {
	var pairs []Pair
	for i := 0; i < m.Size(); i++ {
		for j := i + 1; j < m.Size(); j++ {
			v := m.Get(i, j)
			if !math.IsNaN(v) && math.Abs(v) >= threshold {
				pairs = append(pairs, Pair{A: m.tickers[i], B: m.tickers[j], Correlation: v})
			}
		}
	}
	sort.SliceStable(pairs, func(a, b int) bool {
		return math.Abs(pairs[a].Correlation) > math.Abs(pairs[b].Correlation)
	})
	return pairs
}
