package correlation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/wonny/diversifier/internal/contracts"
	"github.com/wonny/diversifier/internal/returns"
	"github.com/wonny/diversifier/pkg/logger"
)

// Matrix is a symmetric pairwise correlation matrix with unit diagonal.
// Off-diagonal entries are in [-1, 1] or NaN when the pair carries no information.
// ⭐ SSOT: 상관관계 행렬은 이 타입으로만 전달
type Matrix struct {
	tickers []string
	values  [][]float64
	index   map[string]int
}

// NewMatrix wraps precomputed correlations after checking shape,
// symmetry and the unit diagonal
func NewMatrix(tickers []string, values [][]float64) (*Matrix, error) {
	n := len(tickers)
	if len(values) != n {
		return nil, fmt.Errorf("correlation matrix: %d tickers but %d rows", n, len(values))
	}
	out := &Matrix{
		tickers: append([]string(nil), tickers...),
		values:  make([][]float64, n),
		index:   make(map[string]int, n),
	}
	for i, t := range tickers {
		if _, dup := out.index[t]; dup {
			return nil, fmt.Errorf("correlation matrix: duplicate ticker %s", t)
		}
		out.index[t] = i
		if len(values[i]) != n {
			return nil, fmt.Errorf("correlation matrix: row %d has %d entries", i, len(values[i]))
		}
		out.values[i] = append([]float64(nil), values[i]...)
	}
	for i := 0; i < n; i++ {
		if out.values[i][i] != 1 {
			return nil, fmt.Errorf("correlation matrix: diagonal %d is %v", i, out.values[i][i])
		}
		for j := i + 1; j < n; j++ {
			a, b := out.values[i][j], out.values[j][i]
			if math.IsNaN(a) != math.IsNaN(b) || (!math.IsNaN(a) && a != b) {
				return nil, fmt.Errorf("correlation matrix: asymmetric at (%d,%d)", i, j)
			}
			if a < -1 || a > 1 {
				return nil, fmt.Errorf("correlation matrix: entry (%d,%d) out of range", i, j)
			}
		}
	}
	return out, nil
}

// Tickers returns the labels in matrix order
func (m *Matrix) Tickers() []string {
	return append([]string(nil), m.tickers...)
}

// Size returns the number of tickers
func (m *Matrix) Size() int {
	return len(m.tickers)
}

// Get returns entry (i, j)
func (m *Matrix) Get(i, j int) float64 {
	return m.values[i][j]
}

// Index returns the position of ticker
func (m *Matrix) Index(ticker string) (int, bool) {
	i, ok := m.index[ticker]
	return i, ok
}

// At returns the correlation between two tickers.
// ok is false when either ticker is unknown; the value may still be NaN.
func (m *Matrix) At(a, b string) (float64, bool) {
	i, okA := m.index[a]
	j, okB := m.index[b]
	if !okA || !okB {
		return math.NaN(), false
	}
	return m.values[i][j], true
}

// Defined reports whether the pair has a usable correlation
func (m *Matrix) Defined(a, b string) bool {
	v, ok := m.At(a, b)
	return ok && !math.IsNaN(v)
}

// Estimator computes pairwise-complete Pearson correlations
type Estimator struct {
	logger *logger.Logger
}

// NewEstimator creates a correlation estimator
func NewEstimator(log *logger.Logger) *Estimator {
	if log == nil {
		log = logger.Nop()
	}
	return &Estimator{logger: log.WithComponent("correlation")}
}

// Estimate correlates every column pair over the rows where both are observed.
// lookback > 0 keeps only the trailing lookback rows first.
// The result depends only on the input, so repeated calls are identical.
func (e *Estimator) Estimate(rm *returns.Matrix, lookback int) (*Matrix, error) {
	if rm == nil || rm.Cols() < 2 {
		return nil, &contracts.InsufficientDataError{Op: "correlation", Detail: "fewer than 2 tickers"}
	}
	rm = rm.Tail(lookback)
	if rm.Rows() < 2 {
		return nil, &contracts.InsufficientDataError{
			Op:     "correlation",
			Detail: fmt.Sprintf("%d rows in window", rm.Rows()),
		}
	}

	n := rm.Cols()
	cols := make([][]float64, n)
	for j := range cols {
		cols[j] = rm.Column(j)
	}

	out := &Matrix{
		tickers: rm.Tickers(),
		values:  make([][]float64, n),
		index:   make(map[string]int, n),
	}
	for i, t := range out.tickers {
		out.index[t] = i
		out.values[i] = make([]float64, n)
	}

	undefined := 0
	for i := 0; i < n; i++ {
		out.values[i][i] = 1
		for j := i + 1; j < n; j++ {
			c := pairwise(cols[i], cols[j])
			if math.IsNaN(c) {
				undefined++
			}
			// one computation per pair keeps the matrix exactly symmetric
			out.values[i][j] = c
			out.values[j][i] = c
		}
	}

	e.logger.WithFields(map[string]interface{}{
		"tickers":         n,
		"rows":            rm.Rows(),
		"undefined_pairs": undefined,
	}).Debug("Correlation matrix estimated")

	return out, nil
}

// pairwise returns Pearson correlation over rows where both x and y are observed.
// NaN when fewer than 2 such rows exist or either side has zero variance.
func pairwise(x, y []float64) float64 {
	xs := make([]float64, 0, len(x))
	ys := make([]float64, 0, len(y))
	for k := range x {
		if returns.IsMissing(x[k]) || returns.IsMissing(y[k]) {
			continue
		}
		xs = append(xs, x[k])
		ys = append(ys, y[k])
	}
	if len(xs) < 2 {
		return math.NaN()
	}
	if stat.Variance(xs, nil) == 0 || stat.Variance(ys, nil) == 0 {
		return math.NaN()
	}

	c := stat.Correlation(xs, ys, nil)
	switch {
	case math.IsNaN(c):
		return c
	case c > 1:
		return 1
	case c < -1:
		return -1
	}
	return c
}
