package returns

import (
	"fmt"
	"math"
	"time"
)

// IsMissing reports whether a cell holds no observation.
// Missing cells are NaN and never zero-filled.
func IsMissing(v float64) bool {
	return math.IsNaN(v)
}

// Missing is the sentinel stored in empty cells
func Missing() float64 {
	return math.NaN()
}

// Matrix is a dense date × ticker table of daily simple returns.
// Dates are strictly increasing, tickers unique, every cell finite or missing.
// ⭐ SSOT: 수익률 행렬은 이 타입으로만 전달
type Matrix struct {
	dates   []time.Time
	tickers []string
	values  [][]float64 // [row][col]
	index   map[string]int
}

// NewMatrix validates and wraps the given table. The slices are copied.
func NewMatrix(dates []time.Time, tickers []string, values [][]float64) (*Matrix, error) {
	if len(values) != len(dates) {
		return nil, fmt.Errorf("returns matrix: %d dates but %d rows", len(dates), len(values))
	}
	for i := 1; i < len(dates); i++ {
		if !dates[i].After(dates[i-1]) {
			return nil, fmt.Errorf("returns matrix: dates not strictly increasing at row %d", i)
		}
	}

	index := make(map[string]int, len(tickers))
	for j, t := range tickers {
		if _, dup := index[t]; dup {
			return nil, fmt.Errorf("returns matrix: duplicate ticker %s", t)
		}
		index[t] = j
	}

	rows := make([][]float64, len(values))
	for i, row := range values {
		if len(row) != len(tickers) {
			return nil, fmt.Errorf("returns matrix: row %d has %d cells, want %d", i, len(row), len(tickers))
		}
		rows[i] = make([]float64, len(row))
		for j, v := range row {
			if math.IsInf(v, 0) {
				v = Missing()
			}
			rows[i][j] = v
		}
	}

	return &Matrix{
		dates:   append([]time.Time(nil), dates...),
		tickers: append([]string(nil), tickers...),
		values:  rows,
		index:   index,
	}, nil
}

func (m *Matrix) Rows() int { return len(m.dates) }
func (m *Matrix) Cols() int { return len(m.tickers) }

// Tickers returns column labels
func (m *Matrix) Tickers() []string {
	return append([]string(nil), m.tickers...)
}

// Dates returns row labels
func (m *Matrix) Dates() []time.Time {
	return append([]time.Time(nil), m.dates...)
}

// At returns cell (row, col)
func (m *Matrix) At(row, col int) float64 {
	return m.values[row][col]
}

// Index returns the column of ticker
func (m *Matrix) Index(ticker string) (int, bool) {
	j, ok := m.index[ticker]
	return j, ok
}

// Column returns a copy of column j
func (m *Matrix) Column(j int) []float64 {
	out := make([]float64, len(m.values))
	for i, row := range m.values {
		out[i] = row[j]
	}
	return out
}

// ColumnFor returns a copy of the ticker's column
func (m *Matrix) ColumnFor(ticker string) ([]float64, bool) {
	j, ok := m.index[ticker]
	if !ok {
		return nil, false
	}
	return m.Column(j), true
}

// Observations counts the non-missing cells of column j
func (m *Matrix) Observations(j int) int {
	n := 0
	for _, row := range m.values {
		if !IsMissing(row[j]) {
			n++
		}
	}
	return n
}

// Tail keeps the last k rows; k <= 0 or k >= Rows returns m unchanged
func (m *Matrix) Tail(k int) *Matrix {
	if k <= 0 || k >= len(m.dates) {
		return m
	}
	start := len(m.dates) - k
	return m.slice(start, m.tickers, m.allColumns())
}

// Select returns the sub-matrix of the given tickers in the given order
func (m *Matrix) Select(tickers []string) (*Matrix, error) {
	cols := make([]int, len(tickers))
	for k, t := range tickers {
		j, ok := m.index[t]
		if !ok {
			return nil, fmt.Errorf("returns matrix: unknown ticker %s", t)
		}
		cols[k] = j
	}
	return m.slice(0, tickers, cols), nil
}

// CompleteRows keeps only rows where every column is observed
func (m *Matrix) CompleteRows() *Matrix {
	out := &Matrix{
		tickers: append([]string(nil), m.tickers...),
		index:   m.index,
	}
	for i, row := range m.values {
		complete := true
		for _, v := range row {
			if IsMissing(v) {
				complete = false
				break
			}
		}
		if complete {
			out.dates = append(out.dates, m.dates[i])
			out.values = append(out.values, append([]float64(nil), row...))
		}
	}
	return out
}

func (m *Matrix) allColumns() []int {
	cols := make([]int, len(m.tickers))
	for j := range cols {
		cols[j] = j
	}
	return cols
}

func (m *Matrix) slice(start int, tickers []string, cols []int) *Matrix {
	index := make(map[string]int, len(tickers))
	for k, t := range tickers {
		index[t] = k
	}
	out := &Matrix{
		dates:   append([]time.Time(nil), m.dates[start:]...),
		tickers: append([]string(nil), tickers...),
		values:  make([][]float64, 0, len(m.dates)-start),
		index:   index,
	}
	for _, row := range m.values[start:] {
		r := make([]float64, len(cols))
		for k, j := range cols {
			r[k] = row[j]
		}
		out.values = append(out.values, r)
	}
	return out
}
