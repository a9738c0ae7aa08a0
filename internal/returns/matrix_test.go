package returns

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMatrix(t *testing.T) *Matrix {
	t.Helper()
	nan := math.NaN()
	m, err := NewMatrix(
		[]time.Time{day(1), day(2), day(3), day(4)},
		[]string{"AAA", "BBB", "CCC"},
		[][]float64{
			{0.01, 0.02, 0.03},
			{0.02, nan, 0.01},
			{-0.01, 0.01, 0.00},
			{0.03, -0.02, nan},
		},
	)
	require.NoError(t, err)
	return m
}

func TestNewMatrix_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		dates   []time.Time
		tickers []string
		values  [][]float64
	}{
		{"row count", []time.Time{day(1)}, []string{"A"}, nil},
		{"unsorted dates", []time.Time{day(2), day(1)}, []string{"A"}, [][]float64{{0}, {0}}},
		{"duplicate dates", []time.Time{day(1), day(1)}, []string{"A"}, [][]float64{{0}, {0}}},
		{"duplicate ticker", []time.Time{day(1)}, []string{"A", "A"}, [][]float64{{0, 0}}},
		{"ragged row", []time.Time{day(1)}, []string{"A", "B"}, [][]float64{{0}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMatrix(tt.dates, tt.tickers, tt.values)
			assert.Error(t, err)
		})
	}
}

func TestNewMatrix_InfinityBecomesMissing(t *testing.T) {
	m, err := NewMatrix([]time.Time{day(1)}, []string{"A"}, [][]float64{{math.Inf(1)}})
	require.NoError(t, err)
	assert.True(t, IsMissing(m.At(0, 0)))
}

func TestMatrix_Select(t *testing.T) {
	m := sampleMatrix(t)

	sub, err := m.Select([]string{"CCC", "AAA"})
	require.NoError(t, err)
	assert.Equal(t, []string{"CCC", "AAA"}, sub.Tickers())
	assert.Equal(t, 0.03, sub.At(0, 0))
	assert.Equal(t, 0.01, sub.At(0, 1))
	j, ok := sub.Index("AAA")
	assert.True(t, ok)
	assert.Equal(t, 1, j)

	_, err = m.Select([]string{"ZZZ"})
	assert.Error(t, err)
}

func TestMatrix_TailAndCompleteRows(t *testing.T) {
	m := sampleMatrix(t)

	tail := m.Tail(2)
	assert.Equal(t, 2, tail.Rows())
	assert.Equal(t, day(3), tail.Dates()[0])
	assert.Same(t, m, m.Tail(0))
	assert.Same(t, m, m.Tail(10))

	complete := m.CompleteRows()
	assert.Equal(t, 2, complete.Rows())
	assert.Equal(t, []time.Time{day(1), day(3)}, complete.Dates())
}

func TestMatrix_ColumnIsACopy(t *testing.T) {
	m := sampleMatrix(t)
	col := m.Column(0)
	col[0] = 42
	assert.Equal(t, 0.01, m.At(0, 0))
}
