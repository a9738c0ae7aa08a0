package returns

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/diversifier/internal/contracts"
)

func day(d int) time.Time {
	return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d)
}

// series builds a ticker whose i-th price is dated day(startDay+i)
func series(ticker string, startDay int, prices ...float64) *contracts.PriceSeries {
	s := &contracts.PriceSeries{Ticker: ticker}
	for i, p := range prices {
		s.Bars = append(s.Bars, contracts.PriceBar{Date: day(startDay + i), Close: p, AdjClose: p})
	}
	return s
}

func TestBuild_SimpleReturns(t *testing.T) {
	b := NewBuilder(nil)
	res, err := b.Build([]*contracts.PriceSeries{
		series("AAA", 0, 100, 110, 99),
		series("BBB", 0, 50, 50, 55),
	}, Options{})
	require.NoError(t, err)

	m := res.Matrix
	require.Equal(t, 2, m.Rows())
	require.Equal(t, []string{"AAA", "BBB"}, m.Tickers())
	assert.InDelta(t, 0.10, m.At(0, 0), 1e-12)
	assert.InDelta(t, -0.10, m.At(1, 0), 1e-12)
	assert.InDelta(t, 0.0, m.At(0, 1), 1e-12)
	assert.InDelta(t, 0.10, m.At(1, 1), 1e-12)
	assert.Equal(t, day(1), m.Dates()[0])
}

func TestBuild_IntersectsWindow(t *testing.T) {
	b := NewBuilder(nil)
	res, err := b.Build([]*contracts.PriceSeries{
		series("AAA", 0, 1, 2, 3, 4, 5, 6), // returns day1..day5
		series("BBB", 3, 1, 2, 3, 4, 5, 6), // returns day4..day8
	}, Options{})
	require.NoError(t, err)

	dates := res.Matrix.Dates()
	require.Len(t, dates, 2)
	assert.Equal(t, day(4), dates[0])
	assert.Equal(t, day(5), dates[1])
}

func TestBuild_PreservesMissingCells(t *testing.T) {
	a := series("AAA", 0, 100, 101, 102, 103, 104)
	b := series("BBB", 0, 10, 11, 12, 13, 14)
	// BBB has no quote on day 2
	b.Bars = append(b.Bars[:2], b.Bars[3:]...)

	res, err := NewBuilder(nil).Build([]*contracts.PriceSeries{a, b}, Options{})
	require.NoError(t, err)

	m := res.Matrix
	require.Equal(t, 4, m.Rows())
	row := -1
	for i, d := range m.Dates() {
		if d.Equal(day(2)) {
			row = i
		}
	}
	require.NotEqual(t, -1, row)
	assert.True(t, IsMissing(m.At(row, 1)), "missing quote must stay missing")
	assert.False(t, IsMissing(m.At(row, 0)))
	// the return after the gap spans two sessions
	assert.InDelta(t, 13.0/11.0-1, m.At(row+1, 1), 1e-12)
	assert.Equal(t, 3, m.Observations(1))
}

func TestBuild_ExcludesInvalidTickersOnly(t *testing.T) {
	dup := series("DUP", 0, 1, 2, 3)
	dup.Bars[2].Date = dup.Bars[1].Date

	tests := []struct {
		name   string
		bad    *contracts.PriceSeries
		reason string
	}{
		{"duplicate dates", dup, "invalid series"},
		{"single price", series("ONE", 0, 5), "fewer than 2 prices"},
		{"no valid price", series("ZERO", 0, 0, 0, 0), "no valid returns"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewBuilder(nil).Build([]*contracts.PriceSeries{
				series("AAA", 0, 1, 2, 3),
				tt.bad,
				series("BBB", 0, 3, 2, 1),
			}, Options{})
			require.NoError(t, err)
			assert.Contains(t, res.Excluded[tt.bad.Ticker], tt.reason)
			assert.Equal(t, []string{"AAA", "BBB"}, res.Matrix.Tickers())
		})
	}
}

func TestBuild_InsufficientData(t *testing.T) {
	tests := []struct {
		name   string
		series []*contracts.PriceSeries
	}{
		{"single ticker", []*contracts.PriceSeries{series("AAA", 0, 1, 2, 3)}},
		{"one valid of two", []*contracts.PriceSeries{series("AAA", 0, 1, 2, 3), series("BBB", 0, 1)}},
		{"no overlap", []*contracts.PriceSeries{series("AAA", 0, 1, 2, 3), series("BBB", 10, 1, 2, 3)}},
		{"empty", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewBuilder(nil).Build(tt.series, Options{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, contracts.ErrInsufficientData))
			assert.Nil(t, res.Matrix)
		})
	}
}

func TestBuild_LookbackTakesKPlusOnePrices(t *testing.T) {
	prices := make([]float64, 30)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}

	res, err := NewBuilder(nil).Build([]*contracts.PriceSeries{
		series("AAA", 0, prices...),
		series("BBB", 0, prices...),
	}, Options{Lookback: 10})
	require.NoError(t, err)

	m := res.Matrix
	assert.Equal(t, 10, m.Rows())
	// last return uses the final two prices
	assert.InDelta(t, 129.0/128.0-1, m.At(9, 0), 1e-12)
	assert.InDelta(t, 120.0/119.0-1, m.At(0, 0), 1e-12)
}

func TestBuild_NonPositivePriceIsMissing(t *testing.T) {
	res, err := NewBuilder(nil).Build([]*contracts.PriceSeries{
		series("AAA", 0, 10, 11, 12, 13, 14),
		series("BBB", 0, 10, 11, -1, 13, 14),
	}, Options{})
	require.NoError(t, err)

	col, ok := res.Matrix.ColumnFor("BBB")
	require.True(t, ok)
	require.Len(t, col, 4)
	assert.InDelta(t, 0.1, col[0], 1e-12)
	assert.True(t, math.IsNaN(col[1]))
	assert.True(t, math.IsNaN(col[2]))
	assert.InDelta(t, 14.0/13.0-1, col[3], 1e-12)
}

func TestBuild_DuplicateTickerKeepsFirst(t *testing.T) {
	res, err := NewBuilder(nil).Build([]*contracts.PriceSeries{
		series("AAA", 0, 1, 2, 3),
		series("AAA", 0, 3, 2, 1),
		series("BBB", 0, 1, 1, 1),
	}, Options{})
	require.NoError(t, err)

	assert.Equal(t, "duplicate ticker in input", res.Excluded["AAA"])
	assert.InDelta(t, 1.0, res.Matrix.At(0, 0), 1e-12)
}
