package contracts

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestPriceSeries_Validate(t *testing.T) {
	tests := []struct {
		name    string
		dates   []int
		wantErr bool
	}{
		{"ascending", []int{1, 2, 3}, false},
		{"empty", nil, false},
		{"duplicate", []int{1, 2, 2}, true},
		{"descending", []int{1, 3, 2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &PriceSeries{Ticker: "AAA"}
			for _, d := range tt.dates {
				s.Bars = append(s.Bars, PriceBar{Date: day(d), Close: 10})
			}
			err := s.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPriceSeries_AsOf(t *testing.T) {
	s := &PriceSeries{Ticker: "AAA", Bars: []PriceBar{
		{Date: day(1), Close: 1}, {Date: day(2), Close: 2}, {Date: day(3), Close: 3},
	}}

	cut := s.AsOf(day(2))
	require.Equal(t, 2, cut.Len())
	last, ok := cut.Last()
	require.True(t, ok)
	assert.Equal(t, day(2), last.Date)

	// the copy is independent of the source
	cut.Bars[0].Close = 99
	assert.Equal(t, 1.0, s.Bars[0].Close)

	assert.Equal(t, 0, s.AsOf(day(0)).Len())
}

func TestPriceBar_Price(t *testing.T) {
	assert.Equal(t, 9.5, PriceBar{Close: 10, AdjClose: 9.5}.Price())
	assert.Equal(t, 10.0, PriceBar{Close: 10}.Price())
}

func TestPortfolio(t *testing.T) {
	p := &Portfolio{
		TargetSize: 3,
		Members: []PortfolioMember{
			{Asset: AssetMetric{Ticker: "AAA", Sector: "Tech"}, AvgCorrelation: 0.2},
			{Asset: AssetMetric{Ticker: "BBB", Sector: "Tech"}, AvgCorrelation: 0.4},
		},
		Underfilled: true,
	}

	assert.Equal(t, []string{"AAA", "BBB"}, p.Tickers())
	assert.True(t, p.Contains("BBB"))
	assert.False(t, p.Contains("CCC"))
	assert.Equal(t, map[string]int{"Tech": 2}, p.SectorCounts())
	assert.InDelta(t, 0.3, p.MeanCorrelation(), 1e-12)

	err := p.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConstraintUnsatisfiable))

	p.Underfilled = false
	assert.NoError(t, p.Err())
}

func TestWeightVector_Validate(t *testing.T) {
	tests := []struct {
		name    string
		w       WeightVector
		wantErr bool
	}{
		{"valid", WeightVector{Tickers: []string{"A", "B"}, Weights: []float64{0.25, 0.75}}, false},
		{"negative", WeightVector{Tickers: []string{"A", "B"}, Weights: []float64{-0.25, 1.25}}, true},
		{"not invested", WeightVector{Tickers: []string{"A", "B"}, Weights: []float64{0.2, 0.2}}, true},
		{"length mismatch", WeightVector{Tickers: []string{"A"}, Weights: []float64{0.5, 0.5}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.w.Validate(1e-9)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	w := WeightVector{Tickers: []string{"A", "B"}, Weights: []float64{0.4, 0.6}}
	v, ok := w.Weight("B")
	assert.True(t, ok)
	assert.Equal(t, 0.6, v)
}

func TestWeightVector_JSONUndefinedSharpe(t *testing.T) {
	w := WeightVector{Name: WeightsEqual, Tickers: []string{"A"}, Weights: []float64{1}, Sharpe: math.NaN()}

	data, err := json.Marshal(w)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"sharpe":null`)

	var back WeightVector
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, math.IsNaN(back.Sharpe))
	assert.Equal(t, w.Tickers, back.Tickers)

	w.Sharpe = 1.25
	data, err = json.Marshal(w)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, 1.25, back.Sharpe)
}

func TestTypedErrors(t *testing.T) {
	var err error = &InsufficientDataError{Op: "correlation", Tickers: []string{"AAA"}, Detail: "empty overlap"}
	assert.True(t, errors.Is(err, ErrInsufficientData))
	assert.Contains(t, err.Error(), "correlation: insufficient data: empty overlap")
	assert.Contains(t, err.Error(), "AAA")

	err = &TemporalLeakageError{Ticker: "AAA", AsOf: day(1), Observed: day(2)}
	assert.True(t, errors.Is(err, ErrTemporalLeakage))

	var leak *TemporalLeakageError
	require.True(t, errors.As(err, &leak))
	assert.Equal(t, "AAA", leak.Ticker)
}
