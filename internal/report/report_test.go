package report

import (
	"bytes"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/diversifier/internal/contracts"
	"github.com/wonny/diversifier/internal/optimizer"
	"github.com/wonny/diversifier/internal/portfolio"
	"github.com/wonny/diversifier/internal/walkforward"
)

var asOf = time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC)

func testRecord(underfilled bool) *portfolio.Record {
	members := []contracts.PortfolioMember{
		{Asset: contracts.AssetMetric{Ticker: "AAA", Sector: "Information Technology", Sharpe: 1.2, Volatility: 0.011, TotalReturn: 0.18}, Stage: contracts.StageSeed, AvgCorrelation: 0.2},
		{Asset: contracts.AssetMetric{Ticker: "BBB", Sector: "Energy", Sharpe: 0.8, Volatility: 0.014, TotalReturn: -0.03}, Stage: contracts.StageFill, AvgCorrelation: 0.3},
	}
	return &portfolio.Record{
		RunID: "run-1",
		AsOf:  asOf,
		Portfolio: &contracts.Portfolio{
			AsOf:            asOf,
			Members:         members,
			TargetSize:      3,
			Underfilled:     underfilled,
			DistinctSectors: 2,
			MinSectorsMet:   true,
		},
		Excluded: map[string]string{"ZZZ": "screening: insufficient history", "YYY": "returns: no prices"},
		Warnings: []string{"selected 2 of 3"},
	}
}

func TestWritePortfolio(t *testing.T) {
	var buf bytes.Buffer
	WritePortfolio(&buf, testRecord(true))
	out := buf.String()

	assert.Contains(t, out, "Selected     : 2 of 3")
	assert.Contains(t, out, "AAA")
	assert.Contains(t, out, "Information T…", "long sectors are truncated")
	assert.Contains(t, out, "+18.00%")
	assert.Contains(t, out, "Under-filled: selected 2 of 3")
	assert.Contains(t, out, "Excluded: 2")
	// exclusions are sorted by ticker
	assert.Less(t, strings.Index(out, "YYY: returns"), strings.Index(out, "ZZZ: screening"))
}

func TestWritePortfolio_FullHasNoUnderfillNotice(t *testing.T) {
	rec := testRecord(false)
	rec.Excluded = nil

	var buf bytes.Buffer
	WritePortfolio(&buf, rec)
	assert.NotContains(t, buf.String(), "Under-filled")
	assert.Contains(t, buf.String(), "Excluded: 0")
}

func TestWriteWeights(t *testing.T) {
	vectors := []contracts.WeightVector{
		{Name: contracts.WeightsMaxSharpe, Tickers: []string{"AAA", "BBB"}, Weights: []float64{0.7, 0.3}, ExpectedReturn: 0.12, Volatility: 0.15, Sharpe: 0.67},
		{Name: contracts.WeightsEqual, Tickers: []string{"AAA", "BBB"}, Weights: []float64{0.5, 0.5}, Sharpe: math.NaN()},
	}

	var buf bytes.Buffer
	WriteWeights(&buf, vectors)
	out := buf.String()
	assert.Contains(t, out, "max_sharpe")
	assert.Contains(t, out, "70.00%")
	assert.Contains(t, out, "0.670")
	assert.Contains(t, out, "n/a")

	buf.Reset()
	WriteWeights(&buf, nil)
	assert.Contains(t, buf.String(), "optimisation skipped")
}

func TestWriteAllocation(t *testing.T) {
	weights := contracts.WeightVector{Name: contracts.WeightsMaxSharpe, Tickers: []string{"AAA", "BBB", "CCC"}, Weights: []float64{0.5, 0.3, 0.2}}
	alloc, err := optimizer.Allocate(1000, weights, map[string]float64{"AAA": 120, "BBB": 30})
	require.NoError(t, err)

	var buf bytes.Buffer
	WriteAllocation(&buf, alloc)
	out := buf.String()
	assert.Contains(t, out, "Allocation of $1000.00 (max_sharpe)")
	// AAA: 500/120 → 4 shares, BBB: 300/30 → 10 shares
	assert.Contains(t, out, "480.00")
	assert.Contains(t, out, "$780.00")
	assert.Contains(t, out, "$220.00")
	assert.Contains(t, out, "CCC: no price")
}

func TestWriteWalkForward(t *testing.T) {
	r := &walkforward.Report{
		RunID:  "wf-1",
		Config: walkforward.DefaultConfig(),
		Periods: []contracts.WalkForwardResult{
			{SelectionDate: asOf, TradingDays: 126, TotalReturn: 0.042, Sharpe: 0.9, MaxDrawdown: -0.08, VaR: 0.015},
			{SelectionDate: asOf.AddDate(0, 6, 0), Error: "only 5 forward days after cutoff (need 20)"},
		},
		Summary:  walkforward.Summary{Periods: 2, Evaluated: 1, Failed: 1, RobustnessScore: 52.1, Recommendation: walkforward.TierModerate},
		Warnings: []string{"1 of 2 periods could not be evaluated"},
	}

	var buf bytes.Buffer
	WriteWalkForward(&buf, r)
	out := buf.String()
	assert.Contains(t, out, "2024-06-28")
	assert.Contains(t, out, "+4.20%")
	assert.Contains(t, out, "only 5 forward days")
	assert.Contains(t, out, "Evaluated    : 1 of 2")
	assert.Contains(t, out, "MODERATE")
	assert.Contains(t, out, "1 of 2 periods could not be evaluated")
	assert.NotContains(t, out, "Overall Assessment")
}

func TestWriteWalkForward_Suite(t *testing.T) {
	r := &walkforward.Report{
		RunID:   "wf-2",
		Config:  walkforward.DefaultConfig(),
		Periods: []contracts.WalkForwardResult{{SelectionDate: asOf, TradingDays: 126, TotalReturn: 0.03, Sharpe: 0.7}},
		Timeframes: []walkforward.TimeframeResult{
			{Timeframe: walkforward.Timeframe{Name: "6mo", Months: 6}, WalkForwardResult: contracts.WalkForwardResult{SelectionDate: asOf, TradingDays: 125, TotalReturn: 0.051, Sharpe: 1.2}},
			{Timeframe: walkforward.Timeframe{Name: "10yr", Months: 120}, WalkForwardResult: contracts.WalkForwardResult{SelectionDate: asOf.AddDate(-10, 0, 0), Error: "selection failed: no candidates"}},
		},
		Sensitivity: &walkforward.Sensitivity{
			Cutoff: asOf, End: asOf.AddDate(1, 0, 0), Draws: 4, Evaluated: 4,
			ProfitablePct: 75, PositiveSharpePct: 75, P25Sharpe: 0.1, P75Sharpe: 0.9, SharpeSpread: 0.8,
		},
	}
	a := walkforward.Assess(r.Timeframes, r.Periods, r.Sensitivity)
	r.Assessment = &a

	var buf bytes.Buffer
	WriteWalkForward(&buf, r)
	out := buf.String()
	assert.Contains(t, out, "Trailing Timeframes")
	assert.Contains(t, out, "+5.10%")
	assert.Contains(t, out, "selection failed")
	assert.Contains(t, out, "Parameter Sensitivity")
	assert.Contains(t, out, "0.10 to 0.90 (spread 0.80)")
	assert.Contains(t, out, "Overall Assessment")
	assert.Contains(t, out, fmt.Sprintf("%.1f / 100 → %s", a.Score, a.Recommendation))
}

func testFrontier(n int) *optimizer.Frontier {
	rng := rand.New(rand.NewSource(7))
	f := &optimizer.Frontier{Tickers: []string{"AAA", "BBB", "CCC"}}
	for i := 0; i < n; i++ {
		f.Samples = append(f.Samples, optimizer.Sample{
			Return:     0.05 + 0.1*rng.Float64(),
			Volatility: 0.1 + 0.1*rng.Float64(),
			Rejected:   i%10 == 0,
		})
	}
	f.MaxSharpe = contracts.WeightVector{Name: contracts.WeightsMaxSharpe, ExpectedReturn: 0.14, Volatility: 0.12}
	f.MinVariance = contracts.WeightVector{Name: contracts.WeightsMinVariance, ExpectedReturn: 0.07, Volatility: 0.1}
	f.EqualWeight = contracts.WeightVector{Name: contracts.WeightsEqual, ExpectedReturn: 0.1, Volatility: 0.15}
	return f
}

func TestRenderFrontier(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderFrontier(&buf, testFrontier(500)))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")))
}

func TestRenderFrontier_Errors(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, RenderFrontier(&buf, nil))
	assert.Error(t, RenderFrontier(&buf, &optimizer.Frontier{}))

	degenerate := testFrontier(3)
	for i := range degenerate.Samples {
		degenerate.Samples[i].Volatility = math.NaN()
	}
	assert.Error(t, RenderFrontier(&buf, degenerate))
}
