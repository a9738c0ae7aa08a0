package portfolio

import (
	"context"
	"math"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/diversifier/internal/brain"
	"github.com/wonny/diversifier/internal/contracts"
	"github.com/wonny/diversifier/internal/correlation"
	"github.com/wonny/diversifier/internal/prices"
	"github.com/wonny/diversifier/internal/strategyconfig"
	"github.com/wonny/diversifier/internal/walkforward"
	"github.com/wonny/diversifier/pkg/config"
	"github.com/wonny/diversifier/pkg/database"
)

func completedRun(t *testing.T) *brain.RunResult {
	t.Helper()
	universe := prices.SyntheticUniverse([]string{"Tech", "Energy", "Health", "Finance"}, 4)
	store := prices.NewMemoryStore(prices.GenerateSynthetic(prices.DefaultSyntheticConfig(universe))...)

	cfg := brain.DefaultConfig()
	cfg.Optimizer.Simulations = 500
	o, err := brain.NewOrchestrator(cfg, nil, nil)
	require.NoError(t, err)
	run, err := o.Run(context.Background(), brain.RunConfig{RunID: uuid.NewString(), Provider: store, Universe: universe})
	require.NoError(t, err)
	return run
}

func TestNewRecord(t *testing.T) {
	run := completedRun(t)
	snap, err := strategyconfig.NewSnapshot(strategyconfig.Default(), nil)
	require.NoError(t, err)

	rec, err := NewRecord(run, snap)
	require.NoError(t, err)

	assert.Equal(t, run.RunID, rec.RunID)
	assert.Equal(t, "default", rec.StrategyID)
	assert.Len(t, rec.ConfigHash, 64)
	assert.Len(t, rec.Weights, 3)
	assert.Len(t, rec.LatestPrices, rec.Portfolio.Size())

	n := rec.Portfolio.Size()
	assert.Len(t, rec.Correlations, n*(n-1)/2)
	for _, c := range rec.Correlations {
		assert.True(t, rec.Portfolio.Contains(c.A))
		assert.True(t, rec.Portfolio.Contains(c.B))
	}

	w, ok := rec.WeightsByName(contracts.WeightsMaxSharpe)
	require.True(t, ok)
	assert.NoError(t, w.Validate(1e-9))
	_, ok = rec.WeightsByName("nope")
	assert.False(t, ok)
}

func TestNewRecord_RejectsFailedRun(t *testing.T) {
	_, err := NewRecord(nil, nil)
	assert.Error(t, err)
	_, err = NewRecord(&brain.RunResult{Success: false}, nil)
	assert.Error(t, err)
}

func TestMemberPairs_SkipsUndefined(t *testing.T) {
	nan := math.NaN()
	m, err := correlation.NewMatrix([]string{"A", "B", "C"}, [][]float64{
		{1, 0.5, nan},
		{0.5, 1, -0.2},
		{nan, -0.2, 1},
	})
	require.NoError(t, err)

	pairs := memberPairs([]string{"C", "A", "B", "X"}, m)
	assert.Equal(t, []correlation.Pair{
		{A: "C", B: "B", Correlation: -0.2},
		{A: "A", B: "B", Correlation: 0.5},
	}, pairs)
}

func testRepository(t *testing.T) *Repository {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" || testing.Short() {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	db, err := database.New(context.Background(), config.DatabaseConfig{URL: url, MaxConns: 2})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	repo := NewRepository(db)
	require.NoError(t, repo.EnsureSchema(context.Background()))
	return repo
}

func TestRepository_SaveAndLoadRun(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	rec, err := NewRecord(completedRun(t), nil)
	require.NoError(t, err)
	rec.CreatedAt = time.Now().Add(time.Hour) // newest
	require.NoError(t, repo.SaveRun(ctx, rec))

	got, err := repo.GetLatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, rec.RunID, got.RunID)
	assert.Equal(t, rec.Portfolio.Tickers(), got.Portfolio.Tickers())
	assert.Equal(t, rec.Portfolio.Underfilled, got.Portfolio.Underfilled)
	assert.Len(t, got.Weights, len(rec.Weights))
	assert.Len(t, got.Portfolio.Bench, len(rec.Portfolio.Bench))
	assert.Len(t, got.Correlations, len(rec.Correlations))

	want, _ := rec.WeightsByName(contracts.WeightsMaxSharpe)
	have, ok := got.WeightsByName(contracts.WeightsMaxSharpe)
	require.True(t, ok)
	assert.Equal(t, want.Tickers, have.Tickers)
	assert.InDeltaSlice(t, want.Weights, have.Weights, 1e-12)
	for ticker, p := range rec.LatestPrices {
		assert.InDelta(t, p, got.LatestPrices[ticker], 1e-9)
	}

	// duplicate run id fails without partial rows
	assert.Error(t, repo.SaveRun(ctx, rec))
}

func TestRepository_GetRunMissing(t *testing.T) {
	repo := testRepository(t)
	_, err := repo.GetRun(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, ErrNoRuns)
}

func TestRepository_SaveWalkForward(t *testing.T) {
	repo := testRepository(t)

	report := &walkforward.Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Periods: []contracts.WalkForwardResult{
			{SelectionDate: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), HoldingEnd: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), TotalReturn: 0.05, Sharpe: 0.8, TradingDays: 126},
			{SelectionDate: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), Error: "selection failed"},
		},
	}
	report.Summary, report.Warnings = walkforward.Summarize(report.Periods, 0.3)
	require.NoError(t, repo.SaveWalkForward(context.Background(), report, "default", ""))

	// a suite run also stores its assessment
	suite := *report
	suite.RunID = uuid.NewString()
	suite.Timeframes = []walkforward.TimeframeResult{{
		Timeframe:         walkforward.Timeframe{Name: "6mo", Months: 6},
		WalkForwardResult: report.Periods[0],
	}}
	a := walkforward.Assess(suite.Timeframes, suite.Periods, nil)
	suite.Assessment = &a
	require.NoError(t, repo.SaveWalkForward(context.Background(), &suite, "default", ""))

	var stored []byte
	require.NoError(t, repo.db.Pool.QueryRow(context.Background(),
		`SELECT assessment FROM portfolio.walkforward_runs WHERE run_id = $1`, suite.RunID).Scan(&stored))
	assert.Contains(t, string(stored), walkforward.ComponentTimeframes)
}
