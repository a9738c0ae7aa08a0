package portfolio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/diversifier/internal/contracts"
	"github.com/wonny/diversifier/internal/correlation"
	"github.com/wonny/diversifier/internal/walkforward"
	"github.com/wonny/diversifier/pkg/database"
)

// ErrNoRuns is returned before anything was saved
var ErrNoRuns = errors.New("no stored runs")

// Repository handles run persistence
// ⭐ SSOT: 분석 결과 저장/조회는 여기서만
type Repository struct {
	db *database.DB
}

// NewRepository creates a new portfolio repository
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

const portfolioSchema = `
	CREATE SCHEMA IF NOT EXISTS portfolio;

	CREATE TABLE IF NOT EXISTS portfolio.analysis_runs (
		run_id           VARCHAR(64) PRIMARY KEY,
		as_of            DATE NOT NULL,
		strategy_id      VARCHAR(100) NOT NULL DEFAULT '',
		config_hash      CHAR(64),
		config_yaml      TEXT,
		target_size      INT NOT NULL,
		underfilled      BOOLEAN NOT NULL,
		distinct_sectors INT NOT NULL,
		min_sectors_met  BOOLEAN NOT NULL,
		excluded         JSONB NOT NULL DEFAULT '{}',
		warnings         JSONB NOT NULL DEFAULT '[]',
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS portfolio.portfolio_stocks (
		run_id          VARCHAR(64) NOT NULL REFERENCES portfolio.analysis_runs(run_id) ON DELETE CASCADE,
		position        INT NOT NULL,
		ticker          VARCHAR(20) NOT NULL,
		sector          VARCHAR(100) NOT NULL,
		stage           VARCHAR(10) NOT NULL,
		rank            INT NOT NULL,
		score           DOUBLE PRECISION NOT NULL,
		sharpe          DOUBLE PRECISION NOT NULL,
		volatility      DOUBLE PRECISION NOT NULL,
		total_return    DOUBLE PRECISION NOT NULL,
		avg_volume      DOUBLE PRECISION NOT NULL,
		avg_correlation DOUBLE PRECISION NOT NULL,
		latest_price    DOUBLE PRECISION,
		latest_date     DATE,
		PRIMARY KEY (run_id, ticker)
	);

	CREATE TABLE IF NOT EXISTS portfolio.weight_vectors (
		run_id          VARCHAR(64) NOT NULL REFERENCES portfolio.analysis_runs(run_id) ON DELETE CASCADE,
		name            VARCHAR(20) NOT NULL,
		expected_return DOUBLE PRECISION NOT NULL,
		volatility      DOUBLE PRECISION NOT NULL,
		sharpe          DOUBLE PRECISION,
		PRIMARY KEY (run_id, name)
	);

	CREATE TABLE IF NOT EXISTS portfolio.portfolio_weights (
		run_id   VARCHAR(64) NOT NULL,
		name     VARCHAR(20) NOT NULL,
		position INT NOT NULL,
		ticker   VARCHAR(20) NOT NULL,
		weight   DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (run_id, name, ticker),
		FOREIGN KEY (run_id, name) REFERENCES portfolio.weight_vectors(run_id, name) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS portfolio.bench_stocks (
		run_id     VARCHAR(64) NOT NULL REFERENCES portfolio.analysis_runs(run_id) ON DELETE CASCADE,
		position   INT NOT NULL,
		ticker     VARCHAR(20) NOT NULL,
		sector     VARCHAR(100) NOT NULL,
		sharpe     DOUBLE PRECISION NOT NULL,
		volatility DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (run_id, ticker)
	);

	CREATE TABLE IF NOT EXISTS portfolio.stock_correlations (
		run_id      VARCHAR(64) NOT NULL REFERENCES portfolio.analysis_runs(run_id) ON DELETE CASCADE,
		ticker_a    VARCHAR(20) NOT NULL,
		ticker_b    VARCHAR(20) NOT NULL,
		correlation DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (run_id, ticker_a, ticker_b)
	);

	CREATE TABLE IF NOT EXISTS portfolio.walkforward_runs (
		run_id      VARCHAR(64) PRIMARY KEY,
		strategy_id VARCHAR(100) NOT NULL DEFAULT '',
		config_hash CHAR(64),
		summary     JSONB NOT NULL,
		warnings    JSONB NOT NULL DEFAULT '[]',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	-- timeframes, parameter draws and the overall score
	ALTER TABLE portfolio.walkforward_runs ADD COLUMN IF NOT EXISTS assessment JSONB;

	CREATE TABLE IF NOT EXISTS portfolio.walkforward_periods (
		run_id           VARCHAR(64) NOT NULL REFERENCES portfolio.walkforward_runs(run_id) ON DELETE CASCADE,
		selection_date   DATE NOT NULL,
		holding_end      DATE,
		tickers          TEXT[] NOT NULL DEFAULT '{}',
		total_return     DOUBLE PRECISION NOT NULL DEFAULT 0,
		annual_return    DOUBLE PRECISION NOT NULL DEFAULT 0,
		volatility       DOUBLE PRECISION NOT NULL DEFAULT 0,
		sharpe           DOUBLE PRECISION NOT NULL DEFAULT 0,
		max_drawdown     DOUBLE PRECISION NOT NULL DEFAULT 0,
		trading_days     INT NOT NULL DEFAULT 0,
		benchmark_return DOUBLE PRECISION,
		alpha            DOUBLE PRECISION,
		error            TEXT,
		PRIMARY KEY (run_id, selection_date)
	);
`

// EnsureSchema creates the portfolio tables when missing
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Pool.Exec(ctx, portfolioSchema); err != nil {
		return fmt.Errorf("ensure portfolio schema: %w", err)
	}
	return nil
}

// SaveRun stores a record and all of its rows in one transaction
func (r *Repository) SaveRun(ctx context.Context, rec *Record) error {
	if rec == nil || rec.Portfolio == nil {
		return fmt.Errorf("save run: empty record")
	}
	excluded, err := json.Marshal(nonNilMap(rec.Excluded))
	if err != nil {
		return fmt.Errorf("marshal excluded: %w", err)
	}
	warnings, err := json.Marshal(nonNilSlice(rec.Warnings))
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}
	p := rec.Portfolio

	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO portfolio.analysis_runs (
				run_id, as_of, strategy_id, config_hash, config_yaml, target_size,
				underfilled, distinct_sectors, min_sectors_met, excluded, warnings, created_at
			) VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, $9, $10, $11, $12)
		`, rec.RunID, rec.AsOf, rec.StrategyID, rec.ConfigHash, rec.ConfigYAML, p.TargetSize,
			p.Underfilled, p.DistinctSectors, p.MinSectorsMet, excluded, warnings, createdAt(rec.CreatedAt))
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}

		batch := &pgx.Batch{}
		for i, m := range p.Members {
			var price *float64
			if v, ok := rec.LatestPrices[m.Asset.Ticker]; ok {
				price = &v
			}
			var latest *time.Time
			if !m.Asset.LatestDate.IsZero() {
				d := m.Asset.LatestDate
				latest = &d
			}
			batch.Queue(`
				INSERT INTO portfolio.portfolio_stocks (
					run_id, position, ticker, sector, stage, rank, score, sharpe, volatility,
					total_return, avg_volume, avg_correlation, latest_price, latest_date
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			`, rec.RunID, i+1, m.Asset.Ticker, m.Asset.Sector, string(m.Stage), m.Rank, m.Score,
				m.Asset.Sharpe, m.Asset.Volatility, m.Asset.TotalReturn, m.Asset.AvgVolume,
				m.AvgCorrelation, price, latest)
		}
		for _, w := range rec.Weights {
			batch.Queue(`
				INSERT INTO portfolio.weight_vectors (run_id, name, expected_return, volatility, sharpe)
				VALUES ($1, $2, $3, $4, $5)
			`, rec.RunID, w.Name, w.ExpectedReturn, w.Volatility, finite(w.Sharpe))
			for i, ticker := range w.Tickers {
				batch.Queue(`
					INSERT INTO portfolio.portfolio_weights (run_id, name, position, ticker, weight)
					VALUES ($1, $2, $3, $4, $5)
				`, rec.RunID, w.Name, i+1, ticker, w.Weights[i])
			}
		}
		for i, b := range p.Bench {
			batch.Queue(`
				INSERT INTO portfolio.bench_stocks (run_id, position, ticker, sector, sharpe, volatility)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, rec.RunID, i+1, b.Ticker, b.Sector, b.Sharpe, b.Volatility)
		}
		for _, c := range rec.Correlations {
			batch.Queue(`
				INSERT INTO portfolio.stock_correlations (run_id, ticker_a, ticker_b, correlation)
				VALUES ($1, $2, $3, $4)
			`, rec.RunID, c.A, c.B, c.Correlation)
		}

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert run rows: %w", err)
		}
		return nil
	})
}

// GetLatestRun loads the most recently created run
func (r *Repository) GetLatestRun(ctx context.Context) (*Record, error) {
	var runID string
	err := r.db.Pool.QueryRow(ctx,
		`SELECT run_id FROM portfolio.analysis_runs ORDER BY created_at DESC LIMIT 1`,
	).Scan(&runID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoRuns
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest run: %w", err)
	}
	return r.GetRun(ctx, runID)
}

// GetRun loads one run by id
func (r *Repository) GetRun(ctx context.Context, runID string) (*Record, error) {
	rec := &Record{
		RunID:        runID,
		Portfolio:    &contracts.Portfolio{},
		LatestPrices: make(map[string]float64),
	}
	var (
		configHash, configYAML *string
		excluded, warnings     []byte
	)
	err := r.db.Pool.QueryRow(ctx, `
		SELECT as_of, strategy_id, config_hash, config_yaml, target_size, underfilled,
		       distinct_sectors, min_sectors_met, excluded, warnings, created_at
		FROM portfolio.analysis_runs
		WHERE run_id = $1
	`, runID).Scan(&rec.AsOf, &rec.StrategyID, &configHash, &configYAML,
		&rec.Portfolio.TargetSize, &rec.Portfolio.Underfilled, &rec.Portfolio.DistinctSectors,
		&rec.Portfolio.MinSectorsMet, &excluded, &warnings, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNoRuns)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	if configHash != nil {
		rec.ConfigHash = *configHash
	}
	if configYAML != nil {
		rec.ConfigYAML = *configYAML
	}
	if err := json.Unmarshal(excluded, &rec.Excluded); err != nil {
		return nil, fmt.Errorf("decode excluded: %w", err)
	}
	if err := json.Unmarshal(warnings, &rec.Warnings); err != nil {
		return nil, fmt.Errorf("decode warnings: %w", err)
	}
	rec.Portfolio.AsOf = rec.AsOf
	rec.Portfolio.Excluded = rec.Excluded

	if err := r.loadMembers(ctx, rec); err != nil {
		return nil, err
	}
	if err := r.loadWeights(ctx, rec); err != nil {
		return nil, err
	}
	if err := r.loadBench(ctx, rec); err != nil {
		return nil, err
	}
	if err := r.loadCorrelations(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *Repository) loadMembers(ctx context.Context, rec *Record) error {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT ticker, sector, stage, rank, score, sharpe, volatility, total_return,
		       avg_volume, avg_correlation, latest_price, latest_date
		FROM portfolio.portfolio_stocks
		WHERE run_id = $1
		ORDER BY position
	`, rec.RunID)
	if err != nil {
		return fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			m      contracts.PortfolioMember
			stage  string
			price  *float64
			latest *time.Time
		)
		if err := rows.Scan(&m.Asset.Ticker, &m.Asset.Sector, &stage, &m.Rank, &m.Score,
			&m.Asset.Sharpe, &m.Asset.Volatility, &m.Asset.TotalReturn, &m.Asset.AvgVolume,
			&m.AvgCorrelation, &price, &latest); err != nil {
			return fmt.Errorf("failed to scan member: %w", err)
		}
		m.Stage = contracts.SelectionStage(stage)
		if price != nil {
			m.Asset.LatestPrice = *price
			rec.LatestPrices[m.Asset.Ticker] = *price
		}
		if latest != nil {
			m.Asset.LatestDate = *latest
		}
		rec.Portfolio.Members = append(rec.Portfolio.Members, m)
	}
	return rows.Err()
}

func (r *Repository) loadWeights(ctx context.Context, rec *Record) error {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT v.name, v.expected_return, v.volatility, v.sharpe, w.ticker, w.weight
		FROM portfolio.weight_vectors v
		JOIN portfolio.portfolio_weights w ON w.run_id = v.run_id AND w.name = v.name
		WHERE v.run_id = $1
		ORDER BY v.name, w.position
	`, rec.RunID)
	if err != nil {
		return fmt.Errorf("failed to query weights: %w", err)
	}
	defer rows.Close()

	index := make(map[string]int)
	for rows.Next() {
		var (
			name, ticker  string
			ret, vol, wgt float64
			sharpe        *float64
		)
		if err := rows.Scan(&name, &ret, &vol, &sharpe, &ticker, &wgt); err != nil {
			return fmt.Errorf("failed to scan weight: %w", err)
		}
		i, ok := index[name]
		if !ok {
			w := contracts.WeightVector{Name: name, ExpectedReturn: ret, Volatility: vol, Sharpe: math.NaN()}
			if sharpe != nil {
				w.Sharpe = *sharpe
			}
			rec.Weights = append(rec.Weights, w)
			i = len(rec.Weights) - 1
			index[name] = i
		}
		rec.Weights[i].Tickers = append(rec.Weights[i].Tickers, ticker)
		rec.Weights[i].Weights = append(rec.Weights[i].Weights, wgt)
	}
	return rows.Err()
}

func (r *Repository) loadBench(ctx context.Context, rec *Record) error {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT ticker, sector, sharpe, volatility
		FROM portfolio.bench_stocks
		WHERE run_id = $1
		ORDER BY position
	`, rec.RunID)
	if err != nil {
		return fmt.Errorf("failed to query bench: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var b contracts.AssetMetric
		if err := rows.Scan(&b.Ticker, &b.Sector, &b.Sharpe, &b.Volatility); err != nil {
			return fmt.Errorf("failed to scan bench: %w", err)
		}
		rec.Portfolio.Bench = append(rec.Portfolio.Bench, b)
	}
	return rows.Err()
}

func (r *Repository) loadCorrelations(ctx context.Context, rec *Record) error {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT ticker_a, ticker_b, correlation
		FROM portfolio.stock_correlations
		WHERE run_id = $1
		ORDER BY ticker_a, ticker_b
	`, rec.RunID)
	if err != nil {
		return fmt.Errorf("failed to query correlations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c correlation.Pair
		if err := rows.Scan(&c.A, &c.B, &c.Correlation); err != nil {
			return fmt.Errorf("failed to scan correlation: %w", err)
		}
		rec.Correlations = append(rec.Correlations, c)
	}
	return rows.Err()
}

// SaveWalkForward stores a walk-forward report with its periods
func (r *Repository) SaveWalkForward(ctx context.Context, report *walkforward.Report, strategyID, configHash string) error {
	summary, err := json.Marshal(report.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	warnings, err := json.Marshal(nonNilSlice(report.Warnings))
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}
	var assessment []byte
	if report.Assessment != nil {
		assessment, err = json.Marshal(suiteRecord{
			Assessment:  report.Assessment,
			Timeframes:  report.Timeframes,
			Sensitivity: report.Sensitivity,
		})
		if err != nil {
			return fmt.Errorf("marshal assessment: %w", err)
		}
	}

	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO portfolio.walkforward_runs (run_id, strategy_id, config_hash, summary, warnings, assessment, created_at)
			VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)
		`, report.RunID, strategyID, configHash, summary, warnings, assessment, createdAt(report.StartedAt))
		if err != nil {
			return fmt.Errorf("failed to insert walk-forward run: %w", err)
		}

		batch := &pgx.Batch{}
		for _, p := range report.Periods {
			tickers := []string{}
			var (
				holdingEnd      *time.Time
				benchRet, alpha *float64
				errText         *string
			)
			if p.Portfolio != nil {
				tickers = p.Portfolio.Tickers()
			}
			if !p.HoldingEnd.IsZero() {
				d := p.HoldingEnd
				holdingEnd = &d
			}
			if p.HasBenchmark {
				b, a := p.BenchmarkReturn, p.Alpha
				benchRet, alpha = &b, &a
			}
			if !p.OK() {
				e := p.Error
				errText = &e
			}
			batch.Queue(`
				INSERT INTO portfolio.walkforward_periods (
					run_id, selection_date, holding_end, tickers, total_return, annual_return,
					volatility, sharpe, max_drawdown, trading_days, benchmark_return, alpha, error
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			`, report.RunID, p.SelectionDate, holdingEnd, tickers, p.TotalReturn, p.AnnualizedReturn,
				p.Volatility, p.Sharpe, p.MaxDrawdown, p.TradingDays, benchRet, alpha, errText)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert walk-forward periods: %w", err)
		}
		return nil
	})
}

// suiteRecord is the assessment column payload
type suiteRecord struct {
	Assessment  *walkforward.Assessment       `json:"assessment"`
	Timeframes  []walkforward.TimeframeResult `json:"timeframes,omitempty"`
	Sensitivity *walkforward.Sensitivity      `json:"sensitivity,omitempty"`
}

// finite maps NaN and ±Inf to NULL
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func createdAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func nonNilSlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
