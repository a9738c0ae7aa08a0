package prices

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/diversifier/internal/contracts"
)

// Repository is a PostgreSQL PriceProvider over prices.daily_prices
// ⭐ SSOT: 가격 데이터 저장소는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new price repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const priceSchema = `
	CREATE SCHEMA IF NOT EXISTS prices;

	CREATE TABLE IF NOT EXISTS prices.listings (
		ticker VARCHAR(20) PRIMARY KEY,
		sector VARCHAR(100) NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS prices.daily_prices (
		ticker     VARCHAR(20) NOT NULL,
		trade_date DATE NOT NULL,
		open       DOUBLE PRECISION,
		high       DOUBLE PRECISION,
		low        DOUBLE PRECISION,
		close      DOUBLE PRECISION NOT NULL,
		adj_close  DOUBLE PRECISION,
		volume     BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (ticker, trade_date)
	);
`

// EnsureSchema creates the price tables when missing
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, priceSchema); err != nil {
		return fmt.Errorf("ensure price schema: %w", err)
	}
	return nil
}

// PriceSeries returns the full history of ticker ordered by date
func (r *Repository) PriceSeries(ctx context.Context, ticker string) (*contracts.PriceSeries, error) {
	query := `
		SELECT trade_date, COALESCE(open, 0), COALESCE(high, 0), COALESCE(low, 0),
		       close, COALESCE(adj_close, 0), volume
		FROM prices.daily_prices
		WHERE ticker = $1
		ORDER BY trade_date ASC
	`
	return r.query(ctx, ticker, query, ticker)
}

// PriceSeriesAsOf returns history dated on or before asOf
func (r *Repository) PriceSeriesAsOf(ctx context.Context, ticker string, asOf time.Time) (*contracts.PriceSeries, error) {
	query := `
		SELECT trade_date, COALESCE(open, 0), COALESCE(high, 0), COALESCE(low, 0),
		       close, COALESCE(adj_close, 0), volume
		FROM prices.daily_prices
		WHERE ticker = $1 AND trade_date <= $2
		ORDER BY trade_date ASC
	`
	return r.query(ctx, ticker, query, ticker, asOf)
}

func (r *Repository) query(ctx context.Context, ticker, query string, args ...interface{}) (*contracts.PriceSeries, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query prices %s: %w", ticker, err)
	}
	defer rows.Close()

	series := &contracts.PriceSeries{Ticker: ticker}
	for rows.Next() {
		var b contracts.PriceBar
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.AdjClose, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan price %s: %w", ticker, err)
		}
		series.Bars = append(series.Bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate prices %s: %w", ticker, err)
	}
	if series.Len() == 0 {
		return nil, fmt.Errorf("%s: %w", ticker, contracts.ErrNotFound)
	}
	return series, nil
}

// SaveSeries upserts every bar of series in one batch
func (r *Repository) SaveSeries(ctx context.Context, series *contracts.PriceSeries) error {
	if series.Len() == 0 {
		return nil
	}

	query := `
		INSERT INTO prices.daily_prices (ticker, trade_date, open, high, low, close, adj_close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (ticker, trade_date) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			adj_close = EXCLUDED.adj_close,
			volume = EXCLUDED.volume
	`

	batch := &pgx.Batch{}
	for _, b := range series.Bars {
		batch.Queue(query, series.Ticker, b.Date, b.Open, b.High, b.Low, b.Close, b.AdjClose, b.Volume)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("save prices %s: %w", series.Ticker, err)
	}
	return nil
}

// Universe returns all listings ordered by ticker
func (r *Repository) Universe(ctx context.Context) ([]contracts.Listing, error) {
	rows, err := r.pool.Query(ctx, `SELECT ticker, sector FROM prices.listings ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	defer rows.Close()

	out := make([]contracts.Listing, 0)
	for rows.Next() {
		var l contracts.Listing
		if err := rows.Scan(&l.Ticker, &l.Sector); err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// SaveUniverse upserts listings
func (r *Repository) SaveUniverse(ctx context.Context, universe []contracts.Listing) error {
	batch := &pgx.Batch{}
	for _, l := range universe {
		batch.Queue(`
			INSERT INTO prices.listings (ticker, sector) VALUES ($1, $2)
			ON CONFLICT (ticker) DO UPDATE SET sector = EXCLUDED.sector
		`, l.Ticker, l.Sector)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("save listings: %w", err)
	}
	return nil
}
