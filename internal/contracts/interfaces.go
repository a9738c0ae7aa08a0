package contracts

import (
	"context"
	"time"
)

// PriceProvider loads daily price history.
// Series are ascending without duplicate dates; unknown tickers fail with ErrNotFound.
// ⭐ SSOT: 가격 조회 인터페이스
type PriceProvider interface {
	PriceSeries(ctx context.Context, ticker string) (*PriceSeries, error)
	// PriceSeriesAsOf returns only bars dated on or before asOf
	PriceSeriesAsOf(ctx context.Context, ticker string, asOf time.Time) (*PriceSeries, error)
}

// CandidateSource supplies screened candidates ranked best-first
type CandidateSource interface {
	CandidateMetrics(ctx context.Context) ([]AssetMetric, error)
}
