package contracts

import "time"

// Listing is one entry of the candidate universe before screening
type Listing struct {
	Ticker string `json:"ticker"`
	Sector string `json:"sector"`
}

// AssetMetric is the screened per-ticker summary consumed by selection.
// Volatility is always > 0; assets without it are excluded upstream.
// ⭐ SSOT: 스크리닝 → 선택 단계 전달 형식
type AssetMetric struct {
	Ticker      string    `json:"ticker"`
	Sector      string    `json:"sector"`
	TotalReturn float64   `json:"total_return"` // trailing cumulative return
	Volatility  float64   `json:"volatility"`   // daily, sample stdev
	Sharpe      float64   `json:"sharpe"`       // annualised; used as quality score
	AvgVolume   float64   `json:"avg_volume"`
	LatestPrice float64   `json:"latest_price"`
	LatestDate  time.Time `json:"latest_date"`
}

// Quality is the score the selector ranks by
func (m AssetMetric) Quality() float64 {
	return m.Sharpe
}
