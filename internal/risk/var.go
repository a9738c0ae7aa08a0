package risk

import (
	"math"
	"sort"
)

// VaRResult holds historical Value-at-Risk figures
// ⭐ SSOT: VaR/CVaR는 손실을 양수로 표현 (VaR=0.05 → 5% 손실 가능)
type VaRResult struct {
	Confidence float64 `json:"confidence"`
	VaR        float64 `json:"var"`
	CVaR       float64 `json:"cvar"` // expected shortfall beyond VaR
}

// HistoricalVaR computes VaR and CVaR from daily returns by historical simulation
func HistoricalVaR(daily []float64, confidence float64) VaRResult {
	res := VaRResult{Confidence: confidence}
	if len(daily) == 0 {
		return res
	}

	// 손실이 앞으로 오도록 오름차순 정렬
	sorted := append([]float64(nil), daily...)
	sort.Float64s(sorted)

	idx := int(math.Floor((1 - confidence) * float64(len(sorted))))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	if sorted[idx] < 0 {
		res.VaR = -sorted[idx]
	}

	tail := 0.0
	for _, r := range sorted[:idx+1] {
		tail += r
	}
	if avg := tail / float64(idx+1); avg < 0 {
		res.CVaR = -avg
	}
	return res
}
