package portfolio

import (
	"fmt"
	"math"
	"time"

	"github.com/wonny/diversifier/internal/brain"
	"github.com/wonny/diversifier/internal/contracts"
	"github.com/wonny/diversifier/internal/correlation"
	"github.com/wonny/diversifier/internal/strategyconfig"
)

// Record is a completed pipeline run as persisted and served by the API
// ⭐ SSOT: 저장/조회/API 응답은 이 형식 하나
type Record struct {
	RunID        string                   `json:"run_id"`
	AsOf         time.Time                `json:"as_of"`
	CreatedAt    time.Time                `json:"created_at"`
	StrategyID   string                   `json:"strategy_id,omitempty"`
	ConfigHash   string                   `json:"config_hash,omitempty"`
	ConfigYAML   string                   `json:"-"`
	Portfolio    *contracts.Portfolio     `json:"portfolio"`
	Weights      []contracts.WeightVector `json:"weights"`
	LatestPrices map[string]float64       `json:"latest_prices"`
	Correlations []correlation.Pair       `json:"correlations"` // member pairs, upper triangle
	Excluded     map[string]string        `json:"excluded,omitempty"`
	Warnings     []string                 `json:"warnings,omitempty"`
}

// NewRecord flattens a successful run; snapshot may be nil
func NewRecord(run *brain.RunResult, snapshot *strategyconfig.Snapshot) (*Record, error) {
	if run == nil || !run.Success || run.Portfolio == nil {
		return nil, fmt.Errorf("portfolio record: run did not complete")
	}

	rec := &Record{
		RunID:        run.RunID,
		AsOf:         run.Portfolio.AsOf,
		CreatedAt:    run.StartedAt,
		Portfolio:    run.Portfolio,
		LatestPrices: make(map[string]float64, run.Portfolio.Size()),
		Excluded:     run.Excluded,
		Warnings:     run.Warnings,
	}
	if snapshot != nil {
		rec.StrategyID = snapshot.StrategyID
		rec.ConfigHash = snapshot.ConfigHash
		rec.ConfigYAML = snapshot.ConfigYAML
	}
	if run.Frontier != nil {
		rec.Weights = run.Frontier.Weights()
	}
	for _, ticker := range run.Portfolio.Tickers() {
		if p, ok := run.LatestPrices[ticker]; ok {
			rec.LatestPrices[ticker] = p
		}
	}
	if run.Correlation != nil {
		rec.Correlations = memberPairs(run.Portfolio.Tickers(), run.Correlation)
	}
	return rec, nil
}

// WeightsByName returns the named vector
func (r *Record) WeightsByName(name string) (contracts.WeightVector, bool) {
	for _, w := range r.Weights {
		if w.Name == name {
			return w, true
		}
	}
	return contracts.WeightVector{}, false
}

// memberPairs lists the defined correlations among tickers in selection order
func memberPairs(tickers []string, corr *correlation.Matrix) []correlation.Pair {
	pairs := make([]correlation.Pair, 0, len(tickers)*(len(tickers)-1)/2)
	for i := 0; i < len(tickers); i++ {
		for j := i + 1; j < len(tickers); j++ {
			v, ok := corr.At(tickers[i], tickers[j])
			if !ok || math.IsNaN(v) {
				continue
			}
			pairs = append(pairs, correlation.Pair{A: tickers[i], B: tickers[j], Correlation: v})
		}
	}
	return pairs
}
