package handlers

import (
	"errors"
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/wonny/diversifier/internal/contracts"
	"github.com/wonny/diversifier/internal/correlation"
	"github.com/wonny/diversifier/internal/optimizer"
	"github.com/wonny/diversifier/internal/portfolio"
	"github.com/wonny/diversifier/pkg/logger"
)

// PortfolioHandler serves the latest selected portfolio
type PortfolioHandler struct {
	store *RunStore
	log   *logger.Logger
}

// NewPortfolioHandler creates a new portfolio handler
func NewPortfolioHandler(store *RunStore, log *logger.Logger) *PortfolioHandler {
	return &PortfolioHandler{
		store: store,
		log:   log.WithComponent("portfolio_handler"),
	}
}

// PortfolioResponse is the allocation of an amount over the latest run
type PortfolioResponse struct {
	RunID      string    `json:"run_id"`
	AsOf       time.Time `json:"as_of"`
	StrategyID string    `json:"strategy_id,omitempty"`

	Allocation *optimizer.Allocation       `json:"allocation"`
	Weights    contracts.WeightVector      `json:"weights"`
	Members    []contracts.PortfolioMember `json:"members"`

	// Under-fill and exclusions are always reported, never hidden
	TargetSize      int               `json:"target_size"`
	Selected        int               `json:"selected"`
	Underfilled     bool              `json:"underfilled"`
	DistinctSectors int               `json:"distinct_sectors"`
	MinSectorsMet   bool              `json:"min_sectors_met"`
	Excluded        map[string]string `json:"excluded"`
	Warnings        []string          `json:"warnings"`
}

// GetPortfolio handles GET /api/portfolio?amount=3500[&weights=min_variance]
func (h *PortfolioHandler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	amount, ok, err := queryFloat(r, "amount")
	switch {
	case !ok:
		respondError(w, http.StatusBadRequest, "amount is required")
		return
	case err != nil:
		respondError(w, http.StatusBadRequest, "amount must be a number")
		return
	case math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0:
		respondError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	name := r.URL.Query().Get("weights")
	if name == "" {
		name = contracts.WeightsMaxSharpe
	}
	if !knownWeights(name) {
		respondError(w, http.StatusBadRequest, "weights must be one of: max_sharpe, min_variance, equal_weight")
		return
	}

	rec, ok := h.latest(w, r)
	if !ok {
		return
	}

	weights, ok := rec.WeightsByName(name)
	if !ok {
		respondError(w, http.StatusNotFound, "latest run has no "+name+" weights")
		return
	}

	alloc, err := optimizer.Allocate(amount, weights, rec.LatestPrices)
	if err != nil {
		if errors.Is(err, optimizer.ErrInvalidAmount) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.WithError(err).WithRun(rec.RunID).Error("Failed to allocate")
		respondError(w, http.StatusInternalServerError, "Failed to allocate")
		return
	}

	p := rec.Portfolio
	resp := PortfolioResponse{
		RunID:           rec.RunID,
		AsOf:            rec.AsOf,
		StrategyID:      rec.StrategyID,
		Allocation:      alloc,
		Weights:         weights,
		Members:         p.Members,
		TargetSize:      p.TargetSize,
		Selected:        p.Size(),
		Underfilled:     p.Underfilled,
		DistinctSectors: p.DistinctSectors,
		MinSectorsMet:   p.MinSectorsMet,
		Excluded:        rec.Excluded,
		Warnings:        append(append([]string{}, rec.Warnings...), alloc.Warnings...),
	}
	if resp.Excluded == nil {
		resp.Excluded = map[string]string{}
	}
	respondJSON(w, http.StatusOK, resp)
}

// GetWeights handles GET /api/portfolio/weights[?name=max_sharpe]
func (h *PortfolioHandler) GetWeights(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name != "" && !knownWeights(name) {
		respondError(w, http.StatusBadRequest, "name must be one of: max_sharpe, min_variance, equal_weight")
		return
	}

	rec, ok := h.latest(w, r)
	if !ok {
		return
	}

	vectors := rec.Weights
	if name != "" {
		v, found := rec.WeightsByName(name)
		if !found {
			respondError(w, http.StatusNotFound, "latest run has no "+name+" weights")
			return
		}
		vectors = []contracts.WeightVector{v}
	}
	if vectors == nil {
		vectors = []contracts.WeightVector{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":  rec.RunID,
		"as_of":   rec.AsOf,
		"weights": vectors,
	})
}

// GetBench handles GET /api/bench
func (h *PortfolioHandler) GetBench(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.latest(w, r)
	if !ok {
		return
	}

	bench := rec.Portfolio.Bench
	if bench == nil {
		bench = []contracts.AssetMetric{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"run_id": rec.RunID,
		"as_of":  rec.AsOf,
		"count":  len(bench),
		"bench":  bench,
	})
}

// GetCorrelations handles GET /api/correlations?threshold=0.5
// Pairs are member pairs with |corr| >= threshold, strongest first.
func (h *PortfolioHandler) GetCorrelations(w http.ResponseWriter, r *http.Request) {
	threshold, _, err := queryFloat(r, "threshold")
	if err != nil || threshold < 0 || threshold > 1 {
		respondError(w, http.StatusBadRequest, "threshold must be a number between 0 and 1")
		return
	}

	rec, ok := h.latest(w, r)
	if !ok {
		return
	}

	pairs := make([]correlation.Pair, 0, len(rec.Correlations))
	for _, p := range rec.Correlations {
		if math.Abs(p.Correlation) >= threshold {
			pairs = append(pairs, p)
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		return math.Abs(pairs[i].Correlation) > math.Abs(pairs[j].Correlation)
	})

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":           rec.RunID,
		"as_of":            rec.AsOf,
		"threshold":        threshold,
		"mean_correlation": rec.Portfolio.MeanCorrelation(),
		"count":            len(pairs),
		"pairs":            pairs,
	})
}

// latest writes 404/500 itself; ok is false when it did
func (h *PortfolioHandler) latest(w http.ResponseWriter, r *http.Request) (*portfolio.Record, bool) {
	rec, err := h.store.Latest(r.Context())
	if isNoRuns(err) {
		respondError(w, http.StatusNotFound, "no portfolio has been built yet")
		return nil, false
	}
	if err != nil {
		h.log.WithError(err).Error("Failed to load latest run")
		respondError(w, http.StatusInternalServerError, "Failed to load latest run")
		return nil, false
	}
	return rec, true
}

func knownWeights(name string) bool {
	switch name {
	case contracts.WeightsMaxSharpe, contracts.WeightsMinVariance, contracts.WeightsEqual:
		return true
	}
	return false
}
