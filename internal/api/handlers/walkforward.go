package handlers

import (
	"net/http"

	"github.com/wonny/diversifier/pkg/logger"
)

// WalkForwardHandler serves the latest walk-forward report
type WalkForwardHandler struct {
	store *RunStore
	log   *logger.Logger
}

// NewWalkForwardHandler creates a new walk-forward handler
func NewWalkForwardHandler(store *RunStore, log *logger.Logger) *WalkForwardHandler {
	return &WalkForwardHandler{store: store, log: log}
}

// GetReport handles GET /api/walkforward
func (h *WalkForwardHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	report := h.store.Report()
	if report == nil {
		respondError(w, http.StatusNotFound, "no walk-forward validation has been run yet")
		return
	}
	respondJSON(w, http.StatusOK, report)
}
