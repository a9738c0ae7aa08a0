package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/wonny/diversifier/internal/contracts"
	"github.com/wonny/diversifier/internal/portfolio"
	"github.com/wonny/diversifier/pkg/logger"
)

// Rebuilder runs the pipeline and returns the published record
type Rebuilder interface {
	Rebuild(ctx context.Context) (*portfolio.Record, error)
}

// RunHandler triggers pipeline runs
type RunHandler struct {
	rebuilder Rebuilder
	running   atomic.Bool
	log       *logger.Logger
}

// NewRunHandler creates a new run handler
func NewRunHandler(rebuilder Rebuilder, log *logger.Logger) *RunHandler {
	return &RunHandler{
		rebuilder: rebuilder,
		log:       log.WithComponent("run_handler"),
	}
}

// RunResponse summarises a triggered run
type RunResponse struct {
	RunID       string            `json:"run_id"`
	Selected    int               `json:"selected"`
	TargetSize  int               `json:"target_size"`
	Underfilled bool              `json:"underfilled"`
	Tickers     []string          `json:"tickers"`
	Excluded    map[string]string `json:"excluded,omitempty"`
	Warnings    []string          `json:"warnings,omitempty"`
}

// CreateRun handles POST /api/runs.
// Runs synchronously; a second request while one is in flight gets 409.
func (h *RunHandler) CreateRun(w http.ResponseWriter, r *http.Request) {
	if !h.running.CompareAndSwap(false, true) {
		respondError(w, http.StatusConflict, "a run is already in progress")
		return
	}
	defer h.running.Store(false)

	rec, err := h.rebuilder.Rebuild(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, contracts.ErrInsufficientData):
			status = http.StatusUnprocessableEntity
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			status = http.StatusServiceUnavailable
		}
		h.log.WithError(err).Error("Triggered run failed")
		respondError(w, status, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, RunResponse{
		RunID:       rec.RunID,
		Selected:    rec.Portfolio.Size(),
		TargetSize:  rec.Portfolio.TargetSize,
		Underfilled: rec.Portfolio.Underfilled,
		Tickers:     rec.Portfolio.Tickers(),
		Excluded:    rec.Excluded,
		Warnings:    rec.Warnings,
	})
}
