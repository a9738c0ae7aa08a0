package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/diversifier/internal/api/handlers"
	"github.com/wonny/diversifier/pkg/logger"
	"github.com/wonny/diversifier/pkg/metrics"
)

// Handlers groups the endpoint handlers; Runs may be nil to disable POST /api/runs
type Handlers struct {
	Portfolio   *handlers.PortfolioHandler
	WalkForward *handlers.WalkForwardHandler
	Runs        *handlers.RunHandler
}

// NewRouter creates and configures the HTTP router.
// limiter may be nil; recorder may be nil.
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(h Handlers, recorder *metrics.Recorder, limiter Limiter, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")
	if recorder != nil {
		r.Handle("/metrics", recorder.Handler()).Methods("GET")
	}

	api := r.PathPrefix("/api").Subrouter()

	// Portfolio endpoints
	api.HandleFunc("/portfolio", h.Portfolio.GetPortfolio).Methods("GET")
	api.HandleFunc("/portfolio/weights", h.Portfolio.GetWeights).Methods("GET")
	api.HandleFunc("/bench", h.Portfolio.GetBench).Methods("GET")
	api.HandleFunc("/correlations", h.Portfolio.GetCorrelations).Methods("GET")

	// Validation
	api.HandleFunc("/walkforward", h.WalkForward.GetReport).Methods("GET")

	if h.Runs != nil {
		api.HandleFunc("/runs", h.Runs.CreateRun).Methods("POST")
	}

	if limiter != nil {
		api.Use(rateLimitMiddleware(limiter, log))
	}

	// Apply middleware
	r.Use(recoveryMiddleware(log))
	r.Use(loggingMiddleware(recorder, log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "diversifier-api",
	})
}
