package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder exposes pipeline metrics on its own registry.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	runsTotal       *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	underfilled     prometheus.Counter
	excludedTickers *prometheus.CounterVec
	frontierSamples *prometheus.CounterVec
	leakages        prometheus.Counter
	walkForward     *prometheus.GaugeVec
	httpRequests    *prometheus.CounterVec
}

// New creates a Prometheus metrics recorder
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "diversifier_runs_total",
				Help: "Pipeline runs by outcome",
			},
			[]string{"kind", "status"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "diversifier_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		underfilled: factory.NewCounter(prometheus.CounterOpts{
			Name: "diversifier_underfilled_portfolios_total",
			Help: "Selections that returned fewer members than the target size",
		}),
		excludedTickers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "diversifier_excluded_tickers_total",
				Help: "Tickers excluded per stage",
			},
			[]string{"stage"},
		),
		frontierSamples: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "diversifier_frontier_samples_total",
				Help: "Monte-Carlo samples by outcome",
			},
			[]string{"outcome"},
		),
		leakages: factory.NewCounter(prometheus.CounterOpts{
			Name: "diversifier_temporal_leakage_total",
			Help: "Reads past an as-of cutoff detected during selection",
		}),
		walkForward: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "diversifier_walkforward",
				Help: "Latest walk-forward aggregate statistics",
			},
			[]string{"stat"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "diversifier_http_requests_total",
				Help: "HTTP requests by route and status",
			},
			[]string{"route", "method", "status"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// RecordRun counts a finished run; kind is "pipeline" or "walkforward"
func (r *Recorder) RecordRun(kind string, success bool) {
	if r == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	r.runsTotal.WithLabelValues(kind, status).Inc()
}

// ObserveStage records how long a stage took
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordUnderfill counts a selection below target size
func (r *Recorder) RecordUnderfill() {
	if r == nil {
		return
	}
	r.underfilled.Inc()
}

// RecordExcluded counts tickers dropped by a stage
func (r *Recorder) RecordExcluded(stage string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.excludedTickers.WithLabelValues(stage).Add(float64(n))
}

// RecordFrontier counts sampled, degenerate and rejected samples
func (r *Recorder) RecordFrontier(total, degenerate, rejected int) {
	if r == nil {
		return
	}
	r.frontierSamples.WithLabelValues("sampled").Add(float64(total))
	r.frontierSamples.WithLabelValues("degenerate").Add(float64(degenerate))
	r.frontierSamples.WithLabelValues("rejected").Add(float64(rejected))
}

// RecordLeakage counts a temporal leakage violation
func (r *Recorder) RecordLeakage() {
	if r == nil {
		return
	}
	r.leakages.Inc()
}

// SetWalkForward publishes an aggregate statistic of the latest walk-forward run
func (r *Recorder) SetWalkForward(stat string, value float64) {
	if r == nil {
		return
	}
	r.walkForward.WithLabelValues(stat).Set(value)
}

// RecordHTTP counts an API request
func (r *Recorder) RecordHTTP(route, method string, status int) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(route, method, http.StatusText(status)).Inc()
}
