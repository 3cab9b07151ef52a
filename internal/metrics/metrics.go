package metrics

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tickhook/tickhook/internal/health"
)

var (
	// Scheduler metrics

	TimersArmed = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tickhook",
		Name:      "scheduler_timers_armed",
		Help:      "Number of schedules with an armed in-memory timer.",
	})

	FiringsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tickhook",
		Name:      "scheduler_firings_total",
		Help:      "Timer firings by outcome.",
	}, []string{"outcome"}) // fired, duplicate, inflight_skip, misfire_drop, window_closed

	// Executor metrics

	RunsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tickhook",
		Name:      "runs_in_flight",
		Help:      "Runs currently being executed.",
	})

	RunsCompletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tickhook",
		Name:      "runs_completed_total",
		Help:      "Runs finished, by outcome.",
	}, []string{"outcome"})

	AttemptDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tickhook",
		Name:      "attempt_duration_seconds",
		Help:      "Duration of individual HTTP attempts, by error class.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"class"})

	// HTTP metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tickhook",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tickhook",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		TimersArmed,
		FiringsTotal,
		RunsInFlight,
		RunsCompletedTotal,
		AttemptDuration,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

// NewServer serves /metrics plus the liveness/readiness probes on the
// operational port.
func NewServer(addr string, checker *health.Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, checker.Liveness(r.Context()))
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		result := checker.Readiness(r.Context())
		code := http.StatusOK
		if result.Status != "up" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, result)
	})
	return &http.Server{Addr: addr, Handler: mux}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
