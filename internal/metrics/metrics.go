package metrics

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dugout-kr/dugout/internal/health"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Gateway metrics

	APIRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dugout",
		Name:      "api_request_duration_seconds",
		Help:      "Latency of outgoing platform API calls.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	APIRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dugout",
		Name:      "api_requests_total",
		Help:      "Total outgoing platform API calls.",
	}, []string{"method", "path", "status"})

	AuthFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dugout",
		Name:      "auth_failures_total",
		Help:      "Total 401/403 responses that tore the session down.",
	})

	ValidationFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dugout",
		Name:      "validation_failures_total",
		Help:      "Total structured 400 validation responses.",
	})

	// Session metrics

	SessionAuthenticated = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dugout",
		Name:      "session_authenticated",
		Help:      "Whether a user is currently authenticated. 1 = yes.",
	})

	SessionOperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dugout",
		Name:      "session_operations_total",
		Help:      "Session operations by name and outcome.",
	}, []string{"operation", "outcome"})

	// Keepalive metrics

	KeepaliveChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dugout",
		Name:      "keepalive_checks_total",
		Help:      "Periodic session re-validations, by outcome.",
	}, []string{"outcome"})
)

func Register() {
	prometheus.MustRegister(
		APIRequestDuration,
		APIRequestsTotal,
		AuthFailuresTotal,
		ValidationFailuresTotal,
		SessionAuthenticated,
		SessionOperationsTotal,
		KeepaliveChecksTotal,
	)
}

// Readier is satisfied by *health.Checker.
type Readier interface {
	Readiness(ctx context.Context) health.HealthResult
}

// NewServer serves /metrics and /healthz for watch mode.
func NewServer(addr string, checker Readier) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		result := checker.Readiness(r.Context())
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(result)
	})
	return &http.Server{Addr: addr, Handler: mux}
}
