// Package telemetry provides Prometheus instrumentation for the advisor engine.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ReportsGenerated counts generated investment reports, partitioned
	// by kind (message or summary).
	ReportsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "advisor_reports_generated_total",
		Help: "Total number of investment reports generated",
	}, []string{"kind"})

	// ReportTransitions counts report status transitions.
	ReportTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "advisor_report_transitions_total",
		Help: "Total report status transitions",
	}, []string{"to"})

	// TradeActions counts trade actions by type and outcome
	// (applied, skipped, rejected, failed).
	TradeActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "advisor_trade_actions_total",
		Help: "Total trade actions processed",
	}, []string{"type", "outcome"})

	// AIRequests counts AI chat requests by channel and status.
	AIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "advisor_ai_requests_total",
		Help: "Total AI chat requests",
	}, []string{"channel", "status"})

	// AIRequestDuration tracks AI chat latency by channel.
	AIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "advisor_ai_request_duration_seconds",
		Help:    "AI chat request duration in seconds",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 180},
	}, []string{"channel"})

	// CollectionRows counts rows persisted by collection runs.
	CollectionRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "advisor_collection_rows_total",
		Help: "Rows persisted by collection runs",
	}, []string{"kind"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "advisor_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "advisor_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "advisor_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
