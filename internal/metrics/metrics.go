// Package metrics provides Prometheus instrumentation for the transaction
// engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TransactionsTotal counts processed transactions by type and outcome
	// (ok, rejected, ignored).
	TransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "txengine_transactions_total",
		Help: "Total number of transactions processed",
	}, []string{"type", "outcome"})

	// RejectionsTotal counts rejected transactions by reason.
	RejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "txengine_rejections_total",
		Help: "Transactions rejected, by reason",
	}, []string{"reason"})

	// CorruptRecordsTotal counts input records that could not be parsed.
	CorruptRecordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "txengine_corrupt_records_total",
		Help: "Input records that could not be parsed into a transaction",
	})

	// ActiveAccounts tracks the number of accounts created so far.
	ActiveAccounts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "txengine_active_accounts",
		Help: "Number of accounts in the ledger",
	})

	// LockedAccounts tracks accounts frozen by a chargeback.
	LockedAccounts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "txengine_locked_accounts",
		Help: "Number of locked accounts",
	})

	// ProcessingLatency tracks per-transaction processing time by type.
	ProcessingLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "txengine_processing_latency_seconds",
		Help:    "Transaction processing latency in seconds",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	}, []string{"type"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "txengine_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "txengine_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "txengine_http_request_duration_seconds",
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

		// Use the raw path for the label; the route surface is small and
		// fixed, so cardinality stays bounded.
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
