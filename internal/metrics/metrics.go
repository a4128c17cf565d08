// Package metrics provides Prometheus instrumentation for the exchange engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BetsPlaced counts accepted bets, partitioned by category and side.
	BetsPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exchange_bets_placed_total",
		Help: "Total number of accepted bets",
	}, []string{"category", "side"})

	// PlacementLatency tracks bet placement latency, admission included.
	PlacementLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "exchange_bet_placement_latency_seconds",
		Help:    "Bet placement latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"category"})

	// AdmissionRejections counts bets and balance changes refused by the
	// exposure check, partitioned by reason.
	AdmissionRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exchange_admission_rejections_total",
		Help: "Operations rejected by the exposure check",
	}, []string{"reason"})

	// StalePositionRetries counts ledger appends that lost a race and retried.
	StalePositionRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "exchange_stale_position_retries_total",
		Help: "Ledger appends retried after a concurrent append",
	})

	// SettlementRuns counts settlement runs by outcome.
	SettlementRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exchange_settlement_runs_total",
		Help: "Total settlement runs",
	}, []string{"outcome"})

	// SettlementDuration tracks the wall time of one settlement run.
	SettlementDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "exchange_settlement_duration_seconds",
		Help:    "Settlement run duration in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	// BetsSettled counts bets moved to a terminal status.
	BetsSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exchange_bets_settled_total",
		Help: "Bets settled, partitioned by category and status",
	}, []string{"category", "status"})

	// FeedBatchFailures counts results feed batches that failed.
	FeedBatchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exchange_feed_batch_failures_total",
		Help: "Results feed batches that failed",
	}, []string{"category"})

	// FeedCacheHits counts market results served from the cache.
	FeedCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "exchange_feed_cache_hits_total",
		Help: "Market results served from the Redis cache",
	})

	// LedgerInconsistencies counts pending bets found without a position.
	LedgerInconsistencies = promauto.NewCounter(prometheus.CounterOpts{
		Name: "exchange_ledger_inconsistencies_total",
		Help: "Pending bets skipped at settlement for lack of a ledger position",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "exchange_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exchange_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "exchange_http_request_duration_seconds",
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

		// Route pattern keeps user and event ids out of the label set.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
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

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
