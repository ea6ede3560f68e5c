package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// labelHandler is the "handler" label used to partition metrics by the
// logical endpoint name rather than the raw URL path.
const labelHandler = "handler"

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New so tests can inject a fresh
// prometheus.Registry without polluting the default one. Query outcomes by
// stage are counted by the answer composer.
type serverMetrics struct {
	// httpRequestsTotal counts requests by method, handler and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of each request.
	httpDurationSeconds *prometheus.HistogramVec

	// queriesInFlight is the number of /query requests being answered.
	queriesInFlight prometheus.Gauge

	// rateLimitedTotal counts requests rejected with 429.
	rateLimitedTotal prometheus.Counter

	// probeFailuresTotal counts failed readiness probes per dependency.
	probeFailuresTotal *prometheus.CounterVec
}

// newServerMetrics registers all server metrics against reg.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "assistant",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"method", labelHandler}),

		queriesInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "assistant",
			Subsystem: "http",
			Name:      "queries_in_flight",
			Help:      "Number of /query requests currently being answered.",
		}),

		rateLimitedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-IP rate limiter.",
		}),

		probeFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "ready",
			Name:      "probe_failures_total",
			Help:      "Failed readiness probes, partitioned by dependency.",
		}, []string{"dependency"}),
	}
}

// instrument records request count and latency for handler name.
func (s *Server) instrument(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rw, r)
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, name).Observe(time.Since(start).Seconds())
		s.metrics.httpRequestsTotal.WithLabelValues(r.Method, name, strconv.Itoa(rw.status)).Inc()
	})
}
