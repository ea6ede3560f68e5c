package embedder

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sntprz/ai-assistant/internal/logging"
	"github.com/sntprz/ai-assistant/internal/rag"
)

// Metrics holds the Prometheus collectors for embedding calls.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	durationSeconds *prometheus.HistogramVec
	textsTotal      *prometheus.CounterVec
}

// NewMetrics registers embedding metrics against reg. Use a fresh
// prometheus.Registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "embedding",
			Name:      "requests_total",
			Help:      "Embedding provider calls, partitioned by backend and outcome.",
		}, []string{"backend", "outcome"}),

		durationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "assistant",
			Subsystem: "embedding",
			Name:      "request_duration_seconds",
			Help:      "Latency of embedding provider calls.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"backend"}),

		textsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "embedding",
			Name:      "texts_total",
			Help:      "Number of texts sent for embedding.",
		}, []string{"backend"}),
	}
}

// Instrumented wraps an Embedder with metrics and debug logging.
type Instrumented struct {
	inner   rag.Embedder
	backend string
	metrics *Metrics
}

// NewInstrumented wraps inner. backend labels every metric.
func NewInstrumented(inner rag.Embedder, backend string, m *Metrics) *Instrumented {
	return &Instrumented{inner: inner, backend: backend, metrics: m}
}

// Embed delegates to the inner embedder and records the outcome.
func (i *Instrumented) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	start := time.Now()
	vecs, err := i.inner.Embed(ctx, texts)
	dur := time.Since(start)

	i.metrics.durationSeconds.WithLabelValues(i.backend).Observe(dur.Seconds())
	i.metrics.textsTotal.WithLabelValues(i.backend).Add(float64(len(texts)))

	log := logging.FromContext(ctx)
	if err != nil {
		i.metrics.requestsTotal.WithLabelValues(i.backend, outcomeOf(err)).Inc()
		log.Warn("embedding request failed",
			slog.String("backend", i.backend),
			slog.Int("batch_size", len(texts)),
			slog.Duration("duration", dur),
			slog.Any("error", err),
		)
		return nil, err
	}
	i.metrics.requestsTotal.WithLabelValues(i.backend, "ok").Inc()
	log.Debug("embedding request completed",
		slog.String("backend", i.backend),
		slog.Int("batch_size", len(texts)),
		slog.Duration("duration", dur),
	)
	return vecs, nil
}

// Name returns the backend label.
func (i *Instrumented) Name() string { return i.backend }

// Ping forwards to the inner embedder when it supports readiness checks.
func (i *Instrumented) Ping(ctx context.Context) error {
	if p, ok := i.inner.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, rag.ErrTimeout):
		return "timeout"
	case errors.Is(err, rag.ErrDimensionMismatch):
		return "dimension_mismatch"
	default:
		return "error"
	}
}
