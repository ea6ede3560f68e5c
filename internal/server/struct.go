package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sntprz/ai-assistant/internal/rag"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// exceed QueryTimeout.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// QueryTimeout bounds one POST /query from decode to response
	// (default: 90s).
	QueryTimeout time.Duration
	// DefaultTopK is used when a query omits top_k (default: 5).
	DefaultTopK int
	// MaxTopK is the largest top_k a query may request (default: 50).
	MaxTopK int
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on
	// POST /query (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// MetricsRegistry receives the server metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// Answerer answers one question from the indexed documents.
// *answer.Composer satisfies it; tests inject a fake.
type Answerer interface {
	Answer(ctx context.Context, query string, topK int) (*rag.QueryResult, error)
}

// Server is the HTTP server that exposes the answer composer.
type Server struct {
	// answerer handles POST /query.
	answerer Answerer
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors owned by the server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// queryRequest is the JSON body for POST /query.
type queryRequest struct {
	// Query is the natural-language question.
	Query string `json:"query"`
	// TopK is the number of passages to retrieve. Nil selects the default.
	TopK *int `json:"top_k"`
}

// errorResponse is the JSON body of every non-2xx response from /query.
type errorResponse struct {
	Error string `json:"error"`
}
