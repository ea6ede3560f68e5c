package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sntprz/ai-assistant/internal/logging"
)

// probeTimeout bounds each dependency probe so /api/ready answers promptly
// when a dependency hangs.
const probeTimeout = 5 * time.Second

type readyCheck struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// readyResponse is the body of GET /api/ready. Checks keep the order in
// which the pingers were registered.
type readyResponse struct {
	Ready  bool         `json:"ready"`
	Checks []readyCheck `json:"checks"`
}

// handleReady probes every dependency concurrently and answers 200 when all
// of them respond, 503 otherwise.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	checks := make([]readyCheck, len(s.pingers))
	var g errgroup.Group
	for i, p := range s.pingers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
			defer cancel()
			start := time.Now()
			err := p.Ping(ctx)
			checks[i] = readyCheck{
				Name:      p.Name(),
				OK:        err == nil,
				LatencyMS: time.Since(start).Milliseconds(),
			}
			if err != nil {
				checks[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	resp := readyResponse{Ready: true, Checks: checks}
	for _, c := range checks {
		if c.OK {
			continue
		}
		resp.Ready = false
		s.metrics.probeFailuresTotal.WithLabelValues(c.Name).Inc()
		log.Warn("readiness probe failed",
			slog.String("dependency", c.Name),
			slog.String("error", c.Error),
			slog.Int64("latency_ms", c.LatencyMS),
		)
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, r, status, resp)
}

// handleHealth is the liveness probe. It never touches a dependency.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}
