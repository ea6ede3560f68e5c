package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sntprz/ai-assistant/internal/logging"
	"github.com/sntprz/ai-assistant/internal/rag"
)

// maxQueryBody caps the POST /query request body.
const maxQueryBody = 64 << 10

// handleQuery handles POST /query. It validates the body, answers the
// question under QueryTimeout, and maps domain errors to status codes.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req queryRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryBody))
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	topK, err := s.validate(&req)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.QueryTimeout)
	defer cancel()

	s.metrics.queriesInFlight.Inc()
	res, err := s.answerer.Answer(ctx, req.Query, topK)
	s.metrics.queriesInFlight.Dec()
	if err != nil {
		status := statusFor(err)
		log.Warn("query failed", slog.Int("status", status), slog.Any("error", err))
		s.writeError(w, r, status, publicMessage(status, err))
		return
	}

	writeJSON(w, r, http.StatusOK, res)
}

// validate applies the request schema: a non-empty query and top_k in
// [1, MaxTopK], defaulting to DefaultTopK when omitted.
func (s *Server) validate(req *queryRequest) (int, error) {
	if strings.TrimSpace(req.Query) == "" {
		return 0, fmt.Errorf("query is required")
	}
	if req.TopK == nil {
		return s.cfg.DefaultTopK, nil
	}
	if k := *req.TopK; k < 1 || k > s.cfg.MaxTopK {
		return 0, fmt.Errorf("top_k must be between 1 and %d", s.cfg.MaxTopK)
	}
	return *req.TopK, nil
}

// statusClientClosedRequest is returned when the client went away before
// the answer was ready. net/http has no constant for it.
const statusClientClosedRequest = 499

// statusFor maps an answering error to an HTTP status. Timeouts are checked
// before upstream kinds because a timed-out embedding call also matches
// ErrEmbedding.
func statusFor(err error) int {
	switch {
	case errors.Is(err, rag.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	case errors.Is(err, rag.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, rag.ErrEmbedding),
		errors.Is(err, rag.ErrStoreRead),
		errors.Is(err, rag.ErrGeneration):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage returns the error text shown to clients. Validation errors
// are echoed; upstream failures are summarised so provider responses and
// connection strings never leak.
func publicMessage(status int, err error) string {
	var e *rag.Error
	switch {
	case status == http.StatusBadRequest:
		return err.Error()
	case status == http.StatusGatewayTimeout:
		return "upstream timeout"
	case status == statusClientClosedRequest:
		return "request cancelled"
	case errors.As(err, &e):
		return e.Kind.Error()
	default:
		return "internal error"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("response encode error", slog.Any("error", err))
	}
}
