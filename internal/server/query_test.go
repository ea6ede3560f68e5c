package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sntprz/ai-assistant/internal/answer"
	"github.com/sntprz/ai-assistant/internal/rag"
	"github.com/sntprz/ai-assistant/internal/vectorstore"
)

// fakeAnswerer records the arguments of its last call and returns a fixed
// result or error.
type fakeAnswerer struct {
	result *rag.QueryResult
	err    error

	gotQuery string
	gotTopK  int
	calls    int
}

func (f *fakeAnswerer) Answer(_ context.Context, query string, topK int) (*rag.QueryResult, error) {
	f.calls++
	f.gotQuery, f.gotTopK = query, topK
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer builds a Server with defaults applied and no dependencies.
func newTestServer() *Server {
	return newQueryTestServer(&fakeAnswerer{})
}

func newQueryTestServer(a Answerer) *Server {
	cfg := &Config{Logger: discardLogger()}
	applyDefaults(cfg)
	return &Server{
		answerer: a,
		cfg:      cfg,
		log:      cfg.Logger,
		metrics:  newServerMetrics(prometheus.NewRegistry()),
	}
}

func postQuery(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.handleQuery(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v (body %q)", err, w.Body.String())
	}
	return resp.Error
}

func TestHandleQuery_OK(t *testing.T) {
	t.Parallel()

	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	fa := &fakeAnswerer{result: &rag.QueryResult{
		Answer: "The handbook covers onboarding [1].",
		Sources: []rag.Passage{{
			DocID: "d1", ChunkID: "c1", Title: "handbook", Source: "user",
			Date: &date, Content: "Onboarding takes a week.", Score: 0.91,
		}},
		LatencyMS: 42,
	}}
	s := newQueryTestServer(fa)

	w := postQuery(t, s, `{"query":"What does the handbook cover?","top_k":3}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if fa.gotQuery != "What does the handbook cover?" || fa.gotTopK != 3 {
		t.Errorf("answerer called with (%q, %d)", fa.gotQuery, fa.gotTopK)
	}

	var body map[string]json.RawMessage
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"answer", "sources", "latency_ms"} {
		if _, ok := body[key]; !ok {
			t.Errorf("response missing %q", key)
		}
	}
	var sources []map[string]any
	if err := json.Unmarshal(body["sources"], &sources); err != nil {
		t.Fatalf("decode sources: %v", err)
	}
	if len(sources) != 1 || sources[0]["doc_id"] != "d1" || sources[0]["chunk_id"] != "c1" {
		t.Errorf("unexpected sources: %v", sources)
	}
}

func TestHandleQuery_DefaultTopK(t *testing.T) {
	t.Parallel()

	fa := &fakeAnswerer{result: &rag.QueryResult{Sources: []rag.Passage{}}}
	s := newQueryTestServer(fa)

	if w := postQuery(t, s, `{"query":"hello"}`); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if fa.gotTopK != 5 {
		t.Errorf("top_k = %d, want default 5", fa.gotTopK)
	}
}

func TestHandleQuery_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"invalid json", `not-json`, "invalid request body"},
		{"missing query", `{"top_k":3}`, "query is required"},
		{"empty query", `{"query":""}`, "query is required"},
		{"blank query", `{"query":"   "}`, "query is required"},
		{"top_k zero", `{"query":"q","top_k":0}`, "top_k must be between 1 and 50"},
		{"top_k negative", `{"query":"q","top_k":-1}`, "top_k must be between 1 and 50"},
		{"top_k above max", `{"query":"q","top_k":51}`, "top_k must be between 1 and 50"},
		{"top_k not a number", `{"query":"q","top_k":"five"}`, "invalid request body"},
		{"oversized body", `{"query":"` + strings.Repeat("a", maxQueryBody) + `"}`, "invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fa := &fakeAnswerer{}
			s := newQueryTestServer(fa)
			w := postQuery(t, s, tt.body)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			if got := decodeError(t, w); !strings.Contains(got, tt.wantMsg) {
				t.Errorf("error %q, want it to contain %q", got, tt.wantMsg)
			}
			if fa.calls != 0 {
				t.Errorf("answerer called %d times for an invalid request", fa.calls)
			}
		})
	}
}

func TestHandleQuery_TopKBoundaries(t *testing.T) {
	t.Parallel()

	for _, k := range []int{1, 50} {
		fa := &fakeAnswerer{result: &rag.QueryResult{Sources: []rag.Passage{}}}
		s := newQueryTestServer(fa)
		w := postQuery(t, s, fmt.Sprintf(`{"query":"q","top_k":%d}`, k))
		if w.Code != http.StatusOK {
			t.Errorf("top_k=%d: expected 200, got %d", k, w.Code)
		}
	}
}

func TestHandleQuery_ErrorStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		want    int
		wantMsg string
	}{
		{"invalid argument", rag.Errorf(rag.ErrInvalidArgument, "retrieve", "top_k must be between 1 and 10, got 20"), http.StatusBadRequest, "top_k"},
		{"embedding failure", rag.Wrap(rag.ErrEmbedding, "gemini embed", errors.New("HTTP 500: boom")), http.StatusBadGateway, "embedding failed"},
		{"store failure", rag.Wrap(rag.ErrStoreRead, "postgres search", errors.New("password authentication failed for user app")), http.StatusBadGateway, "store read failed"},
		{"generation failure", rag.Wrap(rag.ErrGeneration, "generate", errors.New("quota")), http.StatusBadGateway, "generation failed"},
		{"embedding timeout", rag.Wrap(rag.ErrEmbedding, "embed", context.DeadlineExceeded), http.StatusGatewayTimeout, "upstream timeout"},
		{"generation timeout", rag.Wrap(rag.ErrTimeout, "generate", context.DeadlineExceeded), http.StatusGatewayTimeout, "upstream timeout"},
		{"bare deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, "upstream timeout"},
		{"client went away", fmt.Errorf("retrieve: %w", context.Canceled), statusClientClosedRequest, "request cancelled"},
		{"cancelled mid-embed", rag.Wrap(rag.ErrEmbedding, "embed", context.Canceled), statusClientClosedRequest, "request cancelled"},
		{"unclassified", errors.New("nil pointer somewhere"), http.StatusInternalServerError, "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := newQueryTestServer(&fakeAnswerer{err: tt.err})
			w := postQuery(t, s, `{"query":"q"}`)

			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, w.Code)
			}
			msg := decodeError(t, w)
			if !strings.Contains(msg, tt.wantMsg) {
				t.Errorf("error %q, want it to contain %q", msg, tt.wantMsg)
			}
			if strings.Contains(msg, "password") {
				t.Errorf("upstream detail leaked to client: %q", msg)
			}
		})
	}
}

// TestRoutes drives the full handler tree: request ids, probes and method
// routing.
func TestRoutes(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	s, err := New(&fakeAnswerer{result: &rag.QueryResult{Sources: []rag.Passage{}}}, &Config{
		Logger:          discardLogger(),
		MetricsRegistry: reg,
		MetricsGatherer: reg,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.stopRL)
	h := s.Handler()

	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"query":"q"}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("/query: got %d, want 200", w.Code)
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Error("expected a generated X-Request-ID")
	}

	req = httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"query":"q"}`))
	req.Header.Set(requestIDHeader, "trace-123")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); got != "trace-123" {
		t.Errorf("X-Request-ID = %q, want the caller's id echoed", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("/api/health: got %d, want 200", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/query", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /query: got %d, want 405", w.Code)
	}
}

// chatStub is a BaseChatModel that answers with a fixed string.
type chatStub struct{ reply string }

func (c *chatStub) Generate(_ context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	return schema.AssistantMessage(c.reply, nil), nil
}

func (c *chatStub) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

// constEmbedder maps every text to the same unit vector.
type constEmbedder struct{}

func (constEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func TestHandleQuery_EndToEnd(t *testing.T) {
	t.Parallel()

	store := vectorstore.NewMemoryStore(2, rag.MaxTopK)
	_, err := store.Upsert(context.Background(), []rag.EmbeddedChunk{{
		Chunk:     rag.Chunk{ID: "c1", DocID: "d1", Title: "faq", Content: "Refunds take 5 days.", Source: "user"},
		Embedding: []float32{1, 0},
	}})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	retriever, err := rag.NewRetriever(constEmbedder{}, store, rag.RetrieverConfig{})
	if err != nil {
		t.Fatalf("retriever: %v", err)
	}
	composer, err := answer.New(retriever, &chatStub{reply: "  Five days [1].  "}, answer.Config{}, nil)
	if err != nil {
		t.Fatalf("composer: %v", err)
	}

	s := newQueryTestServer(composer)
	w := postQuery(t, s, `{"query":"How long do refunds take?","top_k":5}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var res rag.QueryResult
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Answer != "Five days [1]." {
		t.Errorf("answer = %q", res.Answer)
	}
	if len(res.Sources) != 1 || res.Sources[0].ChunkID != "c1" {
		t.Errorf("sources = %+v", res.Sources)
	}
	if res.LatencyMS < 0 {
		t.Errorf("latency_ms = %d", res.LatencyMS)
	}
}
