package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sntprz/ai-assistant/internal/budget"
	"github.com/sntprz/ai-assistant/internal/logging"
	"github.com/sntprz/ai-assistant/internal/rag"
)

// Stage names a step of the query path.
type Stage string

const (
	StageValidation Stage = "validation"
	StageEmbedding  Stage = "embedding"
	StageSearching  Stage = "searching"
	StageGenerating Stage = "generating"

	// StageCancelled marks a query the caller abandoned. It is not counted
	// as a stage failure.
	StageCancelled Stage = "cancelled"
)

// FailedStage reports which stage produced err.
func FailedStage(err error) Stage {
	switch {
	case errors.Is(err, context.Canceled):
		return StageCancelled
	case errors.Is(err, rag.ErrInvalidArgument):
		return StageValidation
	case errors.Is(err, rag.ErrEmbedding):
		return StageEmbedding
	case errors.Is(err, rag.ErrStoreRead):
		return StageSearching
	case errors.Is(err, rag.ErrGeneration):
		return StageGenerating
	}
	// A deadline caught between calls carries no stage of its own.
	return StageSearching
}

// Config tunes a Composer.
type Config struct {
	// GenerateTimeout bounds the model call. Zero means no bound beyond
	// the caller's context.
	GenerateTimeout time.Duration

	// MaxContextTokens is the prompt budget. Lowest-ranked passages are
	// dropped until the prompt fits. Zero disables trimming.
	MaxContextTokens int
}

// Metrics counts queries by outcome and failures by stage.
type Metrics struct {
	queries  *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration prometheus.Histogram
	trimmed  prometheus.Counter
}

// NewMetrics registers the composer metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		queries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "query",
			Name:      "total",
			Help:      "Queries answered, partitioned by outcome: ok, no_passages, cancelled or error.",
		}, []string{"outcome"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "query",
			Name:      "stage_failures_total",
			Help:      "Failed queries, partitioned by the stage that failed.",
		}, []string{"stage"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "assistant",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Latency from retrieval start to generation end.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		trimmed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "query",
			Name:      "passages_trimmed_total",
			Help:      "Passages dropped to fit the prompt budget.",
		}),
	}
}

// Composer answers questions from retrieved passages.
type Composer struct {
	retriever rag.Retriever
	chat      model.BaseChatModel
	cfg       Config
	metrics   *Metrics
}

// New constructs a Composer. m may be nil.
func New(retriever rag.Retriever, chat model.BaseChatModel, cfg Config, m *Metrics) (*Composer, error) {
	if retriever == nil {
		return nil, fmt.Errorf("answer: retriever must not be nil")
	}
	if chat == nil {
		return nil, fmt.Errorf("answer: chat model must not be nil")
	}
	return &Composer{retriever: retriever, chat: chat, cfg: cfg, metrics: m}, nil
}

// Answer retrieves up to topK passages for query, asks the model exactly
// once, and returns the answer with the passages that were in the prompt.
// No partial result is returned on failure.
func (c *Composer) Answer(ctx context.Context, query string, topK int) (*rag.QueryResult, error) {
	start := time.Now()
	log := logging.FromContext(ctx)

	res, err := c.answer(ctx, query, topK)
	elapsed := time.Since(start)
	if err != nil {
		stage := FailedStage(err)
		if stage == StageCancelled {
			log.Info("answer: query cancelled", slog.Duration("elapsed", elapsed))
			c.observe("cancelled", "", elapsed)
			return nil, err
		}
		log.Error("answer: query failed",
			slog.String("stage", string(stage)),
			slog.Duration("elapsed", elapsed),
			slog.Any("error", err),
		)
		c.observe("error", stage, elapsed)
		return nil, err
	}

	res.LatencyMS = elapsed.Milliseconds()
	outcome := "ok"
	if len(res.Sources) == 0 {
		outcome = "no_passages"
	}
	c.observe(outcome, "", elapsed)
	log.Info("answer: query answered",
		slog.Int("top_k", topK),
		slog.Int("sources", len(res.Sources)),
		slog.Int64("latency_ms", res.LatencyMS),
	)
	return res, nil
}

func (c *Composer) answer(ctx context.Context, query string, topK int) (*rag.QueryResult, error) {
	log := logging.FromContext(ctx)

	log.Debug("answer: retrieving", slog.String("stage", string(StageEmbedding)))
	passages, err := c.retriever.Retrieve(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	if len(passages) == 0 {
		return &rag.QueryResult{Answer: NoInformationAnswer, Sources: []rag.Passage{}}, nil
	}

	passages = c.fit(ctx, query, passages)
	prompt := BuildPrompt(query, passages)
	msgs := []*schema.Message{schema.UserMessage(prompt)}

	if err := ctx.Err(); err != nil {
		return nil, rag.ContextError("generate", err)
	}
	log.Debug("answer: generating",
		slog.String("stage", string(StageGenerating)),
		slog.Int("passages", len(passages)),
		slog.Int("prompt_tokens_est", budget.EstimateMessages(msgs)),
	)

	gctx, cancel := withOptionalTimeout(ctx, c.cfg.GenerateTimeout)
	defer cancel()
	out, err := c.chat.Generate(gctx, msgs)
	if err != nil {
		return nil, rag.Wrap(rag.ErrGeneration, "generate", err)
	}
	if out == nil {
		return nil, rag.Errorf(rag.ErrGeneration, "generate", "model returned no message")
	}

	return &rag.QueryResult{
		Answer:  strings.TrimSpace(out.Content),
		Sources: passages,
	}, nil
}

// fit drops the lowest-ranked passages until the prompt fits the budget.
func (c *Composer) fit(ctx context.Context, query string, passages []rag.Passage) []rag.Passage {
	blocks := make([]string, len(passages))
	for i, p := range passages {
		blocks[i] = passageBlock(i+1, p)
	}
	fixed := promptHeader + questionBlock(query) + promptFooter
	n := budget.FitPassages(fixed, blocks, c.cfg.MaxContextTokens)
	if n < len(passages) {
		logging.FromContext(ctx).Debug("answer: trimmed passages to fit budget",
			slog.Int("kept", n), slog.Int("dropped", len(passages)-n))
		if c.metrics != nil {
			c.metrics.trimmed.Add(float64(len(passages) - n))
		}
	}
	return passages[:n]
}

func (c *Composer) observe(outcome string, stage Stage, elapsed time.Duration) {
	if c.metrics == nil {
		return
	}
	c.metrics.queries.WithLabelValues(outcome).Inc()
	c.metrics.duration.Observe(elapsed.Seconds())
	if stage != "" {
		c.metrics.failures.WithLabelValues(string(stage)).Inc()
	}
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
