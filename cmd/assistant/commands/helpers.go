package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sntprz/ai-assistant/internal/answer"
	"github.com/sntprz/ai-assistant/internal/config"
	"github.com/sntprz/ai-assistant/internal/embedcache"
	"github.com/sntprz/ai-assistant/internal/embedder"
	"github.com/sntprz/ai-assistant/internal/provider"
	"github.com/sntprz/ai-assistant/internal/rag"
	"github.com/sntprz/ai-assistant/internal/server"
	"github.com/sntprz/ai-assistant/internal/vectorstore"
)

// deps holds the clients shared by every command. Each is constructed once
// per process and released by close.
type deps struct {
	settings *config.Settings
	reg      prometheus.Registerer

	embedder rag.Embedder
	store    rag.VectorStore
	pingers  []server.Pinger

	closers []func() error
}

// openDeps builds the embedder chain (provider, metrics, optional Redis cache)
// and opens the vector store selected by s.
func openDeps(ctx context.Context, log *slog.Logger, s *config.Settings, reg prometheus.Registerer) (*deps, error) {
	d := &deps{settings: s, reg: reg}

	embedder.Warn(log, s.Embedding)
	base, err := embedder.New(ctx, s.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	inst := embedder.NewInstrumented(base, string(s.Embedding.Backend), embedder.NewMetrics(reg))
	d.embedder = inst
	d.pingers = append(d.pingers, inst)
	log.Info("embedder initialised",
		slog.String("backend", string(s.Embedding.Backend)),
		slog.String("model", s.Embedding.Model),
		slog.Int("dimensions", s.Embedding.Dimensions),
	)

	if s.Cache.RedisURL != "" {
		client, err := embedcache.Open(ctx, s.Cache.RedisURL)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, client.Close)
		counter := promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "embedding",
			Name:      "cache_lookups_total",
			Help:      "Embedding cache lookups, partitioned by result: hit or miss.",
		}, []string{"result"})
		namespace := fmt.Sprintf("%s/%s/%d", s.Embedding.Backend, s.Embedding.Model, s.Embedding.Dimensions)
		d.embedder = embedcache.New(inst, client, namespace,
			embedcache.WithTTL(s.Cache.TTL),
			embedcache.WithCounter(counter),
		)
		d.pingers = append(d.pingers, server.PingerFunc("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}))
		log.Info("embedding cache enabled", slog.Duration("ttl", s.Cache.TTL))
	}

	store, err := vectorstore.New(ctx, s.Store)
	if err != nil {
		d.close(log)
		return nil, fmt.Errorf("failed to open %s vector store: %w", s.Store.Backend, err)
	}
	d.store = store
	d.closers = append(d.closers, store.Close)
	d.pingers = append([]server.Pinger{store}, d.pingers...)
	log.Info("vector store ready", slog.String("backend", store.Name()))

	return d, nil
}

// composer builds the chat model and the answer composer on top of d.
func (d *deps) composer(ctx context.Context, log *slog.Logger) (*answer.Composer, error) {
	q := d.settings.Retrieval
	retriever, err := rag.NewRetriever(d.embedder, d.store, rag.RetrieverConfig{
		MaxTopK:       q.TopKMax,
		EmbedTimeout:  q.EmbedTimeout,
		SearchTimeout: q.StoreTimeout,
	})
	if err != nil {
		return nil, err
	}

	chat, err := provider.New(ctx, d.settings.Model)
	if err != nil {
		return nil, err
	}
	log.Info("chat model initialised",
		slog.String("provider", string(d.settings.Model.Backend)),
		slog.String("model", d.settings.Model.ModelName()),
	)

	return answer.New(retriever, chat, answer.Config{
		GenerateTimeout:  q.GenerateTimeout,
		MaxContextTokens: q.MaxContextTokens,
	}, answer.NewMetrics(d.reg))
}

// close releases every client in reverse order of opening.
func (d *deps) close(log *slog.Logger) {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		log.Warn("shutdown: failed to close clients", slog.Any("error", err))
	}
}
