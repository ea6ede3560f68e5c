package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/sntprz/ai-assistant/internal/config"
	"github.com/sntprz/ai-assistant/internal/logging"
	"github.com/sntprz/ai-assistant/internal/server"
	"github.com/sntprz/ai-assistant/internal/tracing"
)

// NewServeCmd constructs the `assistant serve` command, which exposes the
// query endpoint over HTTP.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP query server",
		Long: `Start the HTTP server on localhost.

Endpoints:
  POST /query        {"query": "...", "top_k": 5} -> {"answer", "sources", "latency_ms"}
  GET  /api/health   liveness
  GET  /api/ready    pings the vector store, the embedder and the cache
  GET  /metrics      Prometheus metrics

Examples:
  assistant serve
  assistant serve --port 9090
  VECTOR_STORE=qdrant assistant serve --host 0.0.0.0`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			log := logging.FromContext(ctx)

			s, err := config.FromEnv()
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			if cmd.Flags().Changed("host") {
				s.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				s.Server.Port = port
			}

			// Langfuse tracing is opt-in and a no-op when keys are absent.
			if flush, ok := tracing.Install(tracing.ConfigFromEnv()); ok {
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			d, err := openDeps(ctx, log, s, prometheus.DefaultRegisterer)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer d.close(log)

			composer, err := d.composer(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			srv, err := server.New(composer, &server.Config{
				Host:        s.Server.Host,
				Port:        s.Server.Port,
				Logger:      log,
				Pingers:     d.pingers,
				RateLimit:   s.Server.RateLimit,
				RateBurst:   s.Server.RateBurst,
				DefaultTopK: s.Retrieval.TopKDefault,
				MaxTopK:     s.Retrieval.TopKMax,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (overrides SERVER_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on (overrides SERVER_PORT)")

	return cmd
}
