package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/sntprz/ai-assistant/internal/config"
	"github.com/sntprz/ai-assistant/internal/logging"
	"github.com/sntprz/ai-assistant/internal/server"
)

// errUnhealthy is returned when at least one check failed so the process
// exits non-zero.
var errUnhealthy = errors.New("diagnose: one or more checks failed")

// NewDiagnoseCmd constructs the `assistant diagnose` command, which resolves
// the configuration and probes every dependency the other commands need.
func NewDiagnoseCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Check configuration and connectivity to every dependency",
		Long: `Resolve the configuration, then ping the vector store, the embedding
provider and the embedding cache (when enabled), and validate the chat model
settings. Prints one line per check and exits non-zero when any fails.

Examples:
  assistant diagnose
  assistant diagnose --timeout 10s
  VECTOR_STORE=qdrant QDRANT_HOST=localhost assistant diagnose`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)
			out := cmd.OutOrStdout()

			s, err := config.FromEnv()
			if err != nil {
				fmt.Fprintf(out, "FAIL  config: %v\n", err)
				return errUnhealthy
			}
			fmt.Fprintln(out, "ok    config")

			d, err := openDeps(ctx, log, s, prometheus.NewRegistry())
			if err != nil {
				fmt.Fprintf(out, "FAIL  connect: %v\n", err)
				return errUnhealthy
			}
			defer d.close(log)

			healthy := runChecks(ctx, out, d.pingers, timeout)
			if err := s.Model.Validate(); err != nil {
				fmt.Fprintf(out, "FAIL  model: %v\n", err)
				healthy = false
			} else {
				fmt.Fprintf(out, "ok    model (%s %s)\n", s.Model.Backend, s.Model.ModelName())
			}

			if !healthy {
				return errUnhealthy
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Deadline for each connectivity check")

	return cmd
}

// runChecks pings each dependency under its own deadline and reports
// whether all of them answered.
func runChecks(ctx context.Context, out io.Writer, pingers []server.Pinger, timeout time.Duration) bool {
	healthy := true
	for _, p := range pingers {
		pctx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		err := p.Ping(pctx)
		cancel()
		if err != nil {
			fmt.Fprintf(out, "FAIL  %s: %v\n", p.Name(), err)
			healthy = false
			continue
		}
		fmt.Fprintf(out, "ok    %s (%s)\n", p.Name(), time.Since(start).Round(time.Millisecond))
	}
	return healthy
}
