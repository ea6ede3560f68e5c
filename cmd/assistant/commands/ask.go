package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/sntprz/ai-assistant/internal/config"
	"github.com/sntprz/ai-assistant/internal/logging"
	"github.com/sntprz/ai-assistant/internal/rag"
	"github.com/sntprz/ai-assistant/internal/server"
	"github.com/sntprz/ai-assistant/internal/tracing"
)

// NewAskCmd constructs the `assistant ask` command, which answers a single
// question from the indexed documents and prints the cited sources.
func NewAskCmd() *cobra.Command {
	var topK int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question from the indexed documents",
		Long: `Retrieve the passages most similar to the question, ask the chat model to
answer using only those passages, and print the answer with its sources.

When the passages do not contain the answer the model is instructed to say
so rather than guess.

Examples:
  assistant ask "what is our refund policy?"
  assistant ask --top-k 10 "who owns the billing service?"
  assistant ask --json "when was the last outage?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			s, err := config.FromEnv()
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			if !cmd.Flags().Changed("top-k") {
				topK = s.Retrieval.TopKDefault
			}
			// Reject before any dependency is dialled.
			if err := checkTopK(topK, s.Retrieval.TopKMax); err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			if flush, ok := tracing.Install(tracing.ConfigFromEnv()); ok {
				defer flush()
			}

			d, err := openDeps(ctx, log, s, prometheus.NewRegistry())
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer d.close(log)

			if err := server.NewMultiPinger(d.pingers...).Ping(ctx); err != nil {
				return fmt.Errorf("ask: dependency check failed: %w", err)
			}

			composer, err := d.composer(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			res, err := composer.Answer(ctx, strings.Join(args, " "), topK)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			printAnswer(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 5, "Number of passages to retrieve (1-50)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the answer, sources and latency as JSON")

	return cmd
}

func checkTopK(topK, maxTopK int) error {
	if topK < 1 || topK > maxTopK {
		return rag.Errorf(rag.ErrInvalidArgument, "ask", "--top-k must be between 1 and %d, got %d", maxTopK, topK)
	}
	return nil
}

// printAnswer renders res as the answer followed by a numbered source list
// whose numbers match the [n] citations in the answer.
func printAnswer(w io.Writer, res *rag.QueryResult) {
	fmt.Fprintln(w, strings.TrimSpace(res.Answer))
	if len(res.Sources) == 0 {
		return
	}
	fmt.Fprintln(w, "\nSources:")
	for i, p := range res.Sources {
		fmt.Fprintf(w, "  [%d] %s (%s, score %.3f)\n", i+1, p.Title, p.Source, p.Score)
	}
}
