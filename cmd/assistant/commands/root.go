// Package commands defines all Cobra CLI commands for the assistant binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/sntprz/ai-assistant/internal/audit"
	"github.com/sntprz/ai-assistant/internal/config"
	"github.com/sntprz/ai-assistant/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// envFile holds the --env-file flag value.
var envFile string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "assistant",
		Short: "Answer questions grounded on your own documents",
		Long: `assistant indexes a directory of documents (txt, md, json, jsonl, csv,
docx, pdf) into a vector store and answers natural-language questions using
only the retrieved passages, citing each one.

Vector store, embedding and chat providers are selected with environment
variables, a .env file, or a YAML config file (~/.assistant/config.yaml).
See 'assistant --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// YAML first so it outranks .env; neither overrides the shell.
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			if _, err := config.LoadDotEnv(envFile, log); err != nil {
				return err
			}

			// LOG_* may have come from a file layer.
			log = logging.New()
			cmd.SetContext(logging.WithLogger(cmd.Context(), log))

			audit.LogCommandStart(cmd.Context(), log, cmd.Name(), path)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.assistant/config.yaml)")
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to .env file (default: ./.env)")

	root.AddCommand(
		NewIngestCmd(),
		NewAskCmd(),
		NewServeCmd(),
		NewDiagnoseCmd(),
		NewVersionCmd(),
	)

	return root
}
