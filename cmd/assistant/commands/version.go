package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sntprz/ai-assistant/internal/version"
)

// NewVersionCmd constructs the `assistant version` subcommand. Release
// builds inject the values with -ldflags; local builds print "dev".
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the assistant version, git commit, and build date",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
