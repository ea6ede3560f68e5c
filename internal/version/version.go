// Package version holds build-time version information for the assistant
// binary. The variables are populated at build time via -ldflags:
//
//	go build -ldflags="-X github.com/sntprz/ai-assistant/internal/version.Version=v0.3.0 \
//	                    -X github.com/sntprz/ai-assistant/internal/version.Commit=abc1234 \
//	                    -X github.com/sntprz/ai-assistant/internal/version.BuildDate=2026-01-01" \
//	    ./cmd/assistant
//
// Builds without ldflags report "dev".
package version

import "fmt"

// Version is the semantic version of the binary. Defaults to "dev".
var Version = "dev"

// Commit is the short git SHA the binary was built from.
var Commit = "unknown"

// BuildDate is the UTC build date.
var BuildDate = "unknown"

// String renders the version line printed by `assistant version`.
func String() string {
	return fmt.Sprintf("assistant %s (commit %s, built %s)", Version, Commit, BuildDate)
}
