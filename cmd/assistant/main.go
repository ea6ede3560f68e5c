// Command assistant answers questions about a directory of documents.
// `assistant ingest` indexes the documents into a vector store; `assistant
// ask` and `assistant serve` answer questions grounded on them.
package main

import (
	"fmt"
	"os"

	"github.com/sntprz/ai-assistant/cmd/assistant/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
