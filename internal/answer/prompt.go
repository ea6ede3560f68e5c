// Package answer composes grounded answers: it retrieves passages for a
// question, assembles them into a numbered prompt, asks the chat model once,
// and returns the answer together with the passages it was grounded on.
package answer

import (
	"fmt"
	"strings"

	"github.com/sntprz/ai-assistant/internal/rag"
)

// NoInformationAnswer is returned, without calling the model, when retrieval
// finds no passages.
const NoInformationAnswer = "I don't know. No relevant passages were found in the indexed documents."

const (
	promptHeader = "You are a helpful assistant. Answer concisely using ONLY the provided passages.\n" +
		"Cite passage indices like [1], [2] if helpful. If the answer cannot be found, say you don't know.\n\n"
	promptFooter = "\nAnswer:"
)

// BuildPrompt renders the question and passages into the model prompt.
// Passages are numbered from 1 in the order given, which is the order the
// answer's citations refer to.
func BuildPrompt(question string, passages []rag.Passage) string {
	var b strings.Builder
	b.WriteString(promptHeader)
	b.WriteString(questionBlock(question))
	for i, p := range passages {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(passageBlock(i+1, p))
	}
	b.WriteString(promptFooter)
	return b.String()
}

func questionBlock(question string) string {
	return "Question: " + question + "\n\nPassages:\n"
}

func passageBlock(n int, p rag.Passage) string {
	return fmt.Sprintf("[%d] (doc:%s, title:%s, source:%s, score:%.4f)\n%s\n",
		n, p.DocID, p.Title, p.Source, p.Score, p.Content)
}
