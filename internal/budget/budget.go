// Package budget provides token budget estimation and passage trimming for
// the answer composer. Because the composer supports multiple LLM backends
// with different tokenizers, this package uses a character-based heuristic:
// 1 token ≈ 4 characters (English prose and code).
package budget

import (
	"github.com/cloudwego/eino/schema"
)

const (
	charsPerToken = 4

	// DefaultMaxContextTokens is the prompt budget used when
	// MAX_CONTEXT_TOKENS is unset. It fits an 8k-context model with room
	// left for the answer.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += 4 // per-message framing
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// FitPassages returns how many leading passages fit alongside fixed within
// maxTokens. Passages are dropped from the end, so callers order them most
// relevant first. The first passage is always kept when there is one, even
// if it alone exceeds the budget; the model then sees at least the best
// evidence. A non-positive maxTokens disables trimming.
func FitPassages(fixed string, passages []string, maxTokens int) int {
	if maxTokens <= 0 {
		return len(passages)
	}
	total := Estimate(fixed)
	for i, p := range passages {
		total += Estimate(p)
		if total > maxTokens {
			return max(i, 1)
		}
	}
	return len(passages)
}
