package contextmgr

import (
	"strings"

	core "github.com/switchboard-ai/switchboard/internal"
)

// Token estimation uses a character-based heuristic (~4 chars per token
// for English), which is sufficient for window fitting and rate limiting.
// Can be replaced with tiktoken for exact counts if needed.
const charsPerToken = 4

// perMessageOverhead accounts for role markers and formatting.
const perMessageOverhead = 4

// EstimateTokens estimates the token count of a plain text string.
func EstimateTokens(s string) int {
	if len(s) == 0 {
		return 0
	}
	return (len(s) + charsPerToken - 1) / charsPerToken
}

// EstimateMessageTokens estimates the token cost of one message including
// its framing overhead.
func EstimateMessageTokens(m core.Message) int {
	return perMessageOverhead + EstimateTokens(m.Role) + EstimateTokens(m.Content)
}

// EstimateHistoryTokens estimates the token cost of a message list.
func EstimateHistoryTokens(messages []core.Message) int {
	total := 0
	for _, m := range messages {
		total += EstimateMessageTokens(m)
	}
	return total
}

// modelWindows maps model name prefixes to context window sizes.
var modelWindows = []struct {
	prefix string
	tokens int
}{
	{"claude", 200_000},
	{"gpt-4o", 128_000},
	{"gpt-4", 128_000},
	{"gemini", 1_000_000},
	{"sonar", 127_000},
	{"llama", 32_768},
}

// defaultWindow is the conservative fallback for unknown models.
const defaultWindow = 8192

// WindowFor returns the context window size for a model name.
func WindowFor(model string) int {
	for _, w := range modelWindows {
		if strings.HasPrefix(model, w.prefix) {
			return w.tokens
		}
	}
	return defaultWindow
}
