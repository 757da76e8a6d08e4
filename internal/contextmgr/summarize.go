package contextmgr

import (
	"strings"

	core "github.com/switchboard-ai/switchboard/internal"
)

const (
	// Histories longer than summarizeThreshold messages get their oldest
	// portion folded into one synthetic summary message.
	summarizeThreshold = 50
	// summarizeFraction of the history (oldest part) is summarized away.
	summarizeFraction = 0.8
)

// Keyword-bearing sentences survive summarization verbatim.
var keepKeywords = []string{"decided", "decision", "important", "note"}

// Summarize folds the oldest 80% of an oversized history into a single
// system message, keeping the recent tail intact. Histories at or under
// the threshold are returned unchanged.
func Summarize(messages []core.Message) []core.Message {
	if len(messages) <= summarizeThreshold {
		return messages
	}

	cut := int(float64(len(messages)) * summarizeFraction)
	old, recent := messages[:cut], messages[cut:]

	summary := core.Message{
		Role:      core.RoleSystem,
		Content:   summarizeText(old),
		Timestamp: old[0].Timestamp,
	}

	out := make([]core.Message, 0, len(recent)+1)
	out = append(out, summary)
	return append(out, recent...)
}

// summarizeText condenses messages to their load-bearing lines: code
// blocks collapse to a role marker, and only sentences carrying decision
// keywords survive.
func summarizeText(messages []core.Message) string {
	var lines []string
	for _, m := range messages {
		if strings.Contains(m.Content, "```") {
			lines = append(lines, "[Code discussion: "+m.Role+"]")
			continue
		}
		for _, sentence := range strings.Split(m.Content, ". ") {
			if hasKeyword(sentence) {
				lines = append(lines, strings.TrimSpace(sentence))
			}
		}
	}
	if len(lines) == 0 {
		return "Summary of earlier conversation: no key decisions recorded."
	}
	return "Summary of earlier conversation:\n" + strings.Join(lines, "\n")
}

func hasKeyword(sentence string) bool {
	s := strings.ToLower(sentence)
	for _, k := range keepKeywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
