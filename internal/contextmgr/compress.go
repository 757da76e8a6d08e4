package contextmgr

import (
	"unicode/utf8"

	core "github.com/switchboard-ai/switchboard/internal"
)

const (
	// Messages longer than maxMessageChars are truncated in place.
	maxMessageChars = 2000
	// truncKeepChars is kept from each end of a truncated message.
	truncKeepChars = 1000

	truncMarker = "... [truncated] ..."
)

// Compress shrinks a message history without losing recent detail:
// consecutive duplicates (same role and content) collapse to one, and
// oversized messages keep only their head and tail. Duplicates are
// matched on the original content, before any truncation.
func Compress(messages []core.Message) []core.Message {
	out := make([]core.Message, 0, len(messages))
	var prev core.Message
	for i, m := range messages {
		if i > 0 && prev.Role == m.Role && prev.Content == m.Content {
			continue
		}
		prev = m
		if len(m.Content) > maxMessageChars {
			m.Content = truncate(m.Content)
		}
		out = append(out, m)
	}
	return out
}

// truncate keeps the head and tail of s around a marker. Cut points
// back up to the nearest rune boundary so multi-byte characters are
// never split.
func truncate(s string) string {
	head := truncKeepChars
	for head > 0 && !utf8.RuneStart(s[head]) {
		head--
	}
	tail := len(s) - truncKeepChars
	for tail < len(s) && !utf8.RuneStart(s[tail]) {
		tail++
	}
	return s[:head] + truncMarker + s[tail:]
}
