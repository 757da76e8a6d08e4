package contextmgr

import (
	"fmt"
	"strings"
	"testing"

	core "github.com/switchboard-ai/switchboard/internal"
)

func longHistory(n int) []core.Message {
	out := make([]core.Message, n)
	for i := range n {
		role := core.RoleUser
		if i%2 == 1 {
			role = core.RoleAssistant
		}
		out[i] = msg(role, fmt.Sprintf("message number %d", i), int64(i+1))
	}
	return out
}

func TestSummarize_UnderThresholdUnchanged(t *testing.T) {
	t.Parallel()

	history := longHistory(summarizeThreshold)
	if got := Summarize(history); len(got) != len(history) {
		t.Fatalf("history at threshold must pass through, got %d", len(got))
	}
}

func TestSummarize_FoldsOldestPortion(t *testing.T) {
	t.Parallel()

	history := longHistory(100)
	history[3].Content = "We decided to use sqlite for storage"
	history[7].Content = "Here is the patch:\n```go\nfunc main() {}\n```"

	got := Summarize(history)
	// Oldest 80 fold into one summary; 20 recent survive.
	if len(got) != 21 {
		t.Fatalf("len = %d, want 21", len(got))
	}
	summary := got[0]
	if summary.Role != core.RoleSystem {
		t.Errorf("summary role = %q", summary.Role)
	}
	if summary.Timestamp != history[0].Timestamp {
		t.Errorf("summary timestamp = %d, want oldest", summary.Timestamp)
	}
	if !strings.Contains(summary.Content, "decided to use sqlite") {
		t.Error("decision sentences must survive summarization")
	}
	if !strings.Contains(summary.Content, "[Code discussion: assistant]") {
		t.Errorf("code blocks must collapse to a role marker:\n%s", summary.Content)
	}
	if got[1].Content != history[80].Content {
		t.Error("recent tail displaced")
	}
}

func TestSummarize_NoKeyDecisions(t *testing.T) {
	t.Parallel()

	got := Summarize(longHistory(60))
	if !strings.Contains(got[0].Content, "no key decisions") {
		t.Errorf("summary = %q", got[0].Content)
	}
}
