package contextmgr

import (
	"strings"
	"testing"

	core "github.com/switchboard-ai/switchboard/internal"
)

func msg(role, content string, ts int64) core.Message {
	return core.Message{Role: role, Content: content, Timestamp: ts}
}

func TestEstimateTokens(t *testing.T) {
	t.Parallel()

	if got := EstimateTokens(""); got != 0 {
		t.Errorf("empty = %d", got)
	}
	if got := EstimateTokens("abcd"); got != 1 {
		t.Errorf("4 chars = %d, want 1", got)
	}
	if got := EstimateTokens("abcde"); got != 2 {
		t.Errorf("5 chars = %d, want 2 (ceil)", got)
	}
}

func TestWindowFor(t *testing.T) {
	t.Parallel()

	if got := WindowFor("claude-sonnet-4-6"); got != 200_000 {
		t.Errorf("claude window = %d", got)
	}
	if got := WindowFor("mystery-model"); got != defaultWindow {
		t.Errorf("unknown model window = %d, want default", got)
	}
}

func TestFitWindow_KeepsSystemAndNewest(t *testing.T) {
	t.Parallel()

	// Each non-system message costs 4 overhead + 1 role + 25 content = 30
	// tokens. Budget of 100 fits the system message (~7) plus three of the
	// five user/assistant messages -- the newest three.
	content := strings.Repeat("x", 100)
	history := []core.Message{
		msg(core.RoleSystem, "sys", 1),
		msg(core.RoleUser, content, 2),
		msg(core.RoleAssistant, content, 3),
		msg(core.RoleUser, content, 4),
		msg(core.RoleAssistant, content, 5),
		msg(core.RoleUser, content, 6),
	}

	got := FitWindow(history, 110, 0)
	if len(got) != 4 {
		t.Fatalf("kept %d messages, want 4: %+v", len(got), got)
	}
	if got[0].Role != core.RoleSystem {
		t.Errorf("first kept = %q, system message must survive", got[0].Role)
	}
	if got[1].Timestamp != 4 || got[2].Timestamp != 5 || got[3].Timestamp != 6 {
		t.Errorf("kept wrong tail: %+v", got[1:])
	}
}

func TestFitWindow_ChronologicalOrder(t *testing.T) {
	t.Parallel()

	history := []core.Message{
		msg(core.RoleUser, "first", 1),
		msg(core.RoleSystem, "sys", 2),
		msg(core.RoleUser, "last", 3),
	}

	got := FitWindow(history, 1000, 0)
	if len(got) != 3 {
		t.Fatalf("kept %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp < got[i-1].Timestamp {
			t.Fatalf("not chronological: %+v", got)
		}
	}
}

func TestFitWindow_ReservedTokens(t *testing.T) {
	t.Parallel()

	history := []core.Message{msg(core.RoleUser, strings.Repeat("x", 100), 1)}

	if got := FitWindow(history, 30, 0); len(got) != 1 {
		t.Fatalf("message should fit without reservation: %v", got)
	}
	if got := FitWindow(history, 30, 10); len(got) != 0 {
		t.Fatalf("reservation must shrink the budget: %v", got)
	}
}

func TestFitWindow_EmptyAndZeroBudget(t *testing.T) {
	t.Parallel()

	if got := FitWindow(nil, 100, 0); got != nil {
		t.Errorf("nil history = %v", got)
	}
	history := []core.Message{msg(core.RoleUser, "hi", 1)}
	if got := FitWindow(history, 10, 10); got != nil {
		t.Errorf("zero budget = %v", got)
	}
}
