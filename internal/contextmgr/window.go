package contextmgr

import (
	"slices"

	core "github.com/switchboard-ai/switchboard/internal"
)

// FitWindow selects the messages to send upstream for a model window of
// maxTokens, keeping reservedTokens free for the reply. System messages
// are always kept (oldest first); the remaining budget goes to the most
// recent non-system messages. The result is in chronological order.
func FitWindow(messages []core.Message, maxTokens, reservedTokens int) []core.Message {
	budget := maxTokens - reservedTokens
	if budget <= 0 || len(messages) == 0 {
		return nil
	}

	type indexed struct {
		idx int
		msg core.Message
	}

	var kept []indexed
	for i, m := range messages {
		if m.Role != core.RoleSystem {
			continue
		}
		cost := EstimateMessageTokens(m)
		if cost > budget {
			continue
		}
		budget -= cost
		kept = append(kept, indexed{idx: i, msg: m})
	}

	// Newest non-system messages first until the budget runs out.
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role == core.RoleSystem {
			continue
		}
		cost := EstimateMessageTokens(m)
		if cost > budget {
			break
		}
		budget -= cost
		kept = append(kept, indexed{idx: i, msg: m})
	}

	// Back to chronological order for the upstream call.
	slices.SortFunc(kept, func(a, b indexed) int { return a.idx - b.idx })

	out := make([]core.Message, len(kept))
	for i, k := range kept {
		out[i] = k.msg
	}
	return out
}
