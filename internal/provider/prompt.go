package provider

import (
	"encoding/json"

	core "github.com/switchboard-ai/switchboard/internal"
)

// BuildMessages returns the wire message list for one upstream call. When
// includeCodeContext is set and the conversation carries a codebase
// attachment, a system message describing it is prepended so code-aware
// tools see the project structure.
func BuildMessages(messages []core.Message, convo *core.Conversation, includeCodeContext bool) []core.Message {
	if !includeCodeContext || convo == nil || len(convo.CodebaseContext) == 0 {
		return messages
	}
	out := make([]core.Message, 0, len(messages)+1)
	out = append(out, core.Message{
		Role:    core.RoleSystem,
		Content: codeContextText(convo.CodebaseContext),
	})
	return append(out, messages...)
}

// codeContextText renders the opaque indexer attachment as a readable
// system prompt. encoding/json sorts map keys, so the output is stable.
func codeContextText(cc map[string]any) string {
	b, err := json.MarshalIndent(cc, "", "  ")
	if err != nil {
		return "Codebase context is attached to this conversation."
	}
	return "Codebase context for this conversation:\n" + string(b)
}
