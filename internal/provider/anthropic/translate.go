package anthropic

import (
	"strings"

	"github.com/tidwall/gjson"

	core "github.com/switchboard-ai/switchboard/internal"
	"github.com/switchboard-ai/switchboard/internal/provider"
)

// maxOutputTokens is the max_tokens value sent with every request;
// the Messages API requires one.
const maxOutputTokens = 4096

// chatRequest is the Anthropic Messages API request body.
type chatRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []wireMsg `json:"messages"`
	Stream    bool      `json:"stream,omitempty"`
}

type wireMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// buildRequest converts neutral messages to a Messages API request.
// System messages fold into the top-level system field; the Messages API
// rejects them in the messages array.
func buildRequest(model string, messages []core.Message, convo *core.Conversation, stream bool) *chatRequest {
	msgs := provider.BuildMessages(messages, convo, true)
	out := &chatRequest{
		Model:     model,
		MaxTokens: maxOutputTokens,
		Stream:    stream,
	}

	var system []string
	for _, m := range msgs {
		switch m.Role {
		case core.RoleSystem:
			system = append(system, m.Content)
		case core.RoleUser, core.RoleAssistant:
			out.Messages = append(out.Messages, wireMsg{Role: m.Role, Content: m.Content})
		}
	}
	out.System = strings.Join(system, "\n\n")
	return out
}

// parseResponse converts a Messages API JSON response to the neutral shape,
// joining the text content blocks.
func parseResponse(data []byte) *core.Response {
	r := gjson.ParseBytes(data)

	var content strings.Builder
	r.Get("content").ForEach(func(_, block gjson.Result) bool {
		if block.Get("type").String() == "text" {
			content.WriteString(block.Get("text").String())
		}
		return true
	})

	out := &core.Response{
		Content: content.String(),
		Tool:    toolName,
		Metadata: core.ResponseMetadata{
			Model: r.Get("model").String(),
		},
	}
	if u := r.Get("usage"); u.Exists() {
		outTokens := int(u.Get("output_tokens").Int())
		out.Metadata.Usage = &core.Usage{
			InputTokens:  int(u.Get("input_tokens").Int()),
			OutputTokens: &outTokens,
		}
	}
	return out
}
