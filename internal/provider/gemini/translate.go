package gemini

import (
	"strings"

	"github.com/tidwall/gjson"

	core "github.com/switchboard-ai/switchboard/internal"
	"github.com/switchboard-ai/switchboard/internal/provider"
)

// geminiRequest is the generateContent request body.
type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

// buildRequest converts neutral messages to a generateContent request.
// System messages fold into systemInstruction; assistant maps to the
// "model" role.
func buildRequest(messages []core.Message, convo *core.Conversation) *geminiRequest {
	msgs := provider.BuildMessages(messages, convo, false)
	out := &geminiRequest{}

	var system []string
	for _, m := range msgs {
		switch m.Role {
		case core.RoleSystem:
			system = append(system, m.Content)
		case core.RoleUser:
			out.Contents = append(out.Contents, geminiContent{
				Role:  "user",
				Parts: []geminiPart{{Text: m.Content}},
			})
		case core.RoleAssistant:
			out.Contents = append(out.Contents, geminiContent{
				Role:  "model",
				Parts: []geminiPart{{Text: m.Content}},
			})
		}
	}
	if len(system) > 0 {
		out.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: strings.Join(system, "\n\n")}},
		}
	}
	return out
}

// parseResponse converts a generateContent JSON response to the neutral
// shape, joining the text parts of the first candidate.
func parseResponse(data []byte, model string) *core.Response {
	r := gjson.ParseBytes(data)

	var content strings.Builder
	r.Get("candidates.0.content.parts").ForEach(func(_, part gjson.Result) bool {
		content.WriteString(part.Get("text").String())
		return true
	})

	out := &core.Response{
		Content:  content.String(),
		Tool:     toolName,
		Metadata: core.ResponseMetadata{Model: model},
	}
	if u := r.Get("usageMetadata"); u.Exists() {
		outTokens := int(u.Get("candidatesTokenCount").Int())
		out.Metadata.Usage = &core.Usage{
			InputTokens:  int(u.Get("promptTokenCount").Int()),
			OutputTokens: &outTokens,
		}
	}
	return out
}
