package anthropic

import (
	"context"
	"fmt"
	"io"

	"github.com/tidwall/gjson"

	core "github.com/switchboard-ai/switchboard/internal"
	"github.com/switchboard-ai/switchboard/internal/provider/sseutil"
)

// streamState tracks the event state machine for Anthropic SSE streaming.
type streamState struct {
	inputTokens  int
	outputTokens int
}

// readStream reads Anthropic SSE events and emits neutral stream chunks:
// text deltas as they arrive, then usage and the Done sentinel on
// message_stop.
func readStream(ctx context.Context, body io.ReadCloser, ch chan<- core.StreamChunk) {
	defer close(ch)
	defer body.Close()

	var state streamState
	sc := sseutil.NewScanner(body)
	for {
		ev, ok := sc.Next()
		if !ok {
			break
		}
		if ev.Data == "" {
			continue
		}
		for _, c := range state.handleEvent(ev.Name, ev.Data) {
			if !sseutil.Deliver(ctx, ch, c) {
				return
			}
		}
	}
	if err := sc.Err(); err != nil {
		sseutil.Deliver(ctx, ch, core.StreamChunk{Err: fmt.Errorf("anthropic: read stream: %w", err)})
	}
}

// handleEvent processes a single Anthropic SSE event and returns zero or
// more neutral chunks.
func (s *streamState) handleEvent(event, data string) []core.StreamChunk {
	switch event {
	case "message_start":
		s.inputTokens = int(gjson.Get(data, "message.usage.input_tokens").Int())
		return nil
	case "content_block_delta":
		r := gjson.Parse(data)
		if r.Get("delta.type").String() != "text_delta" {
			return nil
		}
		text := r.Get("delta.text").String()
		if text == "" {
			return nil
		}
		return []core.StreamChunk{{Content: text}}
	case "message_delta":
		s.outputTokens = int(gjson.Get(data, "usage.output_tokens").Int())
		return nil
	case "message_stop":
		out := s.outputTokens
		return []core.StreamChunk{
			{Usage: &core.Usage{InputTokens: s.inputTokens, OutputTokens: &out}},
			{Done: true},
		}
	default:
		// ping, content_block_start, content_block_stop
		return nil
	}
}
