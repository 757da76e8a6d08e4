package sseutil

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"

	core "github.com/switchboard-ai/switchboard/internal"
)

// Deliver sends one chunk unless the consumer stopped reading. It
// reports false when ctx was cancelled before the send went through; a
// best-effort error chunk is queued so a reader that is still draining
// sees why the stream ended.
func Deliver(ctx context.Context, ch chan<- core.StreamChunk, c core.StreamChunk) bool {
	select {
	case ch <- c:
		return true
	case <-ctx.Done():
		select {
		case ch <- core.StreamChunk{Err: ctx.Err()}:
		default:
		}
		return false
	}
}

// ReadSSEStream reads an OpenAI-format SSE body and emits neutral stream
// chunks: delta text as it arrives, token usage when the upstream reports
// it, then the Done sentinel. The channel is always closed on return.
func ReadSSEStream(ctx context.Context, providerName string, resp *http.Response, ch chan<- core.StreamChunk) {
	defer close(ch)
	defer resp.Body.Close()

	sc := NewScanner(resp.Body)
	for {
		ev, ok := sc.Next()
		if !ok {
			break
		}
		if ev.Data == "" {
			continue
		}
		if ev.Data == "[DONE]" {
			Deliver(ctx, ch, core.StreamChunk{Done: true})
			return
		}

		chunk := core.StreamChunk{
			Content: gjson.Get(ev.Data, "choices.0.delta.content").String(),
		}
		if u := gjson.Get(ev.Data, "usage"); u.IsObject() {
			out := int(u.Get("completion_tokens").Int())
			chunk.Usage = &core.Usage{
				InputTokens:  int(u.Get("prompt_tokens").Int()),
				OutputTokens: &out,
			}
		}
		if chunk.Content == "" && chunk.Usage == nil {
			continue
		}
		if !Deliver(ctx, ch, chunk) {
			return
		}
	}
	if err := sc.Err(); err != nil {
		Deliver(ctx, ch, core.StreamChunk{Err: fmt.Errorf("%s: read stream: %w", providerName, err)})
		return
	}
	// Upstream closed without the [DONE] sentinel; still terminate cleanly.
	Deliver(ctx, ch, core.StreamChunk{Done: true})
}
