package gemini

import (
	"context"
	"fmt"
	"io"

	"github.com/tidwall/gjson"

	core "github.com/switchboard-ai/switchboard/internal"
	"github.com/switchboard-ai/switchboard/internal/provider/sseutil"
)

// readStream reads the SSE variant of streamGenerateContent. Each data
// line is a complete generateContent payload; usageMetadata grows as the
// stream progresses, so the last observation wins. Gemini has no end
// sentinel -- the stream simply closes.
func readStream(ctx context.Context, body io.ReadCloser, ch chan<- core.StreamChunk) {
	defer close(ch)
	defer body.Close()

	var usage *core.Usage
	sc := sseutil.NewScanner(body)
	for {
		ev, ok := sc.Next()
		if !ok {
			break
		}
		if ev.Data == "" {
			continue
		}

		r := gjson.Parse(ev.Data)
		var text string
		r.Get("candidates.0.content.parts").ForEach(func(_, part gjson.Result) bool {
			text += part.Get("text").String()
			return true
		})
		if u := r.Get("usageMetadata"); u.Exists() {
			outTokens := int(u.Get("candidatesTokenCount").Int())
			usage = &core.Usage{
				InputTokens:  int(u.Get("promptTokenCount").Int()),
				OutputTokens: &outTokens,
			}
		}
		if text == "" {
			continue
		}
		if !sseutil.Deliver(ctx, ch, core.StreamChunk{Content: text}) {
			return
		}
	}
	if err := sc.Err(); err != nil {
		sseutil.Deliver(ctx, ch, core.StreamChunk{Err: fmt.Errorf("gemini: read stream: %w", err)})
		return
	}
	if usage != nil {
		if !sseutil.Deliver(ctx, ch, core.StreamChunk{Usage: usage}) {
			return
		}
	}
	sseutil.Deliver(ctx, ch, core.StreamChunk{Done: true})
}
