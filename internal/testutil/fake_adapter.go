// Package testutil provides configurable test fakes for switchboard
// interfaces.
package testutil

import (
	"context"

	core "github.com/switchboard-ai/switchboard/internal"
)

// FakeAdapter is a configurable core.Adapter for testing.
type FakeAdapter struct {
	Tool      string
	Caps      core.Capabilities
	Available bool
	ChatFn    func(ctx context.Context, msgs []core.Message, convo *core.Conversation) (*core.Response, error)
	StreamFn  func(ctx context.Context, msgs []core.Message, convo *core.Conversation) (<-chan core.StreamChunk, error)
}

// Name returns the configured tool name.
func (f *FakeAdapter) Name() string { return f.Tool }

// Capabilities returns the configured descriptor, defaulting to a
// streaming-capable chat adapter with an 8192-token window.
func (f *FakeAdapter) Capabilities() core.Capabilities {
	if f.Caps.MaxContextTokens != 0 {
		return f.Caps
	}
	return core.Capabilities{
		Supported:         []core.Capability{core.CapChat, core.CapStreaming},
		MaxContextTokens:  8192,
		SupportsStreaming: true,
	}
}

// IsAvailable reports the configured availability.
func (f *FakeAdapter) IsAvailable(context.Context) bool { return f.Available }

// Chat delegates to ChatFn or returns a canned response.
func (f *FakeAdapter) Chat(ctx context.Context, msgs []core.Message, convo *core.Conversation) (*core.Response, error) {
	if f.ChatFn != nil {
		return f.ChatFn(ctx, msgs, convo)
	}
	return &core.Response{Content: "fake response", Tool: f.Tool}, nil
}

// StreamChat delegates to StreamFn or returns a pre-loaded stream.
func (f *FakeAdapter) StreamChat(ctx context.Context, msgs []core.Message, convo *core.Conversation) (<-chan core.StreamChunk, error) {
	if f.StreamFn != nil {
		return f.StreamFn(ctx, msgs, convo)
	}
	return FakeStreamChan(core.StreamChunk{Content: "fake response"}), nil
}

// FakeStreamChan returns a closed channel pre-loaded with the given chunks
// followed by a Done sentinel.
func FakeStreamChan(chunks ...core.StreamChunk) <-chan core.StreamChunk {
	ch := make(chan core.StreamChunk, len(chunks)+1)
	for _, c := range chunks {
		ch <- c
	}
	ch <- core.StreamChunk{Done: true}
	close(ch)
	return ch
}
