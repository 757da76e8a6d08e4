package provider

import (
	"context"
	"errors"
	"io"
	"net/http"
	"slices"
	"strings"
	"testing"

	core "github.com/switchboard-ai/switchboard/internal"
)

type fakeAdapter struct {
	name string
}

func (f *fakeAdapter) Name() string                    { return f.name }
func (f *fakeAdapter) Capabilities() core.Capabilities { return core.Capabilities{} }
func (f *fakeAdapter) IsAvailable(context.Context) bool { return true }
func (f *fakeAdapter) Chat(context.Context, []core.Message, *core.Conversation) (*core.Response, error) {
	return &core.Response{Tool: f.name}, nil
}
func (f *fakeAdapter) StreamChat(context.Context, []core.Message, *core.Conversation) (<-chan core.StreamChunk, error) {
	ch := make(chan core.StreamChunk)
	close(ch)
	return ch, nil
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(&fakeAdapter{name: "gpt"})
	r.Register(&fakeAdapter{name: "claude"})

	if _, ok := r.Get("claude"); !ok {
		t.Fatal("claude not found")
	}
	if _, ok := r.Get("missing"); ok {
		t.Fatal("missing tool should not resolve")
	}
	if got := r.List(); !slices.Equal(got, []string{"claude", "gpt"}) {
		t.Errorf("List() = %v, want sorted names", got)
	}
	if all := r.All(); len(all) != 2 || all[0].Name() != "claude" {
		t.Errorf("All() = %v adapters, want 2 sorted by name", len(all))
	}
}

func TestRegistry_ReplaceSameName(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	first := &fakeAdapter{name: "gpt"}
	second := &fakeAdapter{name: "gpt"}
	r.Register(first)
	r.Register(second)

	got, _ := r.Get("gpt")
	if got != core.Adapter(second) {
		t.Error("re-registering a name must replace the adapter")
	}
}

func TestParseAPIError_Taxonomy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, core.ErrUpstreamRate},
		{http.StatusInternalServerError, core.ErrUpstream},
		{http.StatusBadGateway, core.ErrUpstream},
		{http.StatusBadRequest, core.ErrProtocol},
		{http.StatusUnauthorized, core.ErrProtocol},
	}
	for _, tt := range tests {
		resp := &http.Response{
			StatusCode: tt.status,
			Body:       io.NopCloser(strings.NewReader(`{"error":"boom"}`)),
		}
		err := ParseAPIError("test", resp)
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: err = %v, want %v", tt.status, err, tt.want)
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.HTTPStatus() != tt.status {
			t.Errorf("status %d: APIError not preserved in chain", tt.status)
		}
	}
}

func TestBuildMessages_PrependsCodeContext(t *testing.T) {
	t.Parallel()

	msgs := []core.Message{{Role: core.RoleUser, Content: "fix it"}}
	convo := &core.Conversation{
		CodebaseContext: map[string]any{"root": "/srv/app", "language": "go"},
	}

	out := BuildMessages(msgs, convo, true)
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if out[0].Role != core.RoleSystem {
		t.Errorf("first role = %q, want system", out[0].Role)
	}
	if !strings.Contains(out[0].Content, "/srv/app") {
		t.Errorf("system message should carry the context: %q", out[0].Content)
	}
	if out[1].Content != "fix it" {
		t.Errorf("user message displaced: %v", out[1])
	}
}

func TestBuildMessages_NoContextPassthrough(t *testing.T) {
	t.Parallel()

	msgs := []core.Message{{Role: core.RoleUser, Content: "hi"}}

	if out := BuildMessages(msgs, nil, true); len(out) != 1 {
		t.Error("nil conversation must pass through")
	}
	if out := BuildMessages(msgs, &core.Conversation{}, true); len(out) != 1 {
		t.Error("empty context must pass through")
	}
	convo := &core.Conversation{CodebaseContext: map[string]any{"root": "/x"}}
	if out := BuildMessages(msgs, convo, false); len(out) != 1 {
		t.Error("adapters without code context support must not get the prompt")
	}
}
