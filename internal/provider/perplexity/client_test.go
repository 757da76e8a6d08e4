package perplexity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	core "github.com/switchboard-ai/switchboard/internal"
	"github.com/switchboard-ai/switchboard/internal/provider"
)

func testClients(srv *httptest.Server) provider.Clients {
	return provider.Clients{
		Unary:  srv.Client(),
		Stream: srv.Client(),
		Probe:  srv.Client(),
	}
}

func TestChat_Citations(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer pplx-test" {
			t.Errorf("auth = %q", got)
		}
		w.Write([]byte(`{
			"model": "sonar-pro",
			"choices": [{"message": {"content": "raft is a consensus protocol [1]"}}],
			"citations": ["https://raft.github.io", "https://example.com/paper"],
			"usage": {"prompt_tokens": 14, "completion_tokens": 9}
		}`))
	}))
	defer srv.Close()

	c := New("pplx-test", "", srv.URL, testClients(srv))
	resp, err := c.Chat(context.Background(), []core.Message{{Role: core.RoleUser, Content: "what is raft"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Tool != "perplexity" {
		t.Errorf("tool = %q", resp.Tool)
	}
	want := []string{"https://raft.github.io", "https://example.com/paper"}
	if !slices.Equal(resp.Metadata.Citations, want) {
		t.Errorf("citations = %v", resp.Metadata.Citations)
	}
	u := resp.Metadata.Usage
	if u == nil || u.InputTokens != 14 || u.OutputTokens == nil || *u.OutputTokens != 9 {
		t.Errorf("usage = %+v", u)
	}
}

func TestChat_NoKey(t *testing.T) {
	t.Parallel()

	c := New("", "", "", provider.Clients{})
	if _, err := c.Chat(context.Background(), nil, nil); !errors.Is(err, core.ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
	if c.IsAvailable(context.Background()) {
		t.Error("adapter without a key must not be available")
	}
}

func TestChat_RateLimited(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New("pplx-test", "", srv.URL, testClients(srv))
	_, err := c.Chat(context.Background(), []core.Message{{Role: core.RoleUser, Content: "hi"}}, nil)
	if !errors.Is(err, core.ErrUpstreamRate) {
		t.Errorf("err = %v, want ErrUpstreamRate", err)
	}
}

func TestStreamChat(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"sourced \"}}]}\n\n" +
			"data: {\"choices\":[{\"delta\":{\"content\":\"answer\"}}]}\n\n" +
			"data: [DONE]\n\n"))
	}))
	defer srv.Close()

	c := New("pplx-test", "", srv.URL, testClients(srv))
	ch, err := c.StreamChat(context.Background(), []core.Message{{Role: core.RoleUser, Content: "hi"}}, nil)
	if err != nil {
		t.Fatal(err)
	}

	var got string
	var done bool
	for chunk := range ch {
		got += chunk.Content
		done = done || chunk.Done
	}
	if got != "sourced answer" || !done {
		t.Errorf("stream = %q done=%v", got, done)
	}
}
