package sseutil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	core "github.com/switchboard-ai/switchboard/internal"
)

func streamFrom(t *testing.T, body string) *http.Response {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func collect(ch <-chan core.StreamChunk) []core.StreamChunk {
	var out []core.StreamChunk
	for c := range ch {
		out = append(out, c)
	}
	return out
}

func TestReadSSEStream(t *testing.T) {
	t.Parallel()

	body := "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n" +
		"data: {\"choices\":[],\"usage\":{\"prompt_tokens\":12,\"completion_tokens\":3}}\n\n" +
		"data: [DONE]\n\n"

	ch := make(chan core.StreamChunk, 8)
	go ReadSSEStream(context.Background(), "test", streamFrom(t, body), ch)
	chunks := collect(ch)

	if len(chunks) != 4 {
		t.Fatalf("got %d chunks: %+v", len(chunks), chunks)
	}
	if chunks[0].Content != "Hel" || chunks[1].Content != "lo" {
		t.Errorf("content chunks = %q %q", chunks[0].Content, chunks[1].Content)
	}
	u := chunks[2].Usage
	if u == nil || u.InputTokens != 12 || u.OutputTokens == nil || *u.OutputTokens != 3 {
		t.Errorf("usage chunk = %+v", u)
	}
	if !chunks[3].Done {
		t.Error("last chunk should be Done")
	}
}

func TestReadSSEStream_EOFWithoutDone(t *testing.T) {
	t.Parallel()

	body := "data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\n"

	ch := make(chan core.StreamChunk, 8)
	go ReadSSEStream(context.Background(), "test", streamFrom(t, body), ch)
	chunks := collect(ch)

	if len(chunks) != 2 || !chunks[1].Done {
		t.Fatalf("stream without [DONE] must still terminate: %+v", chunks)
	}
}

func TestReadSSEStream_SkipsEmptyDeltas(t *testing.T) {
	t.Parallel()

	body := ": keep-alive\n\n" +
		"data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\n" +
		"data: [DONE]\n\n"

	ch := make(chan core.StreamChunk, 8)
	go ReadSSEStream(context.Background(), "test", streamFrom(t, body), ch)
	chunks := collect(ch)

	if len(chunks) != 2 {
		t.Fatalf("role-only deltas and comments must be skipped: %+v", chunks)
	}
	if chunks[0].Content != "hi" {
		t.Errorf("content = %q", chunks[0].Content)
	}
}
