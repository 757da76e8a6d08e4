package server

import (
	"context"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	core "github.com/switchboard-ai/switchboard/internal"
	"github.com/switchboard-ai/switchboard/internal/testutil"
)

func wsDial(t *testing.T, e *env) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws/chat"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func streamingGPT() *testutil.FakeAdapter {
	return &testutil.FakeAdapter{
		Tool:      "gpt",
		Available: true,
		StreamFn: func(context.Context, []core.Message, *core.Conversation) (<-chan core.StreamChunk, error) {
			return testutil.FakeStreamChan(
				core.StreamChunk{Content: "Hel"},
				core.StreamChunk{Content: "lo"},
			), nil
		},
	}
}

func TestWS_AuthGate(t *testing.T) {
	t.Parallel()

	e := newEnv(t, []core.Adapter{streamingGPT()}, func(d *Deps) {
		d.MobileAPIKey = "k123"
	})
	conn := wsDial(t, e)

	// Chat before auth: error frame, socket stays open.
	if err := conn.WriteJSON(wsFrame{Type: "chat", Message: "hi"}); err != nil {
		t.Fatal(err)
	}
	var frame wsFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatal(err)
	}
	if frame.Type != "error" || !strings.Contains(frame.Message, "Authentication required") {
		t.Fatalf("frame = %+v", frame)
	}

	// Bad key: error frame, then close.
	if err := conn.WriteJSON(wsFrame{Type: "auth", APIKey: "bad"}); err != nil {
		t.Fatal(err)
	}
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatal(err)
	}
	if frame.Type != "error" || frame.Message != "Invalid API key" {
		t.Fatalf("frame = %+v", frame)
	}
	if err := conn.ReadJSON(&frame); err == nil {
		t.Fatal("socket still open after rejected auth")
	}
}

func TestWS_ChatAfterAuth(t *testing.T) {
	t.Parallel()

	e := newEnv(t, []core.Adapter{streamingGPT()}, func(d *Deps) {
		d.MobileAPIKey = "k123"
	})
	conn := wsDial(t, e)

	if err := conn.WriteJSON(wsFrame{Type: "auth", APIKey: "k123"}); err != nil {
		t.Fatal(err)
	}
	var frame wsFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatal(err)
	}
	if frame.Type != "auth_ok" {
		t.Fatalf("frame = %+v", frame)
	}

	if err := conn.WriteJSON(wsFrame{Type: "chat", Message: "hi", Tool: "gpt"}); err != nil {
		t.Fatal(err)
	}

	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatal(err)
	}
	if frame.Type != "start" || frame.Tool != "gpt" || frame.ConversationID == "" {
		t.Fatalf("start frame = %+v", frame)
	}

	var text string
	for {
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatal(err)
		}
		if frame.Type == "end" {
			break
		}
		if frame.Type != "chunk" {
			t.Fatalf("frame = %+v", frame)
		}
		text += frame.Content
	}
	if text != "Hello" {
		t.Errorf("streamed text = %q", text)
	}
}

func TestWS_NoGateWhenUnconfigured(t *testing.T) {
	t.Parallel()

	e := newEnv(t, []core.Adapter{streamingGPT()})
	conn := wsDial(t, e)

	if err := conn.WriteJSON(wsFrame{Type: "chat", Message: "hi", Tool: "gpt"}); err != nil {
		t.Fatal(err)
	}
	var frame wsFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatal(err)
	}
	if frame.Type != "start" {
		t.Fatalf("frame = %+v", frame)
	}
}

func TestWS_PingPong(t *testing.T) {
	t.Parallel()

	e := newEnv(t, []core.Adapter{streamingGPT()})
	conn := wsDial(t, e)

	if err := conn.WriteJSON(wsFrame{Type: "ping"}); err != nil {
		t.Fatal(err)
	}
	var frame wsFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatal(err)
	}
	if frame.Type != "pong" {
		t.Fatalf("frame = %+v", frame)
	}
}

func TestWS_ErrorFrameKeepsSocket(t *testing.T) {
	t.Parallel()

	// No adapter is live, so every chat turn fails with an error frame.
	e := newEnv(t, []core.Adapter{&testutil.FakeAdapter{Tool: "claude", Available: false}})
	conn := wsDial(t, e)

	for range 2 {
		if err := conn.WriteJSON(wsFrame{Type: "chat", Message: "hi"}); err != nil {
			t.Fatal(err)
		}
		var frame wsFrame
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatal(err)
		}
		if frame.Type != "error" {
			t.Fatalf("frame = %+v", frame)
		}
	}
}
