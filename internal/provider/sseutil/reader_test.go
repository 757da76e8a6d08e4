package sseutil

import (
	"strings"
	"testing"
)

func TestScanner_FramesEvents(t *testing.T) {
	t.Parallel()

	input := "event: message_start\n" +
		"data: {\"id\":\"1\"}\n\n" +
		": keep-alive\n\n" +
		"data: [DONE]\n\n"
	sc := NewScanner(strings.NewReader(input))

	ev, ok := sc.Next()
	if !ok || ev.Name != "message_start" || ev.Data != `{"id":"1"}` {
		t.Fatalf("first event = %+v, ok=%v", ev, ok)
	}
	ev, ok = sc.Next()
	if !ok || ev.Name != "" || ev.Data != "[DONE]" {
		t.Fatalf("second event = %+v, ok=%v (comments must not frame events)", ev, ok)
	}
	if _, ok := sc.Next(); ok {
		t.Error("expected end of stream")
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scanner error: %v", err)
	}
}

func TestScanner_MultiLineData(t *testing.T) {
	t.Parallel()

	sc := NewScanner(strings.NewReader("data: line1\ndata: line2\n\n"))
	ev, ok := sc.Next()
	if !ok || ev.Data != "line1\nline2" {
		t.Fatalf("event = %+v, ok=%v", ev, ok)
	}
}

func TestScanner_FlushesUnterminatedEvent(t *testing.T) {
	t.Parallel()

	sc := NewScanner(strings.NewReader("data: partial"))
	ev, ok := sc.Next()
	if !ok || ev.Data != "partial" {
		t.Fatalf("truncated stream must yield pending fields: %+v, ok=%v", ev, ok)
	}
	if _, ok := sc.Next(); ok {
		t.Error("expected end of stream")
	}
}

func TestScanner_DropsUnknownFields(t *testing.T) {
	t.Parallel()

	input := "retry: 5000\ngarbage\ndata:{\"no\":\"space\"}\n\n"
	sc := NewScanner(strings.NewReader(input))
	ev, ok := sc.Next()
	if !ok || ev.Data != `{"no":"space"}` {
		t.Fatalf("event = %+v, ok=%v", ev, ok)
	}
}
