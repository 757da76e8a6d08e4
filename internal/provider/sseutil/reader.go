// Package sseutil reads server-sent event streams for the provider
// adapters and delivers the resulting chunks without wedging on a gone
// consumer.
package sseutil

import (
	"bufio"
	"io"
	"strings"
)

// A single data line carries one JSON delta; 64KB bounds it without
// letting a misbehaving upstream grow the buffer unbounded.
const maxLineSize = 64 * 1024

// Event is one complete server-sent event. Name is empty for unnamed
// data-only events. Multi-line payloads are joined with newlines.
type Event struct {
	Name string
	Data string
}

// Scanner frames server-sent events out of a stream. An event ends at
// a blank line; comments and unknown fields are dropped.
type Scanner struct {
	lines *bufio.Scanner
}

// NewScanner returns a Scanner over r.
func NewScanner(r io.Reader) *Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 4096), maxLineSize)
	return &Scanner{lines: s}
}

// Next returns the next complete event. ok is false at end of stream;
// check Err to tell EOF from a read failure. A stream that closes
// mid-event still yields the fields received so far.
func (s *Scanner) Next() (ev Event, ok bool) {
	started := false
	var data []string
	for s.lines.Scan() {
		line := s.lines.Text()
		if line == "" {
			if started {
				ev.Data = strings.Join(data, "\n")
				return ev, true
			}
			continue
		}
		field, value, found := strings.Cut(line, ":")
		if !found || field == "" {
			// field == "" is a comment line (": keep-alive")
			continue
		}
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.Name = value
			started = true
		case "data":
			data = append(data, value)
			started = true
		}
	}
	if started {
		ev.Data = strings.Join(data, "\n")
		return ev, true
	}
	return Event{}, false
}

// Err returns the first error hit by the underlying reader.
func (s *Scanner) Err() error {
	return s.lines.Err()
}
