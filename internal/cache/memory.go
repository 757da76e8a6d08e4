package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/maypok86/otter/v2"
)

// memEntry carries the stored blob and its own deadline. The cache's
// write-TTL only bounds idle growth; revocation markers need exact
// per-entry expiry, so Get enforces the deadline itself.
type memEntry struct {
	val      []byte
	deadline int64 // unix nanos
}

func (e memEntry) live(now time.Time) bool {
	return now.UnixNano() < e.deadline
}

// Memory is the single-node session store: a W-TinyLFU cache holding
// revocation markers and short-lived session blobs.
type Memory struct {
	entries *otter.Cache[string, memEntry]
}

// NewMemory sizes the store for maxEntries live keys. idleTTL bounds how
// long an untouched entry may occupy a slot regardless of its deadline.
func NewMemory(maxEntries int, idleTTL time.Duration) (*Memory, error) {
	c, err := otter.New[string, memEntry](&otter.Options[string, memEntry]{
		MaximumSize:      maxEntries,
		ExpiryCalculator: otter.ExpiryWriting[string, memEntry](idleTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("create session cache: %w", err)
	}
	return &Memory{entries: c}, nil
}

// Get returns the value when present and inside its deadline. Dead
// entries are dropped on sight.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	e, ok := m.entries.GetIfPresent(key)
	if !ok {
		return nil, false
	}
	if !e.live(time.Now()) {
		m.entries.Invalidate(key)
		return nil, false
	}
	return e.val, true
}

// Set stores val until now+ttl.
func (m *Memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) {
	m.entries.Set(key, memEntry{val: val, deadline: time.Now().Add(ttl).UnixNano()})
}

// Delete drops one key.
func (m *Memory) Delete(_ context.Context, key string) {
	m.entries.Invalidate(key)
}

// Purge empties the store.
func (m *Memory) Purge(_ context.Context) {
	m.entries.InvalidateAll()
}
