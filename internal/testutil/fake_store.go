package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	core "github.com/switchboard-ai/switchboard/internal"
	"github.com/switchboard-ai/switchboard/internal/storage"
)

// FakeStore is an in-memory implementation of storage.Store for testing.
type FakeStore struct {
	mu        sync.RWMutex
	snapshots map[string]snapshotRow
	messages  map[string][]core.Message
	users     map[string]*core.User // by ID
	keys      map[string]*core.APIKey
	audits    []*core.AuditEvent
	costs     []*core.CostRecord
	nextMsgID int64

	PingErr error // returned by Ping when set
}

type snapshotRow struct {
	projectID string
	data      []byte
	updatedAt time.Time
}

// NewFakeStore returns a FakeStore with empty collections.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		snapshots: make(map[string]snapshotRow),
		messages:  make(map[string][]core.Message),
		users:     make(map[string]*core.User),
		keys:      make(map[string]*core.APIKey),
	}
}

// --- ContextStore ---

func (s *FakeStore) SaveContext(_ context.Context, conversationID, projectID string, snapshot []byte, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(snapshot))
	copy(cp, snapshot)
	s.snapshots[conversationID] = snapshotRow{projectID: projectID, data: cp, updatedAt: updatedAt}
	return nil
}

func (s *FakeStore) LoadContext(_ context.Context, conversationID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.snapshots[conversationID]
	if !ok {
		return nil, core.ErrNotFound
	}
	return row.data, nil
}

func (s *FakeStore) DeleteContext(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.snapshots[conversationID]; !ok {
		return core.ErrNotFound
	}
	delete(s.snapshots, conversationID)
	return nil
}

func (s *FakeStore) ListContexts(_ context.Context, projectID string, limit, offset int) ([]storage.ContextSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []storage.ContextSummary
	for id, row := range s.snapshots {
		if projectID != "" && row.projectID != projectID {
			continue
		}
		out = append(out, storage.ContextSummary{
			ConversationID: id,
			ProjectID:      row.projectID,
			UpdatedAt:      row.updatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// --- MessageStore ---

func (s *FakeStore) AddMessage(_ context.Context, conversationID string, m core.Message) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextMsgID++
	s.messages[conversationID] = append(s.messages[conversationID], m)
	return s.nextMsgID, nil
}

func (s *FakeStore) GetMessages(_ context.Context, conversationID string, limit, offset int) ([]core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[conversationID]
	if offset >= len(msgs) {
		return nil, nil
	}
	msgs = msgs[offset:]
	if limit > 0 && limit < len(msgs) {
		msgs = msgs[:limit]
	}
	out := make([]core.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// --- UserStore ---

func (s *FakeStore) CreateUser(_ context.Context, u *core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, have := range s.users {
		if have.Username == u.Username {
			return core.ErrConflict
		}
	}
	s.users[u.ID] = u
	return nil
}

func (s *FakeStore) GetUserByID(_ context.Context, id string) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return u, nil
}

func (s *FakeStore) GetUserByUsername(_ context.Context, username string) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *FakeStore) GetUserByAPIKeyHash(_ context.Context, hash string) (*core.User, *core.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.APIKeyHash != "" && u.APIKeyHash == hash {
			return u, nil, nil
		}
	}
	for _, k := range s.keys {
		if k.KeyHash != hash {
			continue
		}
		if k.RevokedAt != nil {
			return nil, nil, core.ErrKeyRevoked
		}
		if k.ExpiresAt != nil && !k.ExpiresAt.After(time.Now()) {
			return nil, nil, core.ErrKeyExpired
		}
		u, ok := s.users[k.UserID]
		if !ok {
			return nil, nil, core.ErrNotFound
		}
		return u, k, nil
	}
	return nil, nil, core.ErrNotFound
}

func (s *FakeStore) CreateAPIKey(_ context.Context, k *core.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[k.ID] = k
	return nil
}

func (s *FakeStore) RevokeAPIKey(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok {
		return core.ErrNotFound
	}
	k.RevokedAt = &at
	return nil
}

func (s *FakeStore) ListAPIKeys(_ context.Context, userID string) ([]*core.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*core.APIKey
	for _, k := range s.keys {
		if k.UserID != userID {
			continue
		}
		cp := *k
		if len(cp.KeyHash) > 8 {
			cp.KeyHash = cp.KeyHash[:8]
		}
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- AuditStore ---

func (s *FakeStore) LogAuditEvent(_ context.Context, e *core.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, e)
	return nil
}

func (s *FakeStore) GetAuditLogs(_ context.Context, userID string, eventType core.AuditEventType, limit, offset int) ([]*core.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*core.AuditEvent
	for _, e := range s.audits {
		if userID != "" && e.UserID != userID {
			continue
		}
		if eventType != "" && e.EventType != eventType {
			continue
		}
		out = append(out, e)
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// AuditEvents returns a copy of all recorded audit events.
func (s *FakeStore) AuditEvents() []*core.AuditEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*core.AuditEvent, len(s.audits))
	copy(out, s.audits)
	return out
}

// --- CostStore ---

func (s *FakeStore) RecordCost(_ context.Context, r *core.CostRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.costs = append(s.costs, r)
	return nil
}

func (s *FakeStore) GetCosts(_ context.Context, f storage.CostFilter) ([]*core.CostRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*core.CostRecord
	for _, r := range s.costs {
		if f.Tool != "" && r.Tool != f.Tool {
			continue
		}
		if f.ProjectID != "" && r.ProjectID != f.ProjectID {
			continue
		}
		if !f.Start.IsZero() && r.CreatedAt.Before(f.Start) {
			continue
		}
		if !f.End.IsZero() && r.CreatedAt.After(f.End) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// CostRecords returns a copy of all recorded cost rows.
func (s *FakeStore) CostRecords() []*core.CostRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*core.CostRecord, len(s.costs))
	copy(out, s.costs)
	return out
}

// --- lifecycle ---

func (s *FakeStore) Ping(context.Context) error { return s.PingErr }
func (s *FakeStore) Close() error               { return nil }
