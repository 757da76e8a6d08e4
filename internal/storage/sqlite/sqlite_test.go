package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	core "github.com/switchboard-ai/switchboard/internal"
	"github.com/switchboard-ai/switchboard/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	// Use a unique file-based temp DB for each test to avoid shared :memory: races
	path := t.TempDir() + "/test.db"
	s, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	snap := []byte(`{"conversation_id":"c-1","messages":[]}`)
	now := time.Now().UTC().Truncate(time.Second)

	if err := s.SaveContext(ctx, "c-1", "proj-1", snap, now); err != nil {
		t.Fatal("save:", err)
	}

	got, err := s.LoadContext(ctx, "c-1")
	if err != nil {
		t.Fatal("load:", err)
	}
	if string(got) != string(snap) {
		t.Errorf("snapshot = %s, want %s", got, snap)
	}

	// Save again replaces in place.
	snap2 := []byte(`{"conversation_id":"c-1","messages":[{"role":"user"}]}`)
	if err := s.SaveContext(ctx, "c-1", "proj-1", snap2, now.Add(time.Second)); err != nil {
		t.Fatal("resave:", err)
	}
	got, _ = s.LoadContext(ctx, "c-1")
	if string(got) != string(snap2) {
		t.Error("save should replace the snapshot")
	}

	list, err := s.ListContexts(ctx, "proj-1", 10, 0)
	if err != nil {
		t.Fatal("list:", err)
	}
	if len(list) != 1 || list[0].ConversationID != "c-1" {
		t.Fatalf("list = %+v, want one row for c-1", list)
	}

	if err := s.DeleteContext(ctx, "c-1"); err != nil {
		t.Fatal("delete:", err)
	}
	if _, err := s.LoadContext(ctx, "c-1"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("after delete err = %v, want ErrNotFound", err)
	}
	if err := s.DeleteContext(ctx, "c-1"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("double delete err = %v, want ErrNotFound", err)
	}
}

func TestListContextsNewestFirst(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i, id := range []string{"c-old", "c-mid", "c-new"} {
		if err := s.SaveContext(ctx, id, "p", []byte(`{}`), base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatal(err)
		}
	}

	list, err := s.ListContexts(ctx, "p", 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].ConversationID != "c-new" || list[1].ConversationID != "c-mid" {
		t.Errorf("order = %s, %s; want c-new, c-mid", list[0].ConversationID, list[1].ConversationID)
	}
}

func TestMessagesAppendAndRead(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().Unix()
	for _, m := range []core.Message{
		{Role: core.RoleUser, Content: "first", Timestamp: now},
		{Role: core.RoleAssistant, Content: "second", Timestamp: now + 1},
		{Role: core.RoleUser, Content: "third", Timestamp: now + 2},
	} {
		if _, err := s.AddMessage(ctx, "c-1", m); err != nil {
			t.Fatal("add:", err)
		}
	}

	msgs, err := s.GetMessages(ctx, "c-1", 10, 0)
	if err != nil {
		t.Fatal("get:", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("count = %d, want 3", len(msgs))
	}
	if msgs[0].Content != "first" || msgs[2].Content != "third" {
		t.Errorf("order wrong: %q ... %q", msgs[0].Content, msgs[2].Content)
	}

	msgs, err = s.GetMessages(ctx, "c-1", 10, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].Content != "second" {
		t.Errorf("offset read = %+v, want starting at second", msgs)
	}
}

func TestUserAndAPIKeyLifecycle(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	u := &core.User{
		ID:           "u-1",
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: "$2a$12$fakehash",
		Role:         core.RoleAdmin,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatal("create user:", err)
	}

	got, err := s.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatal("get by username:", err)
	}
	if got.ID != "u-1" || got.Role != core.RoleAdmin {
		t.Errorf("user = %+v", got)
	}

	key := &core.APIKey{
		ID:        "k-1",
		UserID:    "u-1",
		KeyHash:   core.HashKey("sb_rawkey"),
		KeyPrefix: "sb_rawke",
		Name:      "ci",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := s.CreateAPIKey(ctx, key); err != nil {
		t.Fatal("create key:", err)
	}

	owner, gotKey, err := s.GetUserByAPIKeyHash(ctx, key.KeyHash)
	if err != nil {
		t.Fatal("resolve key:", err)
	}
	if owner.ID != "u-1" || gotKey == nil || gotKey.ID != "k-1" {
		t.Errorf("owner = %+v key = %+v", owner, gotKey)
	}

	keys, err := s.ListAPIKeys(ctx, "u-1")
	if err != nil {
		t.Fatal("list keys:", err)
	}
	if len(keys) != 1 {
		t.Fatalf("key count = %d, want 1", len(keys))
	}
	if len(keys[0].KeyHash) != 8 {
		t.Errorf("listed hash = %q, want 8-char redaction", keys[0].KeyHash)
	}

	if err := s.RevokeAPIKey(ctx, "k-1", time.Now()); err != nil {
		t.Fatal("revoke:", err)
	}
	if _, _, err := s.GetUserByAPIKeyHash(ctx, key.KeyHash); !errors.Is(err, core.ErrKeyRevoked) {
		t.Errorf("revoked key err = %v, want ErrKeyRevoked", err)
	}
	// Idempotent revoke.
	if err := s.RevokeAPIKey(ctx, "k-1", time.Now()); err != nil {
		t.Errorf("second revoke err = %v, want nil", err)
	}
	if err := s.RevokeAPIKey(ctx, "missing", time.Now()); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("revoke missing err = %v, want ErrNotFound", err)
	}
}

func TestExpiredAPIKey(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	u := &core.User{ID: "u-1", Username: "bob", PasswordHash: "x", Role: core.RoleStandard, CreatedAt: time.Now()}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-time.Hour)
	key := &core.APIKey{
		ID: "k-exp", UserID: "u-1", KeyHash: core.HashKey("sb_expired"),
		KeyPrefix: "sb_expir", ExpiresAt: &past, CreatedAt: past.Add(-time.Hour),
	}
	if err := s.CreateAPIKey(ctx, key); err != nil {
		t.Fatal(err)
	}

	if _, _, err := s.GetUserByAPIKeyHash(ctx, key.KeyHash); !errors.Is(err, core.ErrKeyExpired) {
		t.Errorf("err = %v, want ErrKeyExpired", err)
	}
}

func TestLegacyUserKeyHash(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	hash := core.HashKey("sb_legacy")
	u := &core.User{
		ID: "u-legacy", Username: "legacy", PasswordHash: "x",
		Role: core.RoleStandard, APIKeyHash: hash, CreatedAt: time.Now(),
	}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatal(err)
	}

	owner, key, err := s.GetUserByAPIKeyHash(ctx, hash)
	if err != nil {
		t.Fatal(err)
	}
	if owner.ID != "u-legacy" {
		t.Errorf("owner = %+v", owner)
	}
	if key != nil {
		t.Error("legacy hash should resolve without an api_keys record")
	}
}

func TestAuditLogFilters(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	events := []*core.AuditEvent{
		{ID: "a-1", EventType: core.AuditAuthSuccess, UserID: "u-1", IPAddress: "10.0.0.1", CreatedAt: base},
		{ID: "a-2", EventType: core.AuditAuthFailure, UserID: "u-2", CreatedAt: base.Add(time.Second)},
		{ID: "a-3", EventType: core.AuditAuthSuccess, UserID: "u-1", Details: map[string]any{"method": "apikey"}, CreatedAt: base.Add(2 * time.Second)},
	}
	for _, e := range events {
		if err := s.LogAuditEvent(ctx, e); err != nil {
			t.Fatal("log:", err)
		}
	}

	got, err := s.GetAuditLogs(ctx, "u-1", "", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("u-1 events = %d, want 2", len(got))
	}
	if got[0].ID != "a-3" {
		t.Errorf("first = %s, want a-3 (newest first)", got[0].ID)
	}
	if got[0].Details["method"] != "apikey" {
		t.Errorf("details = %+v", got[0].Details)
	}

	got, err = s.GetAuditLogs(ctx, "", core.AuditAuthFailure, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "a-2" {
		t.Errorf("failure events = %+v", got)
	}
}

func TestCostRecordsAndFilter(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	records := []*core.CostRecord{
		{Tool: "claude", Model: "claude-sonnet", InputTokens: 1000, OutputTokens: 200, CostUSD: 0.006, ProjectID: "p-1", CreatedAt: base},
		{Tool: "gpt", Model: "gpt-4o", InputTokens: 500, OutputTokens: 100, CostUSD: 0.00225, ProjectID: "p-1", CreatedAt: base.Add(time.Second)},
		{Tool: "claude", Model: "claude-sonnet", InputTokens: 100, OutputTokens: 50, CostUSD: 0.00105, ProjectID: "p-2", CreatedAt: base.Add(2 * time.Second)},
	}
	for _, r := range records {
		if err := s.RecordCost(ctx, r); err != nil {
			t.Fatal("record:", err)
		}
		if r.ID == 0 {
			t.Error("RecordCost should backfill the row id")
		}
	}

	got, err := s.GetCosts(ctx, storage.CostFilter{Tool: "claude"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("claude rows = %d, want 2", len(got))
	}
	if got[0].CostUSD != 0.00105 {
		t.Errorf("cost = %v, want 0.00105 preserved through micro-dollar storage", got[0].CostUSD)
	}

	got, err = s.GetCosts(ctx, storage.CostFilter{ProjectID: "p-1", End: base.Add(time.Second)})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Tool != "claude" {
		t.Errorf("filtered rows = %+v", got)
	}
}
