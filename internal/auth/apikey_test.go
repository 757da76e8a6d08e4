package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	core "github.com/switchboard-ai/switchboard/internal"
)

// fakeUserStore implements the subset of storage.UserStore used by auth.
type fakeUserStore struct {
	users map[string]*core.User   // by id
	keys  map[string]*core.APIKey // by hash
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		users: make(map[string]*core.User),
		keys:  make(map[string]*core.APIKey),
	}
}

func (f *fakeUserStore) CreateUser(ctx context.Context, u *core.User) error {
	f.users[u.ID] = u
	return nil
}

func (f *fakeUserStore) GetUserByID(ctx context.Context, id string) (*core.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, core.ErrNotFound
}

func (f *fakeUserStore) GetUserByUsername(ctx context.Context, username string) (*core.User, error) {
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, core.ErrNotFound
}

func (f *fakeUserStore) GetUserByAPIKeyHash(ctx context.Context, hash string) (*core.User, *core.APIKey, error) {
	if k, ok := f.keys[hash]; ok {
		if k.RevokedAt != nil {
			return nil, nil, core.ErrKeyRevoked
		}
		if k.ExpiresAt != nil && !k.ExpiresAt.After(time.Now()) {
			return nil, nil, core.ErrKeyExpired
		}
		return f.users[k.UserID], k, nil
	}
	for _, u := range f.users {
		if u.APIKeyHash == hash {
			return u, nil, nil
		}
	}
	return nil, nil, core.ErrNotFound
}

func (f *fakeUserStore) CreateAPIKey(ctx context.Context, k *core.APIKey) error {
	f.keys[k.KeyHash] = k
	return nil
}

func (f *fakeUserStore) RevokeAPIKey(ctx context.Context, id string, at time.Time) error {
	for _, k := range f.keys {
		if k.ID == id {
			k.RevokedAt = &at
			return nil
		}
	}
	return core.ErrNotFound
}

func (f *fakeUserStore) ListAPIKeys(ctx context.Context, userID string) ([]*core.APIKey, error) {
	var out []*core.APIKey
	for _, k := range f.keys {
		if k.UserID == userID {
			out = append(out, k)
		}
	}
	return out, nil
}

func seedUserAndKey(t *testing.T, store *fakeUserStore) (raw string) {
	t.Helper()
	u := &core.User{ID: "u-1", Username: "alice", Role: core.RoleStandard}
	store.CreateUser(context.Background(), u)

	raw, rec, err := GenerateKey("u-1", "test", nil)
	if err != nil {
		t.Fatal(err)
	}
	store.CreateAPIKey(context.Background(), rec)
	return raw
}

func TestAPIKeyAuth_ValidKey(t *testing.T) {
	t.Parallel()
	store := newFakeUserStore()
	raw := seedUserAndKey(t, store)

	a, err := NewAPIKeyAuth(store, "")
	if err != nil {
		t.Fatal(err)
	}

	id, err := a.Authenticate(context.Background(), core.Credential{Kind: "apikey", Value: raw})
	if err != nil {
		t.Fatal(err)
	}
	if id.UserID != "u-1" || id.AuthMethod != "apikey" {
		t.Errorf("identity = %+v", id)
	}
	if !id.Can(core.PermChatWrite) {
		t.Error("standard role should have chat write")
	}
	if id.Can(core.PermAdminManage) {
		t.Error("standard role should not have admin")
	}

	// Cached path returns the same identity.
	id2, err := a.Authenticate(context.Background(), core.Credential{Kind: "apikey", Value: raw})
	if err != nil || id2.UserID != "u-1" {
		t.Fatalf("cached auth: id=%+v err=%v", id2, err)
	}
}

func TestAPIKeyAuth_RejectsBadKeys(t *testing.T) {
	t.Parallel()
	store := newFakeUserStore()
	seedUserAndKey(t, store)
	a, _ := NewAPIKeyAuth(store, "")
	ctx := context.Background()

	if _, err := a.Authenticate(ctx, core.Credential{Value: ""}); !errors.Is(err, core.ErrUnauthorized) {
		t.Errorf("empty key err = %v", err)
	}
	if _, err := a.Authenticate(ctx, core.Credential{Value: "wrong_prefix_key"}); !errors.Is(err, core.ErrUnauthorized) {
		t.Errorf("bad prefix err = %v", err)
	}
	if _, err := a.Authenticate(ctx, core.Credential{Value: "sb_unknownunknown"}); !errors.Is(err, core.ErrUnauthorized) {
		t.Errorf("unknown key err = %v", err)
	}
}

func TestAPIKeyAuth_RevokedAndExpired(t *testing.T) {
	t.Parallel()
	store := newFakeUserStore()
	ctx := context.Background()
	store.CreateUser(ctx, &core.User{ID: "u-1", Username: "alice", Role: core.RoleStandard})

	rawRevoked, recRevoked, _ := GenerateKey("u-1", "revoked", nil)
	store.CreateAPIKey(ctx, recRevoked)
	store.RevokeAPIKey(ctx, recRevoked.ID, time.Now())

	past := time.Now().Add(-time.Hour)
	rawExpired, recExpired, _ := GenerateKey("u-1", "expired", &past)
	store.CreateAPIKey(ctx, recExpired)

	a, _ := NewAPIKeyAuth(store, "")

	if _, err := a.Authenticate(ctx, core.Credential{Value: rawRevoked}); !errors.Is(err, core.ErrKeyRevoked) {
		t.Errorf("revoked err = %v, want ErrKeyRevoked", err)
	}
	if _, err := a.Authenticate(ctx, core.Credential{Value: rawExpired}); !errors.Is(err, core.ErrKeyExpired) {
		t.Errorf("expired err = %v, want ErrKeyExpired", err)
	}
}

func TestAPIKeyAuth_StaticKey(t *testing.T) {
	t.Parallel()
	a, _ := NewAPIKeyAuth(newFakeUserStore(), "supersecret")

	id, err := a.Authenticate(context.Background(), core.Credential{Value: "supersecret"})
	if err != nil {
		t.Fatal(err)
	}
	if id.Role != core.RoleAdmin {
		t.Errorf("static key role = %q, want admin", id.Role)
	}
}

func TestAPIKeyAuth_InvalidateByKeyID(t *testing.T) {
	t.Parallel()
	store := newFakeUserStore()
	raw := seedUserAndKey(t, store)
	a, _ := NewAPIKeyAuth(store, "")
	ctx := context.Background()

	if _, err := a.Authenticate(ctx, core.Credential{Value: raw}); err != nil {
		t.Fatal(err)
	}

	// Revoke in the store and invalidate the cache; next auth must fail.
	var keyID string
	for _, k := range store.keys {
		keyID = k.ID
	}
	store.RevokeAPIKey(ctx, keyID, time.Now())
	a.InvalidateByKeyID(keyID)

	if _, err := a.Authenticate(ctx, core.Credential{Value: raw}); !errors.Is(err, core.ErrKeyRevoked) {
		t.Errorf("err = %v, want ErrKeyRevoked after invalidation", err)
	}
}

func TestExtractKey_Precedence(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("GET", "/api/v1/chat?api_key=from_query", nil)
	r.Header.Set("Authorization", "Bearer from_bearer")
	r.Header.Set("X-API-Key", "from_header")
	if got := ExtractKey(r); got != "from_header" {
		t.Errorf("got %q, want X-API-Key first", got)
	}

	r.Header.Del("X-API-Key")
	if got := ExtractKey(r); got != "from_bearer" {
		t.Errorf("got %q, want Bearer second", got)
	}

	r.Header.Del("Authorization")
	if got := ExtractKey(r); got != "from_query" {
		t.Errorf("got %q, want query param last", got)
	}
}

func TestGenerateKey(t *testing.T) {
	t.Parallel()

	raw, rec, err := GenerateKey("u-1", "ci", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(raw, core.APIKeyPrefix) {
		t.Errorf("raw = %q, want %q prefix", raw, core.APIKeyPrefix)
	}
	if rec.KeyHash != core.HashKey(raw) {
		t.Error("record hash must match raw key")
	}
	if rec.KeyPrefix != raw[:8] {
		t.Errorf("prefix = %q, want first 8 chars of raw", rec.KeyPrefix)
	}

	raw2, _, _ := GenerateKey("u-1", "ci", nil)
	if raw == raw2 {
		t.Error("keys must be unique")
	}
}
