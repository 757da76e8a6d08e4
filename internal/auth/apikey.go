// Package auth implements API key and JWT authentication for switchboard.
// Resolved API keys are cached in a W-TinyLFU cache.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maypok86/otter/v2"

	core "github.com/switchboard-ai/switchboard/internal"
	"github.com/switchboard-ai/switchboard/internal/storage"
)

const (
	cacheTTL    = 30 * time.Second // short enough to pick up key revocations promptly
	cacheMaxLen = 10_000           // max concurrent active keys expected per deployment
)

// cachedKey is one resolved credential in the auth cache.
type cachedKey struct {
	user *core.User
	key  *core.APIKey // nil for legacy per-user keys
}

var _ core.Authenticator = (*APIKeyAuth)(nil)

// APIKeyAuth authenticates requests using API keys with the "sb_" prefix.
// A static key may also be configured for single-tenant deployments.
type APIKeyAuth struct {
	store       storage.UserStore
	cache       *otter.Cache[string, *cachedKey]
	keyIDToHash sync.Map // keyID -> hash for cache invalidation by key ID
	staticHash  string   // hash of the env-configured static key, if any
}

// NewAPIKeyAuth returns a new APIKeyAuth backed by store. staticKey, when
// non-empty, is accepted as an admin credential without a store lookup.
func NewAPIKeyAuth(store storage.UserStore, staticKey string) (*APIKeyAuth, error) {
	c, err := otter.New(&otter.Options[string, *cachedKey]{
		MaximumSize:      cacheMaxLen,
		ExpiryCalculator: otter.ExpiryWriting[string, *cachedKey](cacheTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("create auth cache: %w", err)
	}
	a := &APIKeyAuth{store: store, cache: c}
	if staticKey != "" {
		a.staticHash = core.HashKey(staticKey)
	}
	return a, nil
}

// ExtractKey pulls a raw API key from the request, checking the X-API-Key
// header first, then a Bearer Authorization header, then the api_key query
// parameter (for WebSocket clients that cannot set headers).
func ExtractKey(r *http.Request) string {
	if k := r.Header.Get("X-API-Key"); k != "" {
		return k
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("api_key")
}

// Authenticate validates a raw API key and returns the caller's Identity.
func (a *APIKeyAuth) Authenticate(ctx context.Context, cred core.Credential) (*core.Identity, error) {
	raw := cred.Value
	if raw == "" {
		return nil, core.ErrUnauthorized
	}

	hash := core.HashKey(raw)

	if a.staticHash != "" && subtle.ConstantTimeCompare([]byte(a.staticHash), []byte(hash)) == 1 {
		return &core.Identity{
			Username:   "static",
			Role:       core.RoleAdmin,
			Subject:    "static-key",
			Perms:      core.RolePermissions[core.RoleAdmin],
			AuthMethod: "apikey",
		}, nil
	}

	if !strings.HasPrefix(raw, core.APIKeyPrefix) {
		return nil, core.ErrUnauthorized
	}

	// Check cache first.
	if entry, ok := a.cache.GetIfPresent(hash); ok {
		if entry.key != nil && !entry.key.Valid(time.Now()) {
			a.cache.Invalidate(hash)
			return nil, core.ErrInvalidCred
		}
		return buildIdentity(entry.user, entry.key), nil
	}

	user, key, err := a.store.GetUserByAPIKeyHash(ctx, hash)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrNotFound):
			return nil, core.ErrUnauthorized
		case errors.Is(err, core.ErrKeyExpired), errors.Is(err, core.ErrKeyRevoked):
			return nil, err
		}
		return nil, err
	}

	a.cache.Set(hash, &cachedKey{user: user, key: key})
	if key != nil {
		a.keyIDToHash.Store(key.ID, hash)
	}

	return buildIdentity(user, key), nil
}

// InvalidateByKeyID removes a cached API key by its key ID.
// Used when revocation modifies a key.
func (a *APIKeyAuth) InvalidateByKeyID(keyID string) {
	if hash, ok := a.keyIDToHash.LoadAndDelete(keyID); ok {
		a.cache.Invalidate(hash.(string))
	}
}

// buildIdentity constructs an Identity from a validated user and key.
func buildIdentity(u *core.User, key *core.APIKey) *core.Identity {
	role := u.Role
	if role == "" {
		role = core.RoleStandard
	}
	id := &core.Identity{
		UserID:     u.ID,
		Username:   u.Username,
		Role:       role,
		Subject:    u.Username,
		Perms:      core.RolePermissions[role],
		AuthMethod: "apikey",
	}
	if key != nil {
		id.KeyID = key.ID
		id.Subject = key.KeyPrefix
	}
	return id
}

// GenerateKey creates a new raw API key and its storage record. The raw key
// is returned exactly once; only the hash is persisted.
func GenerateKey(userID, name string, expiresAt *time.Time) (raw string, rec *core.APIKey, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("generate key: %w", err)
	}
	raw = core.APIKeyPrefix + base64.RawURLEncoding.EncodeToString(buf)
	rec = &core.APIKey{
		ID:        uuid.Must(uuid.NewV7()).String(),
		UserID:    userID,
		KeyHash:   core.HashKey(raw),
		KeyPrefix: raw[:8],
		Name:      name,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
	return raw, rec, nil
}
