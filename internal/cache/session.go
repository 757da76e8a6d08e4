package cache

import (
	"context"
	"log/slog"
	"time"
)

// Sessions implements token revocation and short-lived session state over
// any Cache. It satisfies the auth blacklist interface.
type Sessions struct {
	cache Cache
}

// NewSessions builds a session store. When redisURL is empty or unreachable
// it falls back to process memory, which is fine for single-node deployments.
func NewSessions(redisURL string, log *slog.Logger) (*Sessions, error) {
	if redisURL != "" {
		r, err := NewRedis(redisURL, "sess:", log)
		if err == nil {
			return &Sessions{cache: r}, nil
		}
		log.LogAttrs(context.Background(), slog.LevelWarn,
			"redis unavailable, falling back to in-memory sessions",
			slog.String("error", err.Error()))
	}
	m, err := NewMemory(100_000, 24*time.Hour)
	if err != nil {
		return nil, err
	}
	return &Sessions{cache: m}, nil
}

// Ping reports backend health. The in-memory fallback is always healthy.
func (s *Sessions) Ping(ctx context.Context) error {
	if p, ok := s.cache.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Revoke marks a token ID revoked until its natural expiry.
func (s *Sessions) Revoke(ctx context.Context, jti string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		// Already expired; nothing to remember.
		return nil
	}
	s.cache.Set(ctx, "revoked:"+jti, []byte{1}, ttl)
	return nil
}

// IsRevoked reports whether a token ID has been revoked.
func (s *Sessions) IsRevoked(ctx context.Context, jti string) (bool, error) {
	_, ok := s.cache.Get(ctx, "revoked:"+jti)
	return ok, nil
}

// Put stores an arbitrary session value.
func (s *Sessions) Put(ctx context.Context, key string, val []byte, ttl time.Duration) {
	s.cache.Set(ctx, key, val, ttl)
}

// Take retrieves a session value.
func (s *Sessions) Take(ctx context.Context, key string) ([]byte, bool) {
	return s.cache.Get(ctx, key)
}

// Drop removes a session value.
func (s *Sessions) Drop(ctx context.Context, key string) {
	s.cache.Delete(ctx, key)
}
