// Package cache provides key-value caching for sessions and revoked
// tokens, backed by Redis when REDIS_URL is set and by process memory
// otherwise.
package cache

import (
	"context"
	"time"
)

// Cache is the key-value caching interface.
type Cache interface {
	// Get retrieves a cached value by key.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores a value with the given TTL.
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)
	// Delete removes a cached value.
	Delete(ctx context.Context, key string)
	// Purge removes all cached values.
	Purge(ctx context.Context)
}
