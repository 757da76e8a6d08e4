package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Cache backed by a Redis server, for deployments where
// revocations and sessions must survive restarts and span replicas.
type Redis struct {
	client *redis.Client
	prefix string
	log    *slog.Logger
}

// NewRedis connects using a REDIS_URL-style connection string.
func NewRedis(url, prefix string, log *slog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{client: client, prefix: prefix, log: log}, nil
}

func (r *Redis) key(k string) string { return r.prefix + k }

// Get retrieves a value. Errors other than a miss are logged and reported
// as misses so a degraded Redis does not take requests down with it.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.log.LogAttrs(ctx, slog.LevelWarn, "redis get failed",
				slog.String("key", key), slog.String("error", err.Error()))
		}
		return nil, false
	}
	return val, true
}

// Set stores a value with the given TTL.
func (r *Redis) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	if err := r.client.Set(ctx, r.key(key), val, ttl).Err(); err != nil {
		r.log.LogAttrs(ctx, slog.LevelWarn, "redis set failed",
			slog.String("key", key), slog.String("error", err.Error()))
	}
}

// Delete removes a value.
func (r *Redis) Delete(ctx context.Context, key string) {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		r.log.LogAttrs(ctx, slog.LevelWarn, "redis del failed",
			slog.String("key", key), slog.String("error", err.Error()))
	}
}

// Purge removes all values under this prefix.
func (r *Redis) Purge(ctx context.Context) {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		r.client.Del(ctx, iter.Val())
	}
	if err := iter.Err(); err != nil {
		r.log.LogAttrs(ctx, slog.LevelWarn, "redis purge failed",
			slog.String("error", err.Error()))
	}
}

// Ping checks the server connection for health reporting.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
