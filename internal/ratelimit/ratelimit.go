// Package ratelimit implements per-identity request limiting with
// lazy-refill token buckets (no background goroutine).
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Result is the outcome of a rate limit check.
type Result struct {
	Allowed           bool
	Limit             int64
	Remaining         int64
	RetryAfterSeconds float64
}

// Bucket is a token bucket with lazy refill. Capacity and refill rate are
// independent so bursts can exceed the steady-state rate.
type Bucket struct {
	mu       sync.Mutex
	tokens   float64
	max      float64
	rate     float64 // tokens per second
	lastFill time.Time
	lastUsed time.Time
}

// NewBucket creates a full bucket with the given capacity and refill rate
// in tokens per second.
func NewBucket(capacity int64, perSecond float64) *Bucket {
	now := time.Now()
	return &Bucket{
		tokens:   float64(capacity),
		max:      float64(capacity),
		rate:     perSecond,
		lastFill: now,
		lastUsed: now,
	}
}

// NewPerMinute creates a bucket sized and refilled for a per-minute limit.
func NewPerMinute(limit int64) *Bucket {
	return NewBucket(limit, float64(limit)/60.0)
}

// refill adds tokens based on elapsed time since last refill.
// Caller holds mu.
func (b *Bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastFill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens = min(b.max, b.tokens+elapsed*b.rate)
	b.lastFill = now
}

// TryAcquire attempts to consume n tokens without blocking.
func (b *Bucket) TryAcquire(n int64) Result {
	now := time.Now()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastUsed = now
	b.refill(now)

	need := float64(n)
	if b.tokens >= need {
		b.tokens -= need
		return Result{Allowed: true, Limit: int64(b.max), Remaining: int64(b.tokens)}
	}
	return Result{
		Allowed:           false,
		Limit:             int64(b.max),
		Remaining:         int64(b.tokens),
		RetryAfterSeconds: (need - b.tokens) / b.rate,
	}
}

// Acquire blocks until n tokens are available or the context is done.
func (b *Bucket) Acquire(ctx context.Context, n int64) error {
	for {
		res := b.TryAcquire(n)
		if res.Allowed {
			return nil
		}
		wait := time.Duration(res.RetryAfterSeconds * float64(time.Second))
		if wait < time.Millisecond {
			wait = time.Millisecond
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Remaining returns the current token count after a refill.
func (b *Bucket) Remaining() int64 {
	now := time.Now()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill(now)
	return int64(b.tokens)
}

// Registry manages per-identity buckets sharing one limit configuration.
type Registry struct {
	mu        sync.RWMutex
	buckets   map[string]*Bucket
	perMinute int64
}

// NewRegistry creates a registry issuing buckets with the given per-minute limit.
func NewRegistry(perMinute int64) *Registry {
	return &Registry{
		buckets:   make(map[string]*Bucket),
		perMinute: perMinute,
	}
}

// GetOrCreate returns the bucket for key, creating a full one if needed.
func (r *Registry) GetOrCreate(key string) *Bucket {
	r.mu.RLock()
	b, ok := r.buckets[key]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Double-check after acquiring write lock.
	if b, ok := r.buckets[key]; ok {
		return b
	}
	b = NewPerMinute(r.perMinute)
	r.buckets[key] = b
	return b
}

// EvictStale removes buckets not used since cutoff.
func (r *Registry) EvictStale(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for k, b := range r.buckets {
		b.mu.Lock()
		stale := b.lastUsed.Before(cutoff)
		b.mu.Unlock()
		if stale {
			delete(r.buckets, k)
			evicted++
		}
	}
	return evicted
}
