package core

import "errors"

// Sentinel errors for the switchboard domain. Transport layers translate
// these to HTTP statuses; the retry policy classifies the upstream set.
var (
	ErrUnauthorized    = errors.New("authentication required")
	ErrInvalidCred     = errors.New("invalid credential")
	ErrForbidden       = errors.New("permission denied")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrValidation      = errors.New("validation failed")
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrRateLimited     = errors.New("rate limited")
	ErrCircuitOpen     = errors.New("circuit open")
	ErrNoAdapter       = errors.New("no adapter for tool")
	ErrKeyExpired      = errors.New("api key expired")
	ErrKeyRevoked      = errors.New("api key revoked")

	// Upstream (adapter) failure taxonomy.
	ErrNotConfigured = errors.New("adapter not configured")
	ErrUnavailable   = errors.New("adapter unavailable")
	ErrTimeout       = errors.New("upstream timeout")
	ErrUpstream      = errors.New("upstream error")     // 5xx, retryable
	ErrUpstreamRate  = errors.New("upstream rate limit") // 429, retryable
	ErrProtocol      = errors.New("upstream protocol error") // other 4xx, not retryable
	ErrCancelled     = errors.New("request cancelled")
)
