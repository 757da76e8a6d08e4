// Package retry implements bounded retries with exponential backoff and
// jitter for upstream adapter calls.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net"
	"os"
	"time"

	core "github.com/switchboard-ai/switchboard/internal"
)

// Policy controls retry behavior.
type Policy struct {
	MaxAttempts int           // total attempts, including the first
	BaseDelay   time.Duration // delay before the second attempt
	MaxDelay    time.Duration // backoff ceiling
	Base        float64       // exponential growth factor; <= 1 means 2
	Jitter      bool          // scale each delay by U[0.75, 1.0]
}

// DefaultPolicy returns the standard upstream retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    8 * time.Second,
		Base:        2,
		Jitter:      true,
	}
}

// Retryable reports whether an error is worth another attempt: transient
// upstream faults and timeouts are; protocol errors and cancellation never
// are.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, core.ErrCancelled):
		return false
	case errors.Is(err, core.ErrProtocol), errors.Is(err, core.ErrValidation),
		errors.Is(err, core.ErrNotConfigured):
		return false
	case errors.Is(err, core.ErrUpstream), errors.Is(err, core.ErrUpstreamRate),
		errors.Is(err, core.ErrUnavailable), errors.Is(err, core.ErrTimeout):
		return true
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Delay returns the backoff before attempt n (0-based: Delay(0) precedes
// the second attempt). The exponential step is scaled by a jitter factor
// drawn uniformly from [0.75, 1.0] so synchronized clients spread out.
func (p Policy) Delay(n int) time.Duration {
	base := p.Base
	if base <= 1 {
		base = 2
	}
	d := time.Duration(float64(p.BaseDelay) * math.Pow(base, float64(n)))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if !p.Jitter {
		return d
	}
	jitter := 0.75 + 0.25*rand.Float64()
	return time.Duration(float64(d) * jitter)
}

// Do runs fn up to MaxAttempts times, sleeping the jittered backoff between
// attempts. It stops early on success, a non-retryable error, or context
// expiry; sleeps never outlive the context deadline.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := range attempts {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, err
		}

		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !Retryable(err) || attempt == attempts-1 {
			return zero, err
		}

		delay := p.Delay(attempt)
		if deadline, ok := ctx.Deadline(); ok {
			// No point sleeping past the deadline.
			if remaining := time.Until(deadline); remaining <= delay {
				return zero, lastErr
			}
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}
	return zero, lastErr
}
