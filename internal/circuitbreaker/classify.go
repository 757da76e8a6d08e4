package circuitbreaker

import (
	"context"
	"errors"
	"net"
	"os"

	core "github.com/switchboard-ai/switchboard/internal"
)

// CountsAsFailure reports whether an error should advance the breaker's
// consecutive-failure count. Upstream faults count; caller mistakes and
// caller cancellation do not.
func CountsAsFailure(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, core.ErrCancelled):
		// The caller gave up; the upstream did nothing wrong.
		return false
	case errors.Is(err, core.ErrProtocol), errors.Is(err, core.ErrValidation):
		// 4xx-class errors are the request's fault, not the tool's.
		return false
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded),
		errors.Is(err, core.ErrTimeout):
		return true
	case errors.Is(err, core.ErrUpstream), errors.Is(err, core.ErrUpstreamRate),
		errors.Is(err, core.ErrUnavailable):
		return true
	}

	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return true
	}

	// Unclassified errors (connection refused etc.) count as upstream faults.
	return true
}
