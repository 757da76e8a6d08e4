package provider

import (
	"fmt"
	"io"
	"net/http"

	core "github.com/switchboard-ai/switchboard/internal"
)

// APIError represents an error response from an upstream provider API.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Body)
}

// HTTPStatus returns the upstream status code for failover decisions.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// ParseAPIError reads the response body (capped at 4KB) and returns a
// structured error wrapping the matching upstream sentinel, so callers can
// classify with errors.Is without inspecting status codes.
func ParseAPIError(providerName string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	apiErr := &APIError{
		Provider:   providerName,
		StatusCode: resp.StatusCode,
		Body:       string(body),
	}
	return fmt.Errorf("%w: %w", classifyStatus(resp.StatusCode), apiErr)
}

// classifyStatus maps an upstream HTTP status to the error taxonomy:
// 429 is a retryable rate limit, 5xx a retryable upstream fault, and
// everything else a non-retryable protocol error.
func classifyStatus(status int) error {
	switch {
	case status == http.StatusTooManyRequests:
		return core.ErrUpstreamRate
	case status >= http.StatusInternalServerError:
		return core.ErrUpstream
	default:
		return core.ErrProtocol
	}
}
