package server

import (
	"encoding/json"
	"errors"
	"net/http"

	core "github.com/switchboard-ai/switchboard/internal"
)

// jsonCT is a pre-allocated header value slice; direct map assignment
// avoids the []string{v} alloc that Header.Set creates.
var jsonCT = []string{"application/json"}

// apiError is the uniform JSON error body. Stack traces never leak.
type apiError struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func errorResponse(msg string) apiError { return apiError{Error: msg} }

// writeJSON serializes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header()["Content-Type"] = jsonCT
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError translates a domain error to its HTTP status and JSON body.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errorStatus(err), errorResponse(err.Error()))
}

// errorStatus maps domain sentinel errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, core.ErrUnauthorized),
		errors.Is(err, core.ErrInvalidCred),
		errors.Is(err, core.ErrKeyExpired),
		errors.Is(err, core.ErrKeyRevoked):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, core.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrRateLimited), errors.Is(err, core.ErrUpstreamRate):
		return http.StatusTooManyRequests
	case errors.Is(err, core.ErrNoAdapter):
		// No candidate adapter is a routing problem with the request.
		return http.StatusBadRequest
	case errors.Is(err, core.ErrValidation):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
