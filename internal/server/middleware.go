package server

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	core "github.com/switchboard-ai/switchboard/internal"
)

// statusWriterPool eliminates 1 alloc/req from &statusWriter{} escaping to
// heap. Reset fields on Get, nil ResponseWriter on Put to avoid retaining
// references.
var statusWriterPool = sync.Pool{
	New: func() any { return &statusWriter{} },
}

// bodyLimit caps request bodies at bodyLimitBytes. Oversized declared
// bodies are rejected up front; chunked bodies fail at read time via
// MaxBytesReader.
func (s *server) bodyLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > bodyLimitBytes {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse("request body too large"))
			return
		}
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, bodyLimitBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader uses the canonical MIME form so direct map access skips
// textproto.CanonicalMIMEHeaderKey.
const requestIDHeader = "X-Request-Id"

// requestID adds a UUID v7 request ID to the context and response header,
// honoring an incoming X-Request-ID.
func (s *server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if vals := r.Header[requestIDHeader]; len(vals) > 0 {
			id = vals[0]
		} else {
			id = uuid.Must(uuid.NewV7()).String()
		}
		w.Header()[requestIDHeader] = []string{id}
		ctx := core.ContextWithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// recovery catches panics and returns 500.
func (s *server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.deps.Log.LogAttrs(r.Context(), slog.LevelError, "panic recovered",
					slog.Any("error", rec),
					slog.String("path", r.URL.Path),
				)
				writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// logging logs each request with method, path, status, and duration.
func (s *server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := statusWriterPool.Get().(*statusWriter)
		sw.ResponseWriter = w
		sw.status = http.StatusOK
		sw.wroteHeader = false
		next.ServeHTTP(sw, r)
		// LogAttrs with typed attrs keeps values on the stack.
		s.deps.Log.LogAttrs(r.Context(), slog.LevelInfo, "request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", sw.status),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			slog.String("request_id", core.RequestIDFromContext(r.Context())),
		)
		sw.ResponseWriter = nil
		statusWriterPool.Put(sw)
	})
}

// Pre-allocated security header values.
var (
	hdrNosniff     = []string{"nosniff"}
	hdrFrameDeny   = []string{"DENY"}
	hdrXSS         = []string{"1; mode=block"}
	hdrReferrer    = []string{"strict-origin-when-cross-origin"}
	hdrPermissions = []string{"geolocation=(), microphone=(), camera=()"}
	hdrHSTS        = []string{"max-age=31536000; includeSubDomains; preload"}
	hdrCSP         = []string{"default-src 'none'; frame-ancestors 'none'"}
)

// securityHeaders stamps the hardening header set on every response.
// HSTS only makes sense over TLS.
func (s *server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h["X-Content-Type-Options"] = hdrNosniff
		h["X-Frame-Options"] = hdrFrameDeny
		h["X-Xss-Protection"] = hdrXSS
		h["Referrer-Policy"] = hdrReferrer
		h["Permissions-Policy"] = hdrPermissions
		h["Content-Security-Policy"] = hdrCSP
		if r.TLS != nil {
			h["Strict-Transport-Security"] = hdrHSTS
		}
		next.ServeHTTP(w, r)
	})
}

// measure records request count, duration, and in-flight gauge.
func (s *server) measure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := s.deps.Metrics
		m.ActiveRequests.Inc()
		start := time.Now()
		sw := statusWriterPool.Get().(*statusWriter)
		sw.ResponseWriter = w
		sw.status = http.StatusOK
		sw.wroteHeader = false
		next.ServeHTTP(sw, r)
		m.ActiveRequests.Dec()
		m.RequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(sw.status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
		sw.ResponseWriter = nil
		statusWriterPool.Put(sw)
	})
}

// authenticate validates credentials and injects Identity into context.
// A credential is either an API key (X-API-Key header, sb_-prefixed
// bearer, or api_key query parameter) or a JWT bearer token.
func (s *server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := s.resolveIdentity(r)
		if err != nil {
			if s.deps.Audit != nil {
				s.deps.Audit.AuthFailure(r.Context(), "", err.Error(), clientIP(r), r.UserAgent())
			}
			writeJSON(w, errorStatus(err), errorResponse(err.Error()))
			return
		}
		ctx := core.ContextWithIdentity(r.Context(), identity)
		if ctx == r.Context() {
			// Identity stored via pointer mutation; skip Request.WithContext.
			next.ServeHTTP(w, r)
		} else {
			next.ServeHTTP(w, r.WithContext(ctx))
		}
	})
}

func (s *server) resolveIdentity(r *http.Request) (*core.Identity, error) {
	if k := r.Header.Get("X-API-Key"); k != "" {
		return s.authAPIKey(r.Context(), k)
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		tok := strings.TrimPrefix(h, "Bearer ")
		if strings.HasPrefix(tok, core.APIKeyPrefix) {
			return s.authAPIKey(r.Context(), tok)
		}
		if s.deps.JWT != nil {
			return s.deps.JWT.Authenticate(r.Context(), core.Credential{Kind: "jwt", Value: tok})
		}
		return s.authAPIKey(r.Context(), tok)
	}
	if k := r.URL.Query().Get("api_key"); k != "" {
		return s.authAPIKey(r.Context(), k)
	}
	return nil, core.ErrUnauthorized
}

func (s *server) authAPIKey(ctx context.Context, raw string) (*core.Identity, error) {
	if s.deps.APIKeys == nil {
		return nil, core.ErrUnauthorized
	}
	return s.deps.APIKeys.Authenticate(ctx, core.Credential{Kind: "apikey", Value: raw})
}

// rateLimit applies the per-identity token bucket. The bucket key prefers
// the credential subject (API-key prefix or JWT sub) over the remote
// address.
func (s *server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reg := s.deps.RateLimiter
		if reg == nil {
			next.ServeHTTP(w, r)
			return
		}
		key := clientIP(r)
		if id := core.IdentityFromContext(r.Context()); id != nil && id.Subject != "" {
			key = id.Subject
		}
		res := reg.GetOrCreate(key).TryAcquire(1)
		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
		h.Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
		if !res.Allowed {
			if s.deps.Metrics != nil {
				s.deps.Metrics.RateLimitRejects.WithLabelValues("request").Inc()
			}
			// Clients back off for the full refill window, not the next
			// single-token refill.
			h.Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, errorResponse("rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// csrf enforces double-submit tokens on state-changing methods.
func (s *server) csrf(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		cookie, err := r.Cookie("csrf_token")
		header := r.Header.Get("X-CSRF-Token")
		if err != nil || header == "" || cookie.Value != header {
			writeJSON(w, http.StatusForbidden, errorResponse("CSRF token missing or invalid"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// sqlDangerPatterns are lowercase substrings rejected in query parameters.
var sqlDangerPatterns = []string{
	"--", ";", "/*", "*/", "union select", "drop table", "insert into",
	"delete from", "' or '", "\" or \"",
}

const maxQueryParamLen = 1000

// validateInput rejects query parameters carrying control characters or
// SQL-injection shaped content. Request bodies are validated per handler.
func (s *server) validateInput(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for name, vals := range r.URL.Query() {
			for _, v := range vals {
				if err := checkQueryParam(name, v); err != nil {
					writeJSON(w, http.StatusBadRequest, errorResponse(err.Error()))
					return
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

func checkQueryParam(name, v string) error {
	if len(v) > maxQueryParamLen {
		return fmt.Errorf("query parameter %q too long", name)
	}
	for _, c := range v {
		if c < 0x20 || c == 0x7f {
			return fmt.Errorf("query parameter %q contains control characters", name)
		}
	}
	lower := strings.ToLower(v)
	for _, p := range sqlDangerPatterns {
		if strings.Contains(lower, p) {
			return fmt.Errorf("query parameter %q contains forbidden pattern", name)
		}
	}
	return nil
}

// clientIP extracts the remote address without the port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// statusWriter wraps ResponseWriter to capture the HTTP status code.
// WriteHeader records only the first status code, matching net/http
// semantics.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if !sw.wroteHeader {
		sw.wroteHeader = true
	}
	return sw.ResponseWriter.Write(b)
}

// Flush delegates to the underlying ResponseWriter so streaming responses
// work through the middleware chain.
func (sw *statusWriter) Flush() {
	if f, ok := sw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack delegates to the underlying ResponseWriter so the WebSocket
// upgrade works through the middleware chain.
func (sw *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := sw.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

// Unwrap returns the underlying ResponseWriter for http.ResponseController.
func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}
