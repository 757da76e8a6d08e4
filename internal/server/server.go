// Package server implements the HTTP and WebSocket transport for
// switchboard.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	core "github.com/switchboard-ai/switchboard/internal"
	"github.com/switchboard-ai/switchboard/internal/app"
	"github.com/switchboard-ai/switchboard/internal/audit"
	"github.com/switchboard-ai/switchboard/internal/auth"
	"github.com/switchboard-ai/switchboard/internal/ratelimit"
	"github.com/switchboard-ai/switchboard/internal/storage"
	"github.com/switchboard-ai/switchboard/internal/telemetry"
)

// bodyLimitBytes caps request bodies; larger bodies get 413.
const bodyLimitBytes = 10 << 20

// Pinger reports backend health, satisfied by the storage engine and the
// session cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// TokenIssuer issues and revokes JWT pairs. *auth.JWTAuth satisfies it.
type TokenIssuer interface {
	IssuePair(u *core.User) (access, refresh string, err error)
	Authenticate(ctx context.Context, cred core.Credential) (*core.Identity, error)
	Refresh(ctx context.Context, rawRefresh string, lookup func(ctx context.Context, userID string) (*core.User, error)) (access, refresh string, err error)
	Revoke(ctx context.Context, raw string) error
}

// Deps holds all dependencies for the HTTP server.
type Deps struct {
	Log          *slog.Logger
	Orchestrator *app.Orchestrator
	APIKeys      *auth.APIKeyAuth    // nil = API-key auth disabled
	JWT          TokenIssuer         // nil = JWT auth disabled
	Users        storage.UserStore   // nil = auth routes return 503
	Audit        *audit.Logger       // nil = no audit events
	AuditLogs    storage.AuditStore  // backs GET /auth/audit/logs
	DB           Pinger              // readiness + health
	Cache        Pinger              // nil = no cache in health report
	RateLimiter  *ratelimit.Registry // nil = no rate limiting
	Metrics      *telemetry.Metrics  // nil = no request metrics
	Registry     *prometheus.Registry

	AllowedOrigins []string
	Development    bool
	EnableCSRF     bool
	MobileAPIKey   string // WebSocket auth-frame gate; empty disables
}

// New creates an http.Handler with all routes and middleware wired.
func New(deps Deps) http.Handler {
	s := &server{deps: deps}

	r := chi.NewRouter()

	// Global middleware, outermost first: body cap, CORS, request-ID,
	// recovery, request log, security headers, metrics.
	r.Use(s.bodyLimit)
	r.Use(s.corsHandler())
	r.Use(s.requestID)
	r.Use(s.recovery)
	r.Use(s.logging)
	r.Use(s.securityHeaders)
	if deps.Metrics != nil {
		r.Use(s.measure)
	}

	// System endpoints and the login path (no credential gate).
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Get("/live", s.handleLive)
	if deps.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}
	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/refresh", s.handleRefresh)

	// WebSocket chat does its own frame-based handshake.
	r.Get("/ws/chat", s.handleWSChat)

	// Credentialed API.
	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.rateLimit)
		if deps.EnableCSRF {
			r.Use(s.csrf)
		}
		r.Use(s.validateInput)

		r.Post("/api/v1/chat", s.handleChat)
		r.Get("/api/v1/conversations/{id}", s.handleGetConversation)
		r.Get("/api/v1/tools", s.handleTools)

		r.Post("/auth/logout", s.handleLogout)
		r.Get("/auth/me", s.handleMe)

		// Admin-only.
		r.Post("/auth/users", s.handleCreateUser)
		r.Post("/auth/users/{id}/api-keys", s.handleCreateAPIKey)
		r.Get("/auth/users/{id}/api-keys", s.handleListAPIKeys)
		r.Delete("/auth/users/{id}/api-keys/{kid}", s.handleRevokeAPIKey)
		r.Get("/auth/audit/logs", s.handleAuditLogs)
	})

	return r
}

type server struct {
	deps Deps
}

// corsHandler builds the CORS middleware from the configured origin list.
// A wildcard origin is honored only in development.
func (s *server) corsHandler() func(http.Handler) http.Handler {
	origins := make([]string, 0, len(s.deps.AllowedOrigins))
	for _, o := range s.deps.AllowedOrigins {
		if o == "*" && !s.deps.Development {
			continue
		}
		origins = append(origins, o)
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID", "X-CSRF-Token"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
