package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	core "github.com/switchboard-ai/switchboard/internal"
	"github.com/switchboard-ai/switchboard/internal/auth"
)

// loginBody is the POST /auth/login request schema.
type loginBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// tokenPair is the response schema for login and refresh.
type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"` // access token lifetime, seconds
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.deps.Users == nil || s.deps.JWT == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse("authentication not configured"))
		return
	}
	var body loginBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Username == "" || body.Password == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse("username and password are required"))
		return
	}

	u, err := s.deps.Users.GetUserByUsername(r.Context(), body.Username)
	if err != nil {
		// Same answer for unknown user and bad password.
		s.loginFailed(w, r, body.Username, "unknown user")
		return
	}
	if err := auth.CheckPassword(u.PasswordHash, body.Password); err != nil {
		s.loginFailed(w, r, body.Username, "bad password")
		return
	}

	access, refresh, err := s.deps.JWT.IssuePair(u)
	if err != nil {
		writeError(w, err)
		return
	}
	if s.deps.Audit != nil {
		s.deps.Audit.AuthSuccess(r.Context(), u.ID, "password", clientIP(r), r.UserAgent())
	}
	writeJSON(w, http.StatusOK, tokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int(auth.AccessTokenTTL.Seconds()),
	})
}

func (s *server) loginFailed(w http.ResponseWriter, r *http.Request, username, reason string) {
	if s.deps.Audit != nil {
		s.deps.Audit.AuthFailure(r.Context(), username, reason, clientIP(r), r.UserAgent())
	}
	writeJSON(w, http.StatusUnauthorized, errorResponse("invalid username or password"))
}

func (s *server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.deps.Users == nil || s.deps.JWT == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse("authentication not configured"))
		return
	}
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RefreshToken == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse("refresh_token is required"))
		return
	}
	access, refresh, err := s.deps.JWT.Refresh(r.Context(), body.RefreshToken, s.deps.Users.GetUserByID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int(auth.AccessTokenTTL.Seconds()),
	})
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if s.deps.JWT == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse("authentication not configured"))
		return
	}
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if err := s.deps.JWT.Revoke(r.Context(), raw); err != nil {
		writeError(w, err)
		return
	}
	if s.deps.Audit != nil {
		if id := core.IdentityFromContext(r.Context()); id != nil {
			s.deps.Audit.Event(r.Context(), &core.AuditEvent{
				EventType: core.AuditAuthLogout,
				UserID:    id.UserID,
				IPAddress: clientIP(r),
			})
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (s *server) handleMe(w http.ResponseWriter, r *http.Request) {
	id := core.IdentityFromContext(r.Context())
	if id == nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse("authentication required"))
		return
	}
	writeJSON(w, http.StatusOK, id)
}

// --- admin ---

// createUserBody is the POST /auth/users request schema.
type createUserBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
}

func (s *server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	caller := core.IdentityFromContext(r.Context())
	if err := auth.RequireRole(caller, core.RoleAdmin); err != nil {
		s.denied(w, r, caller, "user", "")
		return
	}
	if s.deps.Users == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse("user store not configured"))
		return
	}

	var body createUserBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Username == "" || body.Password == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse("username and password are required"))
		return
	}
	role := body.Role
	if role == "" {
		role = core.RoleStandard
	}
	if _, ok := core.RolePermissions[role]; !ok {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse(fmt.Sprintf("unknown role %q", role)))
		return
	}
	hash, err := auth.HashPassword(body.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	u := &core.User{
		ID:           uuid.Must(uuid.NewV7()).String(),
		Username:     body.Username,
		Email:        body.Email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.deps.Users.CreateUser(r.Context(), u); err != nil {
		if errors.Is(err, core.ErrConflict) {
			writeJSON(w, http.StatusConflict, errorResponse("username already taken"))
			return
		}
		writeError(w, err)
		return
	}
	if s.deps.Audit != nil {
		s.deps.Audit.Event(r.Context(), &core.AuditEvent{
			EventType:    core.AuditResourceCreate,
			UserID:       caller.UserID,
			ResourceType: "user",
			ResourceID:   u.ID,
			Details:      map[string]any{"username": u.Username, "role": u.Role},
		})
	}
	writeJSON(w, http.StatusCreated, u)
}

// createKeyBody is the POST /auth/users/{id}/api-keys request schema.
type createKeyBody struct {
	Name      string     `json:"name,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// createKeyResponse carries the plaintext key exactly once.
type createKeyResponse struct {
	APIKey string       `json:"api_key"`
	Key    *core.APIKey `json:"key"`
}

func (s *server) handleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	caller := core.IdentityFromContext(r.Context())
	if err := auth.RequireRole(caller, core.RoleAdmin); err != nil {
		s.denied(w, r, caller, "api_key", "")
		return
	}
	userID := chi.URLParam(r, "id")
	if _, err := s.deps.Users.GetUserByID(r.Context(), userID); err != nil {
		writeError(w, err)
		return
	}

	var body createKeyBody
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse("invalid JSON body"))
			return
		}
	}

	raw, rec, err := auth.GenerateKey(userID, body.Name, body.ExpiresAt)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Users.CreateAPIKey(r.Context(), rec); err != nil {
		writeError(w, err)
		return
	}
	if s.deps.Audit != nil {
		s.deps.Audit.Event(r.Context(), &core.AuditEvent{
			EventType:    core.AuditAdminAction,
			UserID:       caller.UserID,
			ResourceType: "api_key",
			ResourceID:   rec.ID,
			Details:      map[string]any{"action": "create", "for_user": userID},
		})
	}
	writeJSON(w, http.StatusCreated, createKeyResponse{APIKey: raw, Key: rec})
}

func (s *server) handleListAPIKeys(w http.ResponseWriter, r *http.Request) {
	caller := core.IdentityFromContext(r.Context())
	if err := auth.RequireRole(caller, core.RoleAdmin); err != nil {
		s.denied(w, r, caller, "api_key", "")
		return
	}
	keys, err := s.deps.Users.ListAPIKeys(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

func (s *server) handleRevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	caller := core.IdentityFromContext(r.Context())
	if err := auth.RequireRole(caller, core.RoleAdmin); err != nil {
		s.denied(w, r, caller, "api_key", chi.URLParam(r, "kid"))
		return
	}
	kid := chi.URLParam(r, "kid")
	if err := s.deps.Users.RevokeAPIKey(r.Context(), kid, time.Now().UTC()); err != nil {
		writeError(w, err)
		return
	}
	if s.deps.APIKeys != nil {
		s.deps.APIKeys.InvalidateByKeyID(kid)
	}
	if s.deps.Audit != nil {
		s.deps.Audit.Event(r.Context(), &core.AuditEvent{
			EventType:    core.AuditAdminAction,
			UserID:       caller.UserID,
			ResourceType: "api_key",
			ResourceID:   kid,
			Details:      map[string]any{"action": "revoke"},
		})
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	caller := core.IdentityFromContext(r.Context())
	if err := auth.RequireRole(caller, core.RoleAdmin); err != nil {
		s.denied(w, r, caller, "audit_log", "")
		return
	}
	if s.deps.AuditLogs == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse("audit store not configured"))
		return
	}
	q := r.URL.Query()
	limit := queryInt(q.Get("limit"), 100)
	offset := queryInt(q.Get("offset"), 0)
	events, err := s.deps.AuditLogs.GetAuditLogs(r.Context(),
		q.Get("user_id"), core.AuditEventType(q.Get("event_type")), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// denied audits and rejects an authorization failure.
func (s *server) denied(w http.ResponseWriter, r *http.Request, caller *core.Identity, resourceType, resourceID string) {
	if caller == nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse("authentication required"))
		return
	}
	if s.deps.Audit != nil {
		s.deps.Audit.PermissionDenied(r.Context(), caller.UserID, resourceType, resourceID)
	}
	writeJSON(w, http.StatusForbidden, errorResponse("permission denied"))
}

func queryInt(v string, fallback int) int {
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
