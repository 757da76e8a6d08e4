// Package core defines domain types and interfaces for the Switchboard
// LLM front door. This package has no project imports -- it is the
// dependency root.
package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// --- Messages ---

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is the neutral chat message shape shared by all adapters.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"` // seconds since epoch
}

// Usage holds token counts reported by an upstream provider.
// OutputTokens may be absent when the upstream does not report it.
type Usage struct {
	InputTokens  int  `json:"input_tokens"`
	OutputTokens *int `json:"output_tokens,omitempty"`
}

// ResponseMetadata carries provider-reported details about a completion.
type ResponseMetadata struct {
	Model     string   `json:"model,omitempty"`
	Usage     *Usage   `json:"usage,omitempty"`
	Citations []string `json:"citations,omitempty"`
}

// Response is the neutral completion returned by an adapter.
type Response struct {
	Content  string           `json:"content"`
	Tool     string           `json:"tool"`
	Metadata ResponseMetadata `json:"metadata"`
}

// StreamChunk is one element of a streaming completion. A chunk carries
// either text content, a terminal error, or the Done sentinel.
type StreamChunk struct {
	Content string
	Usage   *Usage // non-nil at most once, alongside or before Done
	Done    bool
	Err     error
}

// --- Conversation context ---

// ToolCall records one adapter invocation within a conversation.
type ToolCall struct {
	Tool      string `json:"tool"`
	Request   string `json:"request"`
	Response  string `json:"response"`
	Timestamp int64  `json:"timestamp"`
}

// Conversation is the persistent per-conversation snapshot: messages,
// tool-call log, and the opaque codebase attachment supplied by an
// external indexer.
type Conversation struct {
	ConversationID  string         `json:"conversation_id"`
	ProjectID       string         `json:"project_id,omitempty"`
	UserID          string         `json:"user_id,omitempty"`
	Messages        []Message      `json:"messages"`
	CodebaseContext map[string]any `json:"codebase_context,omitempty"`
	ToolHistory     []ToolCall     `json:"tool_history"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// --- Adapter capability ---

// Capability flags a provider adapter may support.
type Capability string

const (
	CapChat            Capability = "chat"
	CapStreaming       Capability = "streaming"
	CapCodeContext     Capability = "code_context"
	CapWebSearch       Capability = "web_search"
	CapImageGeneration Capability = "image_generation"
	CapFunctionCalling Capability = "function_calling"
)

// Capabilities describes what an adapter can do.
type Capabilities struct {
	Supported           []Capability `json:"supported_capabilities"`
	MaxContextTokens    int          `json:"max_context_length"`
	SupportsStreaming   bool         `json:"supports_streaming"`
	SupportsCodeContext bool         `json:"supports_code_context"`
}

// Has reports whether the capability set includes c.
func (cs Capabilities) Has(c Capability) bool {
	for _, have := range cs.Supported {
		if have == c {
			return true
		}
	}
	return false
}

// Adapter is the interface all LLM provider adapters implement.
// StreamChat returns a finite channel that must be fully drained or the
// context cancelled to release the upstream connection.
type Adapter interface {
	// Name returns the tool identifier (e.g. "claude", "gpt").
	Name() string
	// Capabilities returns the static capability descriptor.
	Capabilities() Capabilities
	// IsAvailable reports whether the adapter is configured and reachable.
	IsAvailable(ctx context.Context) bool
	// Chat sends a non-streaming chat request.
	Chat(ctx context.Context, messages []Message, convo *Conversation) (*Response, error)
	// StreamChat sends a streaming chat request.
	StreamChat(ctx context.Context, messages []Message, convo *Conversation) (<-chan StreamChunk, error)
}

// --- Identity ---

// User roles.
const (
	RoleAdmin    = "admin"
	RoleStandard = "user"
	RoleReadonly = "readonly"
)

// User is an account in the user store.
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email,omitempty"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	APIKeyHash   string     `json:"-"` // legacy per-user key hash
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// APIKey is an opaque credential record. The raw key is never stored;
// only the SHA-256 hash survives issuance.
type APIKey struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	KeyHash   string     `json:"-"`
	KeyPrefix string     `json:"key_prefix"` // first 8 chars for display
	Name      string     `json:"name,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// Valid reports whether the key is usable at time now:
// not revoked, and either without expiry or not yet expired.
func (k *APIKey) Valid(now time.Time) bool {
	if k.RevokedAt != nil {
		return false
	}
	return k.ExpiresAt == nil || k.ExpiresAt.After(now)
}

// Identity is the authenticated caller attached to request context.
// Populated by either JWT or API key auth.
type Identity struct {
	UserID     string     `json:"user_id"`
	Username   string     `json:"username"`
	Role       string     `json:"role"`
	KeyID      string     `json:"key_id,omitempty"`  // set for API-key auth
	Subject    string     `json:"subject"`           // key prefix or JWT sub
	Perms      Permission `json:"-"`                 // resolved bitmask
	AuthMethod string     `json:"auth_method"`       // "jwt" or "apikey"
}

// --- RBAC ---

// Permission is a bitmask of authorization capabilities.
type Permission uint32

const (
	PermChatRead Permission = 1 << iota
	PermChatWrite
	PermChatDelete
	PermProjectRead
	PermProjectWrite
	PermProjectDelete
	PermAdminManage
	PermAdminUsers
	PermAdminConfig
)

// Can reports whether the identity has the given permission.
func (id *Identity) Can(p Permission) bool { return id.Perms&p == p }

// RolePermissions maps role names to permission bitmasks.
var RolePermissions = map[string]Permission{
	RoleAdmin: PermChatRead | PermChatWrite | PermChatDelete |
		PermProjectRead | PermProjectWrite | PermProjectDelete |
		PermAdminManage | PermAdminUsers | PermAdminConfig,
	RoleStandard: PermChatRead | PermChatWrite | PermProjectRead | PermProjectWrite,
	RoleReadonly: PermChatRead | PermProjectRead,
}

// --- Audit ---

// AuditEventType is the closed vocabulary of audit events.
type AuditEventType string

const (
	AuditAuthSuccess      AuditEventType = "auth.success"
	AuditAuthFailure      AuditEventType = "auth.failure"
	AuditAuthLogout       AuditEventType = "auth.logout"
	AuditPermissionDenied AuditEventType = "permission.denied"
	AuditResourceAccess   AuditEventType = "resource.access"
	AuditResourceCreate   AuditEventType = "resource.create"
	AuditResourceUpdate   AuditEventType = "resource.update"
	AuditResourceDelete   AuditEventType = "resource.delete"
	AuditConfigChange     AuditEventType = "config.change"
	AuditAdminAction      AuditEventType = "admin.action"
)

// AuditEvent is an append-only security event.
type AuditEvent struct {
	ID           string         `json:"id"`
	EventType    AuditEventType `json:"event_type"`
	UserID       string         `json:"user_id,omitempty"`
	ResourceType string         `json:"resource_type,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	IPAddress    string         `json:"ip_address,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// --- Cost ---

// CostRecord is one append-only per-call cost row. CostUSD is fixed-point
// with six decimals, stored as micro-dollars.
type CostRecord struct {
	ID             int64     `json:"id"`
	Tool           string    `json:"tool"`
	Model          string    `json:"model,omitempty"`
	InputTokens    int       `json:"input_tokens"`
	OutputTokens   int       `json:"output_tokens"`
	CostUSD        float64   `json:"cost_usd"`
	ConversationID string    `json:"conversation_id,omitempty"`
	ProjectID      string    `json:"project_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// --- Context keys ---

type contextKey int

const ctxKeyMeta contextKey = 0

// requestMeta bundles per-request values into a single context allocation.
// The Identity field is set later by the auth middleware via mutation of
// the same pointer, avoiding a second context.WithValue + Request.WithContext.
type requestMeta struct {
	RequestID string
	Identity  *Identity
}

func metaFromContext(ctx context.Context) *requestMeta {
	m, _ := ctx.Value(ctxKeyMeta).(*requestMeta)
	return m
}

// IdentityFromContext extracts the authenticated identity from ctx, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	if m := metaFromContext(ctx); m != nil {
		return m.Identity
	}
	return nil
}

// ContextWithIdentity stores the identity in the existing requestMeta if
// present, falling back to new metadata (e.g. in tests).
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	if m := metaFromContext(ctx); m != nil {
		m.Identity = id
		return ctx
	}
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{Identity: id})
}

// RequestIDFromContext extracts the request ID from ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	if m := metaFromContext(ctx); m != nil {
		return m.RequestID
	}
	return ""
}

// ContextWithRequestID returns a context carrying the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{RequestID: id})
}

// --- Shared constants and helpers ---

// APIKeyPrefix is the prefix for all Switchboard API keys.
const APIKeyPrefix = "sb_"

// HashKey returns the hex-encoded SHA-256 hash of a raw API key.
func HashKey(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// --- Authenticator ---

// Credential is an extracted request credential prior to validation.
type Credential struct {
	Kind  string // "apikey" or "jwt"
	Value string
}

// Authenticator validates a credential and returns the caller identity.
type Authenticator interface {
	Authenticate(ctx context.Context, cred Credential) (*Identity, error)
}
