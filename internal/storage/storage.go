// Package storage defines persistence interfaces for switchboard.
package storage

import (
	"context"
	"time"

	core "github.com/switchboard-ai/switchboard/internal"
)

// ContextStore manages conversation snapshot persistence. A save replaces
// the full serialized snapshot atomically (upsert by conversation id).
type ContextStore interface {
	SaveContext(ctx context.Context, conversationID, projectID string, snapshot []byte, updatedAt time.Time) error
	LoadContext(ctx context.Context, conversationID string) ([]byte, error)
	DeleteContext(ctx context.Context, conversationID string) error
	ListContexts(ctx context.Context, projectID string, limit, offset int) ([]ContextSummary, error)
}

// ContextSummary is one row of a context listing, newest first.
type ContextSummary struct {
	ConversationID string
	ProjectID      string
	UpdatedAt      time.Time
}

// MessageStore manages the append-only message table.
type MessageStore interface {
	AddMessage(ctx context.Context, conversationID string, m core.Message) (int64, error)
	GetMessages(ctx context.Context, conversationID string, limit, offset int) ([]core.Message, error)
}

// UserStore manages user accounts and API keys.
type UserStore interface {
	CreateUser(ctx context.Context, u *core.User) error
	GetUserByID(ctx context.Context, id string) (*core.User, error)
	GetUserByUsername(ctx context.Context, username string) (*core.User, error)
	// GetUserByAPIKeyHash searches both the legacy per-user hash column and
	// the api_keys table, honoring revocation and expiry.
	GetUserByAPIKeyHash(ctx context.Context, hash string) (*core.User, *core.APIKey, error)
	CreateAPIKey(ctx context.Context, k *core.APIKey) error
	RevokeAPIKey(ctx context.Context, id string, at time.Time) error
	// ListAPIKeys redacts KeyHash to its first 8 characters.
	ListAPIKeys(ctx context.Context, userID string) ([]*core.APIKey, error)
}

// AuditStore appends and queries audit events.
type AuditStore interface {
	LogAuditEvent(ctx context.Context, e *core.AuditEvent) error
	GetAuditLogs(ctx context.Context, userID string, eventType core.AuditEventType, limit, offset int) ([]*core.AuditEvent, error)
}

// CostFilter narrows a cost query. Zero values mean "no constraint".
type CostFilter struct {
	Start     time.Time
	End       time.Time
	Tool      string
	ProjectID string
}

// CostStore appends and queries cost records.
type CostStore interface {
	RecordCost(ctx context.Context, r *core.CostRecord) error
	GetCosts(ctx context.Context, f CostFilter) ([]*core.CostRecord, error)
}

// Store combines all storage interfaces over one engine.
type Store interface {
	ContextStore
	MessageStore
	UserStore
	AuditStore
	CostStore
	Ping(ctx context.Context) error
	Close() error
}
