// Package contextmgr maintains per-conversation state: the persistent
// snapshot, the append-only message log, and the policies that keep a
// history inside a model's context window (fitting, compression,
// summarization).
package contextmgr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	core "github.com/switchboard-ai/switchboard/internal"
	"github.com/switchboard-ai/switchboard/internal/storage"
)

// Sealer encrypts snapshots at rest. *auth.Encryptor satisfies it.
type Sealer interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(encoded string) (string, error)
}

// Manager owns conversation snapshots. Mutations go through AddMessage /
// AddToolCall so the snapshot and the message log stay consistent.
type Manager struct {
	contexts storage.ContextStore
	messages storage.MessageStore
	sealer   Sealer
	log      *slog.Logger
	now      func() time.Time
}

// NewManager creates a Manager over the given stores.
func NewManager(contexts storage.ContextStore, messages storage.MessageStore, log *slog.Logger) *Manager {
	return &Manager{
		contexts: contexts,
		messages: messages,
		log:      log,
		now:      time.Now,
	}
}

// UseSealer enables at-rest snapshot encryption. Existing cleartext
// snapshots become unreadable, so enable it before first use.
func (m *Manager) UseSealer(s Sealer) { m.sealer = s }

// Get loads an existing conversation snapshot.
func (m *Manager) Get(ctx context.Context, conversationID string) (*core.Conversation, error) {
	snapshot, err := m.contexts.LoadContext(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load context %s: %w", conversationID, err)
	}
	if m.sealer != nil {
		plain, err := m.sealer.Decrypt(string(snapshot))
		if err != nil {
			return nil, fmt.Errorf("unseal context %s: %w", conversationID, err)
		}
		snapshot = []byte(plain)
	}
	var convo core.Conversation
	if err := json.Unmarshal(snapshot, &convo); err != nil {
		return nil, fmt.Errorf("decode context %s: %w", conversationID, err)
	}
	return &convo, nil
}

// GetOrCreate loads a conversation snapshot, or returns a fresh one when
// none exists yet. The fresh conversation is not persisted until the
// first save.
func (m *Manager) GetOrCreate(ctx context.Context, conversationID, projectID, userID string) (*core.Conversation, error) {
	convo, err := m.Get(ctx, conversationID)
	if errors.Is(err, core.ErrNotFound) {
		return &core.Conversation{
			ConversationID: conversationID,
			ProjectID:      projectID,
			UserID:         userID,
			UpdatedAt:      m.now().UTC(),
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return convo, nil
}

// Save compresses and (if oversized) summarizes the history, then writes
// the snapshot atomically.
func (m *Manager) Save(ctx context.Context, convo *core.Conversation) error {
	convo.Messages = Summarize(Compress(convo.Messages))
	convo.UpdatedAt = m.now().UTC()

	snapshot, err := json.Marshal(convo)
	if err != nil {
		return fmt.Errorf("encode context %s: %w", convo.ConversationID, err)
	}
	if m.sealer != nil {
		sealed, err := m.sealer.Encrypt(string(snapshot))
		if err != nil {
			return fmt.Errorf("seal context %s: %w", convo.ConversationID, err)
		}
		snapshot = []byte(sealed)
	}
	if err := m.contexts.SaveContext(ctx, convo.ConversationID, convo.ProjectID, snapshot, convo.UpdatedAt); err != nil {
		return fmt.Errorf("save context %s: %w", convo.ConversationID, err)
	}
	return nil
}

// AddMessage appends a message to the conversation, records it in the
// message log, and saves the snapshot. A zero timestamp is backfilled.
func (m *Manager) AddMessage(ctx context.Context, convo *core.Conversation, msg core.Message) error {
	if msg.Timestamp == 0 {
		msg.Timestamp = m.now().Unix()
	}
	convo.Messages = append(convo.Messages, msg)

	if m.messages != nil {
		if _, err := m.messages.AddMessage(ctx, convo.ConversationID, msg); err != nil {
			return fmt.Errorf("append message: %w", err)
		}
	}
	return m.Save(ctx, convo)
}

// AddToolCall appends a tool invocation record and saves the snapshot.
func (m *Manager) AddToolCall(ctx context.Context, convo *core.Conversation, tc core.ToolCall) error {
	if tc.Timestamp == 0 {
		tc.Timestamp = m.now().Unix()
	}
	convo.ToolHistory = append(convo.ToolHistory, tc)
	return m.Save(ctx, convo)
}

// Delete removes a conversation snapshot.
func (m *Manager) Delete(ctx context.Context, conversationID string) error {
	return m.contexts.DeleteContext(ctx, conversationID)
}

// List returns conversation summaries, newest first, optionally filtered
// by project.
func (m *Manager) List(ctx context.Context, projectID string, limit, offset int) ([]storage.ContextSummary, error) {
	return m.contexts.ListContexts(ctx, projectID, limit, offset)
}

// Window returns the slice of the conversation history that fits the
// given model's context window, leaving reservedTokens for the reply.
func (m *Manager) Window(convo *core.Conversation, model string, reservedTokens int) []core.Message {
	return FitWindow(convo.Messages, WindowFor(model), reservedTokens)
}
