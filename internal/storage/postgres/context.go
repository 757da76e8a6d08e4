package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/switchboard-ai/switchboard/internal/storage"
)

// SaveContext upserts the full serialized conversation snapshot.
func (s *Store) SaveContext(ctx context.Context, conversationID, projectID string, snapshot []byte, updatedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contexts (conversation_id, project_id, snapshot, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (conversation_id) DO UPDATE SET
		   project_id = EXCLUDED.project_id,
		   snapshot = EXCLUDED.snapshot,
		   updated_at = EXCLUDED.updated_at`,
		conversationID, nullStr(projectID), snapshot, updatedAt.UTC(),
	)
	return err
}

// LoadContext returns the stored snapshot for a conversation.
func (s *Store) LoadContext(ctx context.Context, conversationID string) ([]byte, error) {
	var snapshot []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot FROM contexts WHERE conversation_id = $1`, conversationID,
	).Scan(&snapshot)
	if err != nil {
		return nil, notFoundErr(err)
	}
	return snapshot, nil
}

// DeleteContext removes a conversation snapshot.
func (s *Store) DeleteContext(ctx context.Context, conversationID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM contexts WHERE conversation_id = $1`, conversationID)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, "context")
}

// ListContexts returns snapshot summaries newest first, optionally filtered
// by project.
func (s *Store) ListContexts(ctx context.Context, projectID string, limit, offset int) ([]storage.ContextSummary, error) {
	query := `SELECT conversation_id, project_id, updated_at FROM contexts`
	args := []any{}
	if projectID != "" {
		query += ` WHERE project_id = $1 ORDER BY updated_at DESC LIMIT $2 OFFSET $3`
		args = append(args, projectID, limit, offset)
	} else {
		query += ` ORDER BY updated_at DESC LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.ContextSummary
	for rows.Next() {
		var cs storage.ContextSummary
		var project sql.NullString
		if err := rows.Scan(&cs.ConversationID, &project, &cs.UpdatedAt); err != nil {
			return nil, err
		}
		cs.ProjectID = project.String
		out = append(out, cs)
	}
	return out, rows.Err()
}
