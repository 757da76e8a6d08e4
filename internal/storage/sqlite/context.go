package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	core "github.com/switchboard-ai/switchboard/internal"
	"github.com/switchboard-ai/switchboard/internal/storage"
)

// SaveContext upserts the full serialized conversation snapshot.
func (s *Store) SaveContext(ctx context.Context, conversationID, projectID string, snapshot []byte, updatedAt time.Time) error {
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO contexts (conversation_id, project_id, snapshot, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(conversation_id) DO UPDATE SET
		   project_id = excluded.project_id,
		   snapshot = excluded.snapshot,
		   updated_at = excluded.updated_at`,
		conversationID, nullStr(projectID), string(snapshot), updatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// LoadContext returns the stored snapshot for a conversation.
func (s *Store) LoadContext(ctx context.Context, conversationID string) ([]byte, error) {
	var snapshot string
	err := s.read.QueryRowContext(ctx,
		`SELECT snapshot FROM contexts WHERE conversation_id = ?`, conversationID,
	).Scan(&snapshot)
	if err != nil {
		return nil, notFoundErr(err)
	}
	return []byte(snapshot), nil
}

// DeleteContext removes a conversation snapshot.
func (s *Store) DeleteContext(ctx context.Context, conversationID string) error {
	result, err := s.write.ExecContext(ctx,
		`DELETE FROM contexts WHERE conversation_id = ?`, conversationID)
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
		query += ` WHERE project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY updated_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.read.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.ContextSummary
	for rows.Next() {
		var cs storage.ContextSummary
		var project, updated sql.NullString
		if err := rows.Scan(&cs.ConversationID, &project, &updated); err != nil {
			return nil, err
		}
		cs.ProjectID = project.String
		if t := parseTime(updated); t != nil {
			cs.UpdatedAt = *t
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// notFoundErr translates sql.ErrNoRows to core.ErrNotFound.
func notFoundErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	return err
}

// helpers

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func timeToStr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func parseTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func checkRowsAffected(result sql.Result, entity string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", entity, core.ErrNotFound)
	}
	return nil
}
