package sqlite

import (
	"context"
	"time"

	core "github.com/switchboard-ai/switchboard/internal"
)

// AddMessage appends one message to a conversation and returns its row id.
func (s *Store) AddMessage(ctx context.Context, conversationID string, m core.Message) (int64, error) {
	created := time.Unix(m.Timestamp, 0)
	if m.Timestamp == 0 {
		created = time.Now()
	}
	result, err := s.write.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, role, content, created_at)
		 VALUES (?, ?, ?, ?)`,
		conversationID, m.Role, m.Content, created.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetMessages returns messages for a conversation in insertion order.
func (s *Store) GetMessages(ctx context.Context, conversationID string, limit, offset int) ([]core.Message, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT role, content, created_at FROM messages
		 WHERE conversation_id = ? ORDER BY id ASC LIMIT ? OFFSET ?`,
		conversationID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Message
	for rows.Next() {
		var m core.Message
		var created string
		if err := rows.Scan(&m.Role, &m.Content, &created); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339, created); err == nil {
			m.Timestamp = t.Unix()
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
