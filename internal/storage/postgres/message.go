package postgres

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
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO messages (conversation_id, role, content, created_at)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		conversationID, m.Role, m.Content, created.UTC(),
	).Scan(&id)
	return id, err
}

// GetMessages returns messages for a conversation in insertion order.
func (s *Store) GetMessages(ctx context.Context, conversationID string, limit, offset int) ([]core.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, created_at FROM messages
		 WHERE conversation_id = $1 ORDER BY id ASC LIMIT $2 OFFSET $3`,
		conversationID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Message
	for rows.Next() {
		var m core.Message
		var created time.Time
		if err := rows.Scan(&m.Role, &m.Content, &created); err != nil {
			return nil, err
		}
		m.Timestamp = created.Unix()
		out = append(out, m)
	}
	return out, rows.Err()
}
