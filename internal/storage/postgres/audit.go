package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	core "github.com/switchboard-ai/switchboard/internal"
)

// LogAuditEvent appends one audit event.
func (s *Store) LogAuditEvent(ctx context.Context, e *core.AuditEvent) error {
	var details any
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return err
		}
		details = b
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, event_type, user_id, resource_type, resource_id,
		 ip_address, user_agent, details, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, string(e.EventType), nullStr(e.UserID), nullStr(e.ResourceType), nullStr(e.ResourceID),
		nullStr(e.IPAddress), nullStr(e.UserAgent), details, e.CreatedAt.UTC(),
	)
	return err
}

// GetAuditLogs returns audit events newest first. Empty userID or eventType
// means no filter on that column.
func (s *Store) GetAuditLogs(ctx context.Context, userID string, eventType core.AuditEventType, limit, offset int) ([]*core.AuditEvent, error) {
	query := `SELECT id, event_type, user_id, resource_type, resource_id,
	 ip_address, user_agent, details, created_at FROM audit_logs`
	var args []any
	n := 0
	next := func(v any) string {
		args = append(args, v)
		n++
		return fmt.Sprintf("$%d", n)
	}
	var where []string
	if userID != "" {
		where = append(where, `user_id = `+next(userID))
	}
	if eventType != "" {
		where = append(where, `event_type = `+next(string(eventType)))
	}
	for i, w := range where {
		if i == 0 {
			query += ` WHERE ` + w
		} else {
			query += ` AND ` + w
		}
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ` + next(limit) + ` OFFSET ` + next(offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*core.AuditEvent
	for rows.Next() {
		var e core.AuditEvent
		var eventType string
		var userID, resType, resID, ip, ua sql.NullString
		var details []byte
		err := rows.Scan(&e.ID, &eventType, &userID, &resType, &resID, &ip, &ua, &details, &e.CreatedAt)
		if err != nil {
			return nil, err
		}
		e.EventType = core.AuditEventType(eventType)
		e.UserID = userID.String
		e.ResourceType = resType.String
		e.ResourceID = resID.String
		e.IPAddress = ip.String
		e.UserAgent = ua.String
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, err
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
