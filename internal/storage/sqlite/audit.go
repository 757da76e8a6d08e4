package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	core "github.com/switchboard-ai/switchboard/internal"
)

// LogAuditEvent appends one audit event.
func (s *Store) LogAuditEvent(ctx context.Context, e *core.AuditEvent) error {
	var details sql.NullString
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return err
		}
		details = sql.NullString{String: string(b), Valid: true}
	}
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO audit_logs (id, event_type, user_id, resource_type, resource_id,
		 ip_address, user_agent, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.EventType), nullStr(e.UserID), nullStr(e.ResourceType), nullStr(e.ResourceID),
		nullStr(e.IPAddress), nullStr(e.UserAgent), details, e.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// GetAuditLogs returns audit events newest first. Empty userID or eventType
// means no filter on that column.
func (s *Store) GetAuditLogs(ctx context.Context, userID string, eventType core.AuditEventType, limit, offset int) ([]*core.AuditEvent, error) {
	query := `SELECT id, event_type, user_id, resource_type, resource_id,
	 ip_address, user_agent, details, created_at FROM audit_logs`
	var where []string
	var args []any
	if userID != "" {
		where = append(where, `user_id = ?`)
		args = append(args, userID)
	}
	if eventType != "" {
		where = append(where, `event_type = ?`)
		args = append(args, string(eventType))
	}
	for i, w := range where {
		if i == 0 {
			query += ` WHERE ` + w
		} else {
			query += ` AND ` + w
		}
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.read.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*core.AuditEvent
	for rows.Next() {
		var e core.AuditEvent
		var eventType string
		var userID, resType, resID, ip, ua, details sql.NullString
		var created string
		err := rows.Scan(&e.ID, &eventType, &userID, &resType, &resID, &ip, &ua, &details, &created)
		if err != nil {
			return nil, err
		}
		e.EventType = core.AuditEventType(eventType)
		e.UserID = userID.String
		e.ResourceType = resType.String
		e.ResourceID = resID.String
		e.IPAddress = ip.String
		e.UserAgent = ua.String
		if details.Valid {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				return nil, err
			}
		}
		if t, err := time.Parse(time.RFC3339, created); err == nil {
			e.CreatedAt = t
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
