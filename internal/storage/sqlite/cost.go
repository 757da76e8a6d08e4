package sqlite

import (
	"context"
	"database/sql"
	"math"
	"time"

	core "github.com/switchboard-ai/switchboard/internal"
	"github.com/switchboard-ai/switchboard/internal/storage"
)

// Cost is stored as integer micro-dollars so repeated small charges do not
// accumulate float drift.

func usdToMicros(usd float64) int64 { return int64(math.Round(usd * 1e6)) }

func microsToUSD(m int64) float64 { return float64(m) / 1e6 }

// RecordCost appends one per-call cost row.
func (s *Store) RecordCost(ctx context.Context, r *core.CostRecord) error {
	result, err := s.write.ExecContext(ctx,
		`INSERT INTO cost_records (tool, model, input_tokens, output_tokens,
		 cost_usd_micros, conversation_id, project_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Tool, nullStr(r.Model), r.InputTokens, r.OutputTokens,
		usdToMicros(r.CostUSD), nullStr(r.ConversationID), nullStr(r.ProjectID),
		r.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return err
	}
	r.ID, _ = result.LastInsertId()
	return nil
}

// GetCosts returns cost rows matching the filter, newest first.
func (s *Store) GetCosts(ctx context.Context, f storage.CostFilter) ([]*core.CostRecord, error) {
	query := `SELECT id, tool, model, input_tokens, output_tokens,
	 cost_usd_micros, conversation_id, project_id, created_at FROM cost_records`
	var where []string
	var args []any
	if !f.Start.IsZero() {
		where = append(where, `created_at >= ?`)
		args = append(args, f.Start.UTC().Format(time.RFC3339))
	}
	if !f.End.IsZero() {
		where = append(where, `created_at < ?`)
		args = append(args, f.End.UTC().Format(time.RFC3339))
	}
	if f.Tool != "" {
		where = append(where, `tool = ?`)
		args = append(args, f.Tool)
	}
	if f.ProjectID != "" {
		where = append(where, `project_id = ?`)
		args = append(args, f.ProjectID)
	}
	for i, w := range where {
		if i == 0 {
			query += ` WHERE ` + w
		} else {
			query += ` AND ` + w
		}
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.read.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*core.CostRecord
	for rows.Next() {
		var r core.CostRecord
		var model, convo, project sql.NullString
		var micros int64
		var created string
		err := rows.Scan(&r.ID, &r.Tool, &model, &r.InputTokens, &r.OutputTokens,
			&micros, &convo, &project, &created)
		if err != nil {
			return nil, err
		}
		r.Model = model.String
		r.CostUSD = microsToUSD(micros)
		r.ConversationID = convo.String
		r.ProjectID = project.String
		if t, err := time.Parse(time.RFC3339, created); err == nil {
			r.CreatedAt = t
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
