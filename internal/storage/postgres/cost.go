package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	core "github.com/switchboard-ai/switchboard/internal"
	"github.com/switchboard-ai/switchboard/internal/storage"
)

func usdToMicros(usd float64) int64 { return int64(math.Round(usd * 1e6)) }

func microsToUSD(m int64) float64 { return float64(m) / 1e6 }

// RecordCost appends one per-call cost row.
func (s *Store) RecordCost(ctx context.Context, r *core.CostRecord) error {
	return s.db.QueryRowContext(ctx,
		`INSERT INTO cost_records (tool, model, input_tokens, output_tokens,
		 cost_usd_micros, conversation_id, project_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		r.Tool, nullStr(r.Model), r.InputTokens, r.OutputTokens,
		usdToMicros(r.CostUSD), nullStr(r.ConversationID), nullStr(r.ProjectID),
		r.CreatedAt.UTC(),
	).Scan(&r.ID)
}

// GetCosts returns cost rows matching the filter, newest first.
func (s *Store) GetCosts(ctx context.Context, f storage.CostFilter) ([]*core.CostRecord, error) {
	query := `SELECT id, tool, model, input_tokens, output_tokens,
	 cost_usd_micros, conversation_id, project_id, created_at FROM cost_records`
	var args []any
	n := 0
	next := func(v any) string {
		args = append(args, v)
		n++
		return fmt.Sprintf("$%d", n)
	}
	var where []string
	if !f.Start.IsZero() {
		where = append(where, `created_at >= `+next(f.Start.UTC()))
	}
	if !f.End.IsZero() {
		where = append(where, `created_at < `+next(f.End.UTC()))
	}
	if f.Tool != "" {
		where = append(where, `tool = `+next(f.Tool))
	}
	if f.ProjectID != "" {
		where = append(where, `project_id = `+next(f.ProjectID))
	}
	for i, w := range where {
		if i == 0 {
			query += ` WHERE ` + w
		} else {
			query += ` AND ` + w
		}
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*core.CostRecord
	for rows.Next() {
		var r core.CostRecord
		var model, convo, project sql.NullString
		var micros int64
		err := rows.Scan(&r.ID, &r.Tool, &model, &r.InputTokens, &r.OutputTokens,
			&micros, &convo, &project, &r.CreatedAt)
		if err != nil {
			return nil, err
		}
		r.Model = model.String
		r.CostUSD = microsToUSD(micros)
		r.ConversationID = convo.String
		r.ProjectID = project.String
		out = append(out, &r)
	}
	return out, rows.Err()
}
