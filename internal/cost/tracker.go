// Package cost prices upstream calls and records per-call cost rows.
// Recording is fire-and-forget over a buffered channel so a slow store
// never blocks the request path.
package cost

import (
	"context"
	"log/slog"
	"time"

	core "github.com/switchboard-ai/switchboard/internal"
	"github.com/switchboard-ai/switchboard/internal/storage"
)

const (
	recordChanSize  = 1000
	recordDrainTime = 10 * time.Second
)

// Tracker prices calls and persists cost records on a background worker.
type Tracker struct {
	log   *slog.Logger
	store storage.CostStore
	ch    chan *core.CostRecord
}

// NewTracker creates a Tracker. store may be nil, in which case records
// are logged and dropped.
func NewTracker(log *slog.Logger, store storage.CostStore) *Tracker {
	return &Tracker{
		log:   log,
		store: store,
		ch:    make(chan *core.CostRecord, recordChanSize),
	}
}

// Name returns the worker identifier.
func (t *Tracker) Name() string { return "cost_recorder" }

// Record prices one call and queues the record. It never blocks: when the
// channel is full the record is dropped with a warning.
func (t *Tracker) Record(ctx context.Context, tool, model, conversationID, projectID string, usage *core.Usage) {
	rec := &core.CostRecord{
		Tool:           tool,
		Model:          model,
		ConversationID: conversationID,
		ProjectID:      projectID,
		CreatedAt:      time.Now().UTC(),
	}
	if usage != nil {
		rec.InputTokens = usage.InputTokens
		if usage.OutputTokens != nil {
			rec.OutputTokens = *usage.OutputTokens
		}
	}
	rec.CostUSD = Calculate(model, rec.InputTokens, rec.OutputTokens)

	t.log.LogAttrs(ctx, slog.LevelDebug, "cost",
		slog.String("tool", tool),
		slog.String("model", model),
		slog.Int("input_tokens", rec.InputTokens),
		slog.Int("output_tokens", rec.OutputTokens),
		slog.Float64("cost_usd", rec.CostUSD),
	)

	if t.store == nil {
		return
	}
	select {
	case t.ch <- rec:
	default:
		t.log.LogAttrs(ctx, slog.LevelWarn, "cost record dropped, channel full",
			slog.String("tool", tool))
	}
}

// Run persists queued records until ctx is cancelled, then drains with a
// timeout. Store failures are logged and never propagate.
func (t *Tracker) Run(ctx context.Context) error {
	if t.store == nil {
		<-ctx.Done()
		return nil
	}
	for {
		select {
		case rec := <-t.ch:
			t.persist(ctx, rec)
		case <-ctx.Done():
			t.drain()
			return nil
		}
	}
}

func (t *Tracker) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), recordDrainTime)
	defer cancel()
	for {
		select {
		case rec := <-t.ch:
			t.persist(ctx, rec)
		default:
			return
		}
	}
}

func (t *Tracker) persist(ctx context.Context, rec *core.CostRecord) {
	if err := t.store.RecordCost(ctx, rec); err != nil {
		t.log.LogAttrs(ctx, slog.LevelError, "cost persist failed",
			slog.String("tool", rec.Tool),
			slog.String("error", err.Error()),
		)
	}
}

// Total sums the recorded cost matching a filter.
func (t *Tracker) Total(ctx context.Context, f storage.CostFilter) (float64, error) {
	records, err := t.store.GetCosts(ctx, f)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, r := range records {
		total += r.CostUSD
	}
	return total, nil
}

// ByTool sums the recorded cost matching a filter, grouped by tool.
func (t *Tracker) ByTool(ctx context.Context, f storage.CostFilter) (map[string]float64, error) {
	records, err := t.store.GetCosts(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, r := range records {
		out[r.Tool] += r.CostUSD
	}
	return out, nil
}
