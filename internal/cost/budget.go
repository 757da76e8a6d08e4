package cost

import (
	"context"
	"fmt"
	"time"

	core "github.com/switchboard-ai/switchboard/internal"
	"github.com/switchboard-ai/switchboard/internal/storage"
)

// Budget caps spend over a rolling window. A zero LimitUSD disables the
// check entirely.
type Budget struct {
	LimitUSD float64
	Window   time.Duration

	tracker *Tracker
}

// NewBudget creates a Budget enforced against the tracker's store.
func NewBudget(tracker *Tracker, limitUSD float64, window time.Duration) *Budget {
	if window <= 0 {
		window = 30 * 24 * time.Hour
	}
	return &Budget{LimitUSD: limitUSD, Window: window, tracker: tracker}
}

// Check returns an error wrapping ErrRateLimited when the project (or the
// whole deployment, for an empty projectID) has spent past the limit
// within the window. Store failures fail open: a broken cost store must
// not take chat down.
func (b *Budget) Check(ctx context.Context, projectID string) error {
	if b == nil || b.LimitUSD <= 0 {
		return nil
	}
	spent, err := b.tracker.Total(ctx, storage.CostFilter{
		Start:     time.Now().UTC().Add(-b.Window),
		ProjectID: projectID,
	})
	if err != nil {
		return nil
	}
	if spent >= b.LimitUSD {
		return fmt.Errorf("%w: budget exhausted: spent %.4f of %.4f USD",
			core.ErrRateLimited, spent, b.LimitUSD)
	}
	return nil
}
