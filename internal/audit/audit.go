// Package audit records security events. Every event is written to the
// structured log immediately; database persistence runs on a buffered
// background worker so a slow store never blocks request handling.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	core "github.com/switchboard-ai/switchboard/internal"
	"github.com/switchboard-ai/switchboard/internal/storage"
)

const (
	eventChanSize  = 1000
	eventDrainTime = 10 * time.Second
)

// Logger fans audit events out to slog and the audit store.
type Logger struct {
	log   *slog.Logger
	store storage.AuditStore
	ch    chan *core.AuditEvent
}

// NewLogger creates a Logger. store may be nil, in which case events go to
// the structured log only.
func NewLogger(log *slog.Logger, store storage.AuditStore) *Logger {
	return &Logger{
		log:   log,
		store: store,
		ch:    make(chan *core.AuditEvent, eventChanSize),
	}
}

// Name returns the worker identifier.
func (l *Logger) Name() string { return "audit_writer" }

// Event records one audit event. The slog write is synchronous; the store
// write is queued and never blocks (drops on full channel, which the log
// line still covers).
func (l *Logger) Event(ctx context.Context, e *core.AuditEvent) {
	if e.ID == "" {
		e.ID = uuid.Must(uuid.NewV7()).String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	attrs := make([]slog.Attr, 0, 6)
	attrs = append(attrs, slog.String("event", string(e.EventType)))
	if e.UserID != "" {
		attrs = append(attrs, slog.String("user_id", e.UserID))
	}
	if e.ResourceType != "" {
		attrs = append(attrs, slog.String("resource", e.ResourceType+"/"+e.ResourceID))
	}
	if e.IPAddress != "" {
		attrs = append(attrs, slog.String("ip", e.IPAddress))
	}
	if rid := core.RequestIDFromContext(ctx); rid != "" {
		attrs = append(attrs, slog.String("request_id", rid))
	}
	l.log.LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)

	if l.store == nil {
		return
	}
	select {
	case l.ch <- e:
	default:
		l.log.LogAttrs(ctx, slog.LevelWarn, "audit event dropped, channel full",
			slog.String("event", string(e.EventType)))
	}
}

// Run persists queued events until ctx is cancelled, then drains with a
// timeout. Store failures are logged and never propagate.
func (l *Logger) Run(ctx context.Context) error {
	if l.store == nil {
		<-ctx.Done()
		return nil
	}
	for {
		select {
		case e := <-l.ch:
			l.persist(ctx, e)
		case <-ctx.Done():
			l.drain()
			return nil
		}
	}
}

func (l *Logger) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), eventDrainTime)
	defer cancel()
	for {
		select {
		case e := <-l.ch:
			l.persist(ctx, e)
		default:
			return
		}
	}
}

func (l *Logger) persist(ctx context.Context, e *core.AuditEvent) {
	if err := l.store.LogAuditEvent(ctx, e); err != nil {
		l.log.LogAttrs(ctx, slog.LevelError, "audit persist failed",
			slog.String("event", string(e.EventType)),
			slog.String("error", err.Error()),
		)
	}
}

// Helpers for the common event shapes.

// AuthSuccess records a successful authentication.
func (l *Logger) AuthSuccess(ctx context.Context, userID, method, ip, ua string) {
	l.Event(ctx, &core.AuditEvent{
		EventType: core.AuditAuthSuccess,
		UserID:    userID,
		IPAddress: ip,
		UserAgent: ua,
		Details:   map[string]any{"method": method},
	})
}

// AuthFailure records a failed authentication attempt.
func (l *Logger) AuthFailure(ctx context.Context, subject, reason, ip, ua string) {
	l.Event(ctx, &core.AuditEvent{
		EventType: core.AuditAuthFailure,
		IPAddress: ip,
		UserAgent: ua,
		Details:   map[string]any{"subject": subject, "reason": reason},
	})
}

// PermissionDenied records an authorization rejection.
func (l *Logger) PermissionDenied(ctx context.Context, userID, resourceType, resourceID string) {
	l.Event(ctx, &core.AuditEvent{
		EventType:    core.AuditPermissionDenied,
		UserID:       userID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
	})
}
