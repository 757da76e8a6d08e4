// Package app wires routing, resilience, context, cost, and audit into
// the chat orchestration flow.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	core "github.com/switchboard-ai/switchboard/internal"
	"github.com/switchboard-ai/switchboard/internal/audit"
	"github.com/switchboard-ai/switchboard/internal/circuitbreaker"
	"github.com/switchboard-ai/switchboard/internal/contextmgr"
	"github.com/switchboard-ai/switchboard/internal/cost"
	"github.com/switchboard-ai/switchboard/internal/provider"
	"github.com/switchboard-ai/switchboard/internal/ratelimit"
	"github.com/switchboard-ai/switchboard/internal/retry"
	"github.com/switchboard-ai/switchboard/internal/router"
)

const (
	// historyLimit bounds how much stored history rides along with a new
	// message.
	historyLimit = 10
	// replyReserve keeps window room for the model's answer.
	replyReserve = 1024
)

// Options carries the orchestrator's collaborators. Budget and Limits
// may be nil.
type Options struct {
	Log      *slog.Logger
	Registry *provider.Registry
	Router   *router.Router
	Contexts *contextmgr.Manager
	Breakers *circuitbreaker.Registry
	Retry    retry.Policy
	Costs    *cost.Tracker
	Audit    *audit.Logger
	Budget   *cost.Budget
	Limits   *ratelimit.Registry // per-provider upstream request budget
}

// Orchestrator drives one chat turn end to end: route, pick a live
// adapter, assemble the context window, call upstream with breaker and
// retry protection, then persist and account for the exchange.
type Orchestrator struct {
	log      *slog.Logger
	registry *provider.Registry
	router   *router.Router
	contexts *contextmgr.Manager
	breakers *circuitbreaker.Registry
	policy   retry.Policy
	costs    *cost.Tracker
	audit    *audit.Logger
	budget   *cost.Budget
	limits   *ratelimit.Registry
	now      func() time.Time
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	return &Orchestrator{
		log:      opts.Log,
		registry: opts.Registry,
		router:   opts.Router,
		contexts: opts.Contexts,
		breakers: opts.Breakers,
		policy:   opts.Retry,
		costs:    opts.Costs,
		audit:    opts.Audit,
		budget:   opts.Budget,
		limits:   opts.Limits,
		now:      time.Now,
	}
}

// ChatRequest is one inbound chat turn. An empty ConversationID starts a
// new conversation; a non-empty Tool bypasses classification.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	ProjectID      string `json:"project_id,omitempty"`
	Tool           string `json:"tool,omitempty"`
}

// ChatResult is the outcome of a non-streaming turn.
type ChatResult struct {
	Response       *core.Response `json:"response"`
	ConversationID string         `json:"conversation_id"`
	Class          string         `json:"class"`
	Reasoning      string         `json:"reasoning"`
}

// StreamResult is the outcome of a streaming turn. Chunks must be fully
// drained; persistence and accounting happen when the stream finishes.
type StreamResult struct {
	Chunks         <-chan core.StreamChunk
	ConversationID string
	Tool           string
	Class          string
}

// Chat runs one non-streaming turn.
func (o *Orchestrator) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	convo, decision, adapter, err := o.prepare(ctx, &req)
	if err != nil {
		return nil, err
	}

	userMsg := core.Message{Role: core.RoleUser, Content: req.Message, Timestamp: o.now().Unix()}
	msgs := o.window(adapter, convo, userMsg)

	resp, err := o.call(ctx, adapter, msgs, convo)
	if err != nil {
		o.auditAccess(ctx, req.ConversationID, adapter.Name(), decision.Class, err)
		return nil, err
	}

	o.persistTurn(ctx, convo, userMsg, adapter.Name(), req, resp)
	o.auditAccess(ctx, req.ConversationID, adapter.Name(), decision.Class, nil)

	return &ChatResult{
		Response:       resp,
		ConversationID: req.ConversationID,
		Class:          decision.Class,
		Reasoning:      decision.Reasoning,
	}, nil
}

// StreamChat runs one streaming turn. Text chunks are relayed as they
// arrive; the conversation, cost record, and audit event are written once
// the upstream stream completes cleanly.
func (o *Orchestrator) StreamChat(ctx context.Context, req ChatRequest) (*StreamResult, error) {
	convo, decision, adapter, err := o.prepare(ctx, &req)
	if err != nil {
		return nil, err
	}
	caps := adapter.Capabilities()
	if !caps.SupportsStreaming {
		return nil, fmt.Errorf("%w: %s does not stream", core.ErrValidation, adapter.Name())
	}

	userMsg := core.Message{Role: core.RoleUser, Content: req.Message, Timestamp: o.now().Unix()}
	msgs := o.window(adapter, convo, userMsg)

	name := adapter.Name()
	br := o.breakers.GetOrCreate(name)
	upstream, err := retry.Do(ctx, o.policy, func(ctx context.Context) (<-chan core.StreamChunk, error) {
		if err := o.acquireUpstream(name); err != nil {
			return nil, err
		}
		if !br.Allow() {
			return nil, fmt.Errorf("%w: %s", core.ErrCircuitOpen, name)
		}
		ch, err := adapter.StreamChat(ctx, msgs, convo)
		if circuitbreaker.CountsAsFailure(err) {
			br.RecordFailure()
		}
		return ch, err
	})
	if err != nil {
		o.auditAccess(ctx, req.ConversationID, name, decision.Class, err)
		return nil, err
	}

	out := make(chan core.StreamChunk, 8)
	go o.relay(ctx, upstream, out, convo, userMsg, adapter, req, decision)

	return &StreamResult{
		Chunks:         out,
		ConversationID: req.ConversationID,
		Tool:           name,
		Class:          decision.Class,
	}, nil
}

// relay forwards chunks, accumulating content and usage. A clean finish
// closes the breaker and persists the turn; a terminal error only audits.
func (o *Orchestrator) relay(ctx context.Context, upstream <-chan core.StreamChunk, out chan<- core.StreamChunk,
	convo *core.Conversation, userMsg core.Message, adapter core.Adapter, req ChatRequest, decision router.Decision) {

	defer close(out)

	name := adapter.Name()
	br := o.breakers.GetOrCreate(name)

	var content strings.Builder
	var usage *core.Usage
	for chunk := range upstream {
		content.WriteString(chunk.Content)
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		// The consumer may stop reading mid-stream (client disconnect);
		// never block on a send the other side will not service.
		select {
		case out <- chunk:
		case <-ctx.Done():
			o.auditAccess(context.WithoutCancel(ctx), req.ConversationID, name, decision.Class, ctx.Err())
			return
		}

		if chunk.Err != nil {
			if circuitbreaker.CountsAsFailure(chunk.Err) {
				br.RecordFailure()
			}
			o.auditAccess(ctx, req.ConversationID, name, decision.Class, chunk.Err)
			return
		}
	}
	br.RecordSuccess()

	// The request context may be cancelled as soon as the client has the
	// last chunk; persistence still has to finish.
	bg := context.WithoutCancel(ctx)
	resp := &core.Response{
		Content:  content.String(),
		Tool:     name,
		Metadata: core.ResponseMetadata{Usage: usage},
	}
	o.persistTurn(bg, convo, userMsg, name, req, resp)
	o.auditAccess(bg, req.ConversationID, name, decision.Class, nil)
}

// prepare validates the request, loads the conversation, checks the
// budget, routes, and picks the first live candidate adapter.
func (o *Orchestrator) prepare(ctx context.Context, req *ChatRequest) (*core.Conversation, router.Decision, core.Adapter, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, router.Decision{}, nil, fmt.Errorf("%w: message is required", core.ErrValidation)
	}
	if req.ConversationID == "" {
		req.ConversationID = uuid.Must(uuid.NewV7()).String()
	}

	if err := o.budget.Check(ctx, req.ProjectID); err != nil {
		return nil, router.Decision{}, nil, err
	}

	var userID string
	if id := core.IdentityFromContext(ctx); id != nil {
		userID = id.UserID
	}
	convo, err := o.contexts.GetOrCreate(ctx, req.ConversationID, req.ProjectID, userID)
	if err != nil {
		return nil, router.Decision{}, nil, err
	}

	decision := o.router.Route(req.Message, req.Tool)
	adapter, err := o.pickAdapter(ctx, decision.Candidates)
	if err != nil {
		o.auditAccess(ctx, req.ConversationID, "", decision.Class, err)
		return nil, router.Decision{}, nil, err
	}
	return convo, decision, adapter, nil
}

// pickAdapter returns the first candidate that is registered, has a
// closed or half-open breaker, and answers its availability probe.
func (o *Orchestrator) pickAdapter(ctx context.Context, candidates []string) (core.Adapter, error) {
	for _, name := range candidates {
		a, ok := o.registry.Get(name)
		if !ok {
			continue
		}
		if !o.breakers.GetOrCreate(name).Allow() {
			continue
		}
		if !a.IsAvailable(ctx) {
			continue
		}
		return a, nil
	}
	return nil, fmt.Errorf("%w: no live tool among %v", core.ErrNoAdapter, candidates)
}

// window returns the recent history that fits the adapter's context
// window, with the new user message always last.
func (o *Orchestrator) window(adapter core.Adapter, convo *core.Conversation, userMsg core.Message) []core.Message {
	history := convo.Messages
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	budget := adapter.Capabilities().MaxContextTokens - contextmgr.EstimateMessageTokens(userMsg)
	fitted := contextmgr.FitWindow(history, budget, replyReserve)
	return append(fitted, userMsg)
}

// acquireUpstream charges one request against the provider's rate
// budget, ahead of the breaker so an exhausted budget never counts as
// a provider failure. A nil registry disables the gate.
func (o *Orchestrator) acquireUpstream(name string) error {
	if o.limits == nil {
		return nil
	}
	if res := o.limits.GetOrCreate(name).TryAcquire(1); !res.Allowed {
		return fmt.Errorf("%w: %s request budget exhausted", core.ErrUpstreamRate, name)
	}
	return nil
}

// call invokes the adapter under breaker and retry protection.
func (o *Orchestrator) call(ctx context.Context, adapter core.Adapter, msgs []core.Message, convo *core.Conversation) (*core.Response, error) {
	name := adapter.Name()
	br := o.breakers.GetOrCreate(name)
	return retry.Do(ctx, o.policy, func(ctx context.Context) (*core.Response, error) {
		if err := o.acquireUpstream(name); err != nil {
			return nil, err
		}
		if !br.Allow() {
			return nil, fmt.Errorf("%w: %s", core.ErrCircuitOpen, name)
		}
		resp, err := adapter.Chat(ctx, msgs, convo)
		switch {
		case err == nil:
			br.RecordSuccess()
		case circuitbreaker.CountsAsFailure(err):
			br.RecordFailure()
		}
		return resp, err
	})
}

// persistTurn writes the user and assistant messages, the tool-call log
// entry, and the cost record. Persistence failures are logged, not
// returned: the caller already has a paid-for completion.
func (o *Orchestrator) persistTurn(ctx context.Context, convo *core.Conversation, userMsg core.Message,
	tool string, req ChatRequest, resp *core.Response) {

	if err := o.contexts.AddMessage(ctx, convo, userMsg); err != nil {
		o.logPersistErr(ctx, req.ConversationID, err)
	}
	assistantMsg := core.Message{Role: core.RoleAssistant, Content: resp.Content, Timestamp: o.now().Unix()}
	if err := o.contexts.AddMessage(ctx, convo, assistantMsg); err != nil {
		o.logPersistErr(ctx, req.ConversationID, err)
	}
	if err := o.contexts.AddToolCall(ctx, convo, core.ToolCall{
		Tool:      tool,
		Request:   req.Message,
		Response:  resp.Content,
		Timestamp: o.now().Unix(),
	}); err != nil {
		o.logPersistErr(ctx, req.ConversationID, err)
	}

	o.costs.Record(ctx, tool, resp.Metadata.Model, req.ConversationID, req.ProjectID, resp.Metadata.Usage)
}

func (o *Orchestrator) logPersistErr(ctx context.Context, conversationID string, err error) {
	o.log.LogAttrs(ctx, slog.LevelError, "context persist failed",
		slog.String("conversation_id", conversationID),
		slog.String("error", err.Error()),
	)
}

// auditAccess records a resource.access event for the turn.
func (o *Orchestrator) auditAccess(ctx context.Context, conversationID, tool, class string, callErr error) {
	var userID string
	if id := core.IdentityFromContext(ctx); id != nil {
		userID = id.UserID
	}
	details := map[string]any{"tool": tool, "class": class, "success": callErr == nil}
	if callErr != nil {
		details["error"] = callErr.Error()
	}
	o.audit.Event(ctx, &core.AuditEvent{
		EventType:    core.AuditResourceAccess,
		UserID:       userID,
		ResourceType: "conversation",
		ResourceID:   conversationID,
		Details:      details,
	})
}

// Conversation loads a stored conversation.
func (o *Orchestrator) Conversation(ctx context.Context, id string) (*core.Conversation, error) {
	return o.contexts.Get(ctx, id)
}

// ToolStatus describes one registered tool for the public listing.
type ToolStatus struct {
	Name         string            `json:"name"`
	Available    bool              `json:"available"`
	Capabilities core.Capabilities `json:"capabilities"`
}

// Tools probes every registered adapter and reports its status.
func (o *Orchestrator) Tools(ctx context.Context) []ToolStatus {
	adapters := o.registry.All()
	out := make([]ToolStatus, 0, len(adapters))
	for _, a := range adapters {
		out = append(out, ToolStatus{
			Name:         a.Name(),
			Available:    a.IsAvailable(ctx),
			Capabilities: a.Capabilities(),
		})
	}
	return out
}
