package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	core "github.com/switchboard-ai/switchboard/internal"
	"github.com/switchboard-ai/switchboard/internal/app"
	"github.com/switchboard-ai/switchboard/internal/audit"
	"github.com/switchboard-ai/switchboard/internal/auth"
	"github.com/switchboard-ai/switchboard/internal/circuitbreaker"
	"github.com/switchboard-ai/switchboard/internal/contextmgr"
	"github.com/switchboard-ai/switchboard/internal/cost"
	"github.com/switchboard-ai/switchboard/internal/provider"
	"github.com/switchboard-ai/switchboard/internal/ratelimit"
	"github.com/switchboard-ai/switchboard/internal/retry"
	"github.com/switchboard-ai/switchboard/internal/router"
	"github.com/switchboard-ai/switchboard/internal/telemetry"
	"github.com/switchboard-ai/switchboard/internal/testutil"
)

const staticKey = "sb_static_test_key"

type env struct {
	srv    *httptest.Server
	store  *testutil.FakeStore
	costs  *cost.Tracker
	audits *audit.Logger
	jwt    *auth.JWTAuth
}

type envOption func(*Deps)

func newEnv(t *testing.T, adapters []core.Adapter, opts ...envOption) *env {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := testutil.NewFakeStore()
	reg := provider.NewRegistry()
	for _, a := range adapters {
		reg.Register(a)
	}
	costs := cost.NewTracker(log, store)
	audits := audit.NewLogger(log, store)

	orch := app.New(app.Options{
		Log:      log,
		Registry: reg,
		Router: router.New(map[string][]string{
			router.ClassCodeEditing: {"claude", "gpt"},
			router.ClassResearch:    {"perplexity", "claude"},
			router.ClassGeneralChat: {"claude", "gpt"},
		}, "claude"),
		Contexts: contextmgr.NewManager(store, store, log),
		Breakers: circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig()),
		Retry:    retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		Costs:    costs,
		Audit:    audits,
	})

	apiKeys, err := auth.NewAPIKeyAuth(store, staticKey)
	if err != nil {
		t.Fatal(err)
	}
	jwtAuth := auth.NewJWTAuth("test-secret-not-a-placeholder", nil)

	promReg := prometheus.NewRegistry()
	deps := Deps{
		Log:          log,
		Orchestrator: orch,
		APIKeys:      apiKeys,
		JWT:          jwtAuth,
		Users:        store,
		Audit:        audits,
		AuditLogs:    store,
		DB:           store,
		RateLimiter:  ratelimit.NewRegistry(1000),
		Metrics:      telemetry.NewMetrics(promReg),
		Registry:     promReg,
		Development:  true,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	srv := httptest.NewServer(New(deps))
	t.Cleanup(srv.Close)
	return &env{srv: srv, store: store, costs: costs, audits: audits, jwt: jwtAuth}
}

// drain flushes the queued cost and audit records.
func (e *env) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := e.costs.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if err := e.audits.Run(ctx); err != nil {
		t.Fatal(err)
	}
}

func (e *env) post(t *testing.T, path, key string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := e.srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func (e *env) get(t *testing.T, path, key string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.srv.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := e.srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	return v
}

func gptAdapter() *testutil.FakeAdapter {
	return &testutil.FakeAdapter{
		Tool:      "gpt",
		Available: true,
		ChatFn: func(context.Context, []core.Message, *core.Conversation) (*core.Response, error) {
			out := 4
			return &core.Response{
				Content: "GPT response",
				Tool:    "gpt",
				Metadata: core.ResponseMetadata{
					Model: "gpt-4o",
					Usage: &core.Usage{InputTokens: 9, OutputTokens: &out},
				},
			}, nil
		},
	}
}

func TestChat_EndToEnd(t *testing.T) {
	t.Parallel()

	e := newEnv(t, []core.Adapter{gptAdapter()})

	resp := e.post(t, "/api/v1/chat", staticKey, map[string]any{
		"message": "Hello",
		"tool":    "gpt",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decode[chatResponse](t, resp)
	if body.Tool != "gpt" || body.Content != "GPT response" {
		t.Errorf("body = %+v", body)
	}
	if body.ConversationID == "" {
		t.Fatal("conversation_id missing")
	}

	snap, err := e.store.LoadContext(context.Background(), body.ConversationID)
	if err != nil {
		t.Fatal(err)
	}
	var convo core.Conversation
	if err := json.Unmarshal(snap, &convo); err != nil {
		t.Fatal(err)
	}
	if len(convo.Messages) != 2 ||
		convo.Messages[0].Role != core.RoleUser || convo.Messages[0].Content != "Hello" ||
		convo.Messages[1].Role != core.RoleAssistant || convo.Messages[1].Content != "GPT response" {
		t.Errorf("messages = %+v", convo.Messages)
	}

	e.drain(t)
	if got := len(e.store.CostRecords()); got != 1 {
		t.Errorf("cost records = %d", got)
	}
	var access int
	for _, ev := range e.store.AuditEvents() {
		if ev.EventType == core.AuditResourceAccess {
			access++
		}
	}
	if access != 1 {
		t.Errorf("resource.access events = %d", access)
	}
}

func TestChat_Streaming(t *testing.T) {
	t.Parallel()

	adapter := &testutil.FakeAdapter{
		Tool:      "gpt",
		Available: true,
		StreamFn: func(context.Context, []core.Message, *core.Conversation) (<-chan core.StreamChunk, error) {
			return testutil.FakeStreamChan(
				core.StreamChunk{Content: "Hel"},
				core.StreamChunk{Content: "lo"},
			), nil
		},
	}
	e := newEnv(t, []core.Adapter{adapter})

	resp := e.post(t, "/api/v1/chat", staticKey, map[string]any{
		"message": "Hello",
		"tool":    "gpt",
		"stream":  true,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	text := string(raw)
	for _, want := range []string{`"tool":"gpt"`, `"content":"Hel"`, `"content":"lo"`, "data: [DONE]"} {
		if !bytes.Contains([]byte(text), []byte(want)) {
			t.Errorf("stream missing %q in:\n%s", want, text)
		}
	}
}

func TestChat_Unauthorized(t *testing.T) {
	t.Parallel()

	e := newEnv(t, []core.Adapter{gptAdapter()})
	resp := e.post(t, "/api/v1/chat", "", map[string]any{"message": "Hello"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestChat_Validation(t *testing.T) {
	t.Parallel()

	e := newEnv(t, []core.Adapter{gptAdapter()})

	cases := []struct {
		name string
		body map[string]any
	}{
		{"empty message", map[string]any{"message": ""}},
		{"bad conversation id", map[string]any{"message": "hi", "conversation_id": "not valid!"}},
		{"bad project id", map[string]any{"message": "hi", "project_id": "p\nq"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := e.post(t, "/api/v1/chat", staticKey, tc.body)
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusUnprocessableEntity {
				t.Errorf("status = %d, want 422", resp.StatusCode)
			}
		})
	}
}

func TestChat_NoAdapterIs400(t *testing.T) {
	t.Parallel()

	e := newEnv(t, []core.Adapter{&testutil.FakeAdapter{Tool: "claude", Available: false}})
	resp := e.post(t, "/api/v1/chat", staticKey, map[string]any{"message": "Hello"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetConversation(t *testing.T) {
	t.Parallel()

	e := newEnv(t, []core.Adapter{gptAdapter()})
	ctx := context.Background()

	// Seed a user with a legacy API key and two conversations.
	if err := e.store.CreateUser(ctx, &core.User{
		ID: "user-a", Username: "a", Role: core.RoleStandard,
		APIKeyHash: core.HashKey("sb_user_a_key"), CreatedAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}
	seed := func(id, owner string) {
		snap, _ := json.Marshal(core.Conversation{ConversationID: id, UserID: owner})
		if err := e.store.SaveContext(ctx, id, "", snap, time.Now()); err != nil {
			t.Fatal(err)
		}
	}
	seed("c-mine", "user-a")
	seed("c-theirs", "user-b")

	resp := e.get(t, "/api/v1/conversations/c-mine", "sb_user_a_key")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("own conversation status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = e.get(t, "/api/v1/conversations/c-theirs", "sb_user_a_key")
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("foreign conversation status = %d, want 403", resp.StatusCode)
	}
	resp.Body.Close()

	// Admin (static key) bypasses ownership.
	resp = e.get(t, "/api/v1/conversations/c-theirs", staticKey)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("admin status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = e.get(t, "/api/v1/conversations/c-missing", staticKey)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestTools(t *testing.T) {
	t.Parallel()

	e := newEnv(t, []core.Adapter{
		gptAdapter(),
		&testutil.FakeAdapter{Tool: "claude", Available: false},
	})
	resp := e.get(t, "/api/v1/tools", staticKey)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decode[struct {
		Tools []app.ToolStatus `json:"tools"`
	}](t, resp)
	if len(body.Tools) != 2 {
		t.Fatalf("tools = %d", len(body.Tools))
	}
	if body.Tools[0].Name != "claude" || body.Tools[0].Available {
		t.Errorf("tools[0] = %+v", body.Tools[0])
	}
	if body.Tools[1].Name != "gpt" || !body.Tools[1].Available {
		t.Errorf("tools[1] = %+v", body.Tools[1])
	}
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	e := newEnv(t, []core.Adapter{gptAdapter()})

	resp := e.get(t, "/health", "")
	report := decode[healthReport](t, resp)
	if resp.StatusCode != http.StatusOK || report.Status != "healthy" {
		t.Errorf("health = %d %q", resp.StatusCode, report.Status)
	}

	resp = e.get(t, "/ready", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("ready = %d", resp.StatusCode)
	}

	resp = e.get(t, "/live", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("live = %d", resp.StatusCode)
	}
}

func TestHealth_DBDown(t *testing.T) {
	t.Parallel()

	e := newEnv(t, []core.Adapter{gptAdapter()})
	e.store.PingErr = context.DeadlineExceeded

	resp := e.get(t, "/health", "")
	report := decode[healthReport](t, resp)
	if resp.StatusCode != http.StatusServiceUnavailable || report.Status != "unhealthy" {
		t.Errorf("health = %d %q", resp.StatusCode, report.Status)
	}

	resp = e.get(t, "/ready", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("ready = %d, want 503", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	e := newEnv(t, []core.Adapter{gptAdapter()})
	// Generate one measured request first.
	e.get(t, "/live", "").Body.Close()

	resp := e.get(t, "/metrics", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	raw, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(raw, []byte("switchboard_requests_total")) {
		t.Error("exposition missing switchboard_requests_total")
	}
}
