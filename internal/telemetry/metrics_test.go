package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewPedanticRegistry()
	m := NewMetrics(reg)

	if m.RequestsTotal == nil {
		t.Error("RequestsTotal is nil")
	}
	if m.RequestDuration == nil {
		t.Error("RequestDuration is nil")
	}
	if m.ActiveRequests == nil {
		t.Error("ActiveRequests is nil")
	}
	if m.UpstreamDuration == nil {
		t.Error("UpstreamDuration is nil")
	}
	if m.UpstreamErrors == nil {
		t.Error("UpstreamErrors is nil")
	}
	if m.RateLimitRejects == nil {
		t.Error("RateLimitRejects is nil")
	}
	if m.BreakerState == nil {
		t.Error("BreakerState is nil")
	}
	if m.TokensProcessed == nil {
		t.Error("TokensProcessed is nil")
	}
	if m.CostUSD == nil {
		t.Error("CostUSD is nil")
	}
	if m.WSConnections == nil {
		t.Error("WSConnections is nil")
	}

	// Verify metrics can be gathered without error.
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Error("expected at least one metric family")
	}
}

func TestNewMetricsIncrement(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewPedanticRegistry()
	m := NewMetrics(reg)

	m.RequestsTotal.WithLabelValues("POST", "/api/v1/chat", "200").Inc()
	m.ActiveRequests.Set(5)
	m.RequestDuration.WithLabelValues("POST", "/api/v1/chat").Observe(0.123)
	m.BreakerState.WithLabelValues("claude").Set(1)
	m.CostUSD.WithLabelValues("gpt").Add(0.0105)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather after increment: %v", err)
	}

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}

	want := []string{
		"switchboard_requests_total",
		"switchboard_active_requests",
		"switchboard_request_duration_seconds",
		"switchboard_circuit_breaker_state",
		"switchboard_cost_usd_total",
	}
	for _, name := range want {
		if !names[name] {
			t.Errorf("missing metric %q in gathered families", name)
		}
	}
}

// StartTracing is not unit-tested because it requires a gRPC connection
// to an OTLP collector, which is integration-test territory. The sampler
// mapping is pure and covered below.
func TestSamplerMapping(t *testing.T) {
	t.Parallel()

	if got := sampler(1.5).Description(); got != sdktrace.AlwaysSample().Description() {
		t.Errorf("rate 1.5 sampler = %q", got)
	}
	if got := sampler(0).Description(); got != sdktrace.NeverSample().Description() {
		t.Errorf("rate 0 sampler = %q", got)
	}
	want := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.25)).Description()
	if got := sampler(0.25).Description(); got != want {
		t.Errorf("rate 0.25 sampler = %q, want %q", got, want)
	}
}
