package circuitbreaker

import (
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
	}
}

func TestBreaker_ClosedAllows(t *testing.T) {
	t.Parallel()

	b := NewBreaker(DefaultConfig())
	if !b.Allow() {
		t.Fatal("closed breaker should allow")
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed", b.State())
	}
}

func TestBreaker_OpensOnConsecutiveFailures(t *testing.T) {
	t.Parallel()

	b := NewBreaker(testConfig())

	b.RecordFailure()
	b.RecordFailure()
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed below threshold", b.State())
	}

	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open at threshold", b.State())
	}
	if b.Allow() {
		t.Fatal("open breaker should reject")
	}
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	t.Parallel()

	b := NewBreaker(testConfig())

	// Interleaved successes keep the consecutive count from accumulating.
	for range 5 {
		b.RecordFailure()
		b.RecordFailure()
		b.RecordSuccess()
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed (failures never consecutive)", b.State())
	}
}

func TestBreaker_HalfOpenCloseAfterSuccesses(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.OpenTimeout = time.Millisecond
	b := NewBreaker(cfg)

	for range 3 {
		b.RecordFailure()
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	time.Sleep(5 * time.Millisecond)

	if !b.Allow() {
		t.Fatal("should allow probe after timeout")
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half_open", b.State())
	}

	// One success is not enough with SuccessThreshold 2.
	b.RecordSuccess()
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half_open after 1 success", b.State())
	}
	b.RecordSuccess()
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed after 2 successes", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.OpenTimeout = time.Millisecond
	b := NewBreaker(cfg)

	for range 3 {
		b.RecordFailure()
	}
	time.Sleep(5 * time.Millisecond)

	if !b.Allow() {
		t.Fatal("should allow probe")
	}
	b.RecordSuccess()

	// A failure mid-probing reopens immediately and restarts the timeout.
	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open after probe failure", b.State())
	}
	if b.Allow() {
		t.Fatal("reopened breaker should reject")
	}
}

func TestBreaker_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	b := NewBreaker(Config{
		FailureThreshold: 100,
		SuccessThreshold: 2,
		OpenTimeout:      time.Millisecond,
	})

	done := make(chan struct{})
	for range 10 {
		go func() {
			for range 100 {
				b.Allow()
				b.RecordSuccess()
				b.RecordFailure()
				_ = b.State()
				_ = b.LastUsed()
			}
			done <- struct{}{}
		}()
	}
	for range 10 {
		<-done
	}
	// No race detected = pass (test runs with -race).
}

func TestState_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half_open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
