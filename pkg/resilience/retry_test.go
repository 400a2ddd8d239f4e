package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoStopsAtMaxAttempts(t *testing.T) {
	calls := 0
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Sleep: func(time.Duration) {}}
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("transient")
	})
	if err == nil {
		t.Fatalf("expected failure")
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestDoReturnsNilOnLaterSuccess(t *testing.T) {
	calls := 0
	p := Policy{MaxAttempts: 4, BaseDelay: time.Millisecond, Sleep: func(time.Duration) {}}
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestBackoffMonotoneUpToCap(t *testing.T) {
	var delays []time.Duration
	p := Policy{
		MaxAttempts: 6,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    500 * time.Millisecond,
		Sleep:       func(d time.Duration) { delays = append(delays, d) },
	}
	_ = p.Do(context.Background(), func(context.Context) error {
		return errors.New("transient")
	})
	if len(delays) != 5 {
		t.Fatalf("expected 5 sleeps, got %d", len(delays))
	}
	for i := 1; i < len(delays); i++ {
		if delays[i] < delays[i-1] {
			t.Fatalf("delay decreased: %v then %v", delays[i-1], delays[i])
		}
	}
	for _, d := range delays {
		if d > 500*time.Millisecond {
			t.Fatalf("delay %v exceeds cap", d)
		}
	}
	if delays[0] != 100*time.Millisecond {
		t.Fatalf("first delay %v, want base", delays[0])
	}
	if delays[len(delays)-1] != 500*time.Millisecond {
		t.Fatalf("final delay %v, want cap", delays[len(delays)-1])
	}
}

func TestRateLimitHintOverridesSchedule(t *testing.T) {
	var delays []time.Duration
	p := Policy{
		MaxAttempts: 2,
		BaseDelay:   time.Second,
		Sleep:       func(d time.Duration) { delays = append(delays, d) },
	}
	_ = p.Do(context.Background(), func(context.Context) error {
		return RateLimitError{Provider: "stt", RetryAfter: 42 * time.Millisecond}
	})
	if len(delays) != 1 || delays[0] != 42*time.Millisecond {
		t.Fatalf("expected retry hint to set delay, got %v", delays)
	}
}

func TestDoHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := Policy{MaxAttempts: 5, BaseDelay: time.Millisecond, Sleep: func(time.Duration) {}}
	err := p.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected no retries after cancel, got %d calls", calls)
	}
}

func TestAttemptTimeoutCountsAsFailure(t *testing.T) {
	calls := 0
	p := Policy{
		MaxAttempts:    2,
		BaseDelay:      time.Millisecond,
		AttemptTimeout: 10 * time.Millisecond,
		Sleep:          func(time.Duration) {},
	}
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})
	if err == nil {
		t.Fatalf("expected failure")
	}
	if calls != 2 {
		t.Fatalf("expected timed-out attempt to be retried, got %d calls", calls)
	}
}

func TestCircuitBreakerOpensOnRateLimits(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute)
	if !cb.Allow() {
		t.Fatalf("breaker should start closed")
	}
	cb.OnError(RateLimitError{Provider: "tts"})
	cb.OnError(errors.New("not a rate limit"))
	if !cb.Allow() {
		t.Fatalf("non-rate-limit errors must not open the breaker")
	}
	cb.OnError(RateLimitError{Provider: "tts"})
	if cb.Allow() {
		t.Fatalf("breaker should be open after threshold")
	}
	cb.OnSuccess()
	if !cb.Allow() {
		t.Fatalf("breaker should close on success")
	}
}
