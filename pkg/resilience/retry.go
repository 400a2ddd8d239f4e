package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"time"
)

// Policy defines the retry behavior shared by all outbound gateway calls:
// exponential backoff from BaseDelay, doubling per attempt up to MaxDelay,
// at most MaxAttempts attempts. A rate-limit error carrying a retry hint
// overrides the next interval. AttemptTimeout bounds each attempt; an
// attempt that hits it counts as a failure.
type Policy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
	Jitter         float64
	IsRetryable    func(error) bool
	Sleep          func(time.Duration)
	OnRetry        func(state RetryState)
}

// RetryState tracks one in-flight call. It lives only for the duration of
// the call and is discarded on success or final failure.
type RetryState struct {
	Attempt   int
	NextDelay time.Duration
	LastErr   error
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 4
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 200 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 5 * time.Second
	}
	if p.IsRetryable == nil {
		p.IsRetryable = DefaultIsRetryable
	}
	if p.Sleep == nil {
		p.Sleep = time.Sleep
	}
	return p
}

// Do runs fn under the policy. Context cancellation aborts immediately
// without consuming an attempt; the context error is returned unwrapped so
// callers can distinguish a closed session from an exhausted upstream.
func (p Policy) Do(ctx context.Context, fn func(context.Context) error) error {
	p = p.withDefaults()
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	state := RetryState{}
	for state.Attempt = 1; state.Attempt <= p.MaxAttempts; state.Attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := p.runAttempt(ctx, fn)
		if err == nil {
			return nil
		}
		state.LastErr = err
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return ctx.Err()
		}
		if !p.IsRetryable(err) || state.Attempt == p.MaxAttempts {
			break
		}
		state.NextDelay = p.nextDelay(state.Attempt, err, r)
		if p.OnRetry != nil {
			p.OnRetry(state)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			p.Sleep(state.NextDelay)
		}
	}
	return fmt.Errorf("retries exhausted after %d attempts: %w", min(state.Attempt, p.MaxAttempts), state.LastErr)
}

func (p Policy) runAttempt(ctx context.Context, fn func(context.Context) error) error {
	if p.AttemptTimeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
	defer cancel()
	return fn(attemptCtx)
}

// nextDelay computes the interval before attempt+1. The schedule is
// monotonically non-decreasing up to MaxDelay; a service retry hint
// replaces the scheduled interval outright.
func (p Policy) nextDelay(attempt int, err error, r *rand.Rand) time.Duration {
	var rl RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter
	}
	pow := math.Pow(2, float64(attempt-1))
	d := time.Duration(float64(p.BaseDelay) * pow)
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		d += time.Duration(float64(d) * p.Jitter * r.Float64())
	}
	return d
}

// DefaultIsRetryable treats everything except context errors as transient.
func DefaultIsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return true
	}
	return true
}
