// Package gateway fronts external speech services with retry, rate-limit
// handling, and a circuit breaker. Session code talks to gateways, never
// to provider adapters directly.
package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/harunnryd/companion/pkg/adapters/stt"
	"github.com/harunnryd/companion/pkg/adapters/tts"
	"github.com/harunnryd/companion/pkg/errorsx"
	"github.com/harunnryd/companion/pkg/frames"
	"github.com/harunnryd/companion/pkg/resilience"
)

// Recognition retries one recognizer under a policy.
type Recognition struct {
	adapter stt.Recognizer
	policy  resilience.Policy
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

func NewRecognition(adapter stt.Recognizer, policy resilience.Policy, breaker *resilience.CircuitBreaker, logger *slog.Logger) *Recognition {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recognition{adapter: adapter, policy: policy, breaker: breaker, logger: logger}
}

// Recognize transcribes one utterance, retrying transient failures.
func (g *Recognition) Recognize(ctx context.Context, utt frames.Utterance) (stt.Transcript, error) {
	if g.breaker != nil && !g.breaker.Allow() {
		err := resilience.RateLimitError{Provider: g.adapter.Name(), Message: "recognition circuit open"}
		return stt.Transcript{}, errorsx.Wrap(err, errorsx.ReasonRecognitionRateLimit)
	}

	var out stt.Transcript
	err := g.policy.Do(ctx, func(ctx context.Context) error {
		t, err := g.adapter.Recognize(ctx, utt)
		if err != nil {
			return err
		}
		out = t
		return nil
	})
	if g.breaker != nil {
		if err != nil {
			g.breaker.OnError(err)
		} else {
			g.breaker.OnSuccess()
		}
	}
	if err != nil {
		return stt.Transcript{}, classify(err, g.adapter.Name(), "recognition",
			errorsx.ReasonRecognitionRateLimit, errorsx.ReasonRecognitionFailed)
	}
	return out, nil
}

// Synthesis retries one synthesizer under a policy.
type Synthesis struct {
	adapter tts.Synthesizer
	policy  resilience.Policy
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

func NewSynthesis(adapter tts.Synthesizer, policy resilience.Policy, breaker *resilience.CircuitBreaker, logger *slog.Logger) *Synthesis {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesis{adapter: adapter, policy: policy, breaker: breaker, logger: logger}
}

// Synthesize renders text to audio, retrying transient failures.
func (g *Synthesis) Synthesize(ctx context.Context, text string) (tts.Audio, error) {
	if g.breaker != nil && !g.breaker.Allow() {
		err := resilience.RateLimitError{Provider: g.adapter.Name(), Message: "synthesis circuit open"}
		return tts.Audio{}, errorsx.Wrap(err, errorsx.ReasonSynthesisRateLimit)
	}

	var out tts.Audio
	err := g.policy.Do(ctx, func(ctx context.Context) error {
		a, err := g.adapter.Synthesize(ctx, text)
		if err != nil {
			return err
		}
		out = a
		return nil
	})
	if g.breaker != nil {
		if err != nil {
			g.breaker.OnError(err)
		} else {
			g.breaker.OnSuccess()
		}
	}
	if err != nil {
		return tts.Audio{}, classify(err, g.adapter.Name(), "synthesis",
			errorsx.ReasonSynthesisRateLimit, errorsx.ReasonSynthesisFailed)
	}
	return out, nil
}

// classify maps a final gateway error to a reason code. Context errors
// pass through untouched so a cancelled session is not mistaken for a
// provider outage.
func classify(err error, provider, stage string, rateLimit, failed errorsx.ReasonCode) error {
	if err == context.Canceled || err == context.DeadlineExceeded {
		return err
	}
	reason := failed
	if resilience.IsRateLimit(err) {
		reason = rateLimit
	}
	return errorsx.Wrap(fmt.Errorf("%s via %s: %w", stage, provider, err), reason)
}
