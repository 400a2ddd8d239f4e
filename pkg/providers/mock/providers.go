// Package mock provides deterministic provider adapters for local runs
// and tests. No network dependency.
package mock

import (
	"context"
	"time"

	"github.com/harunnryd/companion/pkg/adapters/stt"
	"github.com/harunnryd/companion/pkg/adapters/tts"
	"github.com/harunnryd/companion/pkg/frames"
	"github.com/harunnryd/companion/pkg/llm"
)

type STTConfig struct {
	// Transcript is returned for every utterance. When EchoPayload is set
	// the utterance payload is returned as text instead.
	Transcript  string
	EchoPayload bool
	Confidence  float64
	Delay       time.Duration
	Err         error
}

type Recognizer struct {
	cfg STTConfig
}

func NewRecognizer(cfg STTConfig) *Recognizer {
	if cfg.Transcript == "" {
		cfg.Transcript = "mock transcript"
	}
	if cfg.Confidence == 0 {
		cfg.Confidence = 0.95
	}
	return &Recognizer{cfg: cfg}
}

func (r *Recognizer) Name() string { return "mock_stt" }

func (r *Recognizer) Recognize(ctx context.Context, utt frames.Utterance) (stt.Transcript, error) {
	if err := wait(ctx, r.cfg.Delay); err != nil {
		return stt.Transcript{}, err
	}
	if r.cfg.Err != nil {
		return stt.Transcript{}, r.cfg.Err
	}
	text := r.cfg.Transcript
	if r.cfg.EchoPayload {
		text = string(utt.Payload)
	}
	return stt.Transcript{Text: text, Confidence: r.cfg.Confidence}, nil
}

type TTSConfig struct {
	MIME  string
	Delay time.Duration
	Err   error
}

type Synthesizer struct {
	cfg TTSConfig
}

func NewSynthesizer(cfg TTSConfig) *Synthesizer {
	if cfg.MIME == "" {
		cfg.MIME = "audio/mpeg"
	}
	return &Synthesizer{cfg: cfg}
}

func (s *Synthesizer) Name() string { return "mock_tts" }

func (s *Synthesizer) Synthesize(ctx context.Context, text string) (tts.Audio, error) {
	if err := wait(ctx, s.cfg.Delay); err != nil {
		return tts.Audio{}, err
	}
	if s.cfg.Err != nil {
		return tts.Audio{}, s.cfg.Err
	}
	// Deterministic payload derived from the text.
	return tts.Audio{Data: []byte("audio:" + text), MIME: s.cfg.MIME}, nil
}

type LLMConfig struct {
	// ResponseText is returned verbatim. When EchoTranscript is set the
	// last user message is echoed back instead.
	ResponseText   string
	EchoTranscript bool
	Delay          time.Duration
	Err            error
}

type LLMAdapter struct {
	cfg LLMConfig
}

func NewLLMAdapter(cfg LLMConfig) *LLMAdapter {
	if cfg.ResponseText == "" {
		cfg.ResponseText = "mock response"
	}
	return &LLMAdapter{cfg: cfg}
}

func (a *LLMAdapter) Name() string { return "mock_llm" }

func (a *LLMAdapter) Generate(ctx context.Context, input llm.Context) (llm.Response, error) {
	if err := wait(ctx, a.cfg.Delay); err != nil {
		return llm.Response{}, err
	}
	if a.cfg.Err != nil {
		return llm.Response{}, a.cfg.Err
	}
	text := a.cfg.ResponseText
	if a.cfg.EchoTranscript {
		for i := len(input.Messages) - 1; i >= 0; i-- {
			if input.Messages[i]["role"] == "user" {
				if content, ok := input.Messages[i]["content"].(string); ok {
					text = "you said: " + content
				}
				break
			}
		}
	}
	return llm.Response{Text: text, FinishReason: "stop"}, nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var (
	_ stt.Recognizer  = (*Recognizer)(nil)
	_ tts.Synthesizer = (*Synthesizer)(nil)
	_ llm.Adapter     = (*LLMAdapter)(nil)
)
