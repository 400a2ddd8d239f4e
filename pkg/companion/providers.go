package companion

import (
	"fmt"
	"time"

	"github.com/harunnryd/companion/pkg/adapters/stt"
	"github.com/harunnryd/companion/pkg/adapters/tts"
	"github.com/harunnryd/companion/pkg/configutil"
	"github.com/harunnryd/companion/pkg/llm"
	"github.com/harunnryd/companion/pkg/providers/deepgram"
	"github.com/harunnryd/companion/pkg/providers/deepseek"
	"github.com/harunnryd/companion/pkg/providers/elevenlabs"
	"github.com/harunnryd/companion/pkg/providers/mock"
)

func buildRecognizer(cfg VendorConfig) (stt.Recognizer, error) {
	switch cfg.Provider {
	case "deepgram":
		if err := configutil.ValidateSettings(cfg.Settings, configutil.Schema{
			Required: []string{"api_key"},
			Optional: []string{"model", "language", "encoding", "sample_rate", "final_wait_ms"},
		}); err != nil {
			return nil, fmt.Errorf("vendors.stt.settings: %w", err)
		}
		var s struct {
			APIKey      string `mapstructure:"api_key"`
			Model       string `mapstructure:"model"`
			Language    string `mapstructure:"language"`
			Encoding    string `mapstructure:"encoding"`
			SampleRate  int    `mapstructure:"sample_rate"`
			FinalWaitMS int    `mapstructure:"final_wait_ms"`
		}
		if err := configutil.DecodeSettings(cfg.Settings, &s); err != nil {
			return nil, fmt.Errorf("vendors.stt.settings: %w", err)
		}
		return deepgram.New(deepgram.Config{
			APIKey:     s.APIKey,
			Model:      s.Model,
			Language:   s.Language,
			Encoding:   s.Encoding,
			SampleRate: s.SampleRate,
			FinalWait:  time.Duration(s.FinalWaitMS) * time.Millisecond,
		}), nil
	case "mock":
		var s struct {
			Transcript  string `mapstructure:"transcript"`
			EchoPayload bool   `mapstructure:"echo_payload"`
		}
		if err := configutil.DecodeSettings(cfg.Settings, &s); err != nil {
			return nil, fmt.Errorf("vendors.stt.settings: %w", err)
		}
		return mock.NewRecognizer(mock.STTConfig{
			Transcript:  s.Transcript,
			EchoPayload: s.EchoPayload,
		}), nil
	default:
		return nil, fmt.Errorf("unknown stt provider %q", cfg.Provider)
	}
}

func buildSynthesizer(cfg VendorConfig) (tts.Synthesizer, error) {
	switch cfg.Provider {
	case "elevenlabs":
		if err := configutil.ValidateSettings(cfg.Settings, configutil.Schema{
			Required: []string{"api_key", "voice_id"},
			Optional: []string{"model_id", "output_format", "stability", "similarity_boost", "base_url"},
		}); err != nil {
			return nil, fmt.Errorf("vendors.tts.settings: %w", err)
		}
		var s struct {
			APIKey          string  `mapstructure:"api_key"`
			VoiceID         string  `mapstructure:"voice_id"`
			ModelID         string  `mapstructure:"model_id"`
			OutputFormat    string  `mapstructure:"output_format"`
			Stability       float64 `mapstructure:"stability"`
			SimilarityBoost float64 `mapstructure:"similarity_boost"`
			BaseURL         string  `mapstructure:"base_url"`
		}
		if err := configutil.DecodeSettings(cfg.Settings, &s); err != nil {
			return nil, fmt.Errorf("vendors.tts.settings: %w", err)
		}
		return elevenlabs.New(elevenlabs.Config{
			APIKey:          s.APIKey,
			VoiceID:         s.VoiceID,
			ModelID:         s.ModelID,
			OutputFormat:    s.OutputFormat,
			Stability:       s.Stability,
			SimilarityBoost: s.SimilarityBoost,
			BaseURL:         s.BaseURL,
		}), nil
	case "mock":
		var s struct {
			MIME string `mapstructure:"mime"`
		}
		if err := configutil.DecodeSettings(cfg.Settings, &s); err != nil {
			return nil, fmt.Errorf("vendors.tts.settings: %w", err)
		}
		return mock.NewSynthesizer(mock.TTSConfig{MIME: s.MIME}), nil
	default:
		return nil, fmt.Errorf("unknown tts provider %q", cfg.Provider)
	}
}

func buildLLM(cfg VendorConfig) (llm.Adapter, error) {
	switch cfg.Provider {
	case "deepseek":
		if err := configutil.ValidateSettings(cfg.Settings, configutil.Schema{
			Required: []string{"api_key"},
			Optional: []string{"model", "base_url"},
		}); err != nil {
			return nil, fmt.Errorf("vendors.llm.settings: %w", err)
		}
		var s struct {
			APIKey  string `mapstructure:"api_key"`
			Model   string `mapstructure:"model"`
			BaseURL string `mapstructure:"base_url"`
		}
		if err := configutil.DecodeSettings(cfg.Settings, &s); err != nil {
			return nil, fmt.Errorf("vendors.llm.settings: %w", err)
		}
		a := deepseek.NewAdapter(s.APIKey, s.Model)
		if s.BaseURL != "" {
			a.BaseURL = s.BaseURL
		}
		return a, nil
	case "mock":
		var s struct {
			ResponseText   string `mapstructure:"response_text"`
			EchoTranscript bool   `mapstructure:"echo_transcript"`
		}
		if err := configutil.DecodeSettings(cfg.Settings, &s); err != nil {
			return nil, fmt.Errorf("vendors.llm.settings: %w", err)
		}
		return mock.NewLLMAdapter(mock.LLMConfig{
			ResponseText:   s.ResponseText,
			EchoTranscript: s.EchoTranscript,
		}), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
