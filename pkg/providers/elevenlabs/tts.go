package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/harunnryd/companion/pkg/adapters/tts"
	"github.com/harunnryd/companion/pkg/logging"
	"github.com/harunnryd/companion/pkg/resilience"
)

type Config struct {
	APIKey          string
	VoiceID         string
	ModelID         string
	OutputFormat    string
	Stability       float64
	SimilarityBoost float64
	BaseURL         string
}

// Synthesizer renders one reply to audio per call through the ElevenLabs
// REST endpoint.
type Synthesizer struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

func New(cfg Config) *Synthesizer {
	if cfg.ModelID == "" {
		cfg.ModelID = "eleven_turbo_v2_5"
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "mp3_44100_128"
	}
	if cfg.Stability == 0 {
		cfg.Stability = 0.5
	}
	if cfg.SimilarityBoost == 0 {
		cfg.SimilarityBoost = 0.8
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.elevenlabs.io"
	}
	return &Synthesizer{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logging.NewComponentLogger(slog.Default(), "elevenlabs_tts"),
	}
}

func (s *Synthesizer) Name() string { return "elevenlabs" }

func (s *Synthesizer) Synthesize(ctx context.Context, text string) (tts.Audio, error) {
	if s.cfg.APIKey == "" || s.cfg.VoiceID == "" {
		return tts.Audio{}, errors.New("missing elevenlabs config")
	}

	payload := map[string]any{
		"text":     text,
		"model_id": s.cfg.ModelID,
		"voice_settings": map[string]any{
			"stability":        s.cfg.Stability,
			"similarity_boost": s.cfg.SimilarityBoost,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return tts.Audio{}, err
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		s.cfg.BaseURL, s.cfg.VoiceID, s.cfg.OutputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return tts.Audio{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", s.cfg.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return tts.Audio{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		msg, _ := io.ReadAll(resp.Body)
		s.logger.Warn("elevenlabs rate limit", slog.String("status", resp.Status))
		return tts.Audio{}, resilience.RateLimitError{
			Provider:   "elevenlabs",
			Message:    string(msg),
			RetryAfter: retryAfter(resp),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return tts.Audio{}, fmt.Errorf("elevenlabs %s: %s", resp.Status, msg)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return tts.Audio{}, err
	}
	s.logger.Debug("synthesis complete",
		slog.Int("chars", len(text)), slog.Int("size_bytes", len(data)))
	return tts.Audio{Data: data, MIME: formatMIME(s.cfg.OutputFormat)}, nil
}

func retryAfter(resp *http.Response) time.Duration {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func formatMIME(outputFormat string) string {
	switch {
	case strings.HasPrefix(outputFormat, "mp3"):
		return "audio/mpeg"
	case strings.HasPrefix(outputFormat, "pcm"):
		return "audio/pcm"
	case strings.HasPrefix(outputFormat, "ulaw"):
		return "audio/basic"
	default:
		return "application/octet-stream"
	}
}

var _ tts.Synthesizer = (*Synthesizer)(nil)
