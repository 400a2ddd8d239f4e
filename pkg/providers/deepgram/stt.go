package deepgram

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/companion/pkg/adapters/stt"
	"github.com/harunnryd/companion/pkg/errorsx"
	"github.com/harunnryd/companion/pkg/frames"
	"github.com/harunnryd/companion/pkg/logging"
	"github.com/harunnryd/companion/pkg/resilience"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

type Config struct {
	APIKey     string
	Model      string
	Language   string
	Encoding   string
	SampleRate int
	// FinalWait bounds how long to wait for the final transcript after the
	// audio has been fully streamed.
	FinalWait time.Duration
}

// Recognizer transcribes one utterance per call by streaming it through a
// Deepgram live connection and collecting the final results.
type Recognizer struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config) *Recognizer {
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.FinalWait <= 0 {
		cfg.FinalWait = 10 * time.Second
	}
	return &Recognizer{
		cfg:    cfg,
		logger: logging.NewComponentLogger(slog.Default(), "deepgram_stt"),
	}
}

func (r *Recognizer) Name() string { return "deepgram" }

func (r *Recognizer) Recognize(ctx context.Context, utt frames.Utterance) (stt.Transcript, error) {
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	col := &collector{
		logger: r.logger,
		done:   make(chan struct{}),
	}

	clientOptions := &interfaces.ClientOptions{
		EnableKeepAlive: true,
	}
	transcriptOptions := &interfaces.LiveTranscriptionOptions{
		Model:       r.cfg.Model,
		Language:    r.cfg.Language,
		Encoding:    r.cfg.Encoding,
		SampleRate:  r.cfg.SampleRate,
		SmartFormat: true,
	}

	dgClient, err := client.NewWSUsingCallback(cctx, r.cfg.APIKey, clientOptions, transcriptOptions, col)
	if err != nil {
		return stt.Transcript{}, errorsx.Wrap(fmt.Errorf("deepgram client: %w", err), errorsx.ReasonRecognitionFailed)
	}
	if connected := dgClient.Connect(); !connected {
		return stt.Transcript{}, errorsx.Wrap(fmt.Errorf("deepgram connect failed"), errorsx.ReasonRecognitionFailed)
	}
	defer dgClient.Stop()

	r.logger.Debug("streaming utterance",
		slog.String("utterance_id", utt.ID),
		slog.Int("size_bytes", len(utt.Payload)))

	streamDone := make(chan error, 1)
	go func() {
		streamDone <- dgClient.Stream(bytes.NewReader(utt.Payload))
	}()

	select {
	case <-col.done:
	case err := <-streamDone:
		if err != nil && cctx.Err() == nil {
			return stt.Transcript{}, errorsx.Wrap(fmt.Errorf("deepgram stream: %w", err), errorsx.ReasonRecognitionFailed)
		}
		// Audio fully sent; give the service a bounded window to finalize.
		select {
		case <-col.done:
		case <-time.After(r.cfg.FinalWait):
			r.logger.Warn("final transcript wait elapsed", slog.String("utterance_id", utt.ID))
		case <-ctx.Done():
			return stt.Transcript{}, ctx.Err()
		}
	case <-ctx.Done():
		return stt.Transcript{}, ctx.Err()
	}

	return col.result()
}

// collector implements the SDK's LiveMessageCallback and assembles final
// transcript segments for one utterance.
type collector struct {
	logger *slog.Logger

	mu         sync.Mutex
	parts      []string
	confidence float64
	err        error

	done     chan struct{}
	doneOnce sync.Once
}

func (c *collector) finish() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *collector) result() (stt.Transcript, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return stt.Transcript{}, c.err
	}
	return stt.Transcript{
		Text:       strings.TrimSpace(strings.Join(c.parts, " ")),
		Confidence: c.confidence,
	}, nil
}

func (c *collector) Open(*msginterfaces.OpenResponse) error {
	c.logger.Debug("deepgram connection opened")
	return nil
}

func (c *collector) Message(mr *msginterfaces.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	alt := mr.Channel.Alternatives[0]
	if mr.IsFinal && alt.Transcript != "" {
		c.mu.Lock()
		c.parts = append(c.parts, alt.Transcript)
		c.confidence = alt.Confidence
		c.mu.Unlock()
	}
	if mr.SpeechFinal {
		c.finish()
	}
	return nil
}

func (c *collector) Metadata(md *msginterfaces.MetadataResponse) error {
	c.logger.Debug("deepgram metadata", slog.String("request_id", md.RequestID))
	return nil
}

func (c *collector) SpeechStarted(*msginterfaces.SpeechStartedResponse) error {
	return nil
}

func (c *collector) UtteranceEnd(*msginterfaces.UtteranceEndResponse) error {
	c.finish()
	return nil
}

func (c *collector) Close(*msginterfaces.CloseResponse) error {
	c.finish()
	return nil
}

func (c *collector) Error(er *msginterfaces.ErrorResponse) error {
	c.logger.Error("deepgram error",
		slog.String("error_code", er.ErrCode),
		slog.String("error_message", er.ErrMsg))
	c.mu.Lock()
	if strings.Contains(er.ErrCode, "429") || strings.Contains(strings.ToUpper(er.ErrCode), "RATE") {
		c.err = resilience.RateLimitError{Provider: "deepgram", Message: er.ErrMsg}
	} else {
		c.err = fmt.Errorf("deepgram: %s (%s)", er.ErrMsg, er.ErrCode)
	}
	c.mu.Unlock()
	c.finish()
	return nil
}

func (c *collector) UnhandledEvent(byData []byte) error {
	c.logger.Debug("deepgram unhandled event", slog.String("data", string(byData)))
	return nil
}

var _ stt.Recognizer = (*Recognizer)(nil)
