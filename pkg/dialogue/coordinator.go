package dialogue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/harunnryd/companion/pkg/errorsx"
	"github.com/harunnryd/companion/pkg/llm"
	"github.com/harunnryd/companion/pkg/memory"
	"github.com/harunnryd/companion/pkg/resilience"
	"github.com/harunnryd/companion/pkg/sentiment"
)

// Modality values for reply delivery.
const (
	// ModalityAuto speaks replies short enough to hold a child's
	// attention and degrades long ones to text only.
	ModalityAuto = "auto"
	// ModalityText never synthesizes audio.
	ModalityText = "text"
)

// DefaultBasePrompt is the companion's standing persona.
const DefaultBasePrompt = "You are a warm, patient voice companion for a young child. " +
	"Keep answers short, simple, and kind. Encourage curiosity. " +
	"Never discuss frightening or adult topics; gently change the subject instead."

// Request is one transcribed child utterance to answer.
type Request struct {
	Identity   string
	SessionID  string
	Transcript string
}

// Reply is the companion's answer and its delivery decision.
type Reply struct {
	Text string
	// Speak asks the caller to synthesize audio for Text.
	Speak bool
}

// TurnStore is the slice of the memory store the coordinator needs.
type TurnStore interface {
	RecentTurns(ctx context.Context, identity string, limit int) ([]memory.Record, error)
	AppendExchange(ctx context.Context, child, companion memory.Record) error
}

// Config tunes reply generation.
type Config struct {
	BasePrompt string
	// HistoryLimit caps how many remembered turns flow into the prompt.
	HistoryLimit int
	// MaxSpeakChars is the longest reply that still gets audio under
	// ModalityAuto.
	MaxSpeakChars int
	Modality      string
}

func (c Config) withDefaults() Config {
	if c.BasePrompt == "" {
		c.BasePrompt = DefaultBasePrompt
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 12
	}
	if c.MaxSpeakChars <= 0 {
		c.MaxSpeakChars = 600
	}
	if c.Modality == "" {
		c.Modality = ModalityAuto
	}
	return c
}

// Coordinator turns transcripts into replies: it merges remembered turns
// into the prompt, calls the dialogue engine, decides modality, and
// persists the exchange.
type Coordinator struct {
	adapter llm.Adapter
	store   TurnStore
	policy  resilience.Policy
	cfg     Config
	logger  *slog.Logger
}

// NewCoordinator builds a coordinator. The policy governs retries around
// the dialogue engine.
func NewCoordinator(adapter llm.Adapter, store TurnStore, policy resilience.Policy, cfg Config, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		adapter: adapter,
		store:   store,
		policy:  policy,
		cfg:     cfg.withDefaults(),
		logger:  logger,
	}
}

// Respond produces one reply for one transcript. A memory read failure
// degrades to a history-free prompt; a persistence failure is logged and
// the reply is still returned. Only engine failure is fatal.
func (c *Coordinator) Respond(ctx context.Context, req Request) (Reply, error) {
	history, err := c.store.RecentTurns(ctx, req.Identity, c.cfg.HistoryLimit)
	if err != nil {
		c.logger.Warn("memory read failed, replying without history",
			"identity", req.Identity, "error", err)
		history = nil
	}

	input := c.buildContext(history, req.Transcript)

	var resp llm.Response
	err = c.policy.Do(ctx, func(ctx context.Context) error {
		var genErr error
		resp, genErr = c.adapter.Generate(ctx, input)
		return genErr
	})
	if err != nil {
		reason := errorsx.ReasonDialogueFailed
		if resilience.IsRateLimit(err) {
			reason = errorsx.ReasonDialogueRateLimit
		}
		return Reply{}, errorsx.Wrap(fmt.Errorf("generate reply: %w", err), reason)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return Reply{}, errorsx.New(errorsx.ReasonDialogueFailed, "engine returned empty reply")
	}

	reply := Reply{Text: text, Speak: c.shouldSpeak(text)}
	c.persistExchange(ctx, req, text)
	return reply, nil
}

func (c *Coordinator) buildContext(history []memory.Record, transcript string) llm.Context {
	messages := []map[string]any{llm.SystemMessage(c.cfg.BasePrompt)}
	for _, turn := range history {
		switch turn.Speaker {
		case memory.SpeakerChild:
			messages = append(messages, llm.UserMessage(turn.Content))
		case memory.SpeakerCompanion:
			messages = append(messages, llm.AssistantMessage(turn.Content))
		}
	}
	messages = append(messages, llm.UserMessage(transcript))
	return llm.Context{Messages: messages}
}

func (c *Coordinator) shouldSpeak(text string) bool {
	if c.cfg.Modality == ModalityText {
		return false
	}
	return len([]rune(text)) <= c.cfg.MaxSpeakChars
}

func (c *Coordinator) persistExchange(ctx context.Context, req Request, replyText string) {
	mood := string(sentiment.Analyze(req.Transcript, replyText))
	child := memory.Record{
		Identity:  req.Identity,
		SessionID: req.SessionID,
		Speaker:   memory.SpeakerChild,
		Content:   req.Transcript,
		Sentiment: mood,
	}
	companion := memory.Record{
		Identity:  req.Identity,
		SessionID: req.SessionID,
		Speaker:   memory.SpeakerCompanion,
		Content:   replyText,
		Sentiment: mood,
	}
	if err := c.store.AppendExchange(ctx, child, companion); err != nil {
		c.logger.Error("exchange not persisted",
			"identity", req.Identity, "session_id", req.SessionID, "error", err)
	}
}
