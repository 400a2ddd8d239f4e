package dialogue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/harunnryd/companion/pkg/errorsx"
	"github.com/harunnryd/companion/pkg/llm"
	"github.com/harunnryd/companion/pkg/memory"
	"github.com/harunnryd/companion/pkg/resilience"
)

type fakeAdapter struct {
	reply   string
	err     error
	lastCtx llm.Context
}

func (f *fakeAdapter) Generate(_ context.Context, input llm.Context) (llm.Response, error) {
	f.lastCtx = input
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Text: f.reply}, nil
}

func (f *fakeAdapter) Name() string { return "fake" }

type fakeStore struct {
	history    []memory.Record
	historyErr error
	appendErr  error

	appended [][2]memory.Record
}

func (f *fakeStore) RecentTurns(context.Context, string, int) ([]memory.Record, error) {
	return f.history, f.historyErr
}

func (f *fakeStore) AppendExchange(_ context.Context, child, companion memory.Record) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, [2]memory.Record{child, companion})
	return nil
}

func testPolicy() resilience.Policy {
	return resilience.Policy{MaxAttempts: 2, Sleep: func(time.Duration) {}}
}

func newTestCoordinator(adapter llm.Adapter, store TurnStore, cfg Config) *Coordinator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewCoordinator(adapter, store, testPolicy(), cfg, logger)
}

func TestRespondMergesHistoryIntoPrompt(t *testing.T) {
	adapter := &fakeAdapter{reply: "hello again!"}
	store := &fakeStore{history: []memory.Record{
		{Speaker: memory.SpeakerChild, Content: "my cat is called miso"},
		{Speaker: memory.SpeakerCompanion, Content: "miso is a lovely name"},
	}}
	c := newTestCoordinator(adapter, store, Config{})

	_, err := c.Respond(context.Background(), Request{Identity: "child-1", Transcript: "do you remember my cat"})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}

	msgs := adapter.lastCtx.Messages
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	if msgs[0]["role"] != "system" {
		t.Fatalf("first message role %v", msgs[0]["role"])
	}
	if msgs[1]["role"] != "user" || msgs[1]["content"] != "my cat is called miso" {
		t.Fatalf("history child turn missing: %v", msgs[1])
	}
	if msgs[2]["role"] != "assistant" {
		t.Fatalf("history companion turn missing: %v", msgs[2])
	}
	if msgs[3]["content"] != "do you remember my cat" {
		t.Fatalf("transcript missing: %v", msgs[3])
	}
}

func TestLongReplyDegradesToTextOnly(t *testing.T) {
	store := &fakeStore{}
	long := strings.Repeat("once upon a time ", 10)
	adapter := &fakeAdapter{reply: long}
	c := newTestCoordinator(adapter, store, Config{MaxSpeakChars: 40})

	reply, err := c.Respond(context.Background(), Request{Identity: "child-1", Transcript: "story please"})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if reply.Speak {
		t.Fatal("long reply should not be spoken")
	}

	adapter.reply = "the end"
	reply, err = c.Respond(context.Background(), Request{Identity: "child-1", Transcript: "and then?"})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if !reply.Speak {
		t.Fatal("short reply should be spoken")
	}
}

func TestModalityTextNeverSpeaks(t *testing.T) {
	adapter := &fakeAdapter{reply: "hi"}
	c := newTestCoordinator(adapter, &fakeStore{}, Config{Modality: ModalityText})

	reply, err := c.Respond(context.Background(), Request{Identity: "child-1", Transcript: "hello"})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if reply.Speak {
		t.Fatal("text modality produced audio")
	}
}

func TestMemoryReadFailureDegradesGracefully(t *testing.T) {
	adapter := &fakeAdapter{reply: "hi there"}
	store := &fakeStore{historyErr: errors.New("disk gone")}
	c := newTestCoordinator(adapter, store, Config{})

	reply, err := c.Respond(context.Background(), Request{Identity: "child-1", Transcript: "hello"})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if reply.Text != "hi there" {
		t.Fatalf("unexpected reply %q", reply.Text)
	}
	// System prompt plus the transcript only.
	if len(adapter.lastCtx.Messages) != 2 {
		t.Fatalf("expected history-free prompt, got %d messages", len(adapter.lastCtx.Messages))
	}
}

func TestPersistFailureStillReturnsReply(t *testing.T) {
	adapter := &fakeAdapter{reply: "hi there"}
	store := &fakeStore{appendErr: errors.New("disk full")}
	c := newTestCoordinator(adapter, store, Config{})

	reply, err := c.Respond(context.Background(), Request{Identity: "child-1", Transcript: "hello"})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if reply.Text != "hi there" {
		t.Fatalf("unexpected reply %q", reply.Text)
	}
}

func TestExchangePersistedWithSentiment(t *testing.T) {
	adapter := &fakeAdapter{reply: "dragons are wonderful!"}
	store := &fakeStore{}
	c := newTestCoordinator(adapter, store, Config{})

	_, err := c.Respond(context.Background(), Request{
		Identity: "child-1", SessionID: "s1", Transcript: "I love dragons!",
	})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if len(store.appended) != 1 {
		t.Fatalf("expected 1 exchange, got %d", len(store.appended))
	}
	child, companion := store.appended[0][0], store.appended[0][1]
	if child.Speaker != memory.SpeakerChild || companion.Speaker != memory.SpeakerCompanion {
		t.Fatalf("speakers wrong: %q, %q", child.Speaker, companion.Speaker)
	}
	if child.Sentiment != "happy" {
		t.Fatalf("expected happy sentiment, got %q", child.Sentiment)
	}
}

func TestEngineFailureWrapped(t *testing.T) {
	adapter := &fakeAdapter{err: errors.New("engine down")}
	c := newTestCoordinator(adapter, &fakeStore{}, Config{})

	_, err := c.Respond(context.Background(), Request{Identity: "child-1", Transcript: "hello"})
	if !errorsx.HasReason(err, errorsx.ReasonDialogueFailed) {
		t.Fatalf("expected dialogue_failed, got %v", err)
	}
}

func TestEngineRateLimitWrapped(t *testing.T) {
	adapter := &fakeAdapter{err: resilience.RateLimitError{Provider: "deepseek"}}
	c := newTestCoordinator(adapter, &fakeStore{}, Config{})

	_, err := c.Respond(context.Background(), Request{Identity: "child-1", Transcript: "hello"})
	if !errorsx.HasReason(err, errorsx.ReasonDialogueRateLimit) {
		t.Fatalf("expected dialogue_rate_limit, got %v", err)
	}
}
