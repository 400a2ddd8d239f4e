package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/harunnryd/companion/pkg/adapters/stt"
	"github.com/harunnryd/companion/pkg/adapters/tts"
	"github.com/harunnryd/companion/pkg/dialogue"
	"github.com/harunnryd/companion/pkg/errorsx"
	"github.com/harunnryd/companion/pkg/frames"
	"github.com/harunnryd/companion/pkg/transports/mock"
)

type fakeRecognizer struct {
	fn func(ctx context.Context, utt frames.Utterance) (stt.Transcript, error)
}

func (f fakeRecognizer) Recognize(ctx context.Context, utt frames.Utterance) (stt.Transcript, error) {
	return f.fn(ctx, utt)
}

type fakeResponder struct {
	fn func(ctx context.Context, req dialogue.Request) (dialogue.Reply, error)
}

func (f fakeResponder) Respond(ctx context.Context, req dialogue.Request) (dialogue.Reply, error) {
	return f.fn(ctx, req)
}

type fakeSpeaker struct {
	fn func(ctx context.Context, text string) (tts.Audio, error)
}

func (f fakeSpeaker) Synthesize(ctx context.Context, text string) (tts.Audio, error) {
	return f.fn(ctx, text)
}

func echoStack(speak bool) (Recognizer, Responder, Speaker) {
	rec := fakeRecognizer{fn: func(_ context.Context, utt frames.Utterance) (stt.Transcript, error) {
		return stt.Transcript{Text: string(utt.Payload), Confidence: 0.9}, nil
	}}
	resp := fakeResponder{fn: func(_ context.Context, req dialogue.Request) (dialogue.Reply, error) {
		return dialogue.Reply{Text: "reply:" + req.Transcript, Speak: speak}, nil
	}}
	spk := fakeSpeaker{fn: func(_ context.Context, text string) (tts.Audio, error) {
		return tts.Audio{Data: []byte(text), MIME: "mp3"}, nil
	}}
	return rec, resp, spk
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitMessage(t *testing.T, tr *mock.Transport) frames.Message {
	t.Helper()
	select {
	case msg := <-tr.Sent():
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("no message arrived")
		return frames.Message{}
	}
}

func expectSilence(t *testing.T, tr *mock.Transport, d time.Duration) {
	t.Helper()
	select {
	case msg := <-tr.Sent():
		if msg.Type == frames.MessagePing {
			return
		}
		t.Fatalf("unexpected message %+v", msg)
	case <-time.After(d):
	}
}

func TestRepliesFollowArrivalOrder(t *testing.T) {
	rec, resp, spk := echoStack(false)
	m := NewManager(Config{}, rec, resp, spk, quietLogger())
	tr := mock.New()
	if _, err := m.Attach(context.Background(), "child-1", tr); err != nil {
		t.Fatalf("attach: %v", err)
	}
	defer m.Drain()

	tr.Push(frames.NewUtterance([]byte("one"), ""))
	tr.Push(frames.NewUtterance([]byte("two"), ""))

	for _, want := range []string{"reply:one", "reply:two"} {
		msg := waitMessage(t, tr)
		if msg.Type != frames.MessageText || msg.Content != want {
			t.Fatalf("got %+v, want text %q", msg, want)
		}
	}
}

func TestTextPrecedesAudio(t *testing.T) {
	rec, resp, spk := echoStack(true)
	m := NewManager(Config{}, rec, resp, spk, quietLogger())
	tr := mock.New()
	if _, err := m.Attach(context.Background(), "child-1", tr); err != nil {
		t.Fatalf("attach: %v", err)
	}
	defer m.Drain()

	tr.Push(frames.NewUtterance([]byte("hi"), ""))

	first := waitMessage(t, tr)
	if first.Type != frames.MessageText {
		t.Fatalf("first message %q, want text", first.Type)
	}
	second := waitMessage(t, tr)
	if second.Type != frames.MessageAudio {
		t.Fatalf("second message %q, want audio", second.Type)
	}
	payload, err := second.AudioPayload()
	if err != nil {
		t.Fatalf("audio payload: %v", err)
	}
	if string(payload) != "reply:hi" {
		t.Fatalf("unexpected audio %q", payload)
	}
}

func TestRecognitionFailureYieldsOneErrorEnvelope(t *testing.T) {
	rec := fakeRecognizer{fn: func(context.Context, frames.Utterance) (stt.Transcript, error) {
		return stt.Transcript{}, errorsx.Wrap(errors.New("upstream down"), errorsx.ReasonRecognitionFailed)
	}}
	_, resp, spk := echoStack(false)
	m := NewManager(Config{}, rec, resp, spk, quietLogger())
	tr := mock.New()
	if _, err := m.Attach(context.Background(), "child-1", tr); err != nil {
		t.Fatalf("attach: %v", err)
	}
	defer m.Drain()

	tr.Push(frames.NewUtterance([]byte("garbled"), ""))

	msg := waitMessage(t, tr)
	if msg.Type != frames.MessageError {
		t.Fatalf("got %q, want error", msg.Type)
	}
	if msg.Code != string(errorsx.ReasonRecognitionFailed) {
		t.Fatalf("unexpected code %q", msg.Code)
	}
	if msg.Content == "upstream down" {
		t.Fatal("raw provider error leaked to client")
	}
	expectSilence(t, tr, 200*time.Millisecond)
}

func TestSynthesisFailureKeepsTextReply(t *testing.T) {
	rec, resp, _ := echoStack(true)
	spk := fakeSpeaker{fn: func(context.Context, string) (tts.Audio, error) {
		return tts.Audio{}, errorsx.Wrap(errors.New("voice down"), errorsx.ReasonSynthesisFailed)
	}}
	m := NewManager(Config{}, rec, resp, spk, quietLogger())
	tr := mock.New()
	if _, err := m.Attach(context.Background(), "child-1", tr); err != nil {
		t.Fatalf("attach: %v", err)
	}
	defer m.Drain()

	tr.Push(frames.NewUtterance([]byte("hi"), ""))

	first := waitMessage(t, tr)
	if first.Type != frames.MessageText || first.Content != "reply:hi" {
		t.Fatalf("text reply missing, got %+v", first)
	}
	second := waitMessage(t, tr)
	if second.Type != frames.MessageError || second.Code != string(errorsx.ReasonSynthesisFailed) {
		t.Fatalf("expected synthesis error envelope, got %+v", second)
	}
}

func TestIdleSessionsEvicted(t *testing.T) {
	rec, resp, spk := echoStack(false)
	m := NewManager(Config{
		IdleTimeout:   30 * time.Millisecond,
		SweepInterval: 10 * time.Millisecond,
	}, rec, resp, spk, quietLogger())
	tr := mock.New()
	sess, err := m.Attach(context.Background(), "child-1", tr)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	deadline := time.After(5 * time.Second)
	for m.Count() != 0 {
		select {
		case <-deadline:
			t.Fatal("idle session never evicted")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if sess.State() != StateClosed {
		t.Fatalf("expected CLOSED, got %s", sess.State())
	}
}

func TestTransportCloseCancelsInFlightCycle(t *testing.T) {
	started := make(chan struct{})
	rec := fakeRecognizer{fn: func(ctx context.Context, _ frames.Utterance) (stt.Transcript, error) {
		close(started)
		<-ctx.Done()
		return stt.Transcript{}, ctx.Err()
	}}
	_, resp, spk := echoStack(false)
	m := NewManager(Config{}, rec, resp, spk, quietLogger())
	tr := mock.New()
	sess, err := m.Attach(context.Background(), "child-1", tr)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}

	tr.Push(frames.NewUtterance([]byte("hi"), ""))
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("cycle never started")
	}

	tr.Close()

	deadline := time.After(5 * time.Second)
	for m.Count() != 0 {
		select {
		case <-deadline:
			t.Fatal("session never released after transport close")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if sess.State() != StateClosed {
		t.Fatalf("expected CLOSED, got %s", sess.State())
	}
}
