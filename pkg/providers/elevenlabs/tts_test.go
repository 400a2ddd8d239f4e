package elevenlabs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/harunnryd/companion/pkg/resilience"
)

func TestSynthesizeSuccess(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("xi-api-key")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte("mp3-bytes"))
	}))
	defer srv.Close()

	s := New(Config{APIKey: "k", VoiceID: "voice-1", BaseURL: srv.URL})
	audio, err := s.Synthesize(context.Background(), "hello there")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if string(audio.Data) != "mp3-bytes" {
		t.Fatalf("unexpected audio %q", audio.Data)
	}
	if audio.MIME != "audio/mpeg" {
		t.Fatalf("unexpected mime %q", audio.MIME)
	}
	if gotPath != "/v1/text-to-speech/voice-1" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotKey != "k" {
		t.Fatalf("api key header missing, got %q", gotKey)
	}
	if gotBody["text"] != "hello there" {
		t.Fatalf("unexpected body %v", gotBody)
	}
}

func TestSynthesizeRateLimitCarriesRetryHint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := New(Config{APIKey: "k", VoiceID: "voice-1", BaseURL: srv.URL})
	_, err := s.Synthesize(context.Background(), "hello")

	var rl resilience.RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rl.RetryAfter != 7*time.Second {
		t.Fatalf("retry hint %v, want 7s", rl.RetryAfter)
	}
}

func TestSynthesizeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "voice not found", http.StatusNotFound)
	}))
	defer srv.Close()

	s := New(Config{APIKey: "k", VoiceID: "voice-1", BaseURL: srv.URL})
	if _, err := s.Synthesize(context.Background(), "hello"); err == nil {
		t.Fatal("expected error")
	}
}

func TestSynthesizeRequiresConfig(t *testing.T) {
	s := New(Config{})
	if _, err := s.Synthesize(context.Background(), "hello"); err == nil {
		t.Fatal("expected config error")
	}
}
