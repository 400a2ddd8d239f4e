package stt

import (
	"context"

	"github.com/harunnryd/companion/pkg/frames"
)

// Recognizer defines the contract for any speech-recognition vendor.
// One call consumes one complete Utterance; results are never cached.
type Recognizer interface {
	// Name returns adapter name for logging.
	Name() string
	// Recognize transcribes one utterance. Implementations must honor
	// ctx cancellation: an abandoned session must not leak a call.
	Recognize(ctx context.Context, utt frames.Utterance) (Transcript, error)
}

// Transcript is one recognition result.
type Transcript struct {
	Text       string
	Confidence float64
}

// Config contains vendor-agnostic recognition configuration.
type Config struct {
	Language   string
	Model      string
	SampleRate int
}
