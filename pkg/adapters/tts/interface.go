package tts

import "context"

// Synthesizer defines the contract for any speech-synthesis vendor.
// One call produces one complete audio payload for one reply.
type Synthesizer interface {
	// Name returns adapter name for logging.
	Name() string
	// Synthesize renders text to audio. Implementations must honor ctx
	// cancellation.
	Synthesize(ctx context.Context, text string) (Audio, error)
}

// Audio is one synthesis result.
type Audio struct {
	Data []byte
	MIME string
}

// Config contains vendor-agnostic synthesis configuration.
type Config struct {
	Voice      string
	Language   string
	SampleRate int
}
