package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/harunnryd/companion/pkg/errorsx"
	"github.com/harunnryd/companion/pkg/frames"
)

// CaptureState is the recording lifecycle position.
type CaptureState int

const (
	CaptureIdle CaptureState = iota
	CaptureRecording
	CaptureStopping
)

func (s CaptureState) String() string {
	switch s {
	case CaptureIdle:
		return "IDLE"
	case CaptureRecording:
		return "RECORDING"
	case CaptureStopping:
		return "STOPPING"
	default:
		return "UNKNOWN"
	}
}

// Track is an acquired audio device handle. Stop releases the device; it
// must be called exactly once per acquisition.
type Track interface {
	Stop() error
}

// Environment abstracts the host platform's capture capabilities. Each
// precondition maps to its own distinct failure so the user sees which
// one blocked recording.
type Environment interface {
	// SecureContext reports whether the page/app context allows device
	// access at all.
	SecureContext() bool
	// CaptureSupported reports whether an audio capture API exists.
	CaptureSupported() bool
	// RequestPermission prompts for microphone access and acquires the
	// device. Implementations should wrap denials with
	// errorsx.ReasonMicPermission and busy devices with
	// errorsx.ReasonMicBusy.
	RequestPermission(ctx context.Context) (Track, error)
}

// ErrNoAudio is returned by Stop when nothing was buffered.
var ErrNoAudio = errors.New("no audio captured")

// ErrCaptureBusy is returned by Start while a recording is in progress.
var ErrCaptureBusy = errors.New("capture already recording")

// Capture drives one microphone recording at a time: check preconditions,
// acquire the device, buffer ordered chunks, assemble one utterance on
// stop.
type Capture struct {
	env      Environment
	maxBytes int
	mime     string
	logger   *slog.Logger

	mu    sync.Mutex
	state CaptureState
	track Track
	buf   frames.ChunkBuffer
	seq   uint64
}

// NewCapture builds a capture controller. maxBytes caps one utterance;
// zero applies the transport default of 10MiB.
func NewCapture(env Environment, maxBytes int, mime string, logger *slog.Logger) *Capture {
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	if mime == "" {
		mime = "audio/webm"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Capture{env: env, maxBytes: maxBytes, mime: mime, logger: logger}
}

// State returns the current capture state.
func (c *Capture) State() CaptureState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start checks the three capture preconditions in order and acquires the
// microphone. Each precondition failure carries its own reason so the
// resulting message names the actual blocker.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != CaptureIdle {
		c.mu.Unlock()
		return ErrCaptureBusy
	}
	c.mu.Unlock()

	if !c.env.SecureContext() {
		return errorsx.New(errorsx.ReasonInsecureContext, "insecure context")
	}
	if !c.env.CaptureSupported() {
		return errorsx.New(errorsx.ReasonCaptureUnsupported, "capture unsupported")
	}
	track, err := c.env.RequestPermission(ctx)
	if err != nil {
		return errorsx.Wrap(fmt.Errorf("microphone permission: %w", err), errorsx.ReasonMicPermission)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != CaptureIdle {
		// Lost the race to another Start; give the device back.
		track.Stop()
		return ErrCaptureBusy
	}
	c.track = track
	c.seq = 0
	c.buf = frames.ChunkBuffer{}
	c.state = CaptureRecording
	c.logger.Debug("recording started")
	return nil
}

// Push buffers one audio chunk in order. Chunks past the size cap are
// rejected and the recording keeps running so the caller can stop cleanly.
func (c *Capture) Push(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != CaptureRecording {
		return fmt.Errorf("push in state %s", c.state)
	}
	if c.buf.Size()+len(data) > c.maxBytes {
		return errorsx.New(errorsx.ReasonUtteranceTooLarge, "recording exceeds size cap")
	}
	c.seq++
	return c.buf.Append(frames.AudioChunk{Seq: c.seq, Data: data})
}

// Stop releases the microphone and assembles the buffered chunks into one
// utterance. The controller always returns to IDLE, even on failure.
func (c *Capture) Stop() (frames.Utterance, error) {
	c.mu.Lock()
	if c.state != CaptureRecording {
		c.mu.Unlock()
		return frames.Utterance{}, fmt.Errorf("stop in state %s", c.state)
	}
	c.state = CaptureStopping
	track := c.track
	c.track = nil
	c.mu.Unlock()

	if err := track.Stop(); err != nil {
		c.logger.Warn("track release failed", "error", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	payload := c.buf.Drain()
	c.state = CaptureIdle
	if len(payload) == 0 {
		return frames.Utterance{}, ErrNoAudio
	}
	c.logger.Debug("recording stopped", "size_bytes", len(payload))
	return frames.NewUtterance(payload, c.mime), nil
}
