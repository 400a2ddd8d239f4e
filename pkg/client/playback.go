package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/harunnryd/companion/pkg/errorsx"
)

// PlaybackState is the audio output lifecycle position.
type PlaybackState int

const (
	PlaybackIdle PlaybackState = iota
	PlaybackDecoding
	PlaybackPlaying
	PlaybackError
)

func (s PlaybackState) String() string {
	switch s {
	case PlaybackIdle:
		return "IDLE"
	case PlaybackDecoding:
		return "DECODING"
	case PlaybackPlaying:
		return "PLAYING"
	case PlaybackError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Decoder turns an encoded audio payload into a playable clip.
type Decoder interface {
	Decode(ctx context.Context, data []byte, mime string) (any, error)
}

// Player plays one decoded clip, blocking until it ends or ctx cancels.
type Player interface {
	Play(ctx context.Context, clip any) error
}

type playbackItem struct {
	data []byte
	mime string
}

// Playback plays queued audio replies one at a time in arrival order.
// Every enqueued item produces exactly one ended callback, success or
// failure; a failed item never blocks the next one.
type Playback struct {
	decoder Decoder
	player  Player
	onEnded func(err error)
	logger  *slog.Logger

	queue chan playbackItem

	mu    sync.Mutex
	state PlaybackState

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewPlayback builds the playback queue and starts its worker. onEnded
// may be nil.
func NewPlayback(decoder Decoder, player Player, onEnded func(err error), logger *slog.Logger) *Playback {
	if onEnded == nil {
		onEnded = func(error) {}
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Playback{
		decoder: decoder,
		player:  player,
		onEnded: onEnded,
		logger:  logger,
		queue:   make(chan playbackItem, 32),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go p.worker()
	return p
}

// State returns the current playback state.
func (p *Playback) State() PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Enqueue adds one audio payload to the play queue.
func (p *Playback) Enqueue(data []byte, mime string) error {
	if p.ctx.Err() != nil {
		return errorsx.Wrap(fmt.Errorf("playback closed"), errorsx.ReasonPlaybackFailure)
	}
	select {
	case p.queue <- playbackItem{data: data, mime: mime}:
		return nil
	default:
		return errorsx.Wrap(fmt.Errorf("playback queue full"), errorsx.ReasonPlaybackFailure)
	}
}

// Close stops the worker and abandons queued items.
func (p *Playback) Close() {
	p.closeOnce.Do(func() {
		p.cancel()
		<-p.done
	})
}

func (p *Playback) worker() {
	defer close(p.done)
	for {
		select {
		case item := <-p.queue:
			p.playOne(item)
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Playback) playOne(item playbackItem) {
	p.setState(PlaybackDecoding)
	clip, err := p.decoder.Decode(p.ctx, item.data, item.mime)
	if err != nil {
		wrapped := errorsx.Wrap(fmt.Errorf("decode audio: %w", err), errorsx.ReasonPlaybackDecode)
		p.logger.Warn("audio decode failed", "error", err)
		p.setState(PlaybackError)
		p.setState(PlaybackIdle)
		p.onEnded(wrapped)
		return
	}

	p.setState(PlaybackPlaying)
	err = p.player.Play(p.ctx, clip)
	p.setState(PlaybackIdle)
	if err != nil {
		err = errorsx.Wrap(fmt.Errorf("play audio: %w", err), errorsx.ReasonPlaybackFailure)
		p.logger.Warn("playback failed", "error", err)
	}
	p.onEnded(err)
}

func (p *Playback) setState(s PlaybackState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}
