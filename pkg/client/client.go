// Package client is the device-side half of the companion protocol: it
// records utterances, ships them over the WebSocket transport, and plays
// the replies that come back.
package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/harunnryd/companion/pkg/frames"
	"github.com/harunnryd/companion/pkg/transports/ws"
)

// ErrReconnectRequired reports that the server closed the session. A
// closed session never resumes; the caller dials a fresh one.
var ErrReconnectRequired = errors.New("session closed by server; reconnect required")

// Handlers receive server events. Nil handlers are ignored.
type Handlers struct {
	// OnText delivers a text reply.
	OnText func(text string)
	// OnError delivers a server error envelope.
	OnError func(code, message string)
	// OnClosed fires exactly once when the connection terminally closes.
	OnClosed func(err error)
}

// Options configures one client connection.
type Options struct {
	URL string
	WS  ws.Options
	// MaxUtteranceBytes caps one recording client-side, mirroring the
	// server's transport cap.
	MaxUtteranceBytes int
	// CaptureMIME labels recorded utterances.
	CaptureMIME string
}

// Client wires capture, transport, and playback together for one
// conversation.
type Client struct {
	conn     *ws.Conn
	capture  *Capture
	playback *Playback
	handlers Handlers
	logger   *slog.Logger

	closeOnce sync.Once
}

// Dial connects to a companion server and starts dispatching replies.
// Playback is optional: with a nil decoder or player, audio replies are
// dropped and only text is surfaced.
func Dial(ctx context.Context, opts Options, env Environment, decoder Decoder, player Player, handlers Handlers, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := ws.Dial(ctx, opts.URL, opts.WS, logger)
	if err != nil {
		return nil, err
	}

	c := &Client{
		conn:     conn,
		capture:  NewCapture(env, opts.MaxUtteranceBytes, opts.CaptureMIME, logger),
		handlers: handlers,
		logger:   logger,
	}
	if decoder != nil && player != nil {
		c.playback = NewPlayback(decoder, player, nil, logger)
	}
	go c.dispatch()
	return c, nil
}

// StartRecording begins capturing one utterance.
func (c *Client) StartRecording(ctx context.Context) error {
	return c.capture.Start(ctx)
}

// PushAudio buffers one captured chunk.
func (c *Client) PushAudio(data []byte) error {
	return c.capture.Push(data)
}

// StopAndSend finishes the recording and ships the utterance as one
// binary frame.
func (c *Client) StopAndSend() error {
	utt, err := c.capture.Stop()
	if err != nil {
		return err
	}
	return c.conn.SendUtterance(utt)
}

// CaptureState exposes the recording lifecycle for UI affordances.
func (c *Client) CaptureState() CaptureState { return c.capture.State() }

// Close tears the connection down. Idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.conn.Close()
		if c.playback != nil {
			c.playback.Close()
		}
	})
	return nil
}

func (c *Client) dispatch() {
	msgCh := c.conn.Messages()
	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				msgCh = nil
				continue
			}
			c.handleMessage(msg)
		case ev := <-c.conn.Closed():
			c.logger.Info("connection closed", "reason", ev.Reason)
			if c.playback != nil {
				c.playback.Close()
			}
			if c.handlers.OnClosed != nil {
				c.handlers.OnClosed(ErrReconnectRequired)
			}
			return
		}
	}
}

func (c *Client) handleMessage(msg frames.Message) {
	switch msg.Type {
	case frames.MessageText:
		if c.handlers.OnText != nil {
			c.handlers.OnText(msg.Content)
		}
	case frames.MessageAudio:
		if c.playback == nil {
			return
		}
		payload, err := msg.AudioPayload()
		if err != nil {
			c.logger.Warn("audio envelope undecodable", "error", err)
			return
		}
		if err := c.playback.Enqueue(payload, msg.Codec); err != nil {
			c.logger.Warn("audio reply dropped", "error", err)
		}
	case frames.MessageError:
		if c.handlers.OnError != nil {
			c.handlers.OnError(msg.Code, msg.Content)
		}
	}
}
