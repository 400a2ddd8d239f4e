package ws

import (
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harunnryd/companion/pkg/errorsx"
	"github.com/harunnryd/companion/pkg/frames"
	"github.com/harunnryd/companion/pkg/transports"
)

// Options tunes one WebSocket connection.
type Options struct {
	// MaxUtteranceBytes caps one inbound binary frame. Oversized frames
	// are rejected with an error envelope; the connection stays open.
	MaxUtteranceBytes int64
	// HeartbeatInterval spaces outbound pings (control frame plus a
	// {"type":"ping"} envelope for clients that cannot see control frames).
	HeartbeatInterval time.Duration
	// PongTimeout is how long the peer may stay silent before the
	// connection is declared dead.
	PongTimeout time.Duration
	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration
	// UtteranceBacklog sizes the inbound utterance queue. Utterances that
	// arrive while a reply is in flight wait here in arrival order.
	UtteranceBacklog int
}

func (o Options) withDefaults() Options {
	if o.MaxUtteranceBytes <= 0 {
		o.MaxUtteranceBytes = 10 << 20
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = o.HeartbeatInterval*2 + 15*time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.UtteranceBacklog <= 0 {
		o.UtteranceBacklog = 16
	}
	return o
}

type outbound struct {
	frameType int
	payload   []byte
}

// Conn adapts one gorilla/websocket connection to transports.Transport.
// A reader goroutine owns all reads, a writer goroutine owns all writes,
// so envelope delivery order is exactly Send call order.
type Conn struct {
	ws     *websocket.Conn
	opts   Options
	logger *slog.Logger
	server bool

	utterCh  chan frames.Utterance
	msgCh    chan frames.Message
	writeCh  chan outbound
	closedCh chan transports.CloseEvent
	done     chan struct{}

	closeOnce sync.Once
}

func newConn(wsc *websocket.Conn, opts Options, logger *slog.Logger, server bool) *Conn {
	opts = opts.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	c := &Conn{
		ws:       wsc,
		opts:     opts,
		logger:   logger,
		server:   server,
		utterCh:  make(chan frames.Utterance, opts.UtteranceBacklog),
		msgCh:    make(chan frames.Message, 16),
		writeCh:  make(chan outbound, 32),
		closedCh: make(chan transports.CloseEvent, 1),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	go c.writeLoop()
	return c
}

func (c *Conn) Name() string { return "ws" }

// Send queues one envelope. The writer goroutine drains the queue in
// order, so a text reply enqueued before its audio arrives first.
func (c *Conn) Send(msg frames.Message) error {
	data, err := frames.EncodeMessage(msg)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonTransportSend)
	}
	select {
	case c.writeCh <- outbound{frameType: websocket.TextMessage, payload: data}:
		return nil
	case <-c.done:
		return transports.ErrClosed
	}
}

// SendUtterance ships one captured utterance as a single binary frame.
// Client-side only.
func (c *Conn) SendUtterance(utt frames.Utterance) error {
	select {
	case c.writeCh <- outbound{frameType: websocket.BinaryMessage, payload: utt.Payload}:
		return nil
	case <-c.done:
		return transports.ErrClosed
	}
}

func (c *Conn) Utterances() <-chan frames.Utterance { return c.utterCh }

// Messages yields inbound envelopes. Client-side only; ping envelopes
// are consumed as liveness signals and never surface here.
func (c *Conn) Messages() <-chan frames.Message { return c.msgCh }

func (c *Conn) Closed() <-chan transports.CloseEvent { return c.closedCh }

// Close performs the terminal transition. Idempotent.
func (c *Conn) Close() error {
	c.terminate(errorsx.ReasonTransportClosed, nil)
	return nil
}

func (c *Conn) terminate(reason errorsx.ReasonCode, err error) {
	c.closeOnce.Do(func() {
		deadline := time.Now().Add(c.opts.WriteTimeout)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if wErr := c.ws.WriteControl(websocket.CloseMessage, msg, deadline); wErr != nil {
			c.logger.Debug("close frame not delivered", "error", wErr)
		}
		c.ws.Close()
		close(c.done)
		c.closedCh <- transports.CloseEvent{Reason: reason, Err: err}
	})
}

func (c *Conn) readLoop() {
	defer close(c.utterCh)
	defer close(c.msgCh)

	// Any inbound traffic counts as liveness, pongs included.
	c.ws.SetReadLimit(c.opts.MaxUtteranceBytes + 64<<10)
	c.resetReadDeadline()
	c.ws.SetPongHandler(func(string) error {
		c.resetReadDeadline()
		return nil
	})

	for {
		frameType, data, err := c.ws.ReadMessage()
		if err != nil {
			c.terminate(classifyReadError(err))
			return
		}
		c.resetReadDeadline()

		switch frameType {
		case websocket.BinaryMessage:
			c.handleBinary(data)
		case websocket.TextMessage:
			c.handleText(data)
		}
	}
}

func (c *Conn) handleBinary(data []byte) {
	if int64(len(data)) > c.opts.MaxUtteranceBytes {
		c.logger.Warn("utterance over size cap, rejecting",
			"size", len(data), "cap", c.opts.MaxUtteranceBytes)
		reject := errorsx.New(errorsx.ReasonUtteranceTooLarge, "utterance exceeds size cap")
		if err := c.Send(frames.NewErrorMessage(errorsx.UserMessage(reject), string(errorsx.ReasonUtteranceTooLarge))); err != nil {
			c.logger.Debug("reject envelope not delivered", "error", err)
		}
		return
	}
	utt := frames.NewUtterance(data, "")
	select {
	case c.utterCh <- utt:
	case <-c.done:
	}
}

func (c *Conn) handleText(data []byte) {
	msg, err := frames.DecodeMessage(data)
	if err != nil {
		c.logger.Debug("undecodable text frame dropped", "error", err)
		return
	}
	if msg.Type == frames.MessagePing {
		return
	}
	if c.server {
		// Clients speak binary; stray envelopes are tolerated and dropped.
		c.logger.Debug("unexpected client envelope dropped", "type", msg.Type)
		return
	}
	select {
	case c.msgCh <- msg:
	case <-c.done:
	}
}

func (c *Conn) writeLoop() {
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()

	ping, _ := frames.EncodeMessage(frames.NewPingMessage())
	for {
		select {
		case out := <-c.writeCh:
			if err := c.write(out.frameType, out.payload); err != nil {
				c.terminate(errorsx.ReasonTransportSend, err)
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(c.opts.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.terminate(errorsx.ReasonTransportSend, err)
				return
			}
			if err := c.write(websocket.TextMessage, ping); err != nil {
				c.terminate(errorsx.ReasonTransportSend, err)
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) write(frameType int, payload []byte) error {
	c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	return c.ws.WriteMessage(frameType, payload)
}

func (c *Conn) resetReadDeadline() {
	c.ws.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
}

func classifyReadError(err error) (errorsx.ReasonCode, error) {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errorsx.ReasonHeartbeatTimeout, err
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return errorsx.ReasonTransportClosed, nil
	}
	return errorsx.ReasonTransportClosed, err
}
