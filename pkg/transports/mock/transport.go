package mock

import (
	"sync/atomic"

	"github.com/harunnryd/companion/pkg/errorsx"
	"github.com/harunnryd/companion/pkg/frames"
	"github.com/harunnryd/companion/pkg/transports"
)

// Transport is an in-memory transport for local testing and integration.
// It implements the transports.Transport interface without any network
// dependency.
type Transport struct {
	utterCh  chan frames.Utterance
	sentCh   chan frames.Message
	closedCh chan transports.CloseEvent
	closed   atomic.Bool
}

func New() *Transport {
	return &Transport{
		utterCh:  make(chan frames.Utterance, 256),
		sentCh:   make(chan frames.Message, 256),
		closedCh: make(chan transports.CloseEvent, 1),
	}
}

func (t *Transport) Name() string { return "mock" }

func (t *Transport) Send(msg frames.Message) error {
	if t.closed.Load() {
		return transports.ErrClosed
	}
	select {
	case t.sentCh <- msg:
	default:
	}
	return nil
}

func (t *Transport) Utterances() <-chan frames.Utterance { return t.utterCh }

func (t *Transport) Closed() <-chan transports.CloseEvent { return t.closedCh }

func (t *Transport) Close() error {
	t.CloseWith(transports.CloseEvent{Reason: errorsx.ReasonTransportClosed})
	return nil
}

// CloseWith performs the terminal transition with an explicit event, so
// tests can simulate heartbeat timeouts and peer failures.
func (t *Transport) CloseWith(ev transports.CloseEvent) {
	if t.closed.CompareAndSwap(false, true) {
		close(t.utterCh)
		t.closedCh <- ev
	}
}

// Push injects an inbound utterance.
func (t *Transport) Push(utt frames.Utterance) {
	if t.closed.Load() {
		return
	}
	select {
	case t.utterCh <- utt:
	default:
	}
}

// Sent exposes outbound envelopes for inspection.
func (t *Transport) Sent() <-chan frames.Message { return t.sentCh }
