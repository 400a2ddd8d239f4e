package transports

import (
	"errors"

	"github.com/harunnryd/companion/pkg/errorsx"
	"github.com/harunnryd/companion/pkg/frames"
)

// ErrClosed is returned by Send after the terminal close.
var ErrClosed = errors.New("transport closed")

// CloseEvent describes the single terminal transition of a transport.
type CloseEvent struct {
	Reason errorsx.ReasonCode
	Err    error
}

// Transport is one ordered, reliable, full-duplex conversation channel.
// While open, delivery is ordered and reliable; after the terminal close
// no further frames are emitted and Send returns ErrClosed.
type Transport interface {
	Name() string
	// Send queues a JSON envelope for delivery. Queue order is delivery
	// order across all message types.
	Send(msg frames.Message) error
	// Utterances yields inbound utterance payloads in arrival order.
	// The channel is closed on terminal close.
	Utterances() <-chan frames.Utterance
	// Closed delivers the terminal transition exactly once.
	Closed() <-chan CloseEvent
	// Close tears the connection down; safe to call more than once.
	Close() error
}
