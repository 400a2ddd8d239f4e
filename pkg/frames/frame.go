package frames

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MessageType tags the JSON envelope exchanged over the transport.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageAudio MessageType = "audio"
	MessageError MessageType = "error"
	// MessagePing is an application-level heartbeat. Clients ignore it.
	MessagePing MessageType = "ping"
)

// Message is one server→client envelope. Audio content is base64-encoded;
// Code carries a machine-readable reason for error messages.
type Message struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content,omitempty"`
	Codec   string      `json:"codec,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// AudioChunk is an immutable captured audio segment. Seq is monotonic within
// a recording; ordering is preserved end-to-end.
type AudioChunk struct {
	Seq  uint64
	Data []byte
}

// Utterance is one complete spoken turn, assembled when capture stops.
// It is consumed exactly once by recognition, then discarded.
type Utterance struct {
	ID       string
	Payload  []byte
	MIME     string
	Captured time.Time
}

// NewUtterance copies payload into a fresh utterance.
func NewUtterance(payload []byte, mime string) Utterance {
	return Utterance{
		ID:       uuid.NewString(),
		Payload:  append([]byte(nil), payload...),
		MIME:     mime,
		Captured: time.Now(),
	}
}

var ErrChunkOutOfOrder = errors.New("audio chunk out of order")

// ChunkBuffer accumulates ordered AudioChunks for one recording.
// Not safe for concurrent use; the capture controller serializes access.
type ChunkBuffer struct {
	chunks []AudioChunk
	size   int
}

// Append adds a chunk, enforcing monotonic sequence numbers.
func (b *ChunkBuffer) Append(c AudioChunk) error {
	if len(b.chunks) > 0 && c.Seq <= b.chunks[len(b.chunks)-1].Seq {
		return ErrChunkOutOfOrder
	}
	b.chunks = append(b.chunks, c)
	b.size += len(c.Data)
	return nil
}

// Len returns the number of buffered chunks.
func (b *ChunkBuffer) Len() int { return len(b.chunks) }

// Size returns the total buffered payload bytes.
func (b *ChunkBuffer) Size() int { return b.size }

// Drain concatenates all buffered chunks into one payload and resets the
// buffer. The returned slice is freshly allocated; pooled scratch space is
// released before returning.
func (b *ChunkBuffer) Drain() []byte {
	if b.size == 0 {
		b.chunks = b.chunks[:0]
		return nil
	}
	scratch := AcquireAudioBuf(b.size)
	off := 0
	for _, c := range b.chunks {
		off += copy(scratch[off:], c.Data)
	}
	out := append([]byte(nil), scratch[:off]...)
	ReleaseAudioBuf(scratch)
	b.chunks = b.chunks[:0]
	b.size = 0
	return out
}

var audioBufPool = sync.Pool{
	New: func() any {
		return make([]byte, 0, 4096)
	},
}

func AcquireAudioBuf(size int) []byte {
	b := audioBufPool.Get().([]byte)
	if cap(b) < size {
		return make([]byte, size)
	}
	return b[:size]
}

func ReleaseAudioBuf(b []byte) {
	audioBufPool.Put(b[:0])
}
