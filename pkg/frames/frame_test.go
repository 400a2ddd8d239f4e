package frames

import (
	"bytes"
	"testing"
)

func TestChunkBufferOrderedDrain(t *testing.T) {
	var buf ChunkBuffer
	for i, part := range [][]byte{[]byte("one"), []byte("two"), []byte("three")} {
		if err := buf.Append(AudioChunk{Seq: uint64(i + 1), Data: part}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if buf.Size() != len("onetwothree") {
		t.Fatalf("unexpected size %d", buf.Size())
	}
	got := buf.Drain()
	if !bytes.Equal(got, []byte("onetwothree")) {
		t.Fatalf("unexpected payload %q", got)
	}
	if buf.Len() != 0 || buf.Size() != 0 {
		t.Fatalf("buffer not reset after drain")
	}
}

func TestChunkBufferRejectsOutOfOrder(t *testing.T) {
	var buf ChunkBuffer
	if err := buf.Append(AudioChunk{Seq: 2, Data: []byte("b")}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := buf.Append(AudioChunk{Seq: 1, Data: []byte("a")}); err != ErrChunkOutOfOrder {
		t.Fatalf("expected ErrChunkOutOfOrder, got %v", err)
	}
	if buf.Len() != 1 {
		t.Fatalf("rejected chunk must not be buffered")
	}
}

func TestMessageCodecRoundTrip(t *testing.T) {
	audio := []byte{0x01, 0x02, 0x03}
	for _, msg := range []Message{
		NewTextMessage("hello there"),
		NewAudioMessage(audio, "audio/mpeg"),
		NewErrorMessage("oops", "recognition_failed"),
		NewPingMessage(),
	} {
		raw, err := EncodeMessage(msg)
		if err != nil {
			t.Fatalf("encode %s: %v", msg.Type, err)
		}
		back, err := DecodeMessage(raw)
		if err != nil {
			t.Fatalf("decode %s: %v", msg.Type, err)
		}
		if back != msg {
			t.Fatalf("round trip mismatch: %+v != %+v", back, msg)
		}
	}
}

func TestAudioPayloadDecodes(t *testing.T) {
	audio := []byte("pcm-bytes")
	msg := NewAudioMessage(audio, "audio/mpeg")
	got, err := msg.AudioPayload()
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	if !bytes.Equal(got, audio) {
		t.Fatalf("payload mismatch")
	}
	if _, err := NewTextMessage("x").AudioPayload(); err == nil {
		t.Fatalf("expected error for text message")
	}
}

func TestDecodeMessageRejectsMissingType(t *testing.T) {
	if _, err := DecodeMessage([]byte(`{"content":"x"}`)); err == nil {
		t.Fatalf("expected error for missing type")
	}
	if _, err := DecodeMessage([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for invalid json")
	}
}

func TestUtteranceCopiesPayload(t *testing.T) {
	src := []byte("mutate-me")
	utt := NewUtterance(src, "audio/webm")
	src[0] = 'X'
	if utt.Payload[0] == 'X' {
		t.Fatalf("utterance must not alias caller buffer")
	}
	if utt.ID == "" {
		t.Fatalf("utterance id missing")
	}
}
