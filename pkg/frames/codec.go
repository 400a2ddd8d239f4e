package frames

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// NewTextMessage builds a text reply envelope.
func NewTextMessage(content string) Message {
	return Message{Type: MessageText, Content: content}
}

// NewAudioMessage builds an audio reply envelope. The payload travels
// base64-encoded inside a text frame to keep the framing uniform.
func NewAudioMessage(audio []byte, codec string) Message {
	return Message{
		Type:    MessageAudio,
		Content: base64.StdEncoding.EncodeToString(audio),
		Codec:   codec,
	}
}

// NewErrorMessage builds an error envelope from a human-readable message
// and a machine-readable reason code.
func NewErrorMessage(content, code string) Message {
	return Message{Type: MessageError, Content: content, Code: code}
}

// NewPingMessage builds an application heartbeat envelope.
func NewPingMessage() Message {
	return Message{Type: MessagePing}
}

// EncodeMessage serializes an envelope for a text transport frame.
func EncodeMessage(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMessage parses a text transport frame. Unknown types are returned
// as-is; callers decide whether to ignore them.
func DecodeMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if m.Type == "" {
		return Message{}, fmt.Errorf("decode message: missing type")
	}
	return m, nil
}

// AudioPayload decodes the base64 content of an audio envelope.
func (m Message) AudioPayload() ([]byte, error) {
	if m.Type != MessageAudio {
		return nil, fmt.Errorf("audio payload on %q message", m.Type)
	}
	return base64.StdEncoding.DecodeString(m.Content)
}
