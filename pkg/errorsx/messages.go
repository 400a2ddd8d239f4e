package errorsx

// userMessages maps reason codes to the text shown to the child's browser.
// Raw provider errors never reach the client.
var userMessages = map[ReasonCode]string{
	ReasonInsecureContext:    "Recording needs a secure (https) page.",
	ReasonCaptureUnsupported: "This browser cannot record audio.",
	ReasonMicPermission:      "I need permission to use the microphone.",
	ReasonMicBusy:            "The microphone is busy right now.",

	ReasonTransportClosed:   "The connection was closed. Please reconnect.",
	ReasonProtocolViolation: "Something went wrong with the connection. Please reconnect.",
	ReasonHeartbeatTimeout:  "The connection timed out. Please reconnect.",
	ReasonUtteranceTooLarge: "That recording was too long. Please try a shorter one.",

	ReasonRecognitionFailed:    "I couldn't hear that. Could you say it again?",
	ReasonRecognitionRateLimit: "I couldn't hear that. Could you say it again?",
	ReasonDialogueFailed:       "I'm having trouble thinking right now. Can we try again?",
	ReasonDialogueRateLimit:    "I'm having trouble thinking right now. Can we try again?",
	ReasonSynthesisFailed:      "I lost my voice for a moment, but you can read my reply.",
	ReasonSynthesisRateLimit:   "I lost my voice for a moment, but you can read my reply.",

	ReasonPersistenceFailure: "I might forget this conversation, but let's keep talking.",

	ReasonPlaybackDecode:  "I couldn't play that audio.",
	ReasonPlaybackFailure: "I couldn't play that audio.",
}

// UserMessage returns the human-readable text for an error's reason code.
func UserMessage(err error) string {
	if msg, ok := userMessages[Reason(err)]; ok {
		return msg
	}
	return "Something went wrong. Please try again."
}
