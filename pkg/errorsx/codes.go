package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	// Capture preconditions. Each maps to one distinct user-facing error.
	ReasonInsecureContext    ReasonCode = "capture_insecure_context"
	ReasonCaptureUnsupported ReasonCode = "capture_unsupported"
	ReasonMicPermission      ReasonCode = "capture_permission_denied"
	ReasonMicBusy            ReasonCode = "capture_device_busy"

	ReasonTransportClosed   ReasonCode = "transport_closed"
	ReasonTransportSend     ReasonCode = "transport_send"
	ReasonProtocolViolation ReasonCode = "transport_protocol"
	ReasonHeartbeatTimeout  ReasonCode = "heartbeat_timeout"
	ReasonUtteranceTooLarge ReasonCode = "utterance_too_large"

	ReasonRecognitionFailed    ReasonCode = "recognition_failed"
	ReasonRecognitionRateLimit ReasonCode = "recognition_rate_limit"
	ReasonDialogueFailed       ReasonCode = "dialogue_failed"
	ReasonDialogueRateLimit    ReasonCode = "dialogue_rate_limit"
	ReasonSynthesisFailed      ReasonCode = "synthesis_failed"
	ReasonSynthesisRateLimit   ReasonCode = "synthesis_rate_limit"

	ReasonPersistenceFailure ReasonCode = "persistence_failure"

	ReasonPlaybackDecode  ReasonCode = "playback_decode"
	ReasonPlaybackFailure ReasonCode = "playback_failure"
)
