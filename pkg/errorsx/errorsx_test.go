package errorsx

import "testing"

func TestWrapAndReason(t *testing.T) {
	err := Wrap(assertErr{}, ReasonRecognitionFailed)
	if Reason(err) != ReasonRecognitionFailed {
		t.Fatalf("expected reason %s, got %s", ReasonRecognitionFailed, Reason(err))
	}
	if !HasReason(err, ReasonRecognitionFailed) {
		t.Fatalf("expected HasReason true")
	}
}

func TestWrapPreservesExistingReason(t *testing.T) {
	first := Wrap(assertErr{}, ReasonMicPermission)
	second := Wrap(first, ReasonDialogueFailed)
	if Reason(second) != ReasonMicPermission {
		t.Fatalf("expected reason preserved, got %s", Reason(second))
	}
}

func TestUserMessageDistinctPerCapturePrecondition(t *testing.T) {
	codes := []ReasonCode{ReasonInsecureContext, ReasonCaptureUnsupported, ReasonMicPermission}
	seen := map[string]ReasonCode{}
	for _, code := range codes {
		msg := UserMessage(Wrap(assertErr{}, code))
		if prev, dup := seen[msg]; dup {
			t.Fatalf("codes %s and %s share message %q", prev, code, msg)
		}
		seen[msg] = code
	}
}

func TestUserMessageUnknown(t *testing.T) {
	if UserMessage(assertErr{}) == "" {
		t.Fatalf("expected fallback message")
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
