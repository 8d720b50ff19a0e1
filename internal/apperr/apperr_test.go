package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesKindAndCode(t *testing.T) {
	sentinel := New(KindOTP, "otp_mismatch", "code mismatch")
	detailed := sentinel.With("wrong code, 3 attempts left", map[string]any{"attempts_left": 3})
	wrapped := fmt.Errorf("confirm: %w", detailed)

	if !errors.Is(wrapped, sentinel) {
		t.Fatalf("expected detailed error to match sentinel")
	}
	if !errors.Is(wrapped, &Error{Kind: KindOTP}) {
		t.Fatalf("expected kind-only target to match")
	}
	if errors.Is(wrapped, New(KindOTP, "otp_expired", "")) {
		t.Fatalf("different code must not match")
	}
	if errors.Is(wrapped, New(KindValidation, "otp_mismatch", "")) {
		t.Fatalf("different kind must not match")
	}
	if KindOf(wrapped) != KindOTP {
		t.Fatalf("expected otp kind, got %s", KindOf(wrapped))
	}
}

func TestWithDoesNotMutateSentinel(t *testing.T) {
	sentinel := New(KindLimitExceeded, "daily", "daily limit exceeded")
	_ = sentinel.With("", map[string]any{"remaining": int64(200)})
	if sentinel.Details != nil {
		t.Fatalf("sentinel details mutated: %v", sentinel.Details)
	}
}

func TestTransientClassification(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("commit: %w", Transient(cause))
	if !IsTransient(err) {
		t.Fatalf("expected transient")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable")
	}
	if IsTransient(Unavailable(cause)) {
		t.Fatalf("unavailable must not be retried")
	}
	if KindOf(errors.New("plain")) != KindInternal {
		t.Fatalf("untagged errors are internal")
	}
}
