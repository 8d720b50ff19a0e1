package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindLimitExceeded
	KindInsufficientFunds
	KindOTP
	KindStateConflict
	KindForbidden
	KindUnauthenticated
	KindTransient
	KindUnavailable
)

var kindNames = map[Kind]string{
	KindInternal:          "internal",
	KindValidation:        "validation_error",
	KindNotFound:          "not_found",
	KindLimitExceeded:     "limit_exceeded",
	KindInsufficientFunds: "insufficient_funds",
	KindOTP:               "otp_error",
	KindStateConflict:     "state_conflict",
	KindForbidden:         "forbidden",
	KindUnauthenticated:   "unauthenticated",
	KindTransient:         "transient_store_error",
	KindUnavailable:       "service_unavailable",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the tagged error returned by every core operation.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
	Err     error
}

// New builds an error of the given kind. It is typically used to declare
// package level sentinels.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind and, when the target carries one, on code. This lets
// detailed errors satisfy errors.Is against the bare sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// With returns a copy of e carrying the supplied details and message.
func (e *Error) With(message string, details map[string]any) *Error {
	cp := *e
	if message != "" {
		cp.Message = message
	}
	if len(details) > 0 {
		merged := make(map[string]any, len(e.Details)+len(details))
		for k, v := range e.Details {
			merged[k] = v
		}
		for k, v := range details {
			merged[k] = v
		}
		cp.Details = merged
	}
	return &cp
}

// Wrap returns a copy of e wrapping cause.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

// Validation reports a malformed or out of bounds input.
func Validation(code, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing entity.
func NotFound(entity, id string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Code:    entity + "_not_found",
		Message: entity + " not found",
		Details: map[string]any{"id": id},
	}
}

// StateConflict reports an illegal lifecycle transition out of state.
func StateConflict(state, message string) *Error {
	return &Error{
		Kind:    KindStateConflict,
		Code:    state,
		Message: message,
		Details: map[string]any{"state": state},
	}
}

// Forbidden reports an action attempted by the wrong actor.
func Forbidden(code, message string) *Error {
	return &Error{Kind: KindForbidden, Code: code, Message: message}
}

// Unauthenticated reports missing or invalid credentials.
func Unauthenticated(code, message string) *Error {
	return &Error{Kind: KindUnauthenticated, Code: code, Message: message}
}

// Transient wraps a retryable datastore failure.
func Transient(cause error) *Error {
	return &Error{Kind: KindTransient, Code: "transient", Message: "transient store error", Err: cause}
}

// Unavailable reports that retries of a transient failure were exhausted.
func Unavailable(cause error) *Error {
	return &Error{Kind: KindUnavailable, Code: "service_unavailable", Message: "service unavailable", Err: cause}
}

// KindOf extracts the kind of err, or KindInternal if err is not tagged.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err is tagged with kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return IsKind(err, KindTransient)
}
