// Package fault defines the error taxonomy shared by the expedition
// coordination domain: not-found, invalid-state, precondition-failed and
// validation failures. Every fault carries a human-readable description of
// the condition that was not met; callers reject the single requested
// operation and no broader state is touched.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a domain failure.
type Kind string

const (
	// KindNotFound means a referenced entity does not exist.
	KindNotFound Kind = "not_found"

	// KindInvalidState means the action was attempted outside its legal
	// state, e.g. responding to a non-pending invitation.
	KindInvalidState Kind = "invalid_state"

	// KindPreconditionFailed means a state-transition guard was unmet.
	// Distinct from KindInvalidState: the message names which guard failed.
	KindPreconditionFailed Kind = "precondition_failed"

	// KindValidation means the request payload was malformed or incomplete.
	KindValidation Kind = "validation_error"

	// KindForbidden means the acting person is not allowed to perform the
	// operation, e.g. a non-lead editing membership.
	KindForbidden Kind = "forbidden"
)

// Error is a classified domain error.
type Error struct {
	Kind    Kind
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// NotFound returns a KindNotFound fault.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// InvalidState returns a KindInvalidState fault.
func InvalidState(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

// Precondition returns a KindPreconditionFailed fault naming the unmet guard.
func Precondition(format string, args ...any) *Error {
	return &Error{Kind: KindPreconditionFailed, Message: fmt.Sprintf(format, args...)}
}

// Validation returns a KindValidation fault.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Forbidden returns a KindForbidden fault.
func Forbidden(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the fault kind of err, or an empty Kind if err is not a
// fault (including nil).
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IsKind reports whether err is a fault of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
