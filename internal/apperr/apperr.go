// Package apperr carries the error kinds the services report to the transport layer.
// Every error a service returns is either an *Error or an unexpected internal failure.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the caller
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindUnauthorized
	KindForbidden
	KindValidation
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a human-readable error with a kind. Msg is safe to show to users.
type Error struct {
	Kind  Kind
	Msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.cause)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches another *Error with the same kind and message, so predefined
// errors can be compared with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Msg == t.Msg
}

// New creates an error of the given kind
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap attaches a kind and a user-facing message to an underlying error
func Wrap(err error, kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, cause: err}
}

// NotFound reports a missing or hidden resource
func NotFound(msg string) *Error { return New(KindNotFound, msg) }

// Unauthorized reports a missing or invalid credential
func Unauthorized(msg string) *Error { return New(KindUnauthorized, msg) }

// Forbidden reports an actor not allowed to perform the action
func Forbidden(msg string) *Error { return New(KindForbidden, msg) }

// Validation reports bad input
func Validation(msg string) *Error { return New(KindValidation, msg) }

// Conflict reports an action that clashes with the current state
func Conflict(msg string) *Error { return New(KindConflict, msg) }

// Validationf creates a validation error with a formatted message
func Validationf(format string, args ...any) *Error {
	return New(KindValidation, fmt.Sprintf(format, args...))
}

// KindOf returns the kind of err, or KindInternal when err is not an *Error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the user-facing message of err, or "" when err is not an *Error
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return ""
}
