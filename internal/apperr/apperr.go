// Package apperr defines the closed set of error kinds surfaced by the
// review service. Handlers and tools translate a Kind into their own wire
// representation (HTTP status, tool error category) instead of matching on
// error strings.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind uint8

const (
	// KindStorage covers database, broker and other infrastructure failures.
	KindStorage Kind = iota
	// KindAuth is a missing, invalid, expired or revoked session.
	KindAuth
	// KindNotFound is an unknown bank, report or validation error id.
	KindNotFound
	// KindConflict is a domain rule violation such as deleting a bank
	// that still has reports, or a duplicate ABA code.
	KindConflict
	// KindInvalidInput is malformed or out-of-range caller input.
	KindInvalidInput
)

// String returns the snake_case name used in JSON bodies and tool results.
func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalidInput:
		return "invalid_input"
	default:
		return "storage"
	}
}

// Error is the typed error returned by the service layer.
type Error struct {
	Kind    Kind
	Message string
	// Details carries structured context for the caller, for example the
	// number of reports blocking a bank deletion.
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Kind == KindStorage {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// With attaches a detail key and returns the receiver.
func (e *Error) With(key string, value any) *Error {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

// Auth builds an authentication failure.
func Auth(msg string) *Error { return &Error{Kind: KindAuth, Message: msg} }

// NotFound builds a not-found error.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict builds a domain rule violation.
func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Invalid builds an input validation error.
func Invalid(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// Storage wraps an infrastructure error.
func Storage(err error, msg string) *Error {
	return &Error{Kind: KindStorage, Message: msg, Err: err}
}

// KindOf reports the kind of err. Errors that are not *Error are treated as
// storage failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}

// Is reports whether err carries the given kind.
func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}
