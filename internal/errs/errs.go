// Package errs defines the error taxonomy shared across the session engine.
//
// Every rejected action maps to exactly one kind:
//   - Validation: bad settings or counts, no state change.
//   - Forbidden: a non-creator attempting a creator-only action, no state change.
//   - InvalidState: action in the wrong session status or game phase; clients
//     should resync from the latest snapshot on receipt.
//   - Store: realtime store / network failure; retry is the caller's decision.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error for clients and logs.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindForbidden    Kind = "forbidden"
	KindInvalidState Kind = "invalid_state"
	KindStore        Kind = "store"
)

// Error is the concrete error type carried across package boundaries.
type Error struct {
	Kind Kind
	Msg  string
	Err  error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match two engine errors by kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Msg == "" && t.Kind == e.Kind
}

// Sentinels for errors.Is checks. Each matches any error of its kind.
var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrForbidden    = &Error{Kind: KindForbidden}
	ErrInvalidState = &Error{Kind: KindInvalidState}
	ErrStore        = &Error{Kind: KindStore}
)

// Validationf builds a validation error.
func Validationf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// Forbiddenf builds a forbidden error.
func Forbiddenf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindForbidden, Msg: fmt.Sprintf(format, args...)}
}

// InvalidStatef builds an invalid-state error.
func InvalidStatef(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidState, Msg: fmt.Sprintf(format, args...)}
}

// Storef wraps a store failure.
func Storef(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindStore, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind from an error chain, or "" if it carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
