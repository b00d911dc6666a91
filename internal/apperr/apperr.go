// Package apperr defines the shared error envelope used across every
// internal package so the service bridge never has to re-classify an
// error: it only maps Kind to a transport status (spec.md §6, §7).
package apperr

import (
	"errors"
	"fmt"
)

// Kind enumerates the error_kind values of spec.md §6.
type Kind string

const (
	BadRequest        Kind = "bad_request"
	NotFound          Kind = "not_found"
	CapacityExhausted Kind = "capacity_exhausted"
	ValidationFailed  Kind = "validation_failed"
	Internal          Kind = "internal"
	Cancelled         Kind = "cancelled"
	Unsupported       Kind = "unsupported"
)

// Error is the canonical error type returned by every operation in this
// module. Details is optional structured context (e.g. shape violations,
// subprocess exit codes).
type Error struct {
	Kind    Kind
	Message string
	Details any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New builds an *Error with no Details.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithDetails builds an *Error carrying structured Details.
func WithDetails(kind Kind, details any, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Details: details}
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error,
// otherwise returns Internal — an unclassified error is a bug, not a
// client mistake.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Internal
}
