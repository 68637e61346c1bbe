// Package errors provides structured error types for chartcn.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the orchestrator, CLI and HTTP layer
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Codes map onto the failure taxonomy of the render core:
//   - VALIDATION: malformed or out-of-range request (caller's fault, not retried)
//   - NOT_FOUND: unknown saved-config id
//   - POOL_TIMEOUT, POOL_CLOSED: no render resource available (backpressure)
//   - ENGINE_*, UNSUPPORTED_FORMAT: the rendering backend failed
//   - STORE: durable tier unavailable (degraded, never surfaced on writes)
//   - ENCODING, INTERNAL: programming errors
//
// # Usage
//
//	err := errors.New(errors.ErrCodeValidation, "width out of range: %d", w)
//	if errors.Is(err, errors.ErrCodeValidation) {
//	    // Handle validation error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeEngineCrash, origErr, "render %s", fp)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Caller errors
	ErrCodeValidation Code = "VALIDATION"
	ErrCodeNotFound   Code = "NOT_FOUND"

	// Backpressure
	ErrCodePoolTimeout Code = "POOL_TIMEOUT"
	ErrCodePoolClosed  Code = "POOL_CLOSED"

	// Rendering backend
	ErrCodeEngineTimeout     Code = "ENGINE_TIMEOUT"
	ErrCodeEngineCrash       Code = "ENGINE_CRASH"
	ErrCodeUnsupportedFormat Code = "UNSUPPORTED_FORMAT"

	// Durable tier
	ErrCodeStore Code = "STORE"

	// Internal errors
	ErrCodeEncoding Code = "ENCODING"
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// IsEngine reports whether err originates from the rendering backend.
// The pooled resource that produced such an error must not be reused
// unless the code is ErrCodeUnsupportedFormat.
func IsEngine(err error) bool {
	switch GetCode(err) {
	case ErrCodeEngineTimeout, ErrCodeEngineCrash, ErrCodeUnsupportedFormat:
		return true
	}
	return false
}

// Retryable reports whether the caller may retry the same request later.
func Retryable(err error) bool {
	switch GetCode(err) {
	case ErrCodePoolTimeout, ErrCodeEngineTimeout, ErrCodeEngineCrash:
		return true
	}
	return false
}
