// Package errors provides the error taxonomy shared by the gateway, the
// ingestion layer and the reconciliation pipeline.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Type identifies the category of error
type Type string

const (
	// TypeQuotaExceeded indicates the upstream rejected a call for quota or rate limits.
	// Retryable with backoff.
	TypeQuotaExceeded Type = "QUOTA_EXCEEDED"

	// TypeTransient indicates a transient network failure. Retryable without delay.
	TypeTransient Type = "TRANSIENT_NETWORK"

	// TypeNotFound indicates a missing sheet, range or record
	TypeNotFound Type = "NOT_FOUND"

	// TypePermissionDenied indicates the caller may not read the range
	TypePermissionDenied Type = "PERMISSION_DENIED"

	// TypeMalformedRange indicates a bad range reference or a table whose
	// columns do not match the expected schema
	TypeMalformedRange Type = "MALFORMED_RANGE"

	// TypeInput indicates an input validation error
	TypeInput Type = "INPUT_ERROR"

	// TypeConfig indicates a configuration error
	TypeConfig Type = "CONFIG_ERROR"

	// TypeInternal indicates an internal error
	TypeInternal Type = "INTERNAL_ERROR"
)

// Error represents a domain error with context
type Error struct {
	Type    Type                   `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new error
func New(errType Type, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// Newf creates a new formatted error
func Newf(errType Type, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with context
func Wrap(errType Type, message string, cause error) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf wraps an error with formatted context
func Wrapf(errType Type, cause error, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// TypeOf returns the type of the outermost domain error in the chain, or
// TypeInternal when the chain carries none.
func TypeOf(err error) Type {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return TypeInternal
}

// IsType checks if an error, or anything it wraps, is of a specific type
func IsType(err error, t Type) bool {
	var e *Error
	for err != nil {
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Type == t {
			return true
		}
		err = e.Cause
	}
	return false
}

// IsQuotaExceeded reports whether the upstream signalled a quota/rate limit
func IsQuotaExceeded(err error) bool {
	return IsType(err, TypeQuotaExceeded)
}

// IsTransient reports whether err is a transient network failure
func IsTransient(err error) bool {
	return IsType(err, TypeTransient)
}

// IsRetryable reports whether some retry policy applies to err
func IsRetryable(err error) bool {
	return IsQuotaExceeded(err) || IsTransient(err)
}

// IsFatal reports whether err must never be retried
func IsFatal(err error) bool {
	return IsType(err, TypeNotFound) || IsType(err, TypePermissionDenied) || IsType(err, TypeMalformedRange)
}

// QuotaExceeded creates a quota error
func QuotaExceeded(message string, cause error) *Error {
	return Wrap(TypeQuotaExceeded, message, cause)
}

// Transient creates a transient network error
func Transient(message string, cause error) *Error {
	return Wrap(TypeTransient, message, cause)
}

// NotFound creates a not found error
func NotFound(resourceType, identifier string) *Error {
	return Newf(TypeNotFound, "%s not found: %s", resourceType, identifier)
}

// PermissionDenied creates a permission error
func PermissionDenied(resource string, cause error) *Error {
	return Wrapf(TypePermissionDenied, cause, "permission denied: %s", resource)
}

// MalformedRange creates a malformed range error
func MalformedRange(ref, reason string) *Error {
	return Newf(TypeMalformedRange, "malformed range %q: %s", ref, reason)
}

// Input creates an input error
func Input(message string) *Error {
	return New(TypeInput, message)
}

// Config creates a configuration error
func Config(message string) *Error {
	return New(TypeConfig, message)
}

// Internal creates an internal error
func Internal(message string, cause error) *Error {
	return Wrap(TypeInternal, message, cause)
}
