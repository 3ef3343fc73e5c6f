// Package apperrors defines the engine's error taxonomy. Handlers map these
// onto HTTP responses without exposing SQL text, table names, or raw
// caller-supplied values.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrCacheUnavailable marks cache-store failures. It is always degraded
	// to a miss or a no-op inside the engine and never fails a request.
	ErrCacheUnavailable = errors.New("cache unavailable")
)

// ValidationError reports a request that failed structural validation:
// unknown table, field, or operator, malformed dates, and so on. Always
// fail-closed; a bad filter is rejected, never silently dropped.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed on %q: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for a field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// SecurityViolation is a whitelist breach: a table, field, or operator
// outside the configured allow-lists. Surfaced distinctly from plain
// validation failures so the host can audit it.
type SecurityViolation struct {
	Field  string
	Reason string
}

func (e *SecurityViolation) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("security violation: %s", e.Reason)
	}
	return fmt.Sprintf("security violation on %q: %s", e.Field, e.Reason)
}

// NewSecurityViolation builds a SecurityViolation for a field.
func NewSecurityViolation(field, reason string) *SecurityViolation {
	return &SecurityViolation{Field: field, Reason: reason}
}

// SanitizationError reports a filter value that failed a type or pattern
// check. The request is rejected whole; values are never partially escaped.
// The offending value itself is deliberately not carried here so it cannot
// leak into logs or responses.
type SanitizationError struct {
	Field  string
	Reason string
}

func (e *SanitizationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("value rejected: %s", e.Reason)
	}
	return fmt.Sprintf("value rejected on %q: %s", e.Field, e.Reason)
}

// NewSanitizationError builds a SanitizationError for a field.
func NewSanitizationError(field, reason string) *SanitizationError {
	return &SanitizationError{Field: field, Reason: reason}
}

// ExecutionError wraps a database failure. Transient errors (connection
// resets, deadlocks) are retried with backoff before being surfaced; fatal
// errors (bad SQL, constraint violations) propagate immediately.
type ExecutionError struct {
	Transient bool
	Err       error
}

func (e *ExecutionError) Error() string {
	if e.Transient {
		return fmt.Sprintf("transient execution error: %v", e.Err)
	}
	return fmt.Sprintf("execution error: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// IsRetryable lets the retry package honor the classification directly.
func (e *ExecutionError) IsRetryable() bool { return e.Transient }

// NewExecutionError wraps err with its transience classification.
func NewExecutionError(err error, transient bool) *ExecutionError {
	return &ExecutionError{Transient: transient, Err: err}
}

// IsRequestError reports whether err is caller-fixable (validation,
// sanitization, or security) as opposed to an internal failure.
func IsRequestError(err error) bool {
	var ve *ValidationError
	var sv *SecurityViolation
	var se *SanitizationError
	return errors.As(err, &ve) || errors.As(err, &sv) || errors.As(err, &se)
}
