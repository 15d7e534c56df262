package errors

import (
	"fmt"
)

// Error is the structured error type for filesense.
// It provides context for error handling, logging, and client reporting.
type Error struct {
	// Code is the unique error code (e.g., "ERR_202_EXTRACTION_FAILED").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with Error.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new Error with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an Error from an existing error.
// The error's message becomes the Error message.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ExtractionError creates a per-file extraction error.
func ExtractionError(path string, cause error) *Error {
	return New(ErrCodeExtractionFailed, fmt.Sprintf("failed to extract %s", path), cause).
		WithDetail("path", path)
}

// EmbeddingTimeout creates a transient embedding timeout error.
func EmbeddingTimeout(cause error) *Error {
	return New(ErrCodeEmbeddingTimeout, "embedding call timed out", cause)
}

// VectorStoreUnavailable creates a vector-store availability error.
func VectorStoreUnavailable(cause error) *Error {
	return New(ErrCodeVectorStoreUnavailable, "vector store unavailable", cause)
}

// MalformedMessage creates a protocol validation error for one session.
func MalformedMessage(message string) *Error {
	return New(ErrCodeMalformedMessage, message, nil)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is an Error with the Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := err.(*Error); ok {
		return e.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from an Error.
// Returns empty string if not an Error.
func GetCode(err error) string {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}
