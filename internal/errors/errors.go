package errors

import (
	"errors"
	"fmt"
)

// Error is the structured error type for spiralmem.
// It provides context for error handling, logging, and user presentation.
type Error struct {
	// Code is the unique error code (e.g., "ERR_301_MEDIA_TOOL").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Validation, Media, Store, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
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

// WithSuggestion adds an actionable suggestion for the user.
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestion = suggestion
	return e
}

// New creates a new Error with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an Error around an existing cause with its own message.
// Returns nil when err is nil so call sites can wrap unconditionally.
func Wrap(err error, code string, message string) *Error {
	if err == nil {
		return nil
	}
	e := New(code, message)
	e.Cause = err
	return e
}

// ValidationError creates an input-validation error.
func ValidationError(message string, cause error) *Error {
	e := New(ErrCodeInvalidInput, message)
	e.Cause = cause
	return e
}

// NotFound creates a lookup-miss error for the named entity.
func NotFound(entity, id string) *Error {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found: %s", entity, id)).
		WithDetail("entity", entity).
		WithDetail("id", id)
}

// AlreadyExists creates a uniqueness-violation error.
func AlreadyExists(entity, name string) *Error {
	return New(ErrCodeAlreadyExists, fmt.Sprintf("%s already exists: %s", entity, name)).
		WithDetail("entity", entity).
		WithDetail("name", name)
}

// StoreError creates a persistence error.
func StoreError(message string, cause error) *Error {
	e := New(ErrCodeStore, message)
	e.Cause = cause
	return e
}

// Internal creates an internal error.
func Internal(message string, cause error) *Error {
	e := New(ErrCodeInternal, message)
	e.Cause = cause
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// IsWarning checks if an error is a warning-severity failure.
// Warning failures degrade the pipeline output but do not fail the job.
func IsWarning(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Severity == SeverityWarning
	}
	return false
}

// GetCode extracts the error code from an Error.
// Returns empty string if not a structured error.
func GetCode(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// GetCategory extracts the category from an Error.
func GetCategory(err error) Category {
	var se *Error
	if errors.As(err, &se) {
		return se.Category
	}
	return ""
}

// HasCode checks whether err carries the given error code anywhere in its chain.
func HasCode(err error, code string) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}
