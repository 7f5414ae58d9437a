package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeMissingRootEvent = "MISSING_ROOT_EVENT"
	ErrCodeUpstream         = "UPSTREAM_ERROR"
	ErrCodeCircuitOpen      = "CIRCUIT_OPEN"
	ErrCodeConfig           = "CONFIG_ERROR"
	ErrCodeStore            = "STORE_ERROR"
	ErrCodeExpression       = "EXPRESSION_ERROR"
)

// Error is the structured error type shared by every layer of the server.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	// StatusCode is the upstream HTTP status, when the error came from Temporal.
	StatusCode int   `json:"status_code,omitempty"`
	Cause      error `json:"-"`
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("[%s] %s (status %d)", e.Code, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error carrying the same code, so sentinels can be
// compared with errors.Is regardless of message or details.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// IsRetryable reports whether the operation that produced the error may
// succeed if attempted again.
func (e *Error) IsRetryable() bool {
	switch e.Code {
	case ErrCodeUpstream:
		return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
	case ErrCodeStore:
		return true
	default:
		return false
	}
}

// NewError creates a new Error.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorf creates a new Error with a formatted message.
func NewErrorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause attaches an underlying cause.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// WithStatus attaches an upstream HTTP status code.
func (e *Error) WithStatus(code int) *Error {
	e.StatusCode = code
	return e
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
