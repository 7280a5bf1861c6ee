package errors

import (
	stderrors "errors"
	"fmt"
)

// Type classifies the failures the ingestion pipeline can produce
type Type string

const (
	// TypeExtractionTimeout means a feed or post page failed to render in time
	TypeExtractionTimeout Type = "extraction_timeout"
	// TypeClassification means a single post could not be inspected
	TypeClassification Type = "classification"
	// TypeTransfer means the media byte fetch failed
	TypeTransfer Type = "transfer"
	// TypePersistence means a durable write (sidecar or catalog) failed
	TypePersistence Type = "persistence"
	// TypeUnknown covers everything else
	TypeUnknown Type = "unknown"
)

// Error represents a pipeline error with type information
type Error struct {
	Type    Type
	Message string
	Code    int // HTTP status code for transfer errors, 0 otherwise
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error without an underlying cause
func New(t Type, message string) *Error {
	return &Error{Type: t, Message: message}
}

// Wrap creates a typed error wrapping an underlying cause
func Wrap(t Type, message string, err error) *Error {
	return &Error{Type: t, Message: message, Err: err}
}

// IsType reports whether err is (or wraps) a pipeline error of the given type
func IsType(err error, t Type) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type == t
	}
	return false
}

// IsRetryable checks if an error type should be retried
func IsRetryable(t Type) bool {
	switch t {
	case TypeTransfer:
		return true
	case TypeExtractionTimeout, TypeClassification, TypePersistence:
		return false
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429: // Too Many Requests
		return true
	case 500, 502, 503, 504: // Server errors
		return true
	case 401, 403, 404: // Client errors that won't change
		return false
	default:
		return statusCode >= 500 // Retry all 5xx errors
	}
}
