package transport

import (
	"context"
	"fmt"

	errors "github.com/Laisky/errors/v2"
)

var (
	// ErrCancelled reports that the caller's context was cancelled. It is never retried.
	ErrCancelled = errors.New("request cancelled")
	// ErrUnreachable is returned when every attempt failed without a captured error.
	ErrUnreachable = errors.New("unable to connect to the server after multiple attempts")
	// ErrNoMarkup is returned when no route produced an HTML document.
	ErrNoMarkup = errors.New("no route returned a markup document")
)

// NetworkError is a transport level failure on one route
type NetworkError struct {
	Route string
	Err   error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s route failed: %v", e.Route, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// APIError is an upstream response with a non-success status
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status belongs to the retryable set
func (e *APIError) Retryable() bool {
	return IsRetryableStatus(e.StatusCode)
}

// IsRetryableStatus reports whether a response with this status should be retried
func IsRetryableStatus(code int) bool {
	switch code {
	case 429, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsCancelled reports whether err is, or was caused by, a cancellation
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}
