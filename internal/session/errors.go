package session

import (
	"fmt"
	"net/http"

	errors "github.com/Laisky/errors/v2"

	"github.com/young1lin/lorph/internal/stream"
	"github.com/young1lin/lorph/internal/transport"
)

var (
	// ErrEmptyInput is returned for a submission with neither text nor files
	ErrEmptyInput = errors.New("message is empty")
	// ErrMessageNotFound is returned when an edit or regenerate names an unknown message
	ErrMessageNotFound = errors.New("message not found")
	// ErrInvalidTarget is returned when a message cannot be edited or regenerated
	ErrInvalidTarget = errors.New("message cannot be used for this operation")
	// ErrUnknownModel is returned by SetModel for a model outside the catalog
	ErrUnknownModel = errors.New("unknown model")
)

const (
	msgConnectionFailed = "Connection failed. Please check your internet connection."
	msgServiceBusy      = "The AI service is currently busy. Please try again in a moment."
)

// FriendlyError turns a generation failure into the text shown to the user
func FriendlyError(err error) string {
	var (
		apiErr    *transport.APIError
		netErr    *transport.NetworkError
		streamErr *stream.StreamError
	)
	switch {
	case errors.As(err, &apiErr):
		if apiErr.StatusCode == http.StatusServiceUnavailable {
			return msgServiceBusy
		}
		body := apiErr.Body
		if body == "" {
			body = http.StatusText(apiErr.StatusCode)
		}
		return fmt.Sprintf("API Error (%d): %s", apiErr.StatusCode, body)
	case errors.As(err, &streamErr):
		return fmt.Sprintf("API Error: %s", streamErr.Message)
	case errors.As(err, &netErr), errors.Is(err, transport.ErrUnreachable):
		return msgConnectionFailed
	default:
		return err.Error()
	}
}

// errorAnnotation is appended to an assistant message whose turn failed
func errorAnnotation(err error) string {
	return "\n\n> ⚠️ **Connection Error**\n> " + FriendlyError(err)
}
