package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	errors "github.com/Laisky/errors/v2"
	"go.uber.org/zap"
)

// SSEWriter handles writing Server-Sent Events
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	logger  *zap.Logger
}

// NewSSEWriter sets the event stream headers and returns a writer.
// It fails when w cannot be flushed.
func NewSSEWriter(w http.ResponseWriter, logger *zap.Logger) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support flushing")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &SSEWriter{
		w:       w,
		flusher: flusher,
		logger:  logger,
	}, nil
}

// WriteEvent writes v as the JSON data of an SSE event
func (s *SSEWriter) WriteEvent(event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "marshal %s event", event)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return errors.Wrapf(err, "write %s event", event)
	}
	s.flusher.Flush()

	s.logger.Debug("SSE event sent",
		zap.String("event", event),
		zap.String("data", truncateString(string(data), 200)),
	)
	return nil
}

// truncateString truncates a string for logging
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
