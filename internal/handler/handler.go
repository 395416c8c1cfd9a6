// Package handler exposes a session over HTTP with server-sent events.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	errors "github.com/Laisky/errors/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/young1lin/lorph/internal/attachment"
	"github.com/young1lin/lorph/internal/models"
	"github.com/young1lin/lorph/internal/session"
	"github.com/young1lin/lorph/pkg/logger"
)

// maxRequestBytes bounds a request body, attachments included
const maxRequestBytes = 4 * attachment.MaxFileBytes

// Handler serves one conversation session
type Handler struct {
	session  *session.Session
	searcher session.Searcher
	metrics  http.Handler
}

// contextKey is used for context values
type contextKey string

const traceIDKey contextKey = "traceID"

// ChatRequest is the body of POST /v1/chat
type ChatRequest struct {
	Message string       `json:"message"`
	Model   string       `json:"model,omitempty"`
	Files   []FileUpload `json:"files,omitempty"`
}

// FileUpload is an attachment; Data is base64 in JSON
type FileUpload struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

// EditRequest is the body of POST /v1/messages/{id}/edit
type EditRequest struct {
	Message string `json:"message"`
}

// ModelRequest is the body of POST /models
type ModelRequest struct {
	Model string `json:"model"`
}

// New creates a handler. searcher may be nil when search is disabled.
func New(sess *session.Session, searcher session.Searcher) *Handler {
	return &Handler{
		session:  sess,
		searcher: searcher,
		metrics:  promhttp.Handler(),
	}
}

// ServeHTTP handles all HTTP requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	traceID := extractTraceID(r)
	if traceID == "" {
		traceID = generateTraceID()
	}

	log := logger.WithTraceID(traceID)
	ctx := context.WithValue(r.Context(), traceIDKey, traceID)
	r = r.WithContext(logger.ContextWithLogger(ctx, log))

	log.Info("request received",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("remote_addr", r.RemoteAddr),
	)

	w.Header().Set("X-Trace-ID", traceID)

	switch path := r.URL.Path; {
	case path == "/health":
		h.handleHealth(w, r, log)
	case path == "/metrics":
		h.metrics.ServeHTTP(w, r)
	case path == "/models":
		h.handleModels(w, r, log)
	case path == "/v1/chat":
		h.handleChat(w, r, log)
	case path == "/v1/stop":
		h.handleStop(w, r, log)
	case path == "/v1/messages":
		h.handleMessages(w, r, log)
	case path == "/v1/search":
		h.handleSearch(w, r, log)
	case strings.HasPrefix(path, "/v1/messages/"):
		id, action := parseMessagePath(path)
		switch action {
		case "edit":
			h.handleEdit(w, r, id, log)
		case "regenerate":
			h.handleRegenerate(w, r, id, log)
		default:
			h.handleError(w, r, http.StatusNotFound, "not_found", "Endpoint not found", log)
		}
	default:
		h.handleError(w, r, http.StatusNotFound, "not_found", "Endpoint not found", log)
	}

	log.Info("request completed",
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
}

// handleHealth handles health check requests
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request, log *zap.Logger) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

// handleModels lists the model catalog on GET and selects a model on POST
func (h *Handler) handleModels(w http.ResponseWriter, r *http.Request, log *zap.Logger) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		var req ModelRequest
		if !h.decode(w, r, &req, log) {
			return
		}
		if err := h.session.SetModel(req.Model); err != nil {
			h.handleSessionError(w, r, err, log)
			return
		}
		log.Info("model selected", zap.String("model", req.Model))
	default:
		h.handleError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET and POST methods are allowed", log)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"models":  h.session.Models(),
		"current": h.session.Model(),
	})
}

// handleChat starts a turn and streams its events. While a turn is in
// flight the request stops it instead and answers with JSON.
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request, log *zap.Logger) {
	if !h.requireMethod(w, r, http.MethodPost, log) {
		return
	}

	var req ChatRequest
	if !h.decode(w, r, &req, log) {
		return
	}

	files := make([]attachment.File, 0, len(req.Files))
	for _, f := range req.Files {
		files = append(files, attachment.File{Name: f.Name, Data: f.Data})
	}

	log.Info("chat request",
		zap.String("model", req.Model),
		zap.Int("files", len(files)),
	)

	h.streamTurn(w, r, log, func(ctx context.Context) (*session.Turn, error) {
		return h.session.Submit(ctx, session.Input{
			Text:  req.Message,
			Files: files,
			Model: req.Model,
		})
	})
}

// handleStop stops the turn in flight
func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request, log *zap.Logger) {
	if !h.requireMethod(w, r, http.MethodPost, log) {
		return
	}
	stopped := h.session.Stop()
	log.Info("stop requested", zap.Bool("stopped", stopped))
	writeJSON(w, http.StatusOK, map[string]any{"stopped": stopped})
}

// handleMessages returns the conversation
func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request, log *zap.Logger) {
	if !h.requireMethod(w, r, http.MethodGet, log) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messages":  h.session.Messages(),
		"state":     h.session.State(),
		"in_flight": h.session.InFlight(),
	})
}

// handleEdit replaces a user message and streams the new turn
func (h *Handler) handleEdit(w http.ResponseWriter, r *http.Request, id string, log *zap.Logger) {
	if !h.requireMethod(w, r, http.MethodPost, log) {
		return
	}

	var req EditRequest
	if !h.decode(w, r, &req, log) {
		return
	}

	log.Info("edit requested", zap.String("message_id", id))
	h.streamTurn(w, r, log, func(ctx context.Context) (*session.Turn, error) {
		return h.session.Edit(ctx, id, req.Message)
	})
}

// handleRegenerate regenerates an assistant message and streams the new turn
func (h *Handler) handleRegenerate(w http.ResponseWriter, r *http.Request, id string, log *zap.Logger) {
	if !h.requireMethod(w, r, http.MethodPost, log) {
		return
	}

	log.Info("regenerate requested", zap.String("message_id", id))
	h.streamTurn(w, r, log, func(ctx context.Context) (*session.Turn, error) {
		return h.session.Regenerate(ctx, id)
	})
}

// handleSearch runs an aggregated search outside of a turn
func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request, log *zap.Logger) {
	if !h.requireMethod(w, r, http.MethodGet, log) {
		return
	}
	if h.searcher == nil {
		h.handleError(w, r, http.StatusServiceUnavailable, "search_disabled", "Search is disabled", log)
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		h.handleError(w, r, http.StatusBadRequest, "invalid_request", "Query parameter q is required", log)
		return
	}

	results := h.searcher.Search(r.Context(), query)
	if results == nil {
		results = []models.SearchResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"results": results,
	})
}

// streamTurn subscribes, starts a turn with submit and relays the turn's
// events until it is done. The turn is bound to the request: a client
// that disconnects stops it.
func (h *Handler) streamTurn(w http.ResponseWriter, r *http.Request, log *zap.Logger, submit func(ctx context.Context) (*session.Turn, error)) {
	events, unsubscribe := h.session.Subscribe()
	defer unsubscribe()

	turn, err := submit(r.Context())
	if err != nil {
		h.handleSessionError(w, r, err, log)
		return
	}
	if turn == nil {
		log.Info("turn in flight, request treated as stop")
		writeJSON(w, http.StatusOK, map[string]any{"stopped": true})
		return
	}

	sse, err := NewSSEWriter(w, log)
	if err != nil {
		h.session.Stop()
		h.handleError(w, r, http.StatusInternalServerError, "stream_error", err.Error(), log)
		return
	}

	log = log.With(zap.String("turn_id", turn.ID))
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.TurnID != turn.ID {
				continue
			}
			if err := sse.WriteEvent(string(ev.Type), ev); err != nil {
				log.Warn("client write failed", zap.Error(err))
				return
			}
			if ev.Terminal() {
				log.Info("turn streamed", zap.String("state", string(ev.State)))
				return
			}
		case <-r.Context().Done():
			log.Info("client disconnected")
			return
		}
	}
}

// handleSessionError maps session errors to HTTP statuses
func (h *Handler) handleSessionError(w http.ResponseWriter, r *http.Request, err error, log *zap.Logger) {
	switch {
	case errors.Is(err, session.ErrEmptyInput):
		h.handleError(w, r, http.StatusBadRequest, "invalid_request", err.Error(), log)
	case errors.Is(err, session.ErrUnknownModel):
		h.handleError(w, r, http.StatusBadRequest, "unknown_model", err.Error(), log)
	case errors.Is(err, session.ErrMessageNotFound):
		h.handleError(w, r, http.StatusNotFound, "not_found", err.Error(), log)
	case errors.Is(err, session.ErrInvalidTarget):
		h.handleError(w, r, http.StatusConflict, "invalid_target", err.Error(), log)
	default:
		h.handleError(w, r, http.StatusInternalServerError, "internal_error", err.Error(), log)
	}
}

// handleError handles errors
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, status int, errType, message string, log *zap.Logger) {
	log.Error("request error",
		zap.String("error_type", errType),
		zap.String("message", message),
		zap.Int("status", status),
	)

	writeJSON(w, status, models.ErrorResponse{
		Error: models.ErrorDetail{
			Type:    errType,
			Code:    fmt.Sprintf("%d", status),
			Message: message,
		},
	})
}

func (h *Handler) requireMethod(w http.ResponseWriter, r *http.Request, method string, log *zap.Logger) bool {
	if r.Method == method {
		return true
	}
	h.handleError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", fmt.Sprintf("Only %s method is allowed", method), log)
	return false
}

// decode reads a JSON body into v, answering 400 on failure
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any, log *zap.Logger) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(v); err != nil {
		h.handleError(w, r, http.StatusBadRequest, "parse_error", fmt.Sprintf("Failed to parse request: %v", err), log)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// parseMessagePath splits /v1/messages/{id}/{action}
func parseMessagePath(path string) (id, action string) {
	parts := strings.Split(strings.TrimPrefix(path, "/v1/messages/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		return "", ""
	}
	return parts[0], parts[1]
}

// extractTraceID extracts trace ID from various possible headers
func extractTraceID(r *http.Request) string {
	headers := []string{
		"X-Trace-ID",
		"X-Request-ID",
		"X-Correlation-ID",
		"Trace-ID",
		"Request-ID",
	}

	for _, header := range headers {
		if id := r.Header.Get(header); id != "" {
			return id
		}
	}

	return ""
}

// generateTraceID generates a new trace ID
func generateTraceID() string {
	return uuid.New().String()[:16]
}
