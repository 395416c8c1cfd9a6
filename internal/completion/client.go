// Package completion streams chat completions from the upstream endpoint.
package completion

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	errors "github.com/Laisky/errors/v2"
	"go.uber.org/zap"

	"github.com/young1lin/lorph/internal/config"
	"github.com/young1lin/lorph/internal/models"
	"github.com/young1lin/lorph/internal/stream"
	"github.com/young1lin/lorph/internal/transport"
	"github.com/young1lin/lorph/pkg/logger"
)

const readChunkSize = 4096

// Client sends completion requests through the resilient transport
type Client struct {
	transport *transport.Client
	endpoint  string
	apiKey    string
	options   models.GenerationOptions
}

// NewClient creates a completion client
func NewClient(cfg *config.CompletionConfig, tc *transport.Client) *Client {
	return &Client{
		transport: tc,
		endpoint:  cfg.Endpoint,
		apiKey:    cfg.APIKey,
		options:   OptionsFromConfig(cfg),
	}
}

// Stream sends messages to model and decodes the streamed answer.
//
// onChunk receives the full visible text every time it changes, so callers
// replace rather than append. Cancellation of ctx is not an error: Stream
// returns a nil error and a result with Cancelled set, and onChunk is not
// called again.
func (c *Client) Stream(
	ctx context.Context,
	model string,
	messages []models.ChatMessage,
	onChunk func(visible string),
) (*stream.Result, error) {
	log := logger.FromContext(ctx).Named("completion").With(zap.String("model", model))

	body, err := json.Marshal(BuildRequest(model, messages, c.options))
	if err != nil {
		return nil, errors.Wrap(err, "marshal completion request")
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if turnID := logger.TurnIDFromContext(ctx); turnID != "" {
		header.Set("X-Trace-ID", turnID)
	}

	log.Info("sending completion request", zap.Int("message_count", len(messages)))

	resp, err := c.transport.Execute(ctx, &transport.Request{
		Method: http.MethodPost,
		URL:    c.endpoint,
		Header: header,
		Body:   body,
	})
	if err != nil {
		if transport.IsCancelled(err) {
			log.Info("completion cancelled before the stream opened")
			return &stream.Result{Cancelled: true}, nil
		}
		return nil, err
	}
	defer resp.Body.Close()

	return c.decode(ctx, resp.Body, onChunk, log)
}

func (c *Client) decode(ctx context.Context, body io.Reader, onChunk func(string), log *zap.Logger) (*stream.Result, error) {
	dec := stream.NewDecoder(log)
	buf := make([]byte, readChunkSize)
	emitted := ""

	emit := func(visible string) {
		if visible == emitted {
			return
		}
		emitted = visible
		if onChunk != nil {
			onChunk(visible)
		}
	}

	for !dec.Done() {
		if ctx.Err() != nil {
			return c.cancelled(dec, log), nil
		}

		n, err := body.Read(buf)
		if n > 0 && ctx.Err() == nil && dec.Feed(buf[:n]) {
			emit(dec.Visible())
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return c.cancelled(dec, log), nil
			}
			res := dec.Finish()
			return res, errors.Wrap(&transport.NetworkError{Route: "stream", Err: err}, "read completion stream")
		}
	}

	if ctx.Err() != nil {
		return c.cancelled(dec, log), nil
	}

	res := dec.Finish()
	emit(res.Visible)
	if err := dec.Err(); err != nil {
		log.Error("upstream reported an error mid-stream", zap.Error(err))
		return res, err
	}

	log.Info("completion finished",
		zap.Int("visible_chars", len(res.Visible)),
		zap.Int("related_questions", len(res.Related)),
	)
	return res, nil
}

// cancelled finalizes a stream the caller stopped. Related questions are
// dropped: a stopped turn never shows them.
func (c *Client) cancelled(dec *stream.Decoder, log *zap.Logger) *stream.Result {
	res := dec.Finish()
	res.Related = nil
	res.Cancelled = true
	log.Info("completion stopped by user", zap.Int("visible_chars", len(res.Visible)))
	return res
}
