package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	errors "github.com/Laisky/errors/v2"
	"go.uber.org/zap"

	"github.com/young1lin/lorph/pkg/logger"
)

const (
	maxMarkupBytes = 5 * 1024 * 1024
	userAgent      = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// FetchMarkup GETs target through routes in order and returns the body of the
// first 2xx response that looks like an HTML document. Each route gets its own
// timeout so one dead relay cannot stall the rest.
func (c *Client) FetchMarkup(ctx context.Context, target string, routes []Route, timeout time.Duration) ([]byte, error) {
	log := logger.FromContext(ctx).Named("transport")

	for _, route := range routes {
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}

		body, err := c.fetchRoute(ctx, target, route, timeout)
		if err != nil {
			log.Debug("markup route failed",
				zap.String("route", route.Name()),
				zap.Error(err),
			)
			continue
		}
		if !LooksLikeMarkup(body) {
			log.Debug("markup route returned a non-document body",
				zap.String("route", route.Name()),
				zap.Int("bytes", len(body)),
			)
			continue
		}

		log.Debug("markup fetched", zap.String("route", route.Name()), zap.Int("bytes", len(body)))
		return body, nil
	}

	if ctx.Err() != nil {
		return nil, ErrCancelled
	}
	return nil, ErrNoMarkup
}

func (c *Client) fetchRoute(ctx context.Context, target string, route Route, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, route.Wrap(target), nil)
	if err != nil {
		return nil, &NetworkError{Route: route.Name(), Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Route: route.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMarkupBytes))
	if err != nil {
		return nil, &NetworkError{Route: route.Name(), Err: errors.Wrap(err, "read body")}
	}
	return body, nil
}

// LooksLikeMarkup reports whether body carries a start-of-document sentinel
func LooksLikeMarkup(body []byte) bool {
	lower := bytes.ToLower(body)
	return bytes.Contains(lower, []byte("<html")) || bytes.Contains(lower, []byte("<!doctype"))
}
