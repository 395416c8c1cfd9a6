// Package transport performs upstream HTTP requests with bounded retries,
// a direct-then-relay route fallback and cooperative cancellation.
package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/young1lin/lorph/internal/config"
	"github.com/young1lin/lorph/internal/metrics"
	"github.com/young1lin/lorph/pkg/logger"
)

const (
	defaultMaxAttempts = 3
	defaultBackoff     = 1500 * time.Millisecond
	maxErrorBodyBytes  = 64 * 1024
)

// Route is an intermediary prefix a target URL is appended to, query-escaped.
// The zero Route is the direct route.
type Route string

// Direct sends requests to the target itself
const Direct Route = ""

// Wrap returns the URL to request in order to reach target through r
func (r Route) Wrap(target string) string {
	if r == Direct {
		return target
	}
	return string(r) + url.QueryEscape(target)
}

// Name is a short label for logs and metrics
func (r Route) Name() string {
	if r == Direct {
		return "direct"
	}
	if u, err := url.Parse(string(r)); err == nil && u.Host != "" {
		return u.Host
	}
	return "relay"
}

// Request describes one logical upstream call. Body is kept as bytes so every
// attempt and route can resend it.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Option customises a Client during construction.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithMaxAttempts sets how many attempts Execute makes before giving up
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithBackoff sets the delay step; the wait after attempt i is i*step
func WithBackoff(step time.Duration) Option {
	return func(c *Client) {
		if step >= 0 {
			c.backoff = step
		}
	}
}

// WithRelay sets the fallback route used when the direct route fails
func WithRelay(relay Route) Option {
	return func(c *Client) {
		c.relay = relay
	}
}

// Client is safe for concurrent use
type Client struct {
	http        *http.Client
	relay       Route
	maxAttempts int
	backoff     time.Duration
}

// NewClient creates a client. No overall timeout is set: streamed
// generations are bounded only by cancellation.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http:        &http.Client{},
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientFromConfig creates a client from the transport section of the config
func NewClientFromConfig(cfg *config.TransportConfig, opts ...Option) *Client {
	base := []Option{
		WithMaxAttempts(cfg.MaxAttempts),
		WithBackoff(time.Duration(cfg.BackoffMS) * time.Millisecond),
		WithRelay(Route(cfg.Relay)),
	}
	return NewClient(append(base, opts...)...)
}

// Execute performs req, retrying transport failures and retryable statuses.
//
// A non-retryable, non-success status is returned at once as *APIError.
// Cancellation of ctx is returned as ErrCancelled and is never retried.
// On success the caller owns the response body.
func (c *Client) Execute(ctx context.Context, req *Request) (*http.Response, error) {
	log := logger.FromContext(ctx).Named("transport").With(zap.String("url", req.URL))

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}

		resp, err := c.attempt(ctx, req, log)
		switch {
		case err != nil:
			if ctx.Err() != nil || IsCancelled(err) {
				return nil, ErrCancelled
			}
			lastErr = err
			log.Warn("attempt failed",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", c.maxAttempts),
				zap.Error(err),
			)
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return resp, nil
		case IsRetryableStatus(resp.StatusCode):
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = &APIError{StatusCode: resp.StatusCode}
			log.Warn("server busy, retrying",
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt),
			)
		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
			resp.Body.Close()
			log.Error("upstream rejected request",
				zap.Int("status", resp.StatusCode),
				zap.String("body", string(body)),
			)
			return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
		}

		if attempt < c.maxAttempts {
			if err := sleep(ctx, time.Duration(attempt)*c.backoff); err != nil {
				return nil, ErrCancelled
			}
		}
	}

	if lastErr == nil {
		lastErr = ErrUnreachable
	}
	return nil, lastErr
}

// attempt tries the direct route and, on a transport error, the relay route
func (c *Client) attempt(ctx context.Context, req *Request, log *zap.Logger) (*http.Response, error) {
	resp, err := c.send(ctx, req, Direct)
	if err == nil || c.relay == Direct || ctx.Err() != nil {
		return resp, err
	}

	metrics.TransportFallbacks.Inc()
	log.Warn("direct connection failed, switching to relay",
		zap.String("relay", c.relay.Name()),
		zap.Error(err),
	)
	return c.send(ctx, req, c.relay)
}

func (c *Client) send(ctx context.Context, req *Request, route Route) (*http.Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, route.Wrap(req.URL), body)
	if err != nil {
		return nil, &NetworkError{Route: route.Name(), Err: err}
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		metrics.TransportAttempts.WithLabelValues(routeLabel(route), metrics.OutcomeError).Inc()
		return nil, &NetworkError{Route: route.Name(), Err: err}
	}

	outcome := metrics.OutcomeOK
	switch {
	case IsRetryableStatus(resp.StatusCode):
		outcome = metrics.OutcomeRetryable
	case resp.StatusCode >= 300:
		outcome = metrics.OutcomeRejected
	}
	metrics.TransportAttempts.WithLabelValues(routeLabel(route), outcome).Inc()
	return resp, nil
}

func routeLabel(r Route) string {
	if r == Direct {
		return "direct"
	}
	return "relay"
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
