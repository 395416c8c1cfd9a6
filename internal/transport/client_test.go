package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	errors "github.com/Laisky/errors/v2"
	"github.com/stretchr/testify/require"
)

// statusSequence replies with the given statuses in order, repeating the last one
func statusSequence(t *testing.T, statuses ...int) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(&hits, 1)) - 1
		if n >= len(statuses) {
			n = len(statuses) - 1
		}
		w.WriteHeader(statuses[n])
		_, _ = w.Write([]byte(`{"status":"` + http.StatusText(statuses[n]) + `"}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

// deadURL returns the address of a server that is no longer listening
func deadURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	u := srv.URL
	srv.Close()
	return u
}

func newTestClient(opts ...Option) *Client {
	return NewClient(append([]Option{WithBackoff(time.Millisecond)}, opts...)...)
}

func TestExecuteRetriesRetryableStatuses(t *testing.T) {
	srv, hits := statusSequence(t, http.StatusServiceUnavailable, http.StatusServiceUnavailable, http.StatusOK)
	client := newTestClient()

	resp, err := client.Execute(context.Background(), &Request{Method: http.MethodPost, URL: srv.URL, Body: []byte(`{}`)})
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 3, atomic.LoadInt32(hits))
}

func TestExecuteExhaustsAttempts(t *testing.T) {
	srv, hits := statusSequence(t, http.StatusServiceUnavailable)
	client := newTestClient()

	resp, err := client.Execute(context.Background(), &Request{URL: srv.URL})
	require.Nil(t, resp)
	require.Error(t, err)
	require.EqualValues(t, 3, atomic.LoadInt32(hits))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	require.True(t, apiErr.Retryable())
}

func TestExecuteTerminalStatusIsNotRetried(t *testing.T) {
	srv, hits := statusSequence(t, http.StatusUnauthorized, http.StatusOK)
	client := newTestClient()

	_, err := client.Execute(context.Background(), &Request{URL: srv.URL})
	require.Error(t, err)
	require.EqualValues(t, 1, atomic.LoadInt32(hits))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	require.Contains(t, apiErr.Body, "Unauthorized")
	require.False(t, apiErr.Retryable())
}

func TestExecuteCancelledBeforeAttempt(t *testing.T) {
	srv, hits := statusSequence(t, http.StatusOK)
	client := newTestClient()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Execute(ctx, &Request{URL: srv.URL})
	require.ErrorIs(t, err, ErrCancelled)
	require.EqualValues(t, 0, atomic.LoadInt32(hits))
}

func TestExecuteCancelledDuringBackoff(t *testing.T) {
	srv, hits := statusSequence(t, http.StatusBadGateway)
	client := NewClient(WithBackoff(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for atomic.LoadInt32(hits) == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	_, err := client.Execute(ctx, &Request{URL: srv.URL})
	require.ErrorIs(t, err, ErrCancelled)
	require.EqualValues(t, 1, atomic.LoadInt32(hits))
}

func TestExecuteFallsBackToRelay(t *testing.T) {
	target := deadURL(t) + "/api/chat"

	var relayed atomic.Value
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		relayed.Store(r.URL.RawQuery)
		body, _ := io.ReadAll(r.Body)
		require.Equal(t, `{"ping":true}`, string(body))
		require.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer relay.Close()

	client := newTestClient(WithRelay(Route(relay.URL + "/?")))
	resp, err := client.Execute(context.Background(), &Request{
		Method: http.MethodPost,
		URL:    target,
		Header: http.Header{"Authorization": []string{"Bearer k"}},
		Body:   []byte(`{"ping":true}`),
	})
	require.NoError(t, err)
	resp.Body.Close()

	unescaped, err := url.QueryUnescape(relayed.Load().(string))
	require.NoError(t, err)
	require.Equal(t, target, unescaped)
}

func TestExecuteNetworkFailureWithoutRelay(t *testing.T) {
	client := newTestClient(WithMaxAttempts(2))

	_, err := client.Execute(context.Background(), &Request{URL: deadURL(t)})
	require.Error(t, err)

	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
	require.Equal(t, "direct", netErr.Route)
}

func TestRouteWrap(t *testing.T) {
	require.Equal(t, "https://a.example/x", Direct.Wrap("https://a.example/x"))
	require.Equal(t,
		"https://corsproxy.io/?https%3A%2F%2Fa.example%2Fx%3Fq%3D1",
		Route("https://corsproxy.io/?").Wrap("https://a.example/x?q=1"),
	)
	require.Equal(t, "corsproxy.io", Route("https://corsproxy.io/?").Name())
	require.Equal(t, "direct", Direct.Name())
}
