package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/young1lin/lorph/internal/config"
	"github.com/young1lin/lorph/internal/transport"
)

func TestFirecrawlProviderSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		require.Equal(t, "Bearer fc-key", r.Header.Get("Authorization"))

		var req firecrawlSearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "go generics", req.Query)
		require.Equal(t, 5, req.Limit)

		_, _ = w.Write([]byte(`{"success":true,"data":{"web":[
			{"url":"https://go.dev/doc/tutorial/generics","title":"Tutorial","description":"Getting started"},
			{"url":"ftp://files.example","title":"Skipped"}
		]}}`))
	}))
	defer srv.Close()

	cfg := config.Default().Search
	cfg.Firecrawl.BaseURL = srv.URL
	cfg.Firecrawl.APIKey = "fc-key"

	p := NewFirecrawlProvider(&cfg, transport.NewClient())
	require.True(t, p.IsAvailable())

	results, err := p.Search(context.Background(), "go generics")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "go.dev", results[0].Source)
	require.Equal(t, "Getting started", results[0].Snippet)
}

func TestFirecrawlProviderUnsuccessful(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"quota"}`))
	}))
	defer srv.Close()

	cfg := config.Default().Search
	cfg.Firecrawl.BaseURL = srv.URL
	cfg.Firecrawl.APIKey = "k"

	_, err := NewFirecrawlProvider(&cfg, transport.NewClient()).Search(context.Background(), "q")
	require.ErrorContains(t, err, "quota")
}

func TestFirecrawlProviderWithoutKey(t *testing.T) {
	cfg := config.Default().Search
	p := NewFirecrawlProvider(&cfg, transport.NewClient())
	require.False(t, p.IsAvailable())

	_, err := p.Search(context.Background(), "q")
	require.Error(t, err)
}
