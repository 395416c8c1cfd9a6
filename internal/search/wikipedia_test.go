package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/young1lin/lorph/internal/config"
	"github.com/young1lin/lorph/internal/models"
	"github.com/young1lin/lorph/internal/transport"
)

const openSearchBody = `["go",
 ["Go (programming language)", "Go (game)", "Broken"],
 ["Programming language designed at Google.", ""],
 ["https://en.wikipedia.org/wiki/Go_(programming_language)", "https://en.wikipedia.org/wiki/Go_(game)", "not a url"]]`

func TestParseOpenSearch(t *testing.T) {
	results := ParseOpenSearch([]byte(openSearchBody), 250)
	require.Len(t, results, 2)

	require.Equal(t, models.SearchResult{
		Title:   "Go (programming language)",
		Link:    "https://en.wikipedia.org/wiki/Go_(programming_language)",
		Snippet: "Programming language designed at Google.",
		Source:  "wikipedia.org",
		Type:    models.ResultWeb,
	}, results[0])
	require.Equal(t, "Wikipedia entry.", results[1].Snippet)
}

func TestParseOpenSearchFailsSoft(t *testing.T) {
	for _, body := range []string{
		``,
		`{"error":"nope"}`,
		`["go", ["a"]]`,
		`["go", "titles", [], []]`,
		`["go", [1, 2], [], []]`,
	} {
		require.Empty(t, ParseOpenSearch([]byte(body), 250), body)
	}
}

func TestWikipediaProviderSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "opensearch", q.Get("action"))
		require.Equal(t, "go", q.Get("search"))
		require.Equal(t, "20", q.Get("limit"))
		require.Equal(t, "json", q.Get("format"))
		_, _ = w.Write([]byte(openSearchBody))
	}))
	defer srv.Close()

	cfg := config.Default().Search
	cfg.Wikipedia.Endpoint = srv.URL + "/w/api.php"

	results, err := NewWikipediaProvider(&cfg, transport.NewClient()).Search(context.Background(), "go")
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestWikipediaProviderUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	cfg := config.Default().Search
	cfg.Wikipedia.Endpoint = srv.URL

	tc := transport.NewClient(transport.WithBackoff(time.Millisecond))
	_, err := NewWikipediaProvider(&cfg, tc).Search(context.Background(), "go")
	require.Error(t, err)
}
