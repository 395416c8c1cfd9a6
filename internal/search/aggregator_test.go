package search

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	errors "github.com/Laisky/errors/v2"
	"github.com/stretchr/testify/require"

	"github.com/young1lin/lorph/internal/config"
	"github.com/young1lin/lorph/internal/models"
	"github.com/young1lin/lorph/internal/transport"
)

type fakeProvider struct {
	name    string
	results []models.SearchResult
	err     error
	delay   time.Duration
	panics  bool
}

func (f *fakeProvider) Name() string      { return f.name }
func (f *fakeProvider) IsAvailable() bool { return true }

func (f *fakeProvider) Search(ctx context.Context, query string) ([]models.SearchResult, error) {
	if f.panics {
		panic("boom")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.results, f.err
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]models.SearchResult
	puts int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string][]models.SearchResult)}
}

func (c *memoryCache) Get(query string) ([]models.SearchResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.data[query]
	return r, ok
}

func (c *memoryCache) Put(query string, results []models.SearchResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[query] = results
	c.puts++
	return nil
}

func hit(link string) models.SearchResult {
	return models.SearchResult{Title: link, Link: link, Type: models.ResultWeb}
}

func hits(prefix string, n int) []models.SearchResult {
	out := make([]models.SearchResult, n)
	for i := range out {
		out[i] = hit(fmt.Sprintf("https://%s.example/%d", prefix, i))
	}
	return out
}

func links(results []models.SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Link
	}
	return out
}

func TestAggregatorMergeOrderAndDedupe(t *testing.T) {
	web := &fakeProvider{name: "web", delay: 20 * time.Millisecond, results: []models.SearchResult{
		hit("https://a.example/"),
		hit("https://b.example"),
	}}
	wiki := &fakeProvider{name: "wikipedia", results: []models.SearchResult{
		hit("https://a.example"),
		hit("https://c.example"),
	}}

	got := NewAggregator([]Provider{web, wiki}).Search(context.Background(), "q")
	require.Equal(t, []string{"https://a.example/", "https://b.example", "https://c.example"}, links(got))
}

func TestAggregatorCapsResults(t *testing.T) {
	web := &fakeProvider{name: "web", results: hits("web", 15)}
	wiki := &fakeProvider{name: "wikipedia", results: hits("wiki", 15)}

	got := NewAggregator([]Provider{web, wiki}).Search(context.Background(), "q")
	require.Len(t, got, 20)
	require.Equal(t, "https://web.example/0", got[0].Link)
	require.Equal(t, "https://wiki.example/4", got[19].Link)
}

func TestAggregatorDegradesFailingBranches(t *testing.T) {
	web := &fakeProvider{name: "web", err: errors.New("blocked")}
	wiki := &fakeProvider{name: "wikipedia", results: hits("wiki", 2)}
	broken := &fakeProvider{name: "extra", panics: true}

	got := NewAggregator([]Provider{web, wiki, broken}).Search(context.Background(), "q")
	require.Equal(t, []string{"https://wiki.example/0", "https://wiki.example/1"}, links(got))
}

func TestAggregatorNeverFails(t *testing.T) {
	got := NewAggregator([]Provider{
		&fakeProvider{name: "web", err: errors.New("down")},
		&fakeProvider{name: "wikipedia", err: errors.New("down")},
	}).Search(context.Background(), "q")
	require.NotNil(t, got)
	require.Empty(t, got)

	require.Empty(t, NewAggregator(nil).Search(context.Background(), "q"))
}

func TestAggregatorTimeoutBoundsSlowBranch(t *testing.T) {
	slow := &fakeProvider{name: "web", delay: time.Hour, results: hits("slow", 1)}
	fast := &fakeProvider{name: "wikipedia", results: hits("fast", 1)}

	start := time.Now()
	got := NewAggregator([]Provider{slow, fast}, WithTimeout(50*time.Millisecond)).Search(context.Background(), "q")
	require.Less(t, time.Since(start), 5*time.Second)
	require.Equal(t, []string{"https://fast.example/0"}, links(got))
}

func TestAggregatorCache(t *testing.T) {
	cache := newMemoryCache()
	provider := &fakeProvider{name: "web", results: hits("web", 2)}
	agg := NewAggregator([]Provider{provider}, WithCache(cache))

	first := agg.Search(context.Background(), "Latest  F1")
	require.Len(t, first, 2)
	require.Equal(t, 1, cache.puts)

	provider.results = hits("changed", 1)
	second := agg.Search(context.Background(), "latest f1")
	require.Equal(t, links(first), links(second))

	empty := NewAggregator([]Provider{&fakeProvider{name: "web"}}, WithCache(cache))
	require.Empty(t, empty.Search(context.Background(), "nothing"))
	require.Equal(t, 1, cache.puts)
}

func TestAggregatorDoesNotCachePartialResults(t *testing.T) {
	t.Run("cancelled", func(t *testing.T) {
		cache := newMemoryCache()
		web := &fakeProvider{name: "web", delay: time.Second, results: hits("web", 3)}
		wiki := &fakeProvider{name: "wikipedia", results: hits("wiki", 1)}
		agg := NewAggregator([]Provider{web, wiki}, WithCache(cache))

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		got := agg.Search(ctx, "q")
		require.Equal(t, []string{"https://wiki.example/0"}, links(got))
		require.Equal(t, 0, cache.puts)

		web.delay = 0
		fresh := agg.Search(context.Background(), "q")
		require.Len(t, fresh, 4)
		require.Equal(t, 1, cache.puts)
	})

	t.Run("overall timeout", func(t *testing.T) {
		cache := newMemoryCache()
		web := &fakeProvider{name: "web", delay: time.Hour, results: hits("web", 3)}
		wiki := &fakeProvider{name: "wikipedia", results: hits("wiki", 1)}
		agg := NewAggregator([]Provider{web, wiki}, WithCache(cache), WithTimeout(50*time.Millisecond))

		require.Len(t, agg.Search(context.Background(), "q"), 1)
		require.Equal(t, 0, cache.puts)
	})

	t.Run("failed branch", func(t *testing.T) {
		cache := newMemoryCache()
		web := &fakeProvider{name: "web", err: errors.New("blocked")}
		wiki := &fakeProvider{name: "wikipedia", results: hits("wiki", 1)}
		agg := NewAggregator([]Provider{web, wiki}, WithCache(cache))

		require.Len(t, agg.Search(context.Background(), "q"), 1)
		require.Equal(t, 0, cache.puts)
	})
}

func TestAggregatorFromConfig(t *testing.T) {
	cfg := config.Default().Search
	agg := NewAggregatorFromConfig(&cfg, transport.NewClient())
	require.True(t, agg.Enabled())
	require.Len(t, agg.providers, 2)
	require.Equal(t, "web", agg.providers[0].Name())
	require.Equal(t, "wikipedia", agg.providers[1].Name())

	cfg.Firecrawl.APIKey = "fc-key"
	require.Len(t, NewAggregatorFromConfig(&cfg, transport.NewClient()).providers, 3)

	cfg.Enabled = false
	disabled := NewAggregatorFromConfig(&cfg, transport.NewClient())
	require.False(t, disabled.Enabled())
	require.Empty(t, disabled.Search(context.Background(), "q"))
}

func TestDedupe(t *testing.T) {
	in := []models.SearchResult{
		hit("https://x.example/a/"),
		hit("https://x.example/a"),
		hit("https://x.example/b"),
	}
	require.Equal(t, []string{"https://x.example/a/", "https://x.example/b"}, links(Dedupe(in, 20)))
	require.Len(t, Dedupe(in, 1), 1)
}

func TestFormatContext(t *testing.T) {
	out := FormatContext([]models.SearchResult{
		{Title: "T1", Link: "https://a.example", Snippet: "S1"},
		{Title: "T2", Link: "https://b.example", Snippet: "S2"},
	})
	require.Equal(t,
		"[Title: T1] [Link: https://a.example] [Snippet: S1]\n\n[Title: T2] [Link: https://b.example] [Snippet: S2]",
		out,
	)
	require.Equal(t, "No search results found.", FormatResults("q", nil))
	require.Contains(t, FormatResults("q", []models.SearchResult{{Title: "T", Link: "https://v.example", Type: models.ResultVideo}}), "1. T [video]")
}
