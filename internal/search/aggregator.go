package search

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/young1lin/lorph/internal/config"
	"github.com/young1lin/lorph/internal/metrics"
	"github.com/young1lin/lorph/internal/models"
	"github.com/young1lin/lorph/internal/transport"
	"github.com/young1lin/lorph/pkg/logger"
)

const defaultMaxResults = 20

// Aggregator queries every provider concurrently and merges their results.
// Providers are merged in the order they were given.
type Aggregator struct {
	providers  []Provider
	cache      Cache
	maxResults int
	timeout    time.Duration
	enabled    bool
}

// AggregatorOption customises an Aggregator
type AggregatorOption func(*Aggregator)

// WithCache stores non-empty results per normalized query
func WithCache(c Cache) AggregatorOption {
	return func(a *Aggregator) {
		a.cache = c
	}
}

// WithMaxResults caps the merged result list
func WithMaxResults(n int) AggregatorOption {
	return func(a *Aggregator) {
		if n > 0 {
			a.maxResults = n
		}
	}
}

// WithTimeout bounds a whole search
func WithTimeout(d time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		a.timeout = d
	}
}

// NewAggregator creates an aggregator over providers
func NewAggregator(providers []Provider, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		providers:  providers,
		maxResults: defaultMaxResults,
		enabled:    true,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewAggregatorFromConfig wires the configured sources: the markup source
// first, then the structured source, then optional API sources.
func NewAggregatorFromConfig(cfg *config.SearchConfig, tc *transport.Client, opts ...AggregatorOption) *Aggregator {
	if !cfg.Enabled {
		logger.Info("web search is disabled")
		return &Aggregator{maxResults: defaultMaxResults}
	}

	candidates := []Provider{
		NewWebProvider(cfg, tc),
		NewWikipediaProvider(cfg, tc),
		NewFirecrawlProvider(cfg, tc),
	}

	var providers []Provider
	for _, p := range candidates {
		if !p.IsAvailable() {
			logger.Debug("skipping unavailable provider", zap.String("provider", p.Name()))
			continue
		}
		providers = append(providers, p)
		logger.Info("provider initialized", zap.String("name", p.Name()))
	}

	base := []AggregatorOption{
		WithMaxResults(cfg.MaxResults),
		WithTimeout(time.Duration(cfg.Timeout) * time.Second),
	}
	return NewAggregator(providers, append(base, opts...)...)
}

// Enabled reports whether searching can produce anything
func (a *Aggregator) Enabled() bool {
	return a.enabled && len(a.providers) > 0
}

// Search runs every provider concurrently. A failing provider contributes no
// results; Search itself never fails, an empty slice is the only failure signal.
func (a *Aggregator) Search(ctx context.Context, query string) (results []models.SearchResult) {
	log := logger.FromContext(ctx).Named("search").With(zap.String("query", query))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error("search aborted", zap.Any("panic", r))
			results = []models.SearchResult{}
		}
		metrics.SearchDuration.Observe(time.Since(start).Seconds())
		metrics.SearchResults.Observe(float64(len(results)))
	}()

	if !a.Enabled() {
		return []models.SearchResult{}
	}

	key := NormalizeQuery(query)
	if a.cache != nil {
		if cached, ok := a.cache.Get(key); ok {
			log.Debug("search served from cache", zap.Int("result_count", len(cached)))
			return cached
		}
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	branches := make([][]models.SearchResult, len(a.providers))
	failed := make([]bool, len(a.providers))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range a.providers {
		g.Go(func() error {
			var ok bool
			branches[i], ok = a.runBranch(gctx, p, query, log)
			failed[i] = !ok
			return nil
		})
	}
	_ = g.Wait()

	var merged []models.SearchResult
	for _, b := range branches {
		merged = append(merged, b...)
	}
	results = Dedupe(merged, a.maxResults)

	log.Info("search completed",
		zap.Int("merged", len(merged)),
		zap.Int("result_count", len(results)),
		zap.Duration("elapsed", time.Since(start)),
	)

	// a stopped, timed out or degraded search is partial and must not be cached
	complete := ctx.Err() == nil && !slices.Contains(failed, true)
	if a.cache != nil && len(results) > 0 && complete {
		if err := a.cache.Put(key, results); err != nil {
			log.Warn("failed to cache search results", zap.Error(err))
		}
	}
	return results
}

// runBranch degrades any provider failure, panics included, to no results.
// ok is false when the provider failed.
func (a *Aggregator) runBranch(ctx context.Context, p Provider, query string, log *zap.Logger) (out []models.SearchResult, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			metrics.SearchBranches.WithLabelValues(p.Name(), metrics.OutcomeError).Inc()
			log.Warn("search provider panicked", zap.String("provider", p.Name()), zap.String("panic", fmt.Sprint(r)))
			out, ok = nil, false
		}
	}()

	results, err := p.Search(ctx, query)
	switch {
	case err != nil:
		metrics.SearchBranches.WithLabelValues(p.Name(), metrics.OutcomeError).Inc()
		log.Warn("search provider degraded", zap.String("provider", p.Name()), zap.Error(err))
		return nil, false
	case len(results) == 0:
		metrics.SearchBranches.WithLabelValues(p.Name(), metrics.OutcomeEmpty).Inc()
	default:
		metrics.SearchBranches.WithLabelValues(p.Name(), metrics.OutcomeOK).Inc()
	}
	return results, true
}

// Dedupe keeps the first result per normalized link, preserving order, and
// returns at most limit entries.
func Dedupe(results []models.SearchResult, limit int) []models.SearchResult {
	if limit <= 0 {
		limit = defaultMaxResults
	}
	seen := make(map[string]struct{}, len(results))
	out := make([]models.SearchResult, 0, min(len(results), limit))
	for _, r := range results {
		if len(out) == limit {
			break
		}
		key := NormalizeLink(r.Link)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}
