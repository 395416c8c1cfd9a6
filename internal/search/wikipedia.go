package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"

	errors "github.com/Laisky/errors/v2"
	"go.uber.org/zap"

	"github.com/young1lin/lorph/internal/config"
	"github.com/young1lin/lorph/internal/models"
	"github.com/young1lin/lorph/internal/transport"
	"github.com/young1lin/lorph/pkg/logger"
)

const (
	wikipediaSource         = "wikipedia.org"
	wikipediaDefaultSnippet = "Wikipedia entry."
	maxJSONBytes            = 2 * 1024 * 1024
)

// WikipediaProvider queries an opensearch endpoint
type WikipediaProvider struct {
	transport     *transport.Client
	endpoint      string
	limit         int
	snippetLength int
}

// NewWikipediaProvider creates the structured search source
func NewWikipediaProvider(cfg *config.SearchConfig, tc *transport.Client) *WikipediaProvider {
	limit := cfg.Wikipedia.Limit
	if limit <= 0 {
		limit = 20
	}
	return &WikipediaProvider{
		transport:     tc,
		endpoint:      cfg.Wikipedia.Endpoint,
		limit:         limit,
		snippetLength: cfg.SnippetLength,
	}
}

func (p *WikipediaProvider) Name() string {
	return "wikipedia"
}

func (p *WikipediaProvider) IsAvailable() bool {
	return p.endpoint != ""
}

// Search performs an opensearch query
func (p *WikipediaProvider) Search(ctx context.Context, query string) ([]models.SearchResult, error) {
	params := url.Values{}
	params.Set("action", "opensearch")
	params.Set("search", query)
	params.Set("limit", strconv.Itoa(p.limit))
	params.Set("namespace", "0")
	params.Set("format", "json")
	params.Set("origin", "*")

	resp, err := p.transport.Execute(ctx, &transport.Request{
		Method: http.MethodGet,
		URL:    p.endpoint + "?" + params.Encode(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "wikipedia opensearch")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJSONBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read wikipedia response")
	}

	results := ParseOpenSearch(body, p.snippetLength)
	logger.FromContext(ctx).Named("search").Debug("wikipedia search completed",
		zap.String("query", query),
		zap.Int("result_count", len(results)),
	)
	return results, nil
}

// ParseOpenSearch zips an opensearch response [query, titles, descriptions, links]
// into results. Any unexpected shape yields an empty slice.
func ParseOpenSearch(body []byte, snippetLength int) []models.SearchResult {
	var parts []json.RawMessage
	if err := json.Unmarshal(body, &parts); err != nil || len(parts) < 4 {
		return nil
	}

	var titles, descriptions, links []string
	if json.Unmarshal(parts[1], &titles) != nil ||
		json.Unmarshal(parts[2], &descriptions) != nil ||
		json.Unmarshal(parts[3], &links) != nil {
		return nil
	}

	results := make([]models.SearchResult, 0, len(titles))
	for i, title := range titles {
		if i >= len(links) || title == "" {
			continue
		}
		link, ok := SanitizeURL(links[i])
		if !ok {
			continue
		}

		snippet := wikipediaDefaultSnippet
		if i < len(descriptions) && descriptions[i] != "" {
			snippet = descriptions[i]
		}

		results = append(results, models.SearchResult{
			Title:   title,
			Link:    link,
			Snippet: truncateRunes(snippet, snippetLength),
			Source:  wikipediaSource,
			Type:    models.ResultWeb,
		})
	}
	return results
}
