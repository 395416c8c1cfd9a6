package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	errors "github.com/Laisky/errors/v2"
	"go.uber.org/zap"

	"github.com/young1lin/lorph/internal/config"
	"github.com/young1lin/lorph/internal/models"
	"github.com/young1lin/lorph/internal/transport"
	"github.com/young1lin/lorph/pkg/logger"
)

// FirecrawlProvider implements the Provider interface using Firecrawl API
type FirecrawlProvider struct {
	apiKey        string
	baseURL       string
	timeout       time.Duration
	maxResults    int
	snippetLength int
	transport     *transport.Client
}

// NewFirecrawlProvider creates a new Firecrawl provider
func NewFirecrawlProvider(cfg *config.SearchConfig, tc *transport.Client) *FirecrawlProvider {
	fc := cfg.Firecrawl
	if fc.BaseURL == "" {
		fc.BaseURL = "https://api.firecrawl.dev/v2"
	}
	if fc.Timeout == 0 {
		fc.Timeout = 30
	}
	if fc.MaxResults == 0 {
		fc.MaxResults = 5
	}

	return &FirecrawlProvider{
		apiKey:        fc.APIKey,
		baseURL:       fc.BaseURL,
		timeout:       time.Duration(fc.Timeout) * time.Second,
		maxResults:    fc.MaxResults,
		snippetLength: cfg.SnippetLength,
		transport:     tc,
	}
}

// Name returns the provider name
func (p *FirecrawlProvider) Name() string {
	return "firecrawl"
}

// IsAvailable returns true if the provider is properly configured
func (p *FirecrawlProvider) IsAvailable() bool {
	return p.apiKey != ""
}

// firecrawlSearchRequest represents the search request body
type firecrawlSearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// firecrawlSearchResponse represents the search response
type firecrawlSearchResponse struct {
	Success bool                 `json:"success"`
	Data    *firecrawlSearchData `json:"data,omitempty"`
	Error   string               `json:"error,omitempty"`
}

type firecrawlSearchData struct {
	Web []firecrawlSearchResult `json:"web,omitempty"`
}

type firecrawlSearchResult struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Search performs a search query using Firecrawl
func (p *FirecrawlProvider) Search(ctx context.Context, query string) ([]models.SearchResult, error) {
	log := logger.FromContext(ctx).Named("search")

	if !p.IsAvailable() {
		return nil, errors.New("firecrawl provider not configured: missing API key")
	}

	bodyBytes, err := json.Marshal(firecrawlSearchRequest{
		Query: query,
		Limit: p.maxResults,
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal firecrawl request")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Authorization", fmt.Sprintf("Bearer %s", p.apiKey))

	resp, err := p.transport.Execute(ctx, &transport.Request{
		Method: http.MethodPost,
		URL:    p.baseURL + "/search",
		Header: header,
		Body:   bodyBytes,
	})
	if err != nil {
		return nil, errors.Wrap(err, "firecrawl search")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJSONBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read firecrawl response")
	}

	var searchResp firecrawlSearchResponse
	if err := json.Unmarshal(body, &searchResp); err != nil {
		return nil, errors.Wrap(err, "parse firecrawl response")
	}

	if !searchResp.Success {
		errMsg := searchResp.Error
		if errMsg == "" {
			errMsg = "unknown error"
		}
		return nil, errors.Errorf("firecrawl search failed: %s", errMsg)
	}

	var results []models.SearchResult
	if searchResp.Data != nil {
		for _, item := range searchResp.Data.Web {
			link, ok := SanitizeURL(item.URL)
			if !ok {
				continue
			}
			title := item.Title
			if title == "" {
				title = link
			}
			kind, thumbnail := Classify(link)
			results = append(results, models.SearchResult{
				Title:    title,
				Link:     link,
				Snippet:  truncateRunes(item.Description, p.snippetLength),
				Source:   SourceName(link),
				Type:     kind,
				ImageURL: thumbnail,
			})
		}
	}

	log.Debug("firecrawl search completed",
		zap.String("query", query),
		zap.Int("result_count", len(results)),
	)
	return results, nil
}
