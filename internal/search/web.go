package search

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"time"

	errors "github.com/Laisky/errors/v2"
	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/young1lin/lorph/internal/config"
	"github.com/young1lin/lorph/internal/models"
	"github.com/young1lin/lorph/internal/transport"
	"github.com/young1lin/lorph/pkg/logger"
)

// Selectors cover the result layouts the HTML endpoint has served over time.
const (
	resultSelector  = ".result, .web-result, .result-link, .links_main, .g"
	snippetSelector = ".snippet, .result__snippet, .st, .result-snippet"
)

// WebProvider scrapes an HTML results page, reached through relays
type WebProvider struct {
	transport     *transport.Client
	endpoint      string
	routes        []transport.Route
	fetchTimeout  time.Duration
	snippetLength int
}

// NewWebProvider creates the markup search source
func NewWebProvider(cfg *config.SearchConfig, tc *transport.Client) *WebProvider {
	var routes []transport.Route
	if cfg.Web.Direct {
		routes = append(routes, transport.Direct)
	}
	for _, r := range cfg.Web.Relays {
		if r != "" {
			routes = append(routes, transport.Route(r))
		}
	}

	return &WebProvider{
		transport:     tc,
		endpoint:      cfg.Web.Endpoint,
		routes:        routes,
		fetchTimeout:  time.Duration(cfg.Web.FetchTimeout) * time.Second,
		snippetLength: cfg.SnippetLength,
	}
}

func (p *WebProvider) Name() string {
	return "web"
}

func (p *WebProvider) IsAvailable() bool {
	return p.endpoint != "" && len(p.routes) > 0
}

// Search fetches the results page for query and extracts its hits
func (p *WebProvider) Search(ctx context.Context, query string) ([]models.SearchResult, error) {
	target := p.endpoint + "?q=" + url.QueryEscape(query) + "&kz=1"

	body, err := p.transport.FetchMarkup(ctx, target, p.routes, p.fetchTimeout)
	if err != nil {
		return nil, errors.Wrap(err, "fetch results page")
	}

	results, err := ParseMarkup(body, p.snippetLength)
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Named("search").Debug("web search completed",
		zap.String("query", query),
		zap.Int("result_count", len(results)),
	)
	return results, nil
}

// ParseMarkup parses an HTML document and extracts its results
func ParseMarkup(body []byte, snippetLength int) ([]models.SearchResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "parse results page")
	}
	return ExtractMarkup(doc, snippetLength), nil
}

// ExtractMarkup walks candidate result nodes and builds a result from each
// node that has both a usable link and a title.
func ExtractMarkup(doc *goquery.Document, snippetLength int) []models.SearchResult {
	var results []models.SearchResult

	doc.Find(resultSelector).Each(func(_ int, node *goquery.Selection) {
		anchor := node.Find("a").First()
		if anchor.Length() == 0 {
			return
		}

		href, _ := anchor.Attr("href")
		link, ok := SanitizeURL(href)
		title := strings.TrimSpace(anchor.Text())
		if !ok || title == "" {
			return
		}

		snippet := strings.TrimSpace(node.Find(snippetSelector).First().Text())
		kind, thumbnail := Classify(link)

		results = append(results, models.SearchResult{
			Title:    title,
			Link:     link,
			Snippet:  truncateRunes(snippet, snippetLength),
			Source:   SourceName(link),
			Type:     kind,
			ImageURL: thumbnail,
		})
	})

	return results
}
