package search

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/young1lin/lorph/internal/models"
)

// redirectWrapper is the indirection DuckDuckGo puts in front of result links
const redirectWrapper = "duckduckgo.com/l/?uddg="

var (
	youtubeIDPattern = regexp.MustCompile(`(?:youtube\.com/(?:[^/]+/.+/|(?:v|e(?:mbed)?)/|.*[?&]v=)|youtu\.be/)([^"&?/\s]{11})`)

	videoHosts = []string{"youtube.com", "youtu.be", "vimeo.com"}
)

// SanitizeURL unwraps known redirect links and accepts only absolute http(s)
// URLs. It returns false for anything else.
func SanitizeURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return "", false
	}
	if _, wrapped, ok := strings.Cut(decoded, redirectWrapper); ok {
		decoded, _, _ = strings.Cut(wrapped, "&")
	}

	u, err := url.Parse(decoded)
	if err != nil || u.Host == "" {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return decoded, true
}

// SourceName returns the bare hostname of link, without a leading www.
func SourceName(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

// Classify returns the result type of link and, for recognised videos, a thumbnail
func Classify(link string) (models.ResultType, string) {
	host := SourceName(link)
	for _, vh := range videoHosts {
		if host == vh || strings.HasSuffix(host, "."+vh) {
			return models.ResultVideo, youtubeThumbnail(link)
		}
	}
	return models.ResultWeb, ""
}

func youtubeThumbnail(link string) string {
	m := youtubeIDPattern.FindStringSubmatch(link)
	if m == nil {
		return ""
	}
	return fmt.Sprintf("https://img.youtube.com/vi/%s/hqdefault.jpg", m[1])
}

// NormalizeLink is the identity used for de-duplication
func NormalizeLink(link string) string {
	return strings.TrimSuffix(link, "/")
}

// NormalizeQuery folds case and whitespace so equivalent queries share a cache entry
func NormalizeQuery(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
