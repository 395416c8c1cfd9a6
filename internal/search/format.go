package search

import (
	"fmt"
	"strings"

	"github.com/young1lin/lorph/internal/models"
)

// FormatContext renders results as the context block injected into a prompt
func FormatContext(results []models.SearchResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, fmt.Sprintf("[Title: %s] [Link: %s] [Snippet: %s]", r.Title, r.Link, r.Snippet))
	}
	return strings.Join(parts, "\n\n")
}

// FormatResults formats search results for a terminal
func FormatResults(query string, results []models.SearchResult) string {
	if len(results) == 0 {
		return "No search results found."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Search results for: %s\n\n", query)
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s", i+1, r.Title)
		if r.Type == models.ResultVideo {
			b.WriteString(" [video]")
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "   URL: %s\n", r.Link)
		if r.Snippet != "" {
			fmt.Fprintf(&b, "   Summary: %s\n", r.Snippet)
		}
		fmt.Fprintf(&b, "   Source: %s\n\n", r.Source)
	}
	return b.String()
}
