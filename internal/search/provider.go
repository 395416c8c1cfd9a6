package search

import (
	"context"

	"github.com/young1lin/lorph/internal/models"
)

// Provider defines the interface for search providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Search performs a search query and returns normalized results
	Search(ctx context.Context, query string) ([]models.SearchResult, error)

	// IsAvailable returns true if the provider is properly configured
	IsAvailable() bool
}

// Cache stores aggregated results per query
type Cache interface {
	Get(query string) ([]models.SearchResult, bool)
	Put(query string, results []models.SearchResult) error
}
