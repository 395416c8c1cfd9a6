package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/young1lin/lorph/internal/models"
)

func TestSearchCache(t *testing.T) {
	// Create temp directory
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "nested", "test.db")

	cache, err := NewSearchCache(dbPath, time.Minute)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer cache.Close()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	t.Run("Put and Get", func(t *testing.T) {
		results := []models.SearchResult{
			{Title: "Go", Link: "https://go.dev", Source: "go.dev", Type: models.ResultWeb},
			{Title: "Clip", Link: "https://youtu.be/dQw4w9WgXcQ", Type: models.ResultVideo, ImageURL: "https://img.youtube.com/vi/dQw4w9WgXcQ/hqdefault.jpg"},
		}

		if err := cache.Put("golang", results); err != nil {
			t.Fatalf("Failed to put: %v", err)
		}

		got, found := cache.Get("golang")
		if !found {
			t.Fatal("Expected to find cached results")
		}

		if len(got) != 2 {
			t.Fatalf("Expected 2 results, got %d", len(got))
		}

		if got[1].Type != models.ResultVideo || got[1].ImageURL == "" {
			t.Errorf("Unexpected second result: %+v", got[1])
		}
	})

	t.Run("Get non-existent", func(t *testing.T) {
		_, found := cache.Get("never stored")
		if found {
			t.Error("Expected not to find non-existent query")
		}
	})

	t.Run("Empty results are not stored", func(t *testing.T) {
		if err := cache.Put("empty", nil); err != nil {
			t.Fatalf("Failed to put: %v", err)
		}
		if _, found := cache.Get("empty"); found {
			t.Error("Expected empty results to be skipped")
		}
	})

	t.Run("Expiry", func(t *testing.T) {
		if err := cache.Put("old", []models.SearchResult{{Title: "x", Link: "https://x.example"}}); err != nil {
			t.Fatalf("Failed to put: %v", err)
		}

		now = now.Add(2 * time.Minute)

		if _, found := cache.Get("old"); found {
			t.Error("Expected expired entry to be missing")
		}

		removed, err := cache.Prune()
		if err != nil {
			t.Fatalf("Failed to prune: %v", err)
		}
		// "golang" from the first subtest has expired too
		if removed != 2 {
			t.Errorf("Expected 2 pruned entries, got %d", removed)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		cache.Put("to-delete", []models.SearchResult{{Title: "t", Link: "https://t.example"}})

		if _, found := cache.Get("to-delete"); !found {
			t.Fatal("Expected to find entry before delete")
		}

		if err := cache.Delete("to-delete"); err != nil {
			t.Fatalf("Failed to delete: %v", err)
		}

		if _, found := cache.Get("to-delete"); found {
			t.Error("Expected not to find deleted entry")
		}
	})
}

func TestSearchCachePersistence(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "persist.db")

	// Create cache and store data
	cache1, err := NewSearchCache(dbPath, 0)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}

	if err := cache1.Put("persist", []models.SearchResult{{Title: "Persistent", Link: "https://p.example"}}); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}
	cache1.Close()

	// Reopen and verify data persists; a zero TTL never expires
	cache2, err := NewSearchCache(dbPath, 0)
	if err != nil {
		t.Fatalf("Failed to reopen cache: %v", err)
	}
	defer cache2.Close()

	got, found := cache2.Get("persist")
	if !found {
		t.Fatal("Expected data to persist after reopen")
	}

	if got[0].Title != "Persistent" {
		t.Errorf("Unexpected title: %s", got[0].Title)
	}
}
