package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	errors "github.com/Laisky/errors/v2"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/young1lin/lorph/internal/models"
	"github.com/young1lin/lorph/pkg/logger"
)

var bucketName = []byte("search_results")

// cacheEntry is the stored form of one query's results
type cacheEntry struct {
	StoredAt time.Time             `json:"stored_at"`
	Results  []models.SearchResult `json:"results"`
}

// SearchCache persists aggregated search results per query using BBolt.
// Entries older than the TTL are treated as missing.
type SearchCache struct {
	db  *bbolt.DB
	ttl time.Duration
	now func() time.Time
}

// NewSearchCache opens (or creates) the cache database at path
func NewSearchCache(path string, ttl time.Duration) (*SearchCache, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create cache directory %s", dir)
		}
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open search cache %s", path)
	}

	// Create bucket if not exists
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create search cache bucket")
	}

	logger.Info("search cache initialized",
		zap.String("path", path),
		zap.Duration("ttl", ttl),
	)
	return &SearchCache{db: db, ttl: ttl, now: time.Now}, nil
}

// Put saves results for query. Empty result sets are not stored.
func (s *SearchCache) Put(query string, results []models.SearchResult) error {
	if len(results) == 0 {
		return nil
	}

	data, err := json.Marshal(cacheEntry{StoredAt: s.now(), Results: results})
	if err != nil {
		return errors.Wrap(err, "marshal cache entry")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		return b.Put([]byte(query), data)
	})
}

// Get retrieves unexpired results for query.
// Returns the results and true if found, nil and false otherwise
func (s *SearchCache) Get(query string) ([]models.SearchResult, bool) {
	var entry cacheEntry

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		data := b.Get([]byte(query))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &entry)
	})

	if err != nil {
		logger.Warn("failed to read search cache", zap.String("query", query), zap.Error(err))
		return nil, false
	}
	if len(entry.Results) == 0 || s.expired(entry.StoredAt) {
		return nil, false
	}

	return entry.Results, true
}

func (s *SearchCache) expired(storedAt time.Time) bool {
	return s.ttl > 0 && s.now().Sub(storedAt) > s.ttl
}

// Delete removes the entry for query
func (s *SearchCache) Delete(query string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		return b.Delete([]byte(query))
	})
}

// Prune removes every expired entry and returns how many were removed
func (s *SearchCache) Prune() (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var entry cacheEntry
			if err := json.Unmarshal(v, &entry); err != nil || s.expired(entry.StoredAt) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}

// Close closes the database connection
func (s *SearchCache) Close() error {
	return s.db.Close()
}
