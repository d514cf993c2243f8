package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/google/uuid"

	"nic-search/internal/ranker"
)

// Cache provides search result caching.
type Cache interface {
	// GetResults retrieves cached results by key.
	// Returns nil if not found.
	GetResults(ctx context.Context, key string) ([]ranker.Result, error)

	// SetResults stores results with TTL.
	SetResults(ctx context.Context, key string, results []ranker.Result, ttl time.Duration) error

	// Invalidate removes every cached search.
	Invalidate(ctx context.Context) error

	// Close closes the cache connection.
	Close() error
}

// GenerateCacheKey derives a key from the catalog snapshot, query text and k.
// A new snapshot yields new keys, so stale entries are never served after a
// reindex even before Invalidate runs.
func GenerateCacheKey(snapshot uuid.UUID, query string, k int) string {
	h := sha256.New()
	h.Write(snapshot[:])
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(k)))
	h.Write([]byte{0})
	h.Write([]byte(query))
	return hex.EncodeToString(h.Sum(nil))
}
