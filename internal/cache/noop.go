package cache

import (
	"context"
	"time"

	"nic-search/internal/ranker"
)

// NoOpCache is a cache implementation that does nothing.
// Used when caching is disabled or Redis is unavailable: every lookup is a miss.
type NoOpCache struct{}

// NewNoOpCache creates a new no-op cache instance
func NewNoOpCache() *NoOpCache {
	return &NoOpCache{}
}

func (c *NoOpCache) GetResults(ctx context.Context, key string) ([]ranker.Result, error) {
	return nil, nil
}

func (c *NoOpCache) SetResults(ctx context.Context, key string, results []ranker.Result, ttl time.Duration) error {
	return nil
}

func (c *NoOpCache) Invalidate(ctx context.Context) error {
	return nil
}

func (c *NoOpCache) Close() error {
	return nil
}
