// Package search answers text queries against the current catalog snapshot.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"nic-search/internal/cache"
	"nic-search/internal/catalog"
	"nic-search/internal/embeddings"
	"nic-search/internal/ranker"
)

// Ranker orders catalog records by similarity to a query vector.
// ranker.BruteForce is the default; an approximate index can replace it.
type Ranker interface {
	Rank(query embeddings.Vector, records []catalog.Record, k int) ([]ranker.Result, error)
}

// Limits bounds accepted queries.
type Limits struct {
	DefaultK       int
	MaxK           int
	MinQueryLength int
	MaxQueryLength int
}

// DefaultLimits mirrors the service defaults.
func DefaultLimits() Limits {
	return Limits{DefaultK: 10, MaxK: 50, MinQueryLength: 3, MaxQueryLength: 500}
}

// Service embeds queries and ranks them against the published catalog.
type Service struct {
	catalog  *catalog.Catalog
	embedder embeddings.Embedder
	ranker   Ranker
	cache    cache.Cache
	cacheTTL time.Duration
	limits   Limits
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithRanker replaces the default brute-force ranker.
func WithRanker(r Ranker) Option {
	return func(s *Service) {
		if r != nil {
			s.ranker = r
		}
	}
}

// WithCache enables result caching for ttl.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
			s.cacheTTL = ttl
		}
	}
}

// WithLimits overrides query bounds; zero fields keep their defaults.
func WithLimits(l Limits) Option {
	return func(s *Service) {
		if l.DefaultK > 0 {
			s.limits.DefaultK = l.DefaultK
		}
		if l.MaxK > 0 {
			s.limits.MaxK = l.MaxK
		}
		if l.MinQueryLength > 0 {
			s.limits.MinQueryLength = l.MinQueryLength
		}
		if l.MaxQueryLength > 0 {
			s.limits.MaxQueryLength = l.MaxQueryLength
		}
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a search service.
func NewService(cat *catalog.Catalog, embedder embeddings.Embedder, opts ...Option) (*Service, error) {
	if cat == nil {
		return nil, ErrCatalogRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	s := &Service{
		catalog:  cat,
		embedder: embedder,
		ranker:   ranker.BruteForce{},
		cache:    cache.NewNoOpCache(),
		limits:   DefaultLimits(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.limits.DefaultK > s.limits.MaxK {
		s.limits.DefaultK = s.limits.MaxK
	}
	s.logger = s.logger.With("component", "search")
	return s, nil
}

// Search returns the k catalog entries closest to query. A k of 0 selects
// the default. Results are reproducible for a given snapshot and query.
func (s *Service) Search(ctx context.Context, query string, k int) ([]ranker.Result, error) {
	q := strings.TrimSpace(query)
	if n := utf8.RuneCountInString(q); n < s.limits.MinQueryLength || n > s.limits.MaxQueryLength {
		return nil, fmt.Errorf("%w: query must be %d to %d characters", ErrInvalidQuery, s.limits.MinQueryLength, s.limits.MaxQueryLength)
	}
	if k == 0 {
		k = s.limits.DefaultK
	}
	if k < 1 || k > s.limits.MaxK {
		return nil, fmt.Errorf("%w: k must be between 1 and %d", ErrInvalidQuery, s.limits.MaxK)
	}

	snap := s.catalog.Current()
	if snap.IsEmpty() {
		return nil, ranker.ErrNoDataAvailable
	}

	key := cache.GenerateCacheKey(snap.ID(), q, k)
	if cached, err := s.cache.GetResults(ctx, key); err != nil {
		s.logger.Warn("cache lookup failed", "err", err)
	} else if cached != nil {
		s.logger.Debug("cache hit", "snapshot", snap.ID(), "k", k)
		return cached, nil
	}

	vec, err := s.embedder.Embed(ctx, q)
	if err != nil {
		if !errors.Is(err, embeddings.ErrEmbeddingFailed) {
			err = fmt.Errorf("%w: %w", embeddings.ErrEmbeddingFailed, err)
		}
		return nil, err
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", embeddings.ErrEmbeddingFailed)
	}

	results, err := s.ranker.Rank(vec, snap.All(), k)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetResults(ctx, key, results, s.cacheTTL); err != nil {
		s.logger.Warn("failed to cache results", "err", err)
	}
	return results, nil
}

// Status describes the published catalog.
type Status struct {
	Ready     bool      `json:"ready"`
	Records   int       `json:"records"`
	Dimension int       `json:"dimension"`
	Snapshot  uuid.UUID `json:"snapshot"`
	BuiltAt   time.Time `json:"built_at"`
}

// Status reports whether a non-empty catalog is being served.
func (s *Service) Status() Status {
	snap := s.catalog.Current()
	return Status{
		Ready:     !snap.IsEmpty(),
		Records:   snap.Len(),
		Dimension: snap.Dimension(),
		Snapshot:  snap.ID(),
		BuiltAt:   snap.BuiltAt(),
	}
}

// CatalogSwapped drops cached results for earlier snapshots.
// It matches catalog.WithOnSwap.
func (s *Service) CatalogSwapped(old, cur *catalog.Store) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("cache invalidation failed", "err", err, "snapshot", cur.ID())
	}
}
