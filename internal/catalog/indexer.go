package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"nic-search/internal/embeddings"
)

var (
	// ErrReindexInProgress is returned when a rebuild is already running.
	ErrReindexInProgress = errors.New("reindex already in progress")

	// ErrEmptyBuild is returned when a rebuild produced no records while a
	// non-empty snapshot is being served; the old snapshot is kept.
	ErrEmptyBuild = errors.New("rebuild produced an empty catalog")
)

// Indexer loads rows from a Source, builds a Store and publishes it.
type Indexer struct {
	source   Source
	embedder embeddings.Embedder
	catalog  *Catalog
	opts     BuildOptions
	log      *slog.Logger
	onSwap   func(old, cur *Store)

	mu      sync.Mutex
	running atomic.Bool
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithOnSwap registers a callback run after a new snapshot is published.
func WithOnSwap(fn func(old, cur *Store)) IndexerOption {
	return func(ix *Indexer) { ix.onSwap = fn }
}

// NewIndexer wires a source and embedder to a catalog.
func NewIndexer(source Source, embedder embeddings.Embedder, catalog *Catalog, opts BuildOptions, options ...IndexerOption) (*Indexer, error) {
	if source == nil {
		return nil, fmt.Errorf("catalog source required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("catalog required")
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	ix := &Indexer{
		source:   source,
		embedder: embedder,
		catalog:  catalog,
		log:      log.With("component", "indexer"),
	}
	ix.opts = opts
	ix.opts.Log = ix.log
	for _, o := range options {
		o(ix)
	}
	return ix, nil
}

// Running reports whether a rebuild is in flight.
func (ix *Indexer) Running() bool {
	return ix.running.Load()
}

// Reindex rebuilds the catalog and swaps it in. On any failure the current
// snapshot stays published. Only one rebuild runs at a time.
func (ix *Indexer) Reindex(ctx context.Context) (BuildStats, error) {
	if !ix.mu.TryLock() {
		return BuildStats{}, ErrReindexInProgress
	}
	defer ix.mu.Unlock()
	ix.running.Store(true)
	defer ix.running.Store(false)

	start := time.Now()
	rows, err := ix.source.Rows(ctx)
	if err != nil {
		ix.log.Error("failed to load catalog rows", "err", err)
		return BuildStats{}, err
	}
	ix.log.Info("catalog rows loaded", "rows", len(rows))

	store, stats, err := Build(ctx, rows, ix.embedder, ix.opts)
	if err != nil {
		return stats, err
	}
	if store.IsEmpty() && !ix.catalog.Current().IsEmpty() {
		ix.log.Error("rebuild produced no records; keeping current catalog", "rows", stats.Rows, "failed", stats.Failed)
		return stats, ErrEmptyBuild
	}

	old := ix.catalog.Replace(store)
	ix.log.Info("catalog published",
		"snapshot", store.ID(),
		"records", store.Len(),
		"previous_records", old.Len(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	if ix.onSwap != nil {
		ix.onSwap(old, store)
	}
	return stats, nil
}
