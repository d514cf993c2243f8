// Package catalog holds the vectorized classification catalog.
//
// A Store is an immutable snapshot built once from raw rows. The Catalog
// type publishes the current snapshot through an atomic pointer so queries
// never observe a half-built catalog while a reindex runs.
package catalog

import (
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"nic-search/internal/embeddings"
)

// Row is a raw catalog entry as supplied by a Source.
type Row struct {
	Code        string
	Description string
}

// Record is a vectorized catalog entry. Records are never mutated after build.
type Record struct {
	Code        string
	Description string
	Vector      embeddings.Vector
}

// Store is an immutable, ordered snapshot of catalog records sharing one
// vector dimension.
type Store struct {
	id      uuid.UUID
	builtAt time.Time
	records []Record
	dim     int
}

// Empty returns a valid store with no records.
func Empty() *Store {
	return &Store{id: uuid.Nil}
}

// NewStore validates records and wraps them in a snapshot. Every record must
// carry a non-empty vector of the same length.
func NewStore(records []Record) (*Store, error) {
	if len(records) == 0 {
		return Empty(), nil
	}
	dim := len(records[0].Vector)
	for i, r := range records {
		if len(r.Vector) == 0 {
			return nil, fmt.Errorf("catalog: record %d (%q) has no vector", i, r.Code)
		}
		if len(r.Vector) != dim {
			return nil, fmt.Errorf("catalog: record %d (%q) has dimension %d, want %d", i, r.Code, len(r.Vector), dim)
		}
	}
	return &Store{
		id:      uuid.New(),
		builtAt: time.Now().UTC(),
		records: slices.Clone(records),
		dim:     dim,
	}, nil
}

// ID identifies the snapshot; uuid.Nil for an empty store.
func (s *Store) ID() uuid.UUID { return s.id }

// BuiltAt reports when the snapshot was created.
func (s *Store) BuiltAt() time.Time { return s.builtAt }

// Len returns the number of records.
func (s *Store) Len() int { return len(s.records) }

// IsEmpty reports whether the store has no records.
func (s *Store) IsEmpty() bool { return len(s.records) == 0 }

// Dimension returns the shared vector length, or 0 when empty.
func (s *Store) Dimension() int { return s.dim }

// All returns every record in catalog order. The slice is shared between
// readers and must not be modified.
func (s *Store) All() []Record { return slices.Clip(s.records) }

// Catalog publishes the current Store snapshot.
type Catalog struct {
	current atomic.Pointer[Store]
}

// New returns a Catalog holding an empty store.
func New() *Catalog {
	c := &Catalog{}
	c.current.Store(Empty())
	return c
}

// Current returns the active snapshot. It never returns nil.
func (c *Catalog) Current() *Store {
	return c.current.Load()
}

// Replace atomically publishes s and returns the previous snapshot.
func (c *Catalog) Replace(s *Store) *Store {
	if s == nil {
		s = Empty()
	}
	return c.current.Swap(s)
}
