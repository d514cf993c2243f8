package search

import "errors"

var (
	// ErrInvalidQuery is returned for query text or k outside accepted bounds.
	// It is raised before any embedding call.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrCatalogRequired is returned when no catalog is provided.
	ErrCatalogRequired = errors.New("catalog required")

	// ErrEmbedderRequired is returned when no embedder is provided.
	ErrEmbedderRequired = errors.New("embedder required")
)
