package embeddings

import (
	"context"
	"errors"
)

// ErrEmbeddingFailed wraps every failure to turn text into a vector.
var ErrEmbeddingFailed = errors.New("embedding failed")

// Vector is a simple float32 slice wrapper.
type Vector []float32

// Embedder turns text into a fixed-length vector. Implementations must be
// safe for concurrent use and return the same dimension on every call.
type Embedder interface {
	Embed(ctx context.Context, text string) (Vector, error)
}

// EmbedderFunc adapts a function to the Embedder interface.
type EmbedderFunc func(ctx context.Context, text string) (Vector, error)

func (f EmbedderFunc) Embed(ctx context.Context, text string) (Vector, error) {
	return f(ctx, text)
}
