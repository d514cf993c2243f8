package embeddings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"nic-search/internal/retry"
)

// WithRetry retries failed Embed calls with exponential backoff.
// Context errors are returned immediately.
func WithRetry(e Embedder, attempts int, base time.Duration) Embedder {
	if attempts <= 1 {
		return e
	}
	return EmbedderFunc(func(ctx context.Context, text string) (Vector, error) {
		var vec Vector
		err := retry.Do(ctx, attempts, base, func(ctx context.Context) error {
			v, err := e.Embed(ctx, text)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return &retry.Permanent{Err: err}
				}
				return err
			}
			vec = v
			return nil
		})
		if err != nil {
			return nil, err
		}
		return vec, nil
	})
}

// WithRateLimit waits on limiter before every Embed call.
func WithRateLimit(e Embedder, limiter *rate.Limiter) Embedder {
	if limiter == nil {
		return e
	}
	return EmbedderFunc(func(ctx context.Context, text string) (Vector, error) {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %w", ErrEmbeddingFailed, err)
		}
		return e.Embed(ctx, text)
	})
}
