package embeddings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestWithRetryRecoversTransientFailure(t *testing.T) {
	m := new(MockEmbedder)
	m.On("Embed", mock.Anything, "forestry").Return(nil, ErrEmbeddingFailed).Once()
	m.On("Embed", mock.Anything, "forestry").Return(Vector{1, 2}, nil).Once()

	e := WithRetry(m, 3, time.Millisecond)
	vec, err := e.Embed(context.Background(), "forestry")

	require.NoError(t, err)
	assert.Equal(t, Vector{1, 2}, vec)
	m.AssertExpectations(t)
}

func TestWithRetryGivesUp(t *testing.T) {
	m := new(MockEmbedder)
	m.On("Embed", mock.Anything, "forestry").Return(nil, ErrEmbeddingFailed).Times(2)

	_, err := WithRetry(m, 2, time.Millisecond).Embed(context.Background(), "forestry")

	assert.ErrorIs(t, err, ErrEmbeddingFailed)
	m.AssertExpectations(t)
}

func TestWithRetryDoesNotRetryCancellation(t *testing.T) {
	m := new(MockEmbedder)
	canceled := errors.Join(ErrEmbeddingFailed, context.Canceled)
	m.On("Embed", mock.Anything, "forestry").Return(nil, canceled).Once()

	_, err := WithRetry(m, 5, time.Millisecond).Embed(context.Background(), "forestry")

	assert.ErrorIs(t, err, context.Canceled)
	m.AssertNumberOfCalls(t, "Embed", 1)
}

func TestWithRetrySingleAttemptIsPassthrough(t *testing.T) {
	m := new(MockEmbedder)
	assert.Same(t, m, WithRetry(m, 1, time.Millisecond))
}

func TestWithRateLimit(t *testing.T) {
	m := new(MockEmbedder)
	m.On("Embed", mock.Anything, "mining").Return(Vector{1}, nil)

	e := WithRateLimit(m, rate.NewLimiter(rate.Inf, 1))
	vec, err := e.Embed(context.Background(), "mining")
	require.NoError(t, err)
	assert.Equal(t, Vector{1}, vec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	blocked := WithRateLimit(m, rate.NewLimiter(rate.Every(time.Hour), 0))
	_, err = blocked.Embed(ctx, "mining")
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
	m.AssertNumberOfCalls(t, "Embed", 1)
}
