package search

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"nic-search/internal/cache"
	"nic-search/internal/catalog"
	"nic-search/internal/embeddings"
	"nic-search/internal/ranker"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newCatalog(t *testing.T, records ...catalog.Record) *catalog.Catalog {
	t.Helper()
	c := catalog.New()
	if len(records) > 0 {
		s, err := catalog.NewStore(records)
		require.NoError(t, err)
		c.Replace(s)
	}
	return c
}

func nicCatalog(t *testing.T) *catalog.Catalog {
	return newCatalog(t,
		catalog.Record{Code: "01", Description: "growing of cereals", Vector: embeddings.Vector{0.9, 0.1, 0}},
		catalog.Record{Code: "02", Description: "forestry", Vector: embeddings.Vector{0.1, 0.9, 0.2}},
		catalog.Record{Code: "03", Description: "fishing", Vector: embeddings.Vector{0, 0.2, 0.9}},
	)
}

func TestSearch(t *testing.T) {
	tests := []struct {
		name      string
		catalog   func(*testing.T) *catalog.Catalog
		query     string
		k         int
		setup     func(*embeddings.MockEmbedder)
		wantErr   error
		wantCodes []string
	}{
		{
			name:    "wheat farming ranks cereals first",
			catalog: nicCatalog,
			query:   "wheat farming",
			k:       1,
			setup: func(e *embeddings.MockEmbedder) {
				e.On("Embed", mock.Anything, "wheat farming").Return(embeddings.Vector{0.8, 0.2, 0.05}, nil).Once()
			},
			wantCodes: []string{"01"},
		},
		{
			name:    "k above catalog size returns everything",
			catalog: nicCatalog,
			query:   "wheat farming",
			k:       10,
			setup: func(e *embeddings.MockEmbedder) {
				e.On("Embed", mock.Anything, "wheat farming").Return(embeddings.Vector{0.8, 0.2, 0.05}, nil).Once()
			},
			wantCodes: []string{"01", "02", "03"},
		},
		{
			name:    "query is trimmed before embedding",
			catalog: nicCatalog,
			query:   "  boats and nets  ",
			setup: func(e *embeddings.MockEmbedder) {
				e.On("Embed", mock.Anything, "boats and nets").Return(embeddings.Vector{0, 0.1, 1}, nil).Once()
			},
			wantCodes: []string{"03", "02", "01"},
		},
		{
			name:    "short query is invalid",
			catalog: nicCatalog,
			query:   "ab",
			wantErr: ErrInvalidQuery,
		},
		{
			name:    "whitespace query is invalid",
			catalog: nicCatalog,
			query:   "      ",
			wantErr: ErrInvalidQuery,
		},
		{
			name:    "k above max is invalid",
			catalog: nicCatalog,
			query:   "wheat farming",
			k:       51,
			wantErr: ErrInvalidQuery,
		},
		{
			name:    "negative k is invalid",
			catalog: nicCatalog,
			query:   "wheat farming",
			k:       -1,
			wantErr: ErrInvalidQuery,
		},
		{
			name:    "empty catalog is no data, not no matches",
			catalog: func(t *testing.T) *catalog.Catalog { return newCatalog(t) },
			query:   "wheat farming",
			wantErr: ranker.ErrNoDataAvailable,
		},
		{
			name:    "embedder failure surfaces",
			catalog: nicCatalog,
			query:   "wheat farming",
			setup: func(e *embeddings.MockEmbedder) {
				e.On("Embed", mock.Anything, "wheat farming").Return(nil, errors.New("connection refused")).Once()
			},
			wantErr: embeddings.ErrEmbeddingFailed,
		},
		{
			name:    "empty query vector is an embedding failure",
			catalog: nicCatalog,
			query:   "wheat farming",
			setup: func(e *embeddings.MockEmbedder) {
				e.On("Embed", mock.Anything, "wheat farming").Return(embeddings.Vector{}, nil).Once()
			},
			wantErr: embeddings.ErrEmbeddingFailed,
		},
		{
			name:    "dimension mismatch surfaces",
			catalog: nicCatalog,
			query:   "wheat farming",
			setup: func(e *embeddings.MockEmbedder) {
				e.On("Embed", mock.Anything, "wheat farming").Return(embeddings.Vector{1, 0}, nil).Once()
			},
			wantErr: ranker.ErrDimensionMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := new(embeddings.MockEmbedder)
			if tt.setup != nil {
				tt.setup(e)
			}
			svc, err := NewService(tt.catalog(t), e, WithLogger(discard))
			require.NoError(t, err)

			got, err := svc.Search(context.Background(), tt.query, tt.k)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
			} else {
				require.NoError(t, err)
				codes := make([]string, len(got))
				for i, r := range got {
					codes[i] = r.Code
				}
				assert.Equal(t, tt.wantCodes, codes)
			}

			e.AssertExpectations(t)
			if tt.setup == nil {
				e.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestSearchInvalidQueryNeverEmbeds(t *testing.T) {
	e := new(embeddings.MockEmbedder)
	svc, err := NewService(nicCatalog(t), e, WithLogger(discard), WithLimits(Limits{MinQueryLength: 5}))
	require.NoError(t, err)

	for _, q := range []string{"", "a", "abcd", " ab  "} {
		_, err := svc.Search(context.Background(), q, 3)
		assert.ErrorIs(t, err, ErrInvalidQuery, "query %q", q)
	}
	e.AssertNumberOfCalls(t, "Embed", 0)
}

func TestSearchIsReproducible(t *testing.T) {
	e := new(embeddings.MockEmbedder)
	e.On("Embed", mock.Anything, "timber").Return(embeddings.Vector{0.5, 0.5, 0.5}, nil)
	svc, err := NewService(nicCatalog(t), e, WithLogger(discard))
	require.NoError(t, err)

	first, err := svc.Search(context.Background(), "timber", 3)
	require.NoError(t, err)
	second, err := svc.Search(context.Background(), "timber", 3)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSearchUsesCache(t *testing.T) {
	cat := nicCatalog(t)
	snap := cat.Current().ID()
	cached := []ranker.Result{{Code: "02", Description: "forestry", Score: 0.7}}

	t.Run("hit skips embedding", func(t *testing.T) {
		e := new(embeddings.MockEmbedder)
		c := new(cache.MockCache)
		c.On("GetResults", mock.Anything, cache.GenerateCacheKey(snap, "timber", 10)).Return(cached, nil).Once()

		svc, err := NewService(cat, e, WithLogger(discard), WithCache(c, time.Minute))
		require.NoError(t, err)

		got, err := svc.Search(context.Background(), "timber", 0)
		require.NoError(t, err)
		assert.Equal(t, cached, got)
		e.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
		c.AssertExpectations(t)
	})

	t.Run("miss stores results", func(t *testing.T) {
		e := new(embeddings.MockEmbedder)
		e.On("Embed", mock.Anything, "timber").Return(embeddings.Vector{0.1, 0.9, 0.2}, nil).Once()
		c := new(cache.MockCache)
		key := cache.GenerateCacheKey(snap, "timber", 2)
		c.On("GetResults", mock.Anything, key).Return(nil, nil).Once()
		c.On("SetResults", mock.Anything, key, mock.MatchedBy(func(r []ranker.Result) bool {
			return len(r) == 2 && r[0].Code == "02"
		}), time.Minute).Return(nil).Once()

		svc, err := NewService(cat, e, WithLogger(discard), WithCache(c, time.Minute))
		require.NoError(t, err)

		got, err := svc.Search(context.Background(), "timber", 2)
		require.NoError(t, err)
		assert.Len(t, got, 2)
		e.AssertExpectations(t)
		c.AssertExpectations(t)
	})

	t.Run("cache errors do not fail the query", func(t *testing.T) {
		e := new(embeddings.MockEmbedder)
		e.On("Embed", mock.Anything, "timber").Return(embeddings.Vector{0.1, 0.9, 0.2}, nil).Once()
		c := new(cache.MockCache)
		c.On("GetResults", mock.Anything, mock.Anything).Return(nil, errors.New("redis down")).Once()
		c.On("SetResults", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("redis down")).Once()

		svc, err := NewService(cat, e, WithLogger(discard), WithCache(c, time.Minute))
		require.NoError(t, err)

		got, err := svc.Search(context.Background(), "timber", 1)
		require.NoError(t, err)
		assert.Equal(t, "02", got[0].Code)
	})
}

func TestSearchConcurrentWithReindex(t *testing.T) {
	cat := nicCatalog(t)
	e := embeddings.EmbedderFunc(func(context.Context, string) (embeddings.Vector, error) {
		return embeddings.Vector{1, 0, 0}, nil
	})
	svc, err := NewService(cat, e, WithLogger(discard))
	require.NoError(t, err)

	replacement, err := catalog.NewStore([]catalog.Record{
		{Code: "99", Description: "other", Vector: embeddings.Vector{1, 0, 0}},
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				got, err := svc.Search(context.Background(), "anything", 10)
				if assert.NoError(t, err) {
					// Either the whole old snapshot or the whole new one.
					assert.Contains(t, []int{1, 3}, len(got))
				}
			}
		}()
	}
	cat.Replace(replacement)
	wg.Wait()
}

func TestStatusAndCatalogSwapped(t *testing.T) {
	cat := newCatalog(t)
	c := new(cache.MockCache)
	c.On("Invalidate", mock.Anything).Return(nil).Once()
	svc, err := NewService(cat, new(embeddings.MockEmbedder), WithLogger(discard), WithCache(c, time.Minute))
	require.NoError(t, err)

	assert.False(t, svc.Status().Ready)

	s, err := catalog.NewStore([]catalog.Record{{Code: "01", Description: "cereals", Vector: embeddings.Vector{1, 2}}})
	require.NoError(t, err)
	old := cat.Replace(s)
	svc.CatalogSwapped(old, s)

	st := svc.Status()
	assert.True(t, st.Ready)
	assert.Equal(t, 1, st.Records)
	assert.Equal(t, 2, st.Dimension)
	assert.Equal(t, s.ID(), st.Snapshot)
	c.AssertExpectations(t)
}

func TestNewServiceValidation(t *testing.T) {
	_, err := NewService(nil, new(embeddings.MockEmbedder))
	assert.ErrorIs(t, err, ErrCatalogRequired)
	_, err = NewService(catalog.New(), nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)
}
