// Package ranker scores catalog records against a query vector.
//
// BruteForce scans every record per query, O(N·D) time and O(N) extra
// space. That is fine for a national code list of a few thousand entries;
// larger catalogs should put an approximate index behind the same Rank
// contract.
package ranker

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"nic-search/internal/catalog"
	"nic-search/internal/embeddings"
)

var (
	// ErrNoDataAvailable means there is no catalog to search, as opposed to
	// a search that matched nothing.
	ErrNoDataAvailable = errors.New("no catalog data available")

	// ErrDimensionMismatch means the query vector length differs from the
	// catalog's vector length.
	ErrDimensionMismatch = errors.New("query vector dimension mismatch")

	// ErrInvalidK means k was not positive.
	ErrInvalidK = errors.New("k must be positive")
)

// Result is one scored catalog entry.
type Result struct {
	Code        string  `json:"code"`
	Description string  `json:"description"`
	Score       float32 `json:"score"`
}

// Similarity scores two vectors of equal length.
type Similarity func(a, b embeddings.Vector) float32

// BruteForce ranks by exhaustive scan. The zero value uses cosine similarity.
type BruteForce struct {
	Similarity Similarity
}

// Rank returns the k records most similar to query, highest score first.
// Equal scores keep catalog order, so repeated calls against the same
// records return identical output. When k exceeds the number of records
// all records are returned.
func (b BruteForce) Rank(query embeddings.Vector, records []catalog.Record, k int) ([]Result, error) {
	if len(records) == 0 {
		return nil, ErrNoDataAvailable
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}
	sim := b.Similarity
	if sim == nil {
		sim = embeddings.CosineSimilarity
	}

	results := make([]Result, len(records))
	for i, r := range records {
		if len(r.Vector) != len(query) {
			return nil, fmt.Errorf("%w: query has %d, record %q has %d", ErrDimensionMismatch, len(query), r.Code, len(r.Vector))
		}
		results[i] = Result{Code: r.Code, Description: r.Description, Score: sim(query, r.Vector)}
	}

	slices.SortStableFunc(results, func(x, y Result) int {
		return cmp.Compare(y.Score, x.Score)
	})

	if k > len(results) {
		k = len(results)
	}
	return slices.Clip(results[:k]), nil
}
