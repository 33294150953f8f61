// Package index provides the search indexes over the sanitized vector store:
// an approximate graph index (ANN) and the brute-force flat scan it degrades
// to. Both operate on L2-normalized vectors under cosine distance and use the
// same dense ids (1..N) so the facade can swap one for the other
// transparently.
package index

import (
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
)

// ErrInvalidK is returned when k is not positive.
var ErrInvalidK = errors.New("k must be positive")

// ErrDimensionMismatch indicates a query/vector dimensionality mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// SearchResult is a single query match.
type SearchResult struct {
	// ID is the dense internal identifier (1..N).
	ID uint32

	// Score is the cosine similarity to the query, higher is closer.
	Score float32
}

// SearchOptions controls a single query.
type SearchOptions struct {
	// EFSearch overrides the index's dynamic candidate list size for this
	// query. Zero uses the index default. The flat scan ignores it.
	EFSearch int

	// Exclude drops the contained ids from the result set.
	Exclude *roaring.Bitmap
}

// Index answers k-nearest-neighbor queries by cosine similarity.
type Index interface {
	// Insert adds an L2-normalized vector and returns its dense id.
	Insert(v []float32) (uint32, error)

	// KNNSearch returns up to k matches sorted by descending score.
	KNNSearch(q []float32, k int, opts *SearchOptions) ([]SearchResult, error)

	// Dimension returns the vector dimension of the index.
	Dimension() int

	// Len returns the number of indexed vectors.
	Len() int
}

// excludeFilter converts an exclusion bitmap into the filter shape the graph
// index consumes. A nil bitmap means no filtering.
func excludeFilter(exclude *roaring.Bitmap) func(id uint32) bool {
	if exclude == nil || exclude.IsEmpty() {
		return nil
	}
	return func(id uint32) bool {
		return !exclude.Contains(id)
	}
}
