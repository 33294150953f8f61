package index

import (
	"github.com/vecglobe/vecglobe/hnsw"
)

// ANN is the approximate graph index. One stable constructor, one calling
// convention; anything that fails here is absorbed by the caller's fallback
// to Flat.
type ANN struct {
	graph *hnsw.HNSW
}

var _ Index = (*ANN)(nil)

// ANNOptions configures graph construction quality.
type ANNOptions struct {
	// M is the number of graph connections per node.
	M int

	// EFConstruction is the construction-time candidate list size.
	EFConstruction int

	// EFSearch is the default query-time candidate list size.
	EFSearch int
}

// DefaultANNOptions are the options used by NewANN when none are given.
var DefaultANNOptions = ANNOptions{
	M:              hnsw.DefaultOptions.M,
	EFConstruction: hnsw.DefaultOptions.EFConstruction,
	EFSearch:       hnsw.DefaultOptions.EFSearch,
}

// NewANN creates an empty approximate index for vectors of the given
// dimension.
func NewANN(dimension int, optFns ...func(o *ANNOptions)) *ANN {
	opts := DefaultANNOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	return &ANN{
		graph: hnsw.New(dimension, func(o *hnsw.Options) {
			o.M = opts.M
			o.EFConstruction = opts.EFConstruction
			o.EFSearch = opts.EFSearch
		}),
	}
}

// Dimension returns the vector dimension of the index.
func (a *ANN) Dimension() int { return a.graph.Dimension() }

// Len returns the number of indexed vectors.
func (a *ANN) Len() int { return a.graph.Len() }

// EFSearch returns the current default query-time candidate list size.
func (a *ANN) EFSearch() int { return a.graph.EFSearch() }

// SetEFSearch adjusts the query-time candidate list size on the live graph.
func (a *ANN) SetEFSearch(ef int) { a.graph.SetEFSearch(ef) }

// Insert adds an L2-normalized vector and returns its dense id.
func (a *ANN) Insert(v []float32) (uint32, error) {
	return a.graph.Insert(v)
}

// KNNSearch returns up to k approximate matches sorted by descending score.
func (a *ANN) KNNSearch(q []float32, k int, opts *SearchOptions) ([]SearchResult, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}

	efSearch := 0
	var exclude func(id uint32) bool
	if opts != nil {
		efSearch = opts.EFSearch
		exclude = excludeFilter(opts.Exclude)
	}

	matches, err := a.graph.KNNSearch(q, k, efSearch, exclude)
	if err != nil {
		if dm, ok := err.(*hnsw.ErrDimensionMismatch); ok {
			return nil, &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual}
		}
		return nil, err
	}

	results := make([]SearchResult, len(matches))
	for i, m := range matches {
		results[i] = SearchResult{ID: m.ID, Score: 1 - m.Distance}
	}
	return results, nil
}
