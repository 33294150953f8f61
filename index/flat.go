package index

import (
	"container/heap"

	"github.com/vecglobe/vecglobe/metric"
	"github.com/vecglobe/vecglobe/queue"
)

// Flat is the brute-force cosine scan. It is always correct, carries no
// learned state and needs no invalidation, which is exactly what the
// degradation path requires. Fine up to a few tens of thousands of vectors.
type Flat struct {
	dimension int
	vectors   [][]float32
}

var _ Index = (*Flat)(nil)

// NewFlat creates an empty flat index for vectors of the given dimension.
func NewFlat(dimension int) *Flat {
	return &Flat{dimension: dimension}
}

// Dimension returns the vector dimension of the index.
func (f *Flat) Dimension() int { return f.dimension }

// Len returns the number of indexed vectors.
func (f *Flat) Len() int { return len(f.vectors) }

// Insert adds an L2-normalized vector. IDs are dense and start at 1,
// matching the graph index numbering.
func (f *Flat) Insert(v []float32) (uint32, error) {
	if len(v) != f.dimension {
		return 0, &ErrDimensionMismatch{Expected: f.dimension, Actual: len(v)}
	}
	vec := make([]float32, len(v))
	copy(vec, v)
	f.vectors = append(f.vectors, vec)
	return uint32(len(f.vectors)), nil
}

// KNNSearch scans every vector and keeps the k best by cosine similarity.
func (f *Flat) KNNSearch(q []float32, k int, opts *SearchOptions) ([]SearchResult, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if len(q) != f.dimension {
		return nil, &ErrDimensionMismatch{Expected: f.dimension, Actual: len(q)}
	}

	var exclude func(id uint32) bool
	if opts != nil {
		exclude = excludeFilter(opts.Exclude)
	}

	// Max-heap on distance evicts the worst of the k kept candidates.
	top := queue.NewMax()
	for i, v := range f.vectors {
		id := uint32(i + 1)
		if exclude != nil && !exclude(id) {
			continue
		}

		dist := 1 - metric.Dot(q, v)
		if top.Len() < k {
			heap.Push(top, &queue.Item{ID: id, Distance: dist})
			continue
		}
		if dist < top.Top().Distance {
			heap.Pop(top)
			heap.Push(top, &queue.Item{ID: id, Distance: dist})
		}
	}

	results := make([]SearchResult, top.Len())
	for i := top.Len() - 1; i >= 0; i-- {
		item, _ := heap.Pop(top).(*queue.Item)
		results[i] = SearchResult{ID: item.ID, Score: 1 - item.Distance}
	}
	return results, nil
}
