package hnsw

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vecglobe/vecglobe/metric"
)

func randomUnitVectors(n, dimension int, seed int64) [][]float32 {
	rng := rand.New(rand.NewSource(seed))
	vecs := make([][]float32, n)
	for i := range vecs {
		v := make([]float32, dimension)
		for j := range v {
			v[j] = float32(rng.NormFloat64())
		}
		metric.NormalizeL2InPlace(v)
		vecs[i] = v
	}
	return vecs
}

func bruteTopK(vecs [][]float32, q []float32, k int) []uint32 {
	type pair struct {
		id   uint32
		dist float32
	}
	pairs := make([]pair, len(vecs))
	for i, v := range vecs {
		pairs[i] = pair{id: uint32(i + 1), dist: 1 - metric.Dot(q, v)}
	}
	for i := 0; i < len(pairs); i++ {
		for j := i + 1; j < len(pairs); j++ {
			if pairs[j].dist < pairs[i].dist {
				pairs[i], pairs[j] = pairs[j], pairs[i]
			}
		}
	}
	out := make([]uint32, 0, k)
	for i := 0; i < k && i < len(pairs); i++ {
		out = append(out, pairs[i].id)
	}
	return out
}

func TestInsertAssignsDenseIDs(t *testing.T) {
	h := New(4)
	for i, v := range randomUnitVectors(10, 4, 1) {
		id, err := h.Insert(v)
		require.NoError(t, err)
		assert.Equal(t, uint32(i+1), id)
	}
	assert.Equal(t, 10, h.Len())
}

func TestInsertDimensionMismatch(t *testing.T) {
	h := New(4)
	_, err := h.Insert([]float32{1, 0})

	var dm *ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 4, dm.Expected)
	assert.Equal(t, 2, dm.Actual)
}

func TestKNNSearchRecall(t *testing.T) {
	const (
		n         = 200
		dimension = 32
	)

	vecs := randomUnitVectors(n, dimension, 42)
	h := New(dimension, func(o *Options) {
		o.EFConstruction = 200
		o.EFSearch = 64
	})
	for _, v := range vecs {
		_, err := h.Insert(v)
		require.NoError(t, err)
	}

	hits := 0
	for _, q := range vecs {
		results, err := h.KNNSearch(q, 1, 0, nil)
		require.NoError(t, err)
		require.NotEmpty(t, results)
		if results[0].ID == bruteTopK(vecs, q, 1)[0] {
			hits++
		}
	}

	// Approximate agreement: a recall bound, not equality.
	assert.GreaterOrEqual(t, hits, n*95/100, "top-1 recall below 95%%")
}

func TestKNNSearchOrderingAndSentinel(t *testing.T) {
	vecs := randomUnitVectors(50, 8, 7)
	h := New(8)
	for _, v := range vecs {
		_, err := h.Insert(v)
		require.NoError(t, err)
	}

	results, err := h.KNNSearch(vecs[0], 10, 0, nil)
	require.NoError(t, err)
	require.LessOrEqual(t, len(results), 10)

	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i-1].Distance, results[i].Distance)
	}
	for _, r := range results {
		assert.NotZero(t, r.ID, "entry sentinel must never surface")
	}
}

func TestKNNSearchFilter(t *testing.T) {
	vecs := randomUnitVectors(30, 8, 9)
	h := New(8)
	for _, v := range vecs {
		_, err := h.Insert(v)
		require.NoError(t, err)
	}

	self := uint32(1)
	results, err := h.KNNSearch(vecs[0], 5, 0, func(id uint32) bool { return id != self })
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, self, r.ID)
	}
}

func TestSetEFSearch(t *testing.T) {
	h := New(4)
	h.SetEFSearch(128)
	assert.Equal(t, 128, h.EFSearch())

	h.SetEFSearch(0) // ignored
	assert.Equal(t, 128, h.EFSearch())
}

func TestGobRoundTrip(t *testing.T) {
	vecs := randomUnitVectors(100, 16, 3)
	h := New(16, func(o *Options) { o.EFSearch = 48 })
	for _, v := range vecs {
		_, err := h.Insert(v)
		require.NoError(t, err)
	}

	data, err := h.GobEncode()
	require.NoError(t, err)

	restored := &HNSW{}
	require.NoError(t, restored.GobDecode(data))

	assert.Equal(t, h.Dimension(), restored.Dimension())
	assert.Equal(t, h.Len(), restored.Len())
	assert.Equal(t, 48, restored.EFSearch())

	// Identical top-k results, same ids, same order.
	for i := 0; i < 10; i++ {
		q := vecs[i]
		want, err := h.KNNSearch(q, 5, 0, nil)
		require.NoError(t, err)
		got, err := restored.KNNSearch(q, 5, 0, nil)
		require.NoError(t, err)
		require.Equal(t, len(want), len(got))
		for j := range want {
			assert.Equal(t, want[j].ID, got[j].ID, fmt.Sprintf("query %d rank %d", i, j))
		}
	}
}

func TestGobDecodeCorrupt(t *testing.T) {
	restored := &HNSW{}
	assert.Error(t, restored.GobDecode([]byte("not a graph")))
}
