package cluster

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vecglobe/vecglobe/metric"
)

// makeBlobs returns n vectors of the given dimension drawn from `blobs`
// well-separated directions, row-major.
func makeBlobs(t *testing.T, n, dimension, blobs int, seed int64) []float32 {
	t.Helper()

	rng := rand.New(rand.NewSource(seed))
	centers := make([][]float32, blobs)
	for b := range centers {
		centers[b] = make([]float32, dimension)
		centers[b][b%dimension] = 10
		centers[b][(b+1)%dimension] = float32(b)
	}

	buf := make([]float32, 0, n*dimension)
	for i := 0; i < n; i++ {
		center := centers[i%blobs]
		for d := 0; d < dimension; d++ {
			buf = append(buf, center[d]+float32(rng.NormFloat64())*0.1)
		}
	}
	return buf
}

func TestFitSeparatedBlobs(t *testing.T) {
	ctx := context.Background()
	buf := makeBlobs(t, 300, 8, 3, 42)

	model, err := Fit(ctx, buf, 8, 3)
	require.NoError(t, err)
	require.Equal(t, 3, model.K())
	require.Len(t, model.Labels, 300)

	// Vectors drawn from the same blob share a label.
	for i := 3; i < 300; i++ {
		assert.Equal(t, model.Labels[i%3], model.Labels[i], "vector %d", i)
	}
}

func TestFitLabelValidity(t *testing.T) {
	ctx := context.Background()
	buf := makeBlobs(t, 100, 4, 5, 7)

	for _, k := range []int{1, 2, 5, 17, 100} {
		model, err := Fit(ctx, buf, 4, k)
		require.NoError(t, err)
		require.Equal(t, k, model.K())

		seen := make(map[int]int)
		for _, label := range model.Labels {
			assert.GreaterOrEqual(t, label, 0)
			assert.Less(t, label, k)
			seen[label]++
		}
		_ = seen
	}
}

func TestFitClampsK(t *testing.T) {
	ctx := context.Background()
	buf := makeBlobs(t, 10, 4, 2, 1)

	model, err := Fit(ctx, buf, 4, 50)
	require.NoError(t, err)
	assert.Equal(t, 10, model.K())

	model, err = Fit(ctx, buf, 4, -3)
	require.NoError(t, err)
	assert.Equal(t, 1, model.K())
}

func TestFitSingleCluster(t *testing.T) {
	ctx := context.Background()
	buf := []float32{1, 0, 0, 1, 1, 1}

	model, err := Fit(ctx, buf, 2, 1)
	require.NoError(t, err)
	require.Equal(t, 1, model.K())
	assert.Equal(t, []int{0, 0, 0}, model.Labels)
	assert.InDelta(t, 1.0, float64(metric.Magnitude(model.Centroids[0])), 1e-6)
}

func TestFitCentroidsNormalized(t *testing.T) {
	ctx := context.Background()
	buf := makeBlobs(t, 120, 6, 4, 9)

	model, err := Fit(ctx, buf, 6, 4)
	require.NoError(t, err)
	for j, c := range model.Centroids {
		assert.InDelta(t, 1.0, float64(metric.Magnitude(c)), 1e-5, "centroid %d", j)
	}
}

func TestFitInertiaImproves(t *testing.T) {
	ctx := context.Background()
	buf := makeBlobs(t, 200, 8, 4, 3)

	one, err := Fit(ctx, buf, 8, 4, func(o *Options) { o.MaxIterations = 1 })
	require.NoError(t, err)
	converged, err := Fit(ctx, buf, 8, 4)
	require.NoError(t, err)

	assert.LessOrEqual(t, converged.Inertia, one.Inertia+1e-9)
}

func TestFitCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	buf := makeBlobs(t, 500, 8, 4, 5)
	_, err := Fit(ctx, buf, 8, 4)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFitEmptyInput(t *testing.T) {
	model, err := Fit(context.Background(), nil, 4, 3)
	require.NoError(t, err)
	assert.Zero(t, model.K())
	assert.Empty(t, model.Labels)
}
