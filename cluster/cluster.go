// Package cluster groups vectors for exploratory visualization using
// spherical (cosine) k-means with k-means++ seeding.
package cluster

import (
	"context"
	"math/rand"

	"github.com/vecglobe/vecglobe/metric"
)

// Options configures Fit.
type Options struct {
	// MaxIterations caps Lloyd's algorithm. Default: 50.
	MaxIterations int

	// Tolerance stops iteration once the maximum per-centroid shift
	// (cosine distance between old and new centroid) falls below it.
	Tolerance float64

	// Seed seeds centroid initialization and empty-cluster reseeding.
	Seed int64
}

// DefaultOptions are the options used by Fit when none are given.
var DefaultOptions = Options{
	MaxIterations: 50,
	Tolerance:     1e-4,
	Seed:          1,
}

// Model is a fitted clustering.
type Model struct {
	// Centroids are L2-normalized cluster centers.
	Centroids [][]float32 `json:"centroids"`

	// Labels assigns every input index exactly one cluster in [0,k).
	Labels []int `json:"labels"`

	// Inertia is the sum of assigned cosine distances, for quality reporting.
	Inertia float64 `json:"inertia"`
}

// K returns the number of clusters in the model.
func (m *Model) K() int { return len(m.Centroids) }

// Fit partitions n vectors of the given dimension, stored row-major in buf,
// into k clusters by cosine distance. Vectors are L2-normalized internally;
// buf is not mutated. k is clamped to [1, n].
//
// The context is checked once per Lloyd iteration so a long fit can be
// cancelled.
func Fit(ctx context.Context, buf []float32, dimension, k int, optFns ...func(o *Options)) (*Model, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultOptions.MaxIterations
	}

	n := len(buf) / dimension
	if n == 0 {
		return &Model{}, nil
	}
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}

	// Normalized working copy. Zero-norm vectors stay zero and land in
	// whatever cluster is closest by dot product (all are equal); that is
	// fine for visualization.
	vecs := make([][]float32, n)
	for i := 0; i < n; i++ {
		vecs[i] = metric.NormalizeL2Copy(buf[i*dimension : (i+1)*dimension])
	}

	if k == 1 {
		return fitSingle(vecs, dimension, n), nil
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	centroids := seedPlusPlus(vecs, k, rng)

	labels := make([]int, n)
	counts := make([]int, k)
	sums := make([][]float32, k)
	for j := range sums {
		sums[j] = make([]float32, dimension)
	}

	var inertia float64
	for iter := 0; iter < opts.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Assignment step.
		inertia = 0
		for i, vec := range vecs {
			best, bestDist := nearestCentroid(vec, centroids)
			labels[i] = best
			inertia += float64(bestDist)
		}

		// Update step.
		for j := range sums {
			counts[j] = 0
			clear(sums[j])
		}
		for i, vec := range vecs {
			j := labels[i]
			counts[j]++
			for d, v := range vec {
				sums[j][d] += v
			}
		}

		maxShift := 0.0
		for j := 0; j < k; j++ {
			next := make([]float32, dimension)
			if counts[j] > 0 {
				copy(next, sums[j])
				metric.NormalizeL2InPlace(next)
			} else {
				// Reseed empty clusters from a random vector so no
				// cluster is ever left centroid-less.
				copy(next, vecs[rng.Intn(n)])
			}

			shift := float64(1 - metric.Dot(centroids[j], next))
			if shift > maxShift {
				maxShift = shift
			}
			centroids[j] = next
		}

		if maxShift < opts.Tolerance {
			break
		}
	}

	// Final assignment against the last centroid update.
	inertia = 0
	for i, vec := range vecs {
		best, bestDist := nearestCentroid(vec, centroids)
		labels[i] = best
		inertia += float64(bestDist)
	}

	return &Model{Centroids: centroids, Labels: labels, Inertia: inertia}, nil
}

// fitSingle short-circuits k==1: the only centroid is the normalized mean.
func fitSingle(vecs [][]float32, dimension, n int) *Model {
	centroid := make([]float32, dimension)
	for _, vec := range vecs {
		for d, v := range vec {
			centroid[d] += v
		}
	}
	metric.NormalizeL2InPlace(centroid)

	labels := make([]int, n)
	var inertia float64
	for _, vec := range vecs {
		inertia += float64(1 - metric.Dot(vec, centroid))
	}

	return &Model{Centroids: [][]float32{centroid}, Labels: labels, Inertia: inertia}
}

// seedPlusPlus picks k initial centroids: the first uniformly at random, each
// subsequent one with probability proportional to its squared cosine distance
// to the nearest centroid chosen so far.
func seedPlusPlus(vecs [][]float32, k int, rng *rand.Rand) [][]float32 {
	n := len(vecs)
	centroids := make([][]float32, 0, k)

	first := make([]float32, len(vecs[0]))
	copy(first, vecs[rng.Intn(n)])
	centroids = append(centroids, first)

	nearest := make([]float64, n)
	for len(centroids) < k {
		var total float64
		last := centroids[len(centroids)-1]
		for i, vec := range vecs {
			d := float64(1 - metric.Dot(vec, last))
			if len(centroids) == 1 || d < nearest[i] {
				nearest[i] = d
			}
			total += nearest[i] * nearest[i]
		}

		idx := 0
		if total > 0 {
			target := rng.Float64() * total
			for i := range vecs {
				target -= nearest[i] * nearest[i]
				if target <= 0 {
					idx = i
					break
				}
			}
		} else {
			idx = rng.Intn(n)
		}

		next := make([]float32, len(vecs[idx]))
		copy(next, vecs[idx])
		centroids = append(centroids, next)
	}

	return centroids
}

// nearestCentroid returns the index of and cosine distance to the closest
// centroid.
func nearestCentroid(vec []float32, centroids [][]float32) (int, float32) {
	best := 0
	bestDist := float32(3) // Above the cosine distance upper bound of 2.
	for j, c := range centroids {
		d := 1 - metric.Dot(vec, c)
		if d < bestDist {
			best = j
			bestDist = d
		}
	}
	return best, bestDist
}
