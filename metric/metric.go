// Package metric provides the distance kernels used throughout vecglobe.
//
// All search and clustering in vecglobe operates on cosine distance over
// L2-normalized vectors, where cosine distance reduces to 1 - dot product.
package metric

import (
	"errors"
	"math"
)

// ErrSizeMismatch is returned when two vectors of different lengths are compared.
var ErrSizeMismatch = errors.New("vector sizes do not match")

// Dot calculates the dot product of two float32 slices.
// Assumes both slices have the same length (caller's responsibility).
func Dot(v1, v2 []float32) float32 {
	var sum float32
	for i := range v1 {
		sum += v1[i] * v2[i]
	}
	return sum
}

// Magnitude calculates the magnitude (length) of a float32 slice.
func Magnitude(v []float32) float32 {
	return float32(math.Sqrt(float64(Dot(v, v))))
}

// CosineSimilarity calculates the cosine similarity between two float32 slices.
func CosineSimilarity(v1, v2 []float32) (float32, error) {
	if len(v1) != len(v2) {
		return 0, ErrSizeMismatch
	}

	magnitudeA := Magnitude(v1)
	magnitudeB := Magnitude(v2)

	// Avoid division by zero
	if magnitudeA == 0 || magnitudeB == 0 {
		return 0, nil
	}

	return Dot(v1, v2) / (magnitudeA * magnitudeB), nil
}

// CosineDistance calculates 1 - cosine similarity between two float32 slices.
// For L2-normalized inputs this equals 1 - dot product.
func CosineDistance(v1, v2 []float32) (float32, error) {
	sim, err := CosineSimilarity(v1, v2)
	if err != nil {
		return 0, err
	}
	return 1 - sim, nil
}

// NormalizedCosineDistance calculates 1 - dot product.
// Both inputs must already be L2-normalized; no magnitude check is performed.
func NormalizedCosineDistance(v1, v2 []float32) (float32, error) {
	if len(v1) != len(v2) {
		return 0, ErrSizeMismatch
	}
	return 1 - Dot(v1, v2), nil
}

// NormalizeL2InPlace L2-normalizes v in place.
// Returns false if v has zero L2 norm; v is left untouched in that case.
func NormalizeL2InPlace(v []float32) bool {
	norm := Magnitude(v)
	if norm == 0 {
		return false
	}
	inv := 1 / norm
	for i := range v {
		v[i] *= inv
	}
	return true
}

// NormalizeL2Copy returns an L2-normalized copy of src.
// A zero-norm input yields a zero vector of the same length.
func NormalizeL2Copy(src []float32) []float32 {
	dst := make([]float32, len(src))
	copy(dst, src)
	NormalizeL2InPlace(dst)
	return dst
}
