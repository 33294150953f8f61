// Package pca reduces D-dimensional vectors to 3D coordinates for spatial
// placement on the globe.
//
// The top three principal components are extracted by power iteration with
// deflation over the sample covariance matrix. Power iteration is an
// approximation, which is acceptable here: the coordinates feed a
// visualization, not a numeric pipeline. Computation runs in float64
// (gonum operates on float64 for numerical precision) and only the boundary
// is float32.
package pca

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Phase names reported to the Progress callback, in order.
const (
	PhaseMean    = "pca:mean"
	PhaseCov     = "pca:cov"
	PhaseEigen   = "pca:eigen"
	PhaseProject = "pca:project"
)

// Scale holds the realized per-axis projection range of the current dataset.
// It must be recomputed whenever the dataset changes.
type Scale struct {
	Min [3]float64 `json:"min"`
	Max [3]float64 `json:"max"`
}

// Model is a fitted PCA reduction.
// Components are mutually orthonormal, enforced by deflation during power
// iteration.
type Model struct {
	Mean          []float64     `json:"mean"`
	Components    [3][]float64  `json:"components"`
	Eigenvalues   [3]float64    `json:"eigenvalues"`
	TotalVariance float64       `json:"totalVariance"`
	Scale         Scale         `json:"scale"`
}

// Projection is a single vector placed in [-1,1]^3.
type Projection struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	Z  float64 `json:"z"`
}

// Options configures Compute.
type Options struct {
	// Iterations is the number of power iteration steps per component.
	Iterations int

	// Tolerance stops power iteration early once the eigenvector shift per
	// step falls below it. Zero disables the early stop and the full
	// iteration budget is spent.
	Tolerance float64

	// Seed seeds the random initialization of power iteration.
	Seed int64

	// Progress, when set, receives ordered phase/percent callbacks.
	Progress func(phase string, percent float64)
}

// DefaultOptions are the options used by Compute when none are given.
var DefaultOptions = Options{
	Iterations: 60,
	Tolerance:  1e-9,
	Seed:       1,
}

// Compute fits a Model over n vectors of the given dimension, stored
// row-major in buf, and returns the scaled 3D projection of every vector in
// input order. ids must have length n and aligns with the rows of buf.
//
// Results are deterministic up to the seeded random initialization.
// Degenerate inputs (n < 2) yield a zero-component model and centered
// projections rather than an error: downstream consumers only need some
// finite coordinate per id.
func Compute(buf []float32, dimension int, ids []string, optFns ...func(o *Options)) (*Model, []Projection, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Iterations <= 0 {
		opts.Iterations = DefaultOptions.Iterations
	}
	progress := opts.Progress
	if progress == nil {
		progress = func(string, float64) {}
	}

	n := len(ids)
	model := &Model{
		Mean: make([]float64, dimension),
		Components: [3][]float64{
			make([]float64, dimension),
			make([]float64, dimension),
			make([]float64, dimension),
		},
	}

	if n == 0 {
		return model, nil, nil
	}

	// Mean vector.
	rows := make([][]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, dimension)
		for j := 0; j < dimension; j++ {
			row[j] = float64(buf[i*dimension+j])
		}
		rows[i] = row
		floats.Add(model.Mean, row)
	}
	floats.Scale(1/float64(n), model.Mean)
	progress(PhaseMean, 10)

	// Center in place.
	for _, row := range rows {
		floats.Sub(row, model.Mean)
	}

	if n < 2 {
		// Covariance is degenerate; keep zero components and place the
		// single vector at the origin.
		projs := scaleProjections([][3]float64{{0, 0, 0}}, ids, &model.Scale)
		return model, projs, nil
	}

	// Covariance, upper triangle only; SymDense mirrors the lower half.
	cov := covariance(rows, dimension, n)
	model.TotalVariance = mat.Trace(cov)
	progress(PhaseCov, 40)

	// Top-3 eigenvectors by power iteration with deflation.
	rng := rand.New(rand.NewSource(opts.Seed))
	for k := 0; k < 3; k++ {
		comp, eigenvalue := powerIterate(cov, model.Components[:k], opts, rng)
		copy(model.Components[k], comp)
		model.Eigenvalues[k] = eigenvalue
	}
	progress(PhaseEigen, 80)

	// Project every centered vector and stretch to [-1,1] per axis.
	raw := make([][3]float64, n)
	for i, row := range rows {
		for k := 0; k < 3; k++ {
			raw[i][k] = floats.Dot(row, model.Components[k])
		}
	}
	projs := scaleProjections(raw, ids, &model.Scale)
	progress(PhaseProject, 100)

	return model, projs, nil
}

// covariance builds the (1/(n-1))-scaled sample covariance over centered rows.
func covariance(rows [][]float64, dimension, n int) *mat.SymDense {
	cov := mat.NewSymDense(dimension, nil)
	inv := 1 / float64(n-1)
	for i := 0; i < dimension; i++ {
		for j := i; j < dimension; j++ {
			var sum float64
			for _, row := range rows {
				sum += row[i] * row[j]
			}
			cov.SetSym(i, j, sum*inv)
		}
	}
	return cov
}

// powerIterate finds the dominant eigenvector of cov that is orthogonal to
// every vector in prior, and its Rayleigh-quotient eigenvalue.
func powerIterate(cov *mat.SymDense, prior [][]float64, opts Options, rng *rand.Rand) ([]float64, float64) {
	dimension := cov.SymmetricDim()

	v := make([]float64, dimension)
	for i := range v {
		v[i] = rng.NormFloat64()
	}
	deflate(v, prior)
	if !renormalize(v) {
		return make([]float64, dimension), 0
	}

	// vec shares v's backing array, so updating v updates vec.
	vec := mat.NewVecDense(dimension, v)
	next := mat.NewVecDense(dimension, nil)
	prev := make([]float64, dimension)

	for iter := 0; iter < opts.Iterations; iter++ {
		copy(prev, v)

		next.MulVec(cov, vec)
		copy(v, next.RawVector().Data)
		deflate(v, prior)
		if !renormalize(v) {
			// Deflated out of the remaining subspace: rank < k.
			return make([]float64, dimension), 0
		}

		if opts.Tolerance > 0 {
			shift := 0.0
			for i := range v {
				shift = math.Max(shift, math.Abs(v[i]-prev[i]))
			}
			if shift < opts.Tolerance {
				break
			}
		}
	}

	// Rayleigh quotient; v is unit length.
	next.MulVec(cov, vec)
	eigenvalue := mat.Dot(vec, next)

	out := make([]float64, dimension)
	copy(out, v)
	return out, eigenvalue
}

// deflate subtracts the projection of v onto every prior component,
// keeping the iterate orthogonal to already-found directions.
func deflate(v []float64, prior [][]float64) {
	for _, p := range prior {
		d := floats.Dot(v, p)
		floats.AddScaled(v, -d, p)
	}
}

func renormalize(v []float64) bool {
	norm := floats.Norm(v, 2)
	if norm < 1e-12 {
		return false
	}
	floats.Scale(1/norm, v)
	return true
}

// scaleProjections min-max scales raw projections into [-1,1] per axis and
// records the realized range on scale. A degenerate axis (max == min) maps
// to 0.
func scaleProjections(raw [][3]float64, ids []string, scale *Scale) []Projection {
	for k := 0; k < 3; k++ {
		scale.Min[k] = math.Inf(1)
		scale.Max[k] = math.Inf(-1)
	}
	for _, p := range raw {
		for k := 0; k < 3; k++ {
			scale.Min[k] = math.Min(scale.Min[k], p[k])
			scale.Max[k] = math.Max(scale.Max[k], p[k])
		}
	}

	projs := make([]Projection, len(raw))
	for i, p := range raw {
		var coords [3]float64
		for k := 0; k < 3; k++ {
			span := scale.Max[k] - scale.Min[k]
			if span <= 0 {
				coords[k] = 0
				continue
			}
			coords[k] = (p[k]-scale.Min[k])/span*2 - 1
		}
		projs[i] = Projection{ID: ids[i], X: coords[0], Y: coords[1], Z: coords[2]}
	}
	return projs
}

// ExplainedVariance returns the per-component explained-variance ratios.
// Ratios are zero when total variance is zero.
func (m *Model) ExplainedVariance() [3]float64 {
	var out [3]float64
	if m.TotalVariance <= 0 {
		return out
	}
	for k := 0; k < 3; k++ {
		out[k] = m.Eigenvalues[k] / m.TotalVariance
	}
	return out
}

// Project places a single vector using the fitted model and its recorded
// scale. Coordinates are clamped to [-1,1] so vectors outside the fitted
// range (a query vector, say) stay on the globe.
func (m *Model) Project(vector []float32) (x, y, z float64) {
	centered := make([]float64, len(m.Mean))
	for i := range centered {
		if i < len(vector) {
			centered[i] = float64(vector[i]) - m.Mean[i]
		} else {
			centered[i] = -m.Mean[i]
		}
	}

	var coords [3]float64
	for k := 0; k < 3; k++ {
		raw := floats.Dot(centered, m.Components[k])
		span := m.Scale.Max[k] - m.Scale.Min[k]
		if span <= 0 {
			coords[k] = 0
			continue
		}
		coords[k] = clamp((raw-m.Scale.Min[k])/span*2-1, -1, 1)
	}
	return coords[0], coords[1], coords[2]
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
