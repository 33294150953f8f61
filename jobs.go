package vecglobe

import (
	"context"
	"fmt"

	"github.com/vecglobe/vecglobe/executor"
	"github.com/vecglobe/vecglobe/index"
	"github.com/vecglobe/vecglobe/pca"
)

// Jobs carry flattened copies of the dataset so the worker never touches
// facade state. Results come back through the executor handle and are
// swapped in by the dispatching goroutine.

type pcaJob struct {
	buf       []float32 // row-major, unnormalized
	dimension int
	ids       []string
}

type pcaResult struct {
	model       *pca.Model
	projections []pca.Projection
}

func (j *pcaJob) Name() string { return "pca" }

func (j *pcaJob) Run(ctx context.Context, report func(executor.Progress)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	model, projections, err := pca.Compute(j.buf, j.dimension, j.ids, func(o *pca.Options) {
		o.Progress = func(phase string, percent float64) {
			report(executor.Progress{Phase: phase, Percent: percent})
		}
	})
	if err != nil {
		return nil, err
	}

	return &pcaResult{model: model, projections: projections}, nil
}

type buildJob struct {
	buf       []float32 // row-major, L2-normalized
	dimension int
	opts      index.ANNOptions
}

// Cancellation is polled between insert batches; a stride keeps the
// per-insert overhead negligible.
const buildProgressStride = 64

func (j *buildJob) Name() string { return "index-build" }

func (j *buildJob) Run(ctx context.Context, report func(executor.Progress)) (any, error) {
	opts := j.opts
	ann := index.NewANN(j.dimension, func(o *index.ANNOptions) { *o = opts })

	n := len(j.buf) / j.dimension
	for i := 0; i < n; i++ {
		if i%buildProgressStride == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			report(executor.Progress{Phase: "index:insert", Percent: float64(i) / float64(n) * 100})
		}

		if _, err := ann.Insert(j.buf[i*j.dimension : (i+1)*j.dimension]); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrIndexConstruction, err)
		}
	}

	report(executor.Progress{Phase: "index:insert", Percent: 100})

	return ann, nil
}
