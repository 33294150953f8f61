package vecglobe

import (
	"context"
	"errors"
	"fmt"

	"github.com/vecglobe/vecglobe/executor"
	"github.com/vecglobe/vecglobe/index"
	"github.com/vecglobe/vecglobe/record"
)

var (
	// ErrEmptyDataset is returned by LoadFromRows when sanitization keeps
	// no usable vectors. The previous dataset, if any, stays loaded.
	ErrEmptyDataset = record.ErrEmptyDataset

	// ErrNotLoaded is returned by data operations before a successful load.
	ErrNotLoaded = errors.New("no dataset loaded")

	// ErrNotFound is returned when an id is not in the current dataset.
	ErrNotFound = errors.New("not found")

	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrCancelled is returned when a background operation was aborted by
	// CancelBuild or a done context. The operation can be retried.
	ErrCancelled = errors.New("operation cancelled")

	// ErrIndexConstruction marks a failed graph build or import. The facade
	// absorbs it by serving queries from the flat scan instead.
	ErrIndexConstruction = errors.New("index construction failed")

	// ErrIndexNotReady is returned by ExportIndex while no graph index has
	// been built or imported for the current dataset.
	ErrIndexNotReady = errors.New("graph index not ready")

	// ErrCacheUnavailable is returned by cache operations when caching is
	// disabled or the configured store is out of service.
	ErrCacheUnavailable = errors.New("cache unavailable")

	// ErrBackgroundUnavailable indicates the background execution
	// environment is out of service. Callers switch to synchronous mode
	// for the remainder of the session.
	ErrBackgroundUnavailable = errors.New("background execution unavailable")
)

// ErrDimensionMismatch indicates a query/vector dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// translateError maps subpackage errors onto the facade taxonomy so callers
// only ever match against vecglobe sentinels and types.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, executor.ErrCancelled) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	if errors.Is(err, index.ErrInvalidK) {
		return fmt.Errorf("%w: %w", ErrInvalidK, err)
	}

	var dm *index.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}

	return err
}

// absorbConstructionError keeps graph build failures inside the facade:
// queries keep falling back to the flat scan, so only cancellation reaches
// the caller.
func absorbConstructionError(err error) error {
	if errors.Is(err, ErrCancelled) {
		return err
	}
	return nil
}
