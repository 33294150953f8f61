// Package vecglobe is an embeddable vector intelligence core for interactive
// dataset exploration. It sanitizes arbitrary (id, vector) rows into a
// uniform-dimension store, reduces them to 3D coordinates for spatial
// placement, clusters them, and answers nearest-neighbor queries through a
// graph index that degrades transparently to an exact flat scan.
//
// All heavy computation runs on a single reusable background worker; built
// index artifacts are cached by dataset fingerprint so a dataset loaded in a
// later session skips the build.
package vecglobe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/vecglobe/vecglobe/cache"
	"github.com/vecglobe/vecglobe/cluster"
	"github.com/vecglobe/vecglobe/codec"
	"github.com/vecglobe/vecglobe/executor"
	"github.com/vecglobe/vecglobe/index"
	"github.com/vecglobe/vecglobe/metric"
	"github.com/vecglobe/vecglobe/pca"
	"github.com/vecglobe/vecglobe/record"
)

// Neighbor is a single similarity match, addressed by dataset id.
type Neighbor struct {
	ID    string  `json:"id"`
	Score float32 `json:"score"`
}

// CacheState describes what the artifact cache did for the current dataset.
type CacheState int

const (
	// CacheStateNone means no cache interaction has completed yet.
	CacheStateNone CacheState = iota

	// CacheStateLoaded means the index was restored from a cached artifact.
	CacheStateLoaded

	// CacheStateSaved means a freshly built artifact was written back.
	CacheStateSaved

	// CacheStateError means the last cache operation failed; the session
	// continues without persistence.
	CacheStateError
)

// String implements fmt.Stringer.
func (s CacheState) String() string {
	switch s {
	case CacheStateLoaded:
		return "loaded"
	case CacheStateSaved:
		return "saved"
	case CacheStateError:
		return "error"
	default:
		return "none"
	}
}

// Core is the facade over the sanitizer, the projection and cluster engines,
// the search indexes, the background worker and the artifact cache.
//
// Data operations are safe for concurrent use. Load replaces the entire
// dataset state; queries issued during a load see either the old or the new
// dataset, never a mix.
type Core struct {
	codec         codec.Codec
	cache         cache.Store
	cacheDisabled bool
	logger        *Logger
	metrics       MetricsCollector
	exec          *executor.Executor
	bus           *eventBus
	clusterSeed   int64

	mu          sync.RWMutex
	source      string
	fingerprint uint64
	store       *record.Store
	report      record.SanitizeReport
	normBuf     []float32
	pcaModel    *pca.Model
	projections []pca.Projection
	projIndex   map[string]int
	clusters    *cluster.Model
	flat        *index.Flat
	ann         *index.ANN
	annOpts     index.ANNOptions
	cacheState  CacheState
}

// New creates an empty Core. This is the only constructor; all variation
// goes through options.
func New(optFns ...Option) *Core {
	o := applyOptions(optFns)

	return &Core{
		codec:         o.codec,
		cache:         o.cache,
		cacheDisabled: o.cacheDisabled,
		logger:        o.logger,
		metrics:       o.metricsCollector,
		exec:          executor.New(o.synchronous),
		bus:           newEventBus(o.eventBuffer, o.progressPerSecond),
		clusterSeed:   o.clusterSeed,
		annOpts:       o.ann,
	}
}

// Events returns the notification stream. The channel is bounded; events are
// dropped rather than blocked on when the consumer lags.
func (c *Core) Events() <-chan Event {
	return c.bus.events()
}

// LoadFromRows replaces the dataset. Rows are sanitized to a uniform
// dimension, projected to 3D, and indexed; a cached artifact for the same
// fingerprint skips the index build. The kept row count is returned.
//
// An empty source gets a generated identifier, so anonymous datasets never
// share cache entries. On ErrEmptyDataset the previous dataset stays loaded.
func (c *Core) LoadFromRows(ctx context.Context, source string, rows []record.Record) (int, error) {
	start := time.Now()

	store, report, err := record.Sanitize(rows)
	if err != nil {
		c.metrics.RecordLoad(0, time.Since(start), err)
		c.logger.LogLoad(ctx, source, 0, len(rows), err)
		return 0, err
	}

	if source == "" {
		source = newSourceID()
	}
	fp := fingerprintDataset(source, store)

	// A build still running belongs to the previous dataset.
	if c.exec.Busy() {
		c.exec.Cancel()
	}

	dim := store.Dimension()
	rawBuf := store.Flatten()

	normBuf := make([]float32, len(rawBuf))
	copy(normBuf, rawBuf)
	for i := 0; i < store.Len(); i++ {
		metric.NormalizeL2InPlace(normBuf[i*dim : (i+1)*dim])
	}

	flat := index.NewFlat(dim)
	for i := 0; i < store.Len(); i++ {
		if _, err := flat.Insert(normBuf[i*dim : (i+1)*dim]); err != nil {
			return 0, translateError(err)
		}
	}

	ids := store.IDs()

	c.mu.Lock()
	c.source, c.fingerprint = source, fp
	c.store, c.report = store, report
	c.normBuf = normBuf
	c.flat, c.ann = flat, nil
	c.pcaModel, c.projections, c.projIndex = nil, nil, nil
	c.clusters = nil
	c.cacheState = CacheStateNone
	c.mu.Unlock()

	// Projection runs on the worker while the cache is probed for a
	// prebuilt artifact.
	g, gctx := errgroup.WithContext(ctx)

	var (
		model       *pca.Model
		projections []pca.Projection
		cached      *index.ANN
	)

	g.Go(func() error {
		m, p, err := c.runPCA(gctx, rawBuf, dim, ids)
		if err != nil {
			return err
		}
		model, projections = m, p
		return nil
	})

	g.Go(func() error {
		cached = c.loadCachedIndex(gctx, fp, dim, store.Len())
		return nil
	})

	if err := g.Wait(); err != nil {
		err = translateError(err)
		c.metrics.RecordLoad(report.Kept, time.Since(start), err)
		c.logger.LogLoad(ctx, source, report.Kept, report.Dropped, err)
		return 0, err
	}

	projIndex := make(map[string]int, len(projections))
	for i, p := range projections {
		projIndex[p.ID] = i
	}

	c.mu.Lock()
	c.pcaModel, c.projections, c.projIndex = model, projections, projIndex
	if cached != nil {
		c.ann = cached
		c.cacheState = CacheStateLoaded
	}
	c.mu.Unlock()

	if cached != nil {
		c.metrics.RecordCacheHit()
		c.bus.publish(Event{Type: EventCacheLoaded})
	} else {
		if !c.cacheDisabled {
			c.metrics.RecordCacheMiss()
		}
		if err := c.buildIndex(ctx, fp, normBuf, dim); err != nil {
			if ctx.Err() != nil {
				return 0, translateError(err)
			}
			// Absorbed: the flat scan keeps every query correct.
		}
	}

	c.metrics.RecordLoad(report.Kept, time.Since(start), nil)
	c.logger.WithFingerprint(fp).LogLoad(ctx, source, report.Kept, report.Dropped, nil)

	return report.Kept, nil
}

// runPCA dispatches the projection job to the worker and forwards its
// progress. Dispatch serializes on the worker: a job already in flight is
// waited out, never run alongside.
func (c *Core) runPCA(ctx context.Context, buf []float32, dim int, ids []string) (*pca.Model, []pca.Projection, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	// Context cancellation tears the worker down, which aborts the job.
	stop := context.AfterFunc(ctx, c.exec.Cancel)
	defer stop()

	job := &pcaJob{buf: buf, dimension: dim, ids: ids}

	handle, err := c.exec.Submit(job)
	if err != nil {
		return nil, nil, err
	}

	for p := range handle.Progress {
		c.bus.publish(Event{Type: EventBuildProgress, Phase: p.Phase, Percent: p.Percent})
	}

	res := <-handle.Done
	if res.Err != nil {
		return nil, nil, res.Err
	}

	pr := res.Value.(*pcaResult)
	return pr.model, pr.projections, nil
}

// loadCachedIndex returns a usable graph index from the cache, or nil.
// Failures degrade to a rebuild and are never fatal.
func (c *Core) loadCachedIndex(ctx context.Context, fp uint64, dim, count int) *index.ANN {
	if c.cacheDisabled || c.cache == nil {
		return nil
	}

	entry, err := c.cache.Load(ctx, fp)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			c.logger.LogCache(ctx, "load", fp, err)
			c.setCacheState(CacheStateError)
		}
		return nil
	}

	ann, info, err := index.ImportArtifact(entry.Bytes)
	if err != nil {
		c.logger.LogCache(ctx, "load", fp, err)
		return nil
	}
	if info.Dimension != dim || info.Count != count {
		// Stale artifact under a colliding fingerprint.
		c.logger.LogCache(ctx, "load", fp, fmt.Errorf("artifact shape %dx%d does not match dataset %dx%d",
			info.Count, info.Dimension, count, dim))
		return nil
	}

	return ann
}

// buildIndex runs the graph build on the worker and swaps the result in.
// Failures are reported through events and the error return; the caller
// decides whether to absorb them.
func (c *Core) buildIndex(ctx context.Context, fp uint64, normBuf []float32, dim int) error {
	start := time.Now()

	c.mu.RLock()
	opts := c.annOpts
	c.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		err = translateError(err)
		c.metrics.RecordIndexBuild(time.Since(start), err)
		return err
	}

	// Context cancellation tears the worker down, which aborts the job.
	stop := context.AfterFunc(ctx, c.exec.Cancel)
	defer stop()

	c.bus.publish(Event{Type: EventBuildStart})

	job := &buildJob{buf: normBuf, dimension: dim, opts: opts}

	handle, err := c.exec.Submit(job)
	if err != nil {
		err = translateError(err)
		c.metrics.RecordIndexBuild(time.Since(start), err)
		c.bus.publish(Event{Type: EventBuildError, Err: err})
		return err
	}

	for p := range handle.Progress {
		c.bus.publish(Event{Type: EventBuildProgress, Phase: p.Phase, Percent: p.Percent})
	}

	res := <-handle.Done
	if res.Err != nil {
		err := translateError(res.Err)
		c.metrics.RecordIndexBuild(time.Since(start), err)
		c.logger.LogBuild(ctx, len(normBuf)/dim, err)
		c.bus.publish(Event{Type: EventBuildError, Err: err})
		return err
	}

	ann := res.Value.(*index.ANN)

	c.mu.Lock()
	stale := c.fingerprint != fp
	if !stale {
		c.ann = ann
	}
	c.mu.Unlock()

	if stale {
		// A newer dataset replaced this one while the build ran.
		return nil
	}

	c.metrics.RecordIndexBuild(time.Since(start), nil)
	c.logger.LogBuild(ctx, ann.Len(), nil)
	c.bus.publish(Event{Type: EventBuildEnd})

	c.saveArtifact(ctx, fp, ann)

	return nil
}

// saveArtifact writes the built index back to the cache, best effort.
func (c *Core) saveArtifact(ctx context.Context, fp uint64, ann *index.ANN) {
	if c.cacheDisabled || c.cache == nil {
		return
	}

	data, err := ann.Export(c.codec)
	if err == nil {
		err = c.cache.Save(ctx, fp, data)
	}

	if err != nil {
		c.setCacheState(CacheStateError)
		c.logger.LogCache(ctx, "save", fp, err)
		return
	}

	c.setCacheState(CacheStateSaved)
	c.logger.LogCache(ctx, "save", fp, nil)
	c.bus.publish(Event{Type: EventCacheSaved})
}

func (c *Core) setCacheState(s CacheState) {
	c.mu.Lock()
	c.cacheState = s
	c.mu.Unlock()
}

// SimilarByID returns the k records most similar to the one with the given
// id, self excluded, ordered by descending cosine similarity.
func (c *Core) SimilarByID(id string, k int) ([]Neighbor, error) {
	start := time.Now()

	c.mu.RLock()
	store := c.store
	normBuf := c.normBuf
	idx := c.currentIndexLocked()
	c.mu.RUnlock()

	if store == nil {
		return nil, ErrNotLoaded
	}
	if k <= 0 {
		c.metrics.RecordSearch(k, time.Since(start), ErrInvalidK)
		return nil, ErrInvalidK
	}

	pos, ok := store.Lookup(id)
	if !ok {
		err := fmt.Errorf("%w: id %q", ErrNotFound, id)
		c.metrics.RecordSearch(k, time.Since(start), err)
		return nil, err
	}

	dim := store.Dimension()
	q := normBuf[int(pos)*dim : (int(pos)+1)*dim]

	exclude := roaring.New()
	exclude.Add(pos + 1)

	results, err := idx.KNNSearch(q, k, &index.SearchOptions{Exclude: exclude})
	if err != nil {
		err = translateError(err)
		c.metrics.RecordSearch(k, time.Since(start), err)
		c.logger.LogSearch(context.Background(), k, 0, err)
		return nil, err
	}

	neighbors := toNeighbors(store, results)
	c.metrics.RecordSearch(k, time.Since(start), nil)
	c.logger.LogSearch(context.Background(), k, len(neighbors), nil)

	return neighbors, nil
}

// SimilarByVector returns the k records most similar to an arbitrary query
// vector, ordered by descending cosine similarity. The query must have the
// dataset's dimension; it is normalized internally. Ids listed in exclude
// are dropped from the results.
func (c *Core) SimilarByVector(vec []float32, k int, exclude ...string) ([]Neighbor, error) {
	start := time.Now()

	c.mu.RLock()
	store := c.store
	idx := c.currentIndexLocked()
	c.mu.RUnlock()

	if store == nil {
		return nil, ErrNotLoaded
	}
	if k <= 0 {
		c.metrics.RecordSearch(k, time.Since(start), ErrInvalidK)
		return nil, ErrInvalidK
	}
	if len(vec) != store.Dimension() {
		err := &ErrDimensionMismatch{Expected: store.Dimension(), Actual: len(vec)}
		c.metrics.RecordSearch(k, time.Since(start), err)
		return nil, err
	}

	q := metric.NormalizeL2Copy(vec)

	var bm *roaring.Bitmap
	if len(exclude) > 0 {
		bm = roaring.New()
		for _, id := range exclude {
			if pos, ok := store.Lookup(id); ok {
				bm.Add(pos + 1)
			}
		}
	}

	results, err := idx.KNNSearch(q, k, &index.SearchOptions{Exclude: bm})
	if err != nil {
		err = translateError(err)
		c.metrics.RecordSearch(k, time.Since(start), err)
		return nil, err
	}

	neighbors := toNeighbors(store, results)
	c.metrics.RecordSearch(k, time.Since(start), nil)

	return neighbors, nil
}

// toNeighbors maps dense index ids back to dataset ids.
func toNeighbors(store *record.Store, results []index.SearchResult) []Neighbor {
	neighbors := make([]Neighbor, 0, len(results))
	for _, r := range results {
		neighbors = append(neighbors, Neighbor{
			ID:    store.At(r.ID - 1).ID,
			Score: r.Score,
		})
	}
	return neighbors
}

// GetVector returns a copy of the sanitized vector for an id.
func (c *Core) GetVector(id string) ([]float32, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.store == nil {
		return nil, ErrNotLoaded
	}

	v, ok := c.store.Vector(id)
	if !ok {
		return nil, fmt.Errorf("%w: id %q", ErrNotFound, id)
	}

	out := make([]float32, len(v))
	copy(out, v)

	return out, nil
}

// ProjectID returns the 3D placement of a record.
func (c *Core) ProjectID(id string) (pca.Projection, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.projIndex == nil {
		return pca.Projection{}, ErrNotLoaded
	}

	i, ok := c.projIndex[id]
	if !ok {
		return pca.Projection{}, fmt.Errorf("%w: id %q", ErrNotFound, id)
	}

	return c.projections[i], nil
}

// Projections returns the 3D placement of every record in dataset order.
func (c *Core) Projections() []pca.Projection {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]pca.Projection, len(c.projections))
	copy(out, c.projections)

	return out
}

// PCAInfo returns the fitted projection model.
func (c *Core) PCAInfo() (*pca.Model, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.pcaModel == nil {
		return nil, ErrNotLoaded
	}

	m := *c.pcaModel
	return &m, nil
}

// Clusterize groups the dataset into k clusters by cosine distance and
// retains the result. k is clamped to the dataset size.
func (c *Core) Clusterize(ctx context.Context, k int) (*cluster.Model, error) {
	start := time.Now()

	c.mu.RLock()
	store := c.store
	normBuf := c.normBuf
	c.mu.RUnlock()

	if store == nil {
		return nil, ErrNotLoaded
	}

	seed := c.clusterSeed
	model, err := cluster.Fit(ctx, normBuf, store.Dimension(), k, func(o *cluster.Options) {
		o.Seed = seed
	})

	c.metrics.RecordCluster(k, time.Since(start), err)
	c.logger.LogCluster(ctx, k, err)

	if err != nil {
		return nil, translateError(err)
	}

	c.mu.Lock()
	c.clusters = model
	c.mu.Unlock()

	return model, nil
}

// Clusters returns the most recent clustering result, or nil.
func (c *Core) Clusters() *cluster.Model {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.clusters
}

// RebuildIndex builds the graph index for the current dataset. Without
// force, a cached artifact is used when present. Build failures are
// absorbed: queries keep serving from the flat scan and an error event is
// published. Only cancellation is returned to the caller.
func (c *Core) RebuildIndex(ctx context.Context, force bool) error {
	c.mu.RLock()
	store := c.store
	fp := c.fingerprint
	normBuf := c.normBuf
	c.mu.RUnlock()

	if store == nil {
		return ErrNotLoaded
	}

	dim := store.Dimension()

	if !force {
		if cached := c.loadCachedIndex(ctx, fp, dim, store.Len()); cached != nil {
			c.mu.Lock()
			c.ann = cached
			c.cacheState = CacheStateLoaded
			c.mu.Unlock()

			c.metrics.RecordCacheHit()
			c.bus.publish(Event{Type: EventCacheLoaded})
			return nil
		}
		if !c.cacheDisabled {
			c.metrics.RecordCacheMiss()
		}
	}

	return absorbConstructionError(c.buildIndex(ctx, fp, normBuf, dim))
}

// ExportIndex serializes the current graph index into a self-describing
// artifact.
func (c *Core) ExportIndex() ([]byte, error) {
	c.mu.RLock()
	ann := c.ann
	c.mu.RUnlock()

	if ann == nil {
		return nil, ErrIndexNotReady
	}

	return ann.Export(c.codec)
}

// ImportIndex installs a previously exported artifact. The artifact must
// match the current dataset's dimension and count.
func (c *Core) ImportIndex(data []byte) error {
	c.mu.RLock()
	store := c.store
	c.mu.RUnlock()

	if store == nil {
		return ErrNotLoaded
	}

	ann, info, err := index.ImportArtifact(data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIndexConstruction, err)
	}
	if info.Dimension != store.Dimension() {
		return &ErrDimensionMismatch{Expected: store.Dimension(), Actual: info.Dimension}
	}
	if info.Count != store.Len() {
		return fmt.Errorf("%w: artifact holds %d vectors, dataset has %d",
			ErrIndexConstruction, info.Count, store.Len())
	}

	c.mu.Lock()
	c.ann = ann
	c.mu.Unlock()

	c.bus.publish(Event{Type: EventBuildEnd})

	return nil
}

// CancelBuild aborts any running background job. The aborted operation
// reports ErrCancelled; the next build starts a fresh worker.
func (c *Core) CancelBuild() {
	c.exec.Cancel()
}

// IsBuilding reports whether a background job is running.
func (c *Core) IsBuilding() bool {
	return c.exec.Busy()
}

// IsANNReady reports whether queries are served by the graph index rather
// than the flat scan.
func (c *Core) IsANNReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.ann != nil
}

// CacheState reports the cache outcome for the current dataset.
func (c *Core) CacheState() CacheState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.cacheState
}

// SetEFSearch tunes query breadth. It applies immediately to a live graph
// index and to all future builds.
func (c *Core) SetEFSearch(ef int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ef < 1 {
		return
	}
	c.annOpts.EFSearch = ef
	if c.ann != nil {
		c.ann.SetEFSearch(ef)
	}
}

// SetEFConstruction tunes build quality. It applies to the next build; a
// live index keeps the value it was built with.
func (c *Core) SetEFConstruction(ef int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ef < 1 {
		return
	}
	c.annOpts.EFConstruction = ef
}

// ClearCache removes the cached artifact for the current dataset.
func (c *Core) ClearCache(ctx context.Context) error {
	if c.cacheDisabled || c.cache == nil {
		return ErrCacheUnavailable
	}

	c.mu.RLock()
	store := c.store
	fp := c.fingerprint
	c.mu.RUnlock()

	if store == nil {
		return ErrNotLoaded
	}

	if err := c.cache.Clear(ctx, fp); err != nil {
		c.setCacheState(CacheStateError)
		c.logger.LogCache(ctx, "clear", fp, err)
		return fmt.Errorf("%w: %w", ErrCacheUnavailable, err)
	}

	c.setCacheState(CacheStateNone)
	c.logger.LogCache(ctx, "clear", fp, nil)

	return nil
}

// SanitizeReport returns the accounting of the last successful load.
func (c *Core) SanitizeReport() record.SanitizeReport {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.report
}

// Len returns the number of loaded records.
func (c *Core) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.store == nil {
		return 0
	}
	return c.store.Len()
}

// Dimension returns the dataset dimension, or zero before a load.
func (c *Core) Dimension() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.store == nil {
		return 0
	}
	return c.store.Dimension()
}

// Fingerprint returns the cache key of the current dataset.
func (c *Core) Fingerprint() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.fingerprint
}

// Close aborts background work and closes the cache store.
func (c *Core) Close() error {
	c.exec.Cancel()

	if c.cache != nil {
		return c.cache.Close()
	}
	return nil
}

// currentIndexLocked picks the query index. Callers hold at least mu.RLock.
func (c *Core) currentIndexLocked() index.Index {
	if c.ann != nil {
		return c.ann
	}
	return c.flat
}
