package vecglobe

import (
	"log/slog"

	"github.com/vecglobe/vecglobe/cache"
	"github.com/vecglobe/vecglobe/codec"
	"github.com/vecglobe/vecglobe/index"
)

type options struct {
	codec             codec.Codec
	cache             cache.Store
	cacheDisabled     bool
	synchronous       bool
	ann               index.ANNOptions
	clusterSeed       int64
	eventBuffer       int
	progressPerSecond float64
	metricsCollector  MetricsCollector
	logger            *Logger
}

// Option configures Core construction.
//
// There is exactly one constructor; all variation goes through options so
// callers never have to probe alternative entry points.
type Option func(*options)

// WithCodec configures the codec used for artifact metadata.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithCacheStore configures the artifact cache backend. The default is an
// in-memory store scoped to the process; use cache.NewSQLiteStore for
// persistence across sessions or cache/minio for a shared store.
func WithCacheStore(s cache.Store) Option {
	return func(o *options) {
		o.cache = s
	}
}

// WithoutCache disables artifact caching entirely. Loads always build and
// never save; correctness is unaffected.
func WithoutCache() Option {
	return func(o *options) {
		o.cacheDisabled = true
	}
}

// WithSynchronous runs all background jobs on the calling goroutine.
// Results are identical; only latency behavior changes. Use this in
// environments where spawning a worker goroutine is undesirable.
func WithSynchronous() Option {
	return func(o *options) {
		o.synchronous = true
	}
}

// WithANNOptions tunes graph index construction and search defaults.
func WithANNOptions(fn func(*index.ANNOptions)) Option {
	return func(o *options) {
		if fn != nil {
			fn(&o.ann)
		}
	}
}

// WithSeed seeds the clustering initialization for reproducible runs.
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.clusterSeed = seed
	}
}

// WithEventBuffer sets the capacity of the event channel. Events beyond the
// buffer are dropped, never blocked on.
func WithEventBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.eventBuffer = n
		}
	}
}

// WithProgressEventRate caps progress events per second. Other event types
// are never throttled.
func WithProgressEventRate(perSecond float64) Option {
	return func(o *options) {
		if perSecond > 0 {
			o.progressPerSecond = perSecond
		}
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc != nil {
			o.metricsCollector = mc
		}
	}
}

// WithLogger configures structured logging for operations.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		codec:             codec.Default,
		ann:               index.DefaultANNOptions,
		clusterSeed:       1,
		eventBuffer:       64,
		progressPerSecond: 20,
		metricsCollector:  NoopMetricsCollector{},
		logger:            NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.cache == nil && !o.cacheDisabled {
		o.cache = cache.NewMemoryStore()
	}
	return o
}
