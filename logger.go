package vecglobe

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with vecglobe-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithFingerprint tags the logger with the current dataset fingerprint.
func (l *Logger) WithFingerprint(fp uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("fingerprint", fp),
	}
}

// LogLoad logs a dataset load.
func (l *Logger) LogLoad(ctx context.Context, source string, kept, dropped int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "load failed",
			"source", source,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "load completed",
			"source", source,
			"kept", kept,
			"dropped", dropped,
		)
	}
}

// LogBuild logs an index build or import.
func (l *Logger) LogBuild(ctx context.Context, count int, err error) {
	if err != nil {
		l.WarnContext(ctx, "index build failed, serving flat scan",
			"count", count,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "index build completed",
			"count", count,
		)
	}
}

// LogSearch logs a similarity query.
func (l *Logger) LogSearch(ctx context.Context, k, resultsFound int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"k", k,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"k", k,
			"results", resultsFound,
		)
	}
}

// LogCluster logs a clustering run.
func (l *Logger) LogCluster(ctx context.Context, k int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "clustering failed",
			"k", k,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "clustering completed",
			"k", k,
		)
	}
}

// LogCache logs a cache load, save or clear.
func (l *Logger) LogCache(ctx context.Context, op string, fp uint64, err error) {
	if err != nil {
		l.WarnContext(ctx, "cache operation failed",
			"op", op,
			"fingerprint", fp,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "cache operation completed",
			"op", op,
			"fingerprint", fp,
		)
	}
}
