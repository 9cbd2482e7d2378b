package vecserve

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with service-specific helpers.
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
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
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
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithRequestID tags every record with a request id.
func (l *Logger) WithRequestID(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("request_id", id),
	}
}

// LogLoad logs a load attempt.
func (l *Logger) LogLoad(ctx context.Context, path string, res LoadResult, d time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "load failed",
			"path", path,
			"duration_ms", d.Milliseconds(),
			"code", string(CodeOf(err)),
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "snapshot loaded",
		"path", path,
		"count", res.Count,
		"dim", res.Dim,
		"backend", res.Backend,
		"zero_norm_rows", res.ZeroNormRows,
		"duration_ms", d.Milliseconds(),
	)
}

// LogSwap logs the publication of a generation.
func (l *Logger) LogSwap(ctx context.Context, version, previous string) {
	if previous == "" {
		l.InfoContext(ctx, "index ready", "version", version)
		return
	}
	l.InfoContext(ctx, "index swapped",
		"version", version,
		"previous", previous,
	)
}

// LogQuery logs a query. Successful queries are logged at debug level.
func (l *Logger) LogQuery(ctx context.Context, k, results int, d time.Duration, err error) {
	if err != nil {
		l.DebugContext(ctx, "query rejected",
			"k", k,
			"code", string(CodeOf(err)),
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "query completed",
		"k", k,
		"results", results,
		"latency_us", d.Microseconds(),
	)
}
