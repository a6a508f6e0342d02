package logoann

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with logoann-specific context.
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
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// LogIndexLoad logs the load of a frozen index.
func (l *Logger) LogIndexLoad(ctx context.Context, name string, vectors int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "index load failed",
			"index", name,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "index loaded",
			"index", name,
			"vectors", vectors,
		)
	}
}

// LogResolve logs a neighbor resolution.
func (l *Logger) LogResolve(ctx context.Context, index string, id int64, results int, err error) {
	if err != nil {
		l.DebugContext(ctx, "resolve failed",
			"index", index,
			"id", id,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "resolve completed",
			"index", index,
			"id", id,
			"results", results,
		)
	}
}

// LogAppend logs an embedding store append.
func (l *Logger) LogAppend(ctx context.Context, requested, added int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "append failed",
			"requested", requested,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "append completed",
			"requested", requested,
			"added", added,
			"duplicates", requested-added,
		)
	}
}
