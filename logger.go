package fuzzyfeed

import (
	"context"
	"log/slog"
	"os"

	"github.com/hupe1980/fuzzyfeed/feed"
	"github.com/hupe1980/fuzzyfeed/pipeline"
)

// Logger wraps slog.Logger with feed-specific context.
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
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithSource adds a source field to the logger.
func (l *Logger) WithSource(sourceID string) *Logger {
	return &Logger{
		Logger: l.Logger.With("source", sourceID),
	}
}

// LogIngest logs the outcome of one maintenance run.
func (l *Logger) LogIngest(ctx context.Context, summary *pipeline.Summary, err error) {
	if err != nil {
		l.ErrorContext(ctx, "ingest aborted",
			"error", err,
		)
		return
	}

	switch summary.Status() {
	case pipeline.StatusSuccess:
		l.InfoContext(ctx, "ingest completed",
			"processed", summary.Processed,
			"duplicates", summary.Duplicates,
		)
	default:
		l.WarnContext(ctx, "ingest completed with failures",
			"status", summary.Status().String(),
			"processed", summary.Processed,
			"fetch_failed", summary.FetchFailed,
			"store_failed", summary.StoreFailed,
		)
	}
}

// LogAppend logs a failed direct append.
func (l *Logger) LogAppend(ctx context.Context, entry feed.Entry, err error) {
	l.ErrorContext(ctx, "append failed",
		"source", entry.Source,
		"path", entry.Path,
		"version", entry.Version,
		"error", err,
	)
}

// LogMatch logs a match query.
func (l *Logger) LogMatch(ctx context.Context, maxDistance, resultsFound int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "match failed",
			"max_distance", maxDistance,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "match completed",
			"max_distance", maxDistance,
			"results", resultsFound,
		)
	}
}

// LogReplay logs a feed log replay on open.
func (l *Logger) LogReplay(ctx context.Context, path string, entriesReplayed int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "feed log replay failed",
			"path", path,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "feed log replay completed",
			"path", path,
			"entries_replayed", entriesReplayed,
		)
	}
}
