package solentware

import (
	"context"
	"log/slog"
	"os"

	"github.com/RogerMarsh/solentware-base-sub003/segment"
)

// Logger wraps slog.Logger with database-specific context.
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
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithFile adds a file field to the logger.
func (l *Logger) WithFile(file string) *Logger {
	return &Logger{
		Logger: l.Logger.With("file", file),
	}
}

// WithField adds an index field name to the logger.
func (l *Logger) WithField(field string) *Logger {
	return &Logger{
		Logger: l.Logger.With("field", field),
	}
}

// WithRecord adds a record number field to the logger.
func (l *Logger) WithRecord(r segment.RecordNumber) *Logger {
	return &Logger{
		Logger: l.Logger.With("record", uint32(r)),
	}
}

// LogPut logs a put operation.
func (l *Logger) LogPut(ctx context.Context, file string, r segment.RecordNumber, err error) {
	if err != nil {
		l.ErrorContext(ctx, "put failed",
			"file", file,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "put completed",
			"file", file,
			"record", uint32(r),
		)
	}
}

// LogDelete logs a delete operation.
func (l *Logger) LogDelete(ctx context.Context, file string, r segment.RecordNumber, err error) {
	if err != nil {
		l.ErrorContext(ctx, "delete failed",
			"file", file,
			"record", uint32(r),
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "delete completed",
			"file", file,
			"record", uint32(r),
		)
	}
}

// LogEdit logs an edit operation.
func (l *Logger) LogEdit(ctx context.Context, file string, r segment.RecordNumber, err error) {
	if err != nil {
		l.ErrorContext(ctx, "edit failed",
			"file", file,
			"record", uint32(r),
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "edit completed",
			"file", file,
			"record", uint32(r),
		)
	}
}

// LogQuery logs an index query.
func (l *Logger) LogQuery(ctx context.Context, file, field string, found int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "query failed",
			"file", file,
			"field", field,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "query completed",
			"file", file,
			"field", field,
			"records", found,
		)
	}
}

// LogDeferredRun logs a deferred-update run.
func (l *Logger) LogDeferredRun(ctx context.Context, file string, puts, deletes int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "deferred update failed",
			"file", file,
			"puts", puts,
			"deletes", deletes,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "deferred update completed",
			"file", file,
			"puts", puts,
			"deletes", deletes,
		)
	}
}
