package hilevel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger with consistent field names for batch runs.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger with the given handler.
// If handler is nil, uses a text handler to stderr at info level.
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

// NewJSONLogger creates a Logger that writes JSON lines to w.
func NewJSONLogger(w io.Writer, level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger that writes human-readable lines to w.
func NewTextLogger(w io.Writer, level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps debug, info, warn or error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return l, nil
}

// WithBatch adds the batch id to every record.
func (l *Logger) WithBatch(batchID string) *Logger {
	return &Logger{
		Logger: l.Logger.With("batch", batchID),
	}
}

// LogFile logs the outcome of one input file. A failure is a single line
// naming the file, the stage it reached and the error.
func (l *Logger) LogFile(ctx context.Context, input, output, stage string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "file failed",
			"input", input,
			"stage", stage,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "file done",
			"input", input,
			"output", output,
		)
	}
}

// LogBatch logs the end of a batch.
func (l *Logger) LogBatch(ctx context.Context, total, failed int) {
	if failed > 0 {
		l.WarnContext(ctx, "batch completed with failures",
			"total", total,
			"failed", failed,
			"success", total-failed,
		)
	} else {
		l.InfoContext(ctx, "batch completed",
			"count", total,
		)
	}
}

// LogMergeConflict logs option keys that were not merged because the file
// already had a value for them.
func (l *Logger) LogMergeConflict(ctx context.Context, input string, keys []string) {
	if len(keys) == 0 {
		return
	}
	l.WarnContext(ctx, "merge kept existing values",
		"input", input,
		"keys", keys,
	)
}
