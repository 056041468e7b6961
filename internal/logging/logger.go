// Package logging wraps log/slog with the field names used across spotmatch.
package logging

import (
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"
)

// Logger wraps slog.Logger with spotmatch-specific helpers.
type Logger struct {
	*slog.Logger
}

var defaultLogger atomic.Pointer[Logger]

func init() {
	defaultLogger.Store(NewText(slog.LevelInfo))
}

// New creates a Logger with the given handler.
// If handler is nil, a text handler writing to stderr is used.
func New(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewText creates a Logger that writes human-readable text to stderr.
func NewText(level slog.Level) *Logger {
	return New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewJSON creates a Logger that writes JSON lines to stderr.
func NewJSON(level slog.Level) *Logger {
	return New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// Noop creates a Logger that discards everything.
func Noop() *Logger {
	return New(slog.NewTextHandler(io.Discard, nil))
}

// Default returns the process-wide logger used by the library packages.
func Default() *Logger { return defaultLogger.Load() }

// SetDefault replaces the process-wide logger. A nil logger is ignored.
func SetDefault(l *Logger) {
	if l != nil {
		defaultLogger.Store(l)
	}
}

// WithStage tags records with a pipeline stage name.
func (l *Logger) WithStage(stage string) *Logger {
	return &Logger{Logger: l.Logger.With("stage", stage)}
}

// Elapsed logs the completion of a timed step at info level.
func (l *Logger) Elapsed(msg string, start time.Time, args ...any) {
	l.Info(msg, append(args, "elapsed", time.Since(start))...)
}
