// Package logger provides process-wide structured logging for Atlas.
// Records go through log/slog; --verbose lowers the level to debug so the
// sync and search pipelines can be followed step by step.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	mu      sync.RWMutex
	level   = new(slog.LevelVar)
	output  io.Writer = os.Stderr
	jsonOut bool
	current = build()
)

func build() *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if jsonOut {
		return slog.New(slog.NewJSONHandler(output, opts))
	}
	return slog.New(slog.NewTextHandler(output, opts))
}

// SetVerbose enables or disables debug logging.
func SetVerbose(v bool) {
	if v {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}
}

// IsVerbose returns true if debug logging is enabled.
func IsVerbose() bool {
	return level.Level() <= slog.LevelDebug
}

// SetOutput sets the destination for log records.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	current = build()
}

// SetJSON switches between JSON and logfmt-style text records.
func SetJSON(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	jsonOut = enabled
	current = build()
}

// L returns the underlying structured logger.
func L() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// With returns a logger carrying the given attributes.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}

// Debug logs a formatted message when verbose mode is enabled.
func Debug(format string, args ...any) {
	L().Debug(fmt.Sprintf(format, args...))
}

// Section marks the start of a pipeline stage in verbose output.
func Section(name string) {
	L().Debug("=== " + name + " ===")
}

// Info logs a formatted informational message.
func Info(format string, args ...any) {
	L().Info(fmt.Sprintf(format, args...))
}

// Warn logs a formatted warning.
func Warn(format string, args ...any) {
	L().Warn(fmt.Sprintf(format, args...))
}

// Error logs a formatted error.
func Error(format string, args ...any) {
	L().Error(fmt.Sprintf(format, args...))
}
