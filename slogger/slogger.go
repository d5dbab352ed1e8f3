// Package slogger provides structured logging for the workflow engine.
package slogger

import (
	"context"
	"strings"
)

// DefaultLogger is used when no logger is configured.
var DefaultLogger Logger = NewNullLogger()

// Logger is the logging interface used throughout the module. It supports
// structured key-value logging and is satisfied by slog-style backends.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)

	// With returns a Logger carrying the given key-value pairs.
	With(keysAndValues ...any) Logger
}

type contextKey string

const loggerKey contextKey = "triage.logger"

// WithLogger returns a context carrying the given logger.
func WithLogger(ctx context.Context, logger Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// Ctx returns the logger stored in ctx, or a default logger.
func Ctx(ctx context.Context) Logger {
	if ctx == nil {
		return New(DefaultLogLevel)
	}
	logger, ok := ctx.Value(loggerKey).(Logger)
	if !ok {
		return New(DefaultLogLevel)
	}
	return logger
}

// LevelFromString converts a level name to a LogLevel. Unknown names map to
// the default level.
func LevelFromString(level string) LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return DefaultLogLevel
	}
}

// NullLogger discards everything.
type NullLogger struct{}

func NewNullLogger() *NullLogger { return &NullLogger{} }

func (l *NullLogger) Debug(msg string, keysAndValues ...any) {}
func (l *NullLogger) Info(msg string, keysAndValues ...any)  {}
func (l *NullLogger) Warn(msg string, keysAndValues ...any)  {}
func (l *NullLogger) Error(msg string, keysAndValues ...any) {}
func (l *NullLogger) With(keysAndValues ...any) Logger       { return l }
