package goadsdev

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger defines the interface for structured logging in goadsdev.
// It follows the standard slog.Logger interface for compatibility.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
}

// slogAdapter adapts slog.Logger to our Logger interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (s *slogAdapter) Debug(msg string, args ...any) {
	s.logger.Debug(msg, args...)
}

func (s *slogAdapter) Info(msg string, args ...any) {
	s.logger.Info(msg, args...)
}

func (s *slogAdapter) Warn(msg string, args ...any) {
	s.logger.Warn(msg, args...)
}

func (s *slogAdapter) Error(msg string, args ...any) {
	s.logger.Error(msg, args...)
}

func (s *slogAdapter) With(args ...any) Logger {
	return &slogAdapter{logger: s.logger.With(args...)}
}

type noopLogger struct{}

func (n *noopLogger) Debug(msg string, args ...any) {}
func (n *noopLogger) Info(msg string, args ...any)  {}
func (n *noopLogger) Warn(msg string, args ...any)  {}
func (n *noopLogger) Error(msg string, args ...any) {}
func (n *noopLogger) With(args ...any) Logger       { return n }

var (
	// DefaultLogger is a no-op logger used when none is configured.
	DefaultLogger Logger = &noopLogger{}
)

// NewSlogLogger creates a Logger from a slog.Logger.
func NewSlogLogger(logger *slog.Logger) Logger {
	if logger == nil {
		return DefaultLogger
	}
	return &slogAdapter{logger: logger}
}

// NewDefaultLogger creates a basic JSON logger writing to stderr.
func NewDefaultLogger() Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return &slogAdapter{logger: slog.New(handler)}
}

// NewLogger builds a slog backed Logger writing to w. Level is one of debug,
// info, warn or error; format is json or text.
func NewLogger(w io.Writer, level, format string) (Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("goadsdev: invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "", "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("goadsdev: invalid log format %q", format)
	}
	return &slogAdapter{logger: slog.New(handler)}, nil
}

type logContextKey struct{}

// ContextWithLogFields adds log fields to a context that will be automatically
// included in log messages when using LoggerFromContext.
func ContextWithLogFields(ctx context.Context, args ...any) context.Context {
	existing, _ := ctx.Value(logContextKey{}).([]any)
	return context.WithValue(ctx, logContextKey{}, append(existing, args...))
}

// LoggerFromContext returns a logger with context fields attached.
func LoggerFromContext(ctx context.Context, logger Logger) Logger {
	if fields, ok := ctx.Value(logContextKey{}).([]any); ok && len(fields) > 0 {
		return logger.With(fields...)
	}
	return logger
}
