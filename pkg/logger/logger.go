// Package logger wraps log/slog behind the small interface the billing
// services log through, so tests and callers without a configured logger
// can pass nil and get a sane default.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// Logger is the structured logging surface used across the services.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
}

type slogLogger struct {
	logger *slog.Logger
}

// New builds a JSON logger on stdout at the given level. Unrecognized
// levels fall back to info.
func New(level string) Logger {
	logLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	return &slogLogger{logger: slog.New(handler)}
}

// Default returns an info-level logger for callers that pass nil.
func Default() Logger {
	return New("info")
}

func (l *slogLogger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, args...)
}

func (l *slogLogger) Info(msg string, args ...any) {
	l.logger.Info(msg, args...)
}

func (l *slogLogger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, args...)
}

func (l *slogLogger) Error(msg string, args ...any) {
	l.logger.Error(msg, args...)
}

// With returns a logger that carries the given attributes on every record,
// used to scope a component name onto each service's logger.
func (l *slogLogger) With(args ...any) Logger {
	return &slogLogger{logger: l.logger.With(args...)}
}
