package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	once   sync.Once
	logger *slog.Logger
)

// Setup initializes the global logger.
// The handler writes to stderr: stdout carries protocol frames to the
// main process and must stay clean. If level is invalid, fallback to INFO.
func Setup(level string) {
	once.Do(func() {
		logger = build(os.Stderr, level)
		slog.SetDefault(logger)
	})
}

// SetupWriter is like Setup but targets an explicit writer. Used by tests
// that assert on log output.
func SetupWriter(w io.Writer, level string) {
	once.Do(func() {
		logger = build(w, level)
		slog.SetDefault(logger)
	})
}

func build(w io.Writer, level string) *slog.Logger {
	var l slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		l = slog.LevelDebug
	case "WARN":
		l = slog.LevelWarn
	case "ERROR":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: l})
	return slog.New(handler).With(slog.Int("pid", os.Getpid()))
}

// Get returns the configured logger, or a default one if Setup hasn't been called.
func Get() *slog.Logger {
	if logger == nil {
		Setup("INFO")
	}
	return logger
}

// WithComponent returns a logger with the component field set.
func WithComponent(name string) *slog.Logger {
	return Get().With(slog.String("component", name))
}

// WithPlugin returns a logger with the plugin field set.
func WithPlugin(id string) *slog.Logger {
	return Get().With(slog.String("plugin", id))
}

// WithProxy returns a logger with the proxy identifier field set.
func WithProxy(id string) *slog.Logger {
	return Get().With(slog.String("proxy", id))
}

// Info logs at INFO level.
func Info(msg string, args ...any) {
	Get().Info(msg, args...)
}

// Debug logs at DEBUG level.
func Debug(msg string, args ...any) {
	Get().Debug(msg, args...)
}

// Warn logs at WARN level.
func Warn(msg string, args ...any) {
	Get().Warn(msg, args...)
}

// Error logs at ERROR level.
func Error(msg string, args ...any) {
	Get().Error(msg, args...)
}
