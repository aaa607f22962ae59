// Package log is the process-wide slog logger for armplan, with an optional
// lumberjack-rotated JSON file next to the console output.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger *slog.Logger
	once   sync.Once
)

// FileOptions configures the optional rotating log file.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Init sets up console-only logging at level ("debug", "info", "warn" or
// "error"). Only the first Init or InitWithFile call takes effect.
func Init(level string) {
	InitWithFile(level, FileOptions{})
}

// InitWithFile initializes the global logger and, when file.Path is set,
// mirrors every record as JSON into a size-rotated file.
func InitWithFile(level string, file FileOptions) {
	once.Do(func() {
		logger = slog.New(newHandler(os.Stdout, level, file))
		slog.SetDefault(logger)
	})
}

func newHandler(console io.Writer, level string, file FileOptions) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}

	// GO_ENV=production switches the console to JSON.
	var h slog.Handler
	if os.Getenv("GO_ENV") == "production" {
		h = slog.NewJSONHandler(console, opts)
	} else {
		h = slog.NewTextHandler(console, opts)
	}

	if file.Path == "" {
		return h
	}

	rotator := &lumberjack.Logger{
		Filename:   file.Path,
		MaxSize:    file.MaxSizeMB,
		MaxBackups: file.MaxBackups,
		MaxAge:     file.MaxAgeDays,
		Compress:   file.Compress,
	}
	return &teeHandler{handlers: []slog.Handler{h, slog.NewJSONHandler(rotator, opts)}}
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// L returns the global logger instance.
func L() *slog.Logger {
	if logger == nil {
		Init("info")
	}
	return logger
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	L().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	L().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	L().Error(msg, args...)
}

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}
