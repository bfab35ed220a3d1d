package utils

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger creates a new logger instance
func NewLogger() *slog.Logger {
	return NewLoggerTo(os.Stdout, os.Getenv("LANDREGISTRY_LOG_LEVEL"))
}

// NewLoggerTo creates a text logger writing to w at the named level
func NewLoggerTo(w io.Writer, lvl string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(lvl),
	}

	handler := slog.NewTextHandler(w, opts)
	return slog.New(handler)
}

// ParseLevel maps a level name to a slog level, defaulting to info
func ParseLevel(lvl string) slog.Level {
	switch strings.ToLower(lvl) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
