package cli

import (
	"io"
	"log/slog"
	"strings"
)

// newLogger builds the process logger from the configured level and format.
func newLogger(w io.Writer, level, format string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		logHandler = slog.NewJSONHandler(w, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(w, handlerOpts)
	}
	return slog.New(logHandler)
}
