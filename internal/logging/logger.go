// Package logging builds the harness's structured loggers and turns the
// stderr of pipeline children into log records.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Formats accepted by -log-format.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// NewLogger creates the process logger on stderr.
// Format is "json" or "text" (anything else falls back to JSON).
// Verbose forces debug level and adds source locations.
func NewLogger(format, level string, verbose bool) *slog.Logger {
	logLevel := parseLevel(level)
	if verbose {
		logLevel = slog.LevelDebug
	}
	return build(os.Stderr, format, &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: logLevel == slog.LevelDebug,
	})
}

// NewLoggerWithWriter creates a logger that writes to w. A nil w discards.
func NewLoggerWithWriter(w io.Writer, format, level string) *slog.Logger {
	if w == nil {
		w = io.Discard
	}
	return build(w, format, &slog.HandlerOptions{Level: parseLevel(level)})
}

// Discard returns a logger that drops everything, used while the TUI owns
// the terminal.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func build(w io.Writer, format string, opts *slog.HandlerOptions) *slog.Logger {
	var handler slog.Handler
	switch strings.ToLower(format) {
	case FormatText:
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

// ValidateFormat rejects formats other than json and text.
func ValidateFormat(format string) error {
	switch strings.ToLower(format) {
	case FormatJSON, FormatText:
		return nil
	}
	return fmt.Errorf("unknown log format %q (want json or text)", format)
}

// ValidateLevel rejects level names parseLevel would silently map to info.
func ValidateLevel(level string) error {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "warning", "error":
		return nil
	}
	return fmt.Errorf("unknown log level %q", level)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// SetDefault sets the default logger for the slog package.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}
