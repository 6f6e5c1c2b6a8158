package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

const (
	// MaxLineLength is the longest stderr line kept before truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is how many recent lines each handler remembers.
	MaxBufferedLines = 100
)

// StderrHandler logs a pipeline's stderr line by line and remembers the
// most recent lines for failure reports. It satisfies parser.LineParser, so
// it can be handed to the harness as a live stderr parser.
type StderrHandler struct {
	pipeline string
	logger   *slog.Logger
	verbose  bool

	mu     sync.Mutex
	buffer []string
	bufIdx int
	total  int
}

// NewStderrHandler creates a handler for one pipeline run.
func NewStderrHandler(pipeline string, logger *slog.Logger, verbose bool) *StderrHandler {
	return &StderrHandler{
		pipeline: pipeline,
		logger:   logger,
		verbose:  verbose,
		buffer:   make([]string, MaxBufferedLines),
	}
}

// ParseLine records and logs one stderr line.
func (h *StderrHandler) ParseLine(line string) {
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}

	h.mu.Lock()
	h.buffer[h.bufIdx] = line
	h.bufIdx = (h.bufIdx + 1) % MaxBufferedLines
	h.total++
	h.mu.Unlock()

	level := classifyLine(line)
	if !h.verbose && level == slog.LevelDebug {
		return
	}
	h.logger.Log(context.Background(), level, "pipeline_stderr",
		"pipeline", h.pipeline,
		"line", line,
	)
}

// classifyLine picks a log level for a line of Python/GStreamer stderr.
func classifyLine(line string) slog.Level {
	lower := strings.ToLower(line)

	switch {
	case strings.HasPrefix(line, "Traceback"),
		strings.Contains(lower, "exception"),
		strings.Contains(lower, "segmentation fault"),
		strings.Contains(lower, "critical"),
		strings.Contains(lower, "error"):
		return slog.LevelWarn
	case strings.Contains(line, "WARN"),
		strings.Contains(lower, "warning"),
		strings.Contains(lower, "deprecat"):
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// Lines returns how many lines have been handled in total.
func (h *StderrHandler) Lines() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}

// RecentLines returns up to n of the latest lines, oldest first.
func (h *StderrHandler) RecentLines(n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	n = min(n, MaxBufferedLines, h.total)
	lines := make([]string, 0, n)
	for i := range n {
		idx := (h.bufIdx - n + i + MaxBufferedLines) % MaxBufferedLines
		lines = append(lines, h.buffer[idx])
	}
	return lines
}

// ErrorPatterns are the failure markers counted for the exit summary.
var ErrorPatterns = []string{
	"Traceback",
	"Error",
	"Exception",
	"Segmentation fault",
	"CRITICAL",
	"No such file",
	"Could not open",
	"HAILO_",
}

// CountErrors counts error patterns across the buffered lines.
func (h *StderrHandler) CountErrors() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()

	counts := make(map[string]int)
	for _, line := range h.buffer {
		if line == "" {
			continue
		}
		for _, pattern := range ErrorPatterns {
			if strings.Contains(line, pattern) {
				counts[pattern]++
			}
		}
	}
	return counts
}
