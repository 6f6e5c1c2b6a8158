package logging

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"trace", slog.LevelInfo},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			if result := parseLevel(tc.input); result != tc.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tc.input, result, tc.expected)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	for _, f := range []string{"json", "TEXT"} {
		if err := ValidateFormat(f); err != nil {
			t.Errorf("ValidateFormat(%q) = %v", f, err)
		}
	}
	if err := ValidateFormat("logfmt"); err == nil {
		t.Error("ValidateFormat(logfmt) should fail")
	}
	for _, l := range []string{"debug", "info", "Warn", "warning", "error"} {
		if err := ValidateLevel(l); err != nil {
			t.Errorf("ValidateLevel(%q) = %v", l, err)
		}
	}
	if err := ValidateLevel("trace"); err == nil {
		t.Error("ValidateLevel(trace) should fail")
	}
}

func TestNewLogger_Formats(t *testing.T) {
	for _, format := range []string{"json", "text", "JSON", "", "invalid"} {
		t.Run(format, func(t *testing.T) {
			if NewLogger(format, "info", false) == nil {
				t.Error("NewLogger returned nil")
			}
		})
	}
}

func TestNewLoggerWithWriter_Formats(t *testing.T) {
	testCases := []struct {
		format string
		want   string
	}{
		{"json", `"msg":"scenario_started"`},
		{"text", "msg=scenario_started"},
		{"", `"msg":"scenario_started"`},
	}

	for _, tc := range testCases {
		t.Run(tc.format, func(t *testing.T) {
			var buf bytes.Buffer
			NewLoggerWithWriter(&buf, tc.format, "info").Info("scenario_started", "scenario", "long_running")
			if !strings.Contains(buf.String(), tc.want) {
				t.Errorf("output %q does not contain %q", buf.String(), tc.want)
			}
		})
	}
}

func TestNewLoggerWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "text", "warn")

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")

	output := buf.String()
	if strings.Contains(output, "debug message") || strings.Contains(output, "info message") {
		t.Errorf("warn-level logger leaked lower levels: %s", output)
	}
	if !strings.Contains(output, "warn message") {
		t.Errorf("warn message missing: %s", output)
	}
}

func TestNewLoggerWithWriter_NilWriter(t *testing.T) {
	logger := NewLoggerWithWriter(nil, "json", "info")
	logger.Info("goes nowhere")
}

func TestSetDefault(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	var buf bytes.Buffer
	SetDefault(NewLoggerWithWriter(&buf, "text", "info"))
	slog.Info("via default")
	if !strings.Contains(buf.String(), "via default") {
		t.Errorf("default logger not replaced: %q", buf.String())
	}
}

// =============================================================================
// StderrHandler
// =============================================================================

func TestStderrHandler_ClassifyLine(t *testing.T) {
	testCases := []struct {
		line string
		want slog.Level
	}{
		{"Traceback (most recent call last):", slog.LevelWarn},
		{"RuntimeError: HEF file not found", slog.LevelWarn},
		{"gst_element_link failed: error linking", slog.LevelWarn},
		{"Exception in thread Thread-1", slog.LevelWarn},
		{"Segmentation fault (core dumped)", slog.LevelWarn},
		{"0:00:00.1 WARN  hailonet gsthailonet.cpp:42", slog.LevelInfo},
		{"DeprecationWarning: use foo instead", slog.LevelInfo},
		{"FPS: 29.97", slog.LevelDebug},
		{"", slog.LevelDebug},
	}

	for _, tc := range testCases {
		t.Run(tc.line, func(t *testing.T) {
			if got := classifyLine(tc.line); got != tc.want {
				t.Errorf("classifyLine(%q) = %v, want %v", tc.line, got, tc.want)
			}
		})
	}
}

func TestStderrHandler_VerboseLogging(t *testing.T) {
	testCases := []struct {
		verbose  bool
		wantFPS  bool
		wantWarn bool
	}{
		{false, false, true},
		{true, true, true},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("verbose=%v", tc.verbose), func(t *testing.T) {
			var buf bytes.Buffer
			h := NewStderrHandler("detection.py", NewLoggerWithWriter(&buf, "text", "debug"), tc.verbose)

			h.ParseLine("FPS: 30.1")
			h.ParseLine("Traceback (most recent call last):")

			out := buf.String()
			if got := strings.Contains(out, "FPS: 30.1"); got != tc.wantFPS {
				t.Errorf("FPS line logged = %v, want %v", got, tc.wantFPS)
			}
			if got := strings.Contains(out, "Traceback"); got != tc.wantWarn {
				t.Errorf("traceback logged = %v, want %v", got, tc.wantWarn)
			}
			if !strings.Contains(out, "pipeline=detection.py") && tc.wantWarn {
				t.Errorf("pipeline attr missing: %s", out)
			}
		})
	}
}

func TestStderrHandler_Truncation(t *testing.T) {
	h := NewStderrHandler("x", Discard(), false)
	h.ParseLine(strings.Repeat("a", MaxLineLength+100))

	lines := h.RecentLines(1)
	if len(lines) != 1 {
		t.Fatalf("RecentLines(1) = %d lines", len(lines))
	}
	if !strings.HasSuffix(lines[0], "...(truncated)") || len(lines[0]) != MaxLineLength+len("...(truncated)") {
		t.Errorf("line not truncated, len=%d", len(lines[0]))
	}
}

func TestStderrHandler_RecentLines(t *testing.T) {
	h := NewStderrHandler("x", Discard(), false)
	if got := h.RecentLines(5); len(got) != 0 {
		t.Errorf("empty handler returned %v", got)
	}

	for i := range MaxBufferedLines + 10 {
		h.ParseLine(fmt.Sprintf("line %d", i))
	}

	got := h.RecentLines(3)
	want := []string{
		fmt.Sprintf("line %d", MaxBufferedLines+7),
		fmt.Sprintf("line %d", MaxBufferedLines+8),
		fmt.Sprintf("line %d", MaxBufferedLines+9),
	}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("RecentLines(3) = %v, want %v", got, want)
	}
	if all := h.RecentLines(1000); len(all) != MaxBufferedLines {
		t.Errorf("RecentLines(1000) = %d lines, want %d", len(all), MaxBufferedLines)
	}
	if h.Lines() != MaxBufferedLines+10 {
		t.Errorf("Lines() = %d", h.Lines())
	}
}

func TestStderrHandler_CountErrors(t *testing.T) {
	h := NewStderrHandler("x", Discard(), false)
	for _, line := range []string{
		"Traceback (most recent call last):",
		"  File \"detection.py\", line 12",
		"FileNotFoundError: No such file or directory",
		"HAILO_OUT_OF_PHYSICAL_DEVICES",
		"ok",
	} {
		h.ParseLine(line)
	}

	counts := h.CountErrors()
	want := map[string]int{"Traceback": 1, "Error": 1, "No such file": 1, "HAILO_": 1}
	for k, v := range want {
		if counts[k] != v {
			t.Errorf("counts[%q] = %d, want %d", k, counts[k], v)
		}
	}
	if counts["Exception"] != 0 {
		t.Errorf("counts[Exception] = %d", counts["Exception"])
	}
}

func TestStderrHandler_Concurrent(t *testing.T) {
	h := NewStderrHandler("x", Discard(), true)
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				h.ParseLine(fmt.Sprintf("g%d line %d", g, i))
				_ = h.RecentLines(5)
			}
		}()
	}
	wg.Wait()
	if h.Lines() != 400 {
		t.Errorf("Lines() = %d, want 400", h.Lines())
	}
}
