package stats

import (
	"strings"
	"testing"
	"time"
)

// =============================================================================
// Table-Driven Tests: Formatting Functions
// =============================================================================

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		want     string
	}{
		{"zero", 0, "00:00:00"},
		{"one second", time.Second, "00:00:01"},
		{"one minute", time.Minute, "00:01:00"},
		{"stability run", 6 * time.Minute, "00:06:00"},
		{"mixed", 2*time.Hour + 30*time.Minute + 45*time.Second, "02:30:45"},
		{"sub-second", 500 * time.Millisecond, "00:00:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatDuration(tt.duration); got != tt.want {
				t.Errorf("FormatDuration(%v) = %q, want %q", tt.duration, got, tt.want)
			}
		})
	}
}

func TestFormatFPS(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.0"},
		{29.97, "30.0"},
		{42.54, "42.5"},
		{120, "120.0"},
	}
	for _, tt := range tests {
		if got := FormatFPS(tt.in); got != tt.want {
			t.Errorf("FormatFPS(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExitCodeLabel(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{0, "(clean)"},
		{1, "(error)"},
		{137, "(SIGKILL)"},
		{139, "(SIGSEGV)"},
		{143, "(SIGTERM)"},
		{2, ""},
	}
	for _, tt := range tests {
		if got := exitCodeLabel(tt.code); got != tt.want {
			t.Errorf("exitCodeLabel(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

// =============================================================================
// FormatExitSummary
// =============================================================================

func sampleRows() []ReportRow {
	return []ReportRow{
		{Scenario: "inference_speed", Outcome: "passed", Elapsed: 3 * time.Minute},
		{Scenario: "inference_speed", Pipeline: "detection.py", Outcome: "passed",
			FPS: SummarizeFPS([]float64{29, 30, 31}), Elapsed: time.Minute, HasExit: true, ExitCode: 143},
		{Scenario: "long_running", Outcome: "failed", Reason: "detection.py exited unexpectedly after 2s with code 1",
			Elapsed: 2 * time.Second},
		{Scenario: "camera", Outcome: "skipped", Reason: "/dev/video0 not present"},
	}
}

func TestFormatExitSummary(t *testing.T) {
	cfg := SummaryConfig{
		RunID:           "3f2a7c1e-0000-4000-8000-000000000000",
		Version:         "v1.0.0",
		Duration:        3*time.Minute + 2*time.Second,
		MinFPS:          10,
		MetricsAddr:     "127.0.0.1:9090",
		MetricsTextfile: "/var/lib/node_exporter/harness.prom",
		ChildStarts:     4,
		ForceKills:      1,
		ExitCodes:       map[int]int{143: 3, 1: 1},
	}

	out := FormatExitSummary(sampleRows(), cfg)

	for _, want := range []string{
		"Pipeline Harness Exit Summary",
		"Run ID:                 3f2a7c1e",
		"Run Duration:           00:03:02",
		"Minimum FPS:            10.0",
		"1 passed, 1 failed, 1 skipped",
		"inference_speed",
		"  detection.py",
		"30.0",
		"✗ FAIL",
		"exited unexpectedly after 2s",
		"⚠ skip",
		"/dev/video0 not present",
		"Force Kills:          1",
		"143 (SIGTERM)",
		"http://127.0.0.1:9090/metrics",
		"harness.prom",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q\n%s", want, out)
		}
	}

	// Exit codes sorted ascending.
	if strings.Index(out, "  1 (error)") > strings.Index(out, "143 (SIGTERM)") {
		t.Error("exit codes not sorted")
	}
}

func TestFormatExitSummary_Minimal(t *testing.T) {
	out := FormatExitSummary(nil, SummaryConfig{Duration: time.Second})

	if !strings.Contains(out, "0 passed, 0 failed, 0 skipped") {
		t.Errorf("unexpected summary:\n%s", out)
	}
	for _, absent := range []string{"Results", "Lifecycle", "Exit Codes", "Metrics endpoint", "Run ID"} {
		if strings.Contains(out, absent) {
			t.Errorf("minimal summary should not contain %q:\n%s", absent, out)
		}
	}
}

func TestFormatExitSummary_PassedReasonHidden(t *testing.T) {
	rows := []ReportRow{{Scenario: "camera", Outcome: "passed", Reason: "ran on /dev/video0"}}
	if out := FormatExitSummary(rows, SummaryConfig{}); strings.Contains(out, "ran on /dev/video0") {
		t.Errorf("reason shown for passed row:\n%s", out)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	if got := truncate("instance_segmentation.py-long", 10); got != "instance_…" {
		t.Errorf("truncate(long) = %q", got)
	}
}
