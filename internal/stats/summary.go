package stats

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	heavyRule = "═══════════════════════════════════════════════════════════════════════════════\n"
	lightRule = "───────────────────────────────────────────────────────────────────────────────\n"
)

// ReportRow is one line of the results table: a scenario, or one pipeline
// within a scenario.
type ReportRow struct {
	Scenario string
	Pipeline string // empty for scenario-level rows
	Outcome  string // "passed", "failed" or "skipped"
	Reason   string
	FPS      FPSSummary
	Elapsed  time.Duration

	// ExitCode is meaningful only when HasExit is set.
	ExitCode int
	HasExit  bool
}

// SummaryConfig holds run-wide information for the exit summary.
type SummaryConfig struct {
	RunID    string
	Version  string
	Duration time.Duration

	// MinFPS is the inference threshold, shown for context.
	MinFPS float64

	// MetricsAddr is the Prometheus metrics endpoint address, if any.
	MetricsAddr string

	// MetricsTextfile is where the final metrics were written, if anywhere.
	MetricsTextfile string

	// ChildStarts and ForceKills come from metrics.Collector.
	ChildStarts int
	ForceKills  int

	// ExitCodes counts child exit codes across the run.
	ExitCodes map[int]int
}

// FormatExitSummary renders the results table and run information.
func FormatExitSummary(rows []ReportRow, cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(heavyRule)
	b.WriteString("                        Pipeline Harness Exit Summary\n")
	b.WriteString(heavyRule + "\n")

	if cfg.RunID != "" {
		fmt.Fprintf(&b, "Run ID:                 %s\n", cfg.RunID)
	}
	if cfg.Version != "" {
		fmt.Fprintf(&b, "Version:                %s\n", cfg.Version)
	}
	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(cfg.Duration))
	if cfg.MinFPS > 0 {
		fmt.Fprintf(&b, "Minimum FPS:            %s\n", FormatFPS(cfg.MinFPS))
	}
	passed, failed, skipped := countOutcomes(rows)
	fmt.Fprintf(&b, "Scenarios:              %d passed, %d failed, %d skipped\n\n", passed, failed, skipped)

	if len(rows) > 0 {
		b.WriteString(section("Results"))
		fmt.Fprintf(&b, "  %-34s %-8s %8s %8s %8s %9s\n", "Scenario / Pipeline", "Outcome", "Avg FPS", "P5", "P95", "Elapsed")
		b.WriteString("  " + strings.Repeat("─", 80) + "\n")
		for _, r := range rows {
			name := r.Scenario
			if r.Pipeline != "" {
				name = "  " + r.Pipeline
			}
			avg, p5, p95 := "-", "-", "-"
			if !r.FPS.Empty() {
				avg, p5, p95 = FormatFPS(r.FPS.Mean), FormatFPS(r.FPS.P5), FormatFPS(r.FPS.P95)
			}
			elapsed := "-"
			if r.Elapsed > 0 {
				elapsed = FormatDuration(r.Elapsed)
			}
			fmt.Fprintf(&b, "  %-34s %-8s %8s %8s %8s %9s\n", truncate(name, 34), outcomeMark(r.Outcome), avg, p5, p95, elapsed)
			if r.Reason != "" && r.Outcome != "passed" {
				fmt.Fprintf(&b, "      %s\n", r.Reason)
			}
		}
		b.WriteString("\n")
	}

	if cfg.ChildStarts > 0 || cfg.ForceKills > 0 {
		b.WriteString(section("Lifecycle"))
		fmt.Fprintf(&b, "  Child Starts:         %d\n", cfg.ChildStarts)
		fmt.Fprintf(&b, "  Force Kills:          %d\n\n", cfg.ForceKills)
	}

	if len(cfg.ExitCodes) > 0 {
		b.WriteString(section("Exit Codes"))
		codes := make([]int, 0, len(cfg.ExitCodes))
		for code := range cfg.ExitCodes {
			codes = append(codes, code)
		}
		slices.Sort(codes)
		for _, code := range codes {
			fmt.Fprintf(&b, "  %3d %-16s %d\n", code, exitCodeLabel(code), cfg.ExitCodes[code])
		}
		b.WriteString("\n")
	}

	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}
	if cfg.MetricsTextfile != "" {
		fmt.Fprintf(&b, "Metrics written to:   %s\n", cfg.MetricsTextfile)
	}

	b.WriteString(heavyRule)
	return b.String()
}

func section(title string) string {
	pad := max(0, (len(lightRule)/3-len(title))/2)
	return lightRule + strings.Repeat(" ", pad) + title + "\n" + lightRule + "\n"
}

func countOutcomes(rows []ReportRow) (passed, failed, skipped int) {
	for _, r := range rows {
		if r.Pipeline != "" {
			continue
		}
		switch r.Outcome {
		case "passed":
			passed++
		case "failed":
			failed++
		case "skipped":
			skipped++
		}
	}
	return passed, failed, skipped
}

func outcomeMark(outcome string) string {
	switch outcome {
	case "passed":
		return "✓ pass"
	case "failed":
		return "✗ FAIL"
	case "skipped":
		return "⚠ skip"
	default:
		return outcome
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

// exitCodeLabel returns a human-readable label for common exit codes.
func exitCodeLabel(code int) string {
	switch code {
	case 0:
		return "(clean)"
	case 1:
		return "(error)"
	case 137:
		return "(SIGKILL)"
	case 139:
		return "(SIGSEGV)"
	case 143:
		return "(SIGTERM)"
	default:
		return ""
	}
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatFPS formats a frame rate with one decimal.
func FormatFPS(fps float64) string {
	return fmt.Sprintf("%.1f", fps)
}
