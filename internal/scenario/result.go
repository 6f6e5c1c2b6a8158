// Package scenario defines the pipeline checks the harness runs: inference
// speed, long-running stability and the camera smoke test. Each scenario
// drives one or more pipeline processes through internal/harness and judges
// their captured output.
package scenario

import (
	"strings"
	"time"

	"github.com/randomizedcoder/go-pipeline-harness/internal/harness"
	"github.com/randomizedcoder/go-pipeline-harness/internal/stats"
)

// Outcome is the verdict of a scenario or of one pipeline within it.
type Outcome int

const (
	OutcomePassed Outcome = iota
	OutcomeFailed
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomePassed:
		return "passed"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// PipelineResult is what one pipeline run produced.
type PipelineResult struct {
	Script  string
	Outcome Outcome
	Err     error
	FPS     stats.FPSSummary
	Output  *harness.Output
}

// Result is the verdict of one scenario.
type Result struct {
	Name      string
	Outcome   Outcome
	Reason    string
	Err       error
	Pipelines []PipelineResult
	StartedAt time.Time
	Elapsed   time.Duration
}

// Failed reports whether the scenario failed.
func (r *Result) Failed() bool {
	return r.Outcome == OutcomeFailed
}

// FailedOutput returns the captured output of the first failing pipeline,
// or nil.
func (r *Result) FailedOutput() *harness.Output {
	for _, p := range r.Pipelines {
		if p.Outcome == OutcomeFailed && p.Output != nil {
			return p.Output
		}
	}
	return nil
}

func passed(name string, pipelines []PipelineResult) *Result {
	return &Result{Name: name, Outcome: OutcomePassed, Pipelines: pipelines}
}

func failed(name string, err error, pipelines []PipelineResult) *Result {
	return &Result{Name: name, Outcome: OutcomeFailed, Reason: err.Error(), Err: err, Pipelines: pipelines}
}

func skipped(name, reason string) *Result {
	return &Result{Name: name, Outcome: OutcomeSkipped, Reason: reason}
}

// AnyFailed reports whether any result failed.
func AnyFailed(results []*Result) bool {
	for _, r := range results {
		if r.Failed() {
			return true
		}
	}
	return false
}

// Report flattens results into summary rows: one per scenario followed by
// one per pipeline it ran.
func Report(results []*Result) []stats.ReportRow {
	rows := make([]stats.ReportRow, 0, len(results)*2)
	for _, r := range results {
		rows = append(rows, stats.ReportRow{
			Scenario: r.Name,
			Outcome:  r.Outcome.String(),
			Reason:   firstLine(r.Reason),
			Elapsed:  r.Elapsed,
		})
		for _, p := range r.Pipelines {
			row := stats.ReportRow{
				Scenario: r.Name,
				Pipeline: p.Script,
				Outcome:  p.Outcome.String(),
				FPS:      p.FPS,
			}
			if p.Output != nil {
				row.Elapsed = p.Output.Elapsed
				row.ExitCode = p.Output.ExitCode
				row.HasExit = true
			}
			rows = append(rows, row)
		}
	}
	return rows
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
