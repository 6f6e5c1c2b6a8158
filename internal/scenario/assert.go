package scenario

import (
	"errors"
	"fmt"
	"strings"

	"github.com/randomizedcoder/go-pipeline-harness/internal/harness"
	"github.com/randomizedcoder/go-pipeline-harness/internal/parser"
)

// Sentinels for errors.Is.
var (
	ErrMetricNotFound = errors.New("metric not found")
	ErrErrorSignature = errors.New("error signature in output")
	ErrBelowThreshold = errors.New("metric below threshold")
	ErrUncleanExit    = errors.New("unclean exit")
)

// MetricNotFoundError reports a pipeline whose stdout had no parsable
// reading for any of the labels.
type MetricNotFoundError struct {
	Pipeline string
	Labels   []string
	Output   *harness.Output
}

func (e *MetricNotFoundError) Error() string {
	return fmt.Sprintf("no %s values found in %s output", strings.Join(e.Labels, "/"), e.Pipeline)
}

func (e *MetricNotFoundError) Is(target error) bool { return target == ErrMetricNotFound }

// ErrorSignatureError reports a pipeline whose stderr contained the error
// marker.
type ErrorSignatureError struct {
	Pipeline  string
	Signature parser.ErrorSignature
	Line      string
	Output    *harness.Output
}

func (e *ErrorSignatureError) Error() string {
	return fmt.Sprintf("%s stderr contains %s: %s", e.Pipeline, e.Signature, strings.TrimSpace(e.Line))
}

func (e *ErrorSignatureError) Is(target error) bool { return target == ErrErrorSignature }

// BelowThresholdError reports an average FPS that did not exceed the minimum.
type BelowThresholdError struct {
	Pipeline string
	Average  float64
	Min      float64
}

func (e *BelowThresholdError) Error() string {
	return fmt.Sprintf("%s average FPS %.2f is not above %.2f", e.Pipeline, e.Average, e.Min)
}

func (e *BelowThresholdError) Is(target error) bool { return target == ErrBelowThreshold }

// UncleanExitError reports a pipeline that did not end with status 0 or in
// response to the harness's SIGTERM.
type UncleanExitError struct {
	Pipeline string
	ExitCode int
	Killed   bool
	Output   *harness.Output
}

func (e *UncleanExitError) Error() string {
	if e.Killed {
		return fmt.Sprintf("%s ignored SIGTERM and was killed (code %d)", e.Pipeline, e.ExitCode)
	}
	return fmt.Sprintf("%s exited with code %d", e.Pipeline, e.ExitCode)
}

func (e *UncleanExitError) Is(target error) bool { return target == ErrUncleanExit }

// RequireMetric extracts m's readings from out's stdout and fails if there
// are none.
func RequireMetric(out *harness.Output, m *parser.Matcher) ([]float64, error) {
	values := m.Collect(out.Stdout)
	if len(values) == 0 {
		return nil, &MetricNotFoundError{Pipeline: out.Name, Labels: m.Labels(), Output: out}
	}
	return values, nil
}

// RequireAverageAbove fails unless avg is strictly greater than threshold.
func RequireAverageAbove(pipeline string, avg, threshold float64) error {
	if avg > threshold {
		return nil
	}
	return &BelowThresholdError{Pipeline: pipeline, Average: avg, Min: threshold}
}

// RequireNoErrorSignature fails if out's stderr contains sig.
func RequireNoErrorSignature(out *harness.Output, sig parser.ErrorSignature) error {
	if line, found := sig.Find(out.Stderr); found {
		return &ErrorSignatureError{Pipeline: out.Name, Signature: sig, Line: line, Output: out}
	}
	return nil
}

// RequireCleanExit fails unless out ended cleanly (see harness.Output.Clean).
func RequireCleanExit(out *harness.Output) error {
	if out.Clean() {
		return nil
	}
	return &UncleanExitError{Pipeline: out.Name, ExitCode: out.ExitCode, Killed: out.Killed, Output: out}
}

// requireStoppedByHarness fails if out's child ended before the harness
// signalled it, or did not end cleanly once signalled.
func requireStoppedByHarness(out *harness.Output) error {
	if out.ExitedOnItsOwn() {
		return &harness.UnexpectedExitError{
			Name:     out.Name,
			ExitCode: out.ExitCode,
			After:    out.Elapsed,
			Output:   out,
		}
	}
	return RequireCleanExit(out)
}
