package scenario

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/randomizedcoder/go-pipeline-harness/internal/harness"
	"github.com/randomizedcoder/go-pipeline-harness/internal/logging"
	"github.com/randomizedcoder/go-pipeline-harness/internal/metrics"
	"github.com/randomizedcoder/go-pipeline-harness/internal/parser"
	"github.com/randomizedcoder/go-pipeline-harness/internal/preflight"
	"github.com/randomizedcoder/go-pipeline-harness/internal/stats"
)

// Scenario is one named check.
type Scenario interface {
	Name() string
	Run(ctx context.Context, env *Environment) *Result
}

// Hooks are optional progress callbacks, used by the dashboard. They are
// called from harness goroutines and must not block.
type Hooks struct {
	OnScenarioStart func(name string)
	OnScenarioDone  func(result *Result)
	OnPipelineStart func(scenario, pipeline string, planned time.Duration)
	OnChildState    func(pipeline string, state harness.State)
	OnFPS           func(pipeline string, fps float64)
}

// Environment is everything scenarios share: where the pipelines live, how
// children are supervised, and where progress is reported.
type Environment struct {
	Python       string
	WorkDir      string
	PipelinesDir string
	Env          []string

	Probe     preflight.Probe
	Logger    *slog.Logger
	Collector *metrics.Collector // may be nil
	Hooks     Hooks
	Verbose   bool

	// Options is the base supervision config for every child. Callbacks and
	// live parsers are filled in per run.
	Options harness.Options
}

func (e *Environment) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func (e *Environment) probe() preflight.Probe {
	if e.Probe == nil {
		return preflight.OSProbe{}
	}
	return e.Probe
}

// Invocation builds the command for a pipeline script:
// <python> <pipelines-dir>/<script> args...
func (e *Environment) Invocation(script string, args ...string) harness.Invocation {
	argv := append([]string{filepath.Join(e.PipelinesDir, script)}, args...)
	return harness.NewInvocation(e.Python, argv...).
		WithName(script).
		WithDir(e.WorkDir).
		WithEnv(e.Env...)
}

// pipelineRun is the live state of one child: its FPS tracker and stderr
// handler.
type pipelineRun struct {
	fps    *stats.FPSTracker
	stderr *logging.StderrHandler
}

// options derives per-run supervision options wiring the child's events to
// the collector, the hooks and the live parsers. A non-empty sig is also
// watched on live stderr so its first hit is logged while the child runs.
func (e *Environment) options(scenario, script string, planned time.Duration, sig parser.ErrorSignature) (harness.Options, *pipelineRun) {
	logger := e.logger().With("scenario", scenario)
	run := &pipelineRun{
		fps:    stats.NewFPSTracker(),
		stderr: logging.NewStderrHandler(script, logger, e.Verbose),
	}

	opts := e.Options
	opts.Logger = logger
	opts.StdoutParser = parser.NewMetricParser(parser.FPS, func(s parser.Sample) {
		run.fps.Add(s.Value)
		if e.Collector != nil {
			e.Collector.ObserveFPS(script, s.Value)
		}
		if e.Hooks.OnFPS != nil {
			e.Hooks.OnFPS(script, s.Value)
		}
	})
	opts.StderrParser = run.stderr
	if sig.Marker != "" {
		var seen atomic.Bool
		opts.StderrParser = parser.MultiParser{run.stderr, sig.Watch(func(line string) {
			if seen.CompareAndSwap(false, true) {
				logger.Warn("error_signature_seen",
					"pipeline", script,
					"signature", sig.String(),
					"line", line,
				)
			}
		})}
	}
	opts.Callbacks = harness.Callbacks{
		OnStateChange: func(name string, _, newState harness.State) {
			if e.Hooks.OnChildState != nil {
				e.Hooks.OnChildState(name, newState)
			}
		},
		OnStart: func(name string, _ int) {
			if e.Collector != nil {
				e.Collector.ChildStarted(name)
			}
		},
		OnReaped: func(name string, out *harness.Output) {
			if e.Collector != nil {
				e.Collector.ChildReaped(name, out.ExitCode, out.Killed, out.Elapsed)
			}
		},
	}

	if e.Hooks.OnPipelineStart != nil {
		e.Hooks.OnPipelineStart(scenario, script, planned)
	}
	return opts, run
}

// logFailure records a failed pipeline with the tail of its stderr.
func (e *Environment) logFailure(scenario, script string, err error, run *pipelineRun) {
	attrs := []any{
		"scenario", scenario,
		"pipeline", script,
		"error", err,
	}
	if run != nil {
		if tail := run.stderr.RecentLines(10); len(tail) > 0 {
			attrs = append(attrs, "stderr_tail", tail)
		}
		if counts := run.stderr.CountErrors(); len(counts) > 0 {
			attrs = append(attrs, "stderr_errors", counts)
		}
	}
	e.logger().Warn("pipeline_failed", attrs...)
}
