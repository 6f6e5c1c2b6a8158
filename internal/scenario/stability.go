package scenario

import (
	"context"
	"fmt"
	"time"

	"github.com/randomizedcoder/go-pipeline-harness/internal/config"
	"github.com/randomizedcoder/go-pipeline-harness/internal/harness"
	"github.com/randomizedcoder/go-pipeline-harness/internal/parser"
	"github.com/randomizedcoder/go-pipeline-harness/internal/stats"
)

// LongRunning keeps one pipeline up for Duration, checking every
// PollInterval that it has not exited, then requires its stderr to be free
// of the error marker and the pipeline to stop cleanly on SIGTERM.
type LongRunning struct {
	Script       string
	Input        string
	Duration     time.Duration
	PollInterval time.Duration
	Signature    parser.ErrorSignature
}

func (s *LongRunning) Name() string { return config.ScenarioLongRunning }

func (s *LongRunning) Run(ctx context.Context, env *Environment) *Result {
	pr := PipelineResult{Script: s.Script, Outcome: OutcomeFailed}
	fail := func(err error, run *pipelineRun) *Result {
		pr.Err = err
		env.logFailure(s.Name(), s.Script, err, run)
		return failed(s.Name(), err, []PipelineResult{pr})
	}

	opts, run := env.options(s.Name(), s.Script, s.Duration, s.Signature)
	_, out, err := harness.RunUntilExitOrTimeout(ctx, env.Invocation(s.Script, "--input", s.Input), s.Duration, s.PollInterval, opts)
	pr.Output = out
	pr.FPS = run.fps.Summary()
	if err != nil {
		return fail(err, run)
	}
	if err := RequireNoErrorSignature(out, s.Signature); err != nil {
		return fail(err, run)
	}
	if err := RequireCleanExit(out); err != nil {
		return fail(err, run)
	}

	pr.Outcome = OutcomePassed
	return passed(s.Name(), []PipelineResult{pr})
}

// Camera runs a pipeline on a live camera briefly. It is skipped when the
// device is absent; otherwise stderr must be free of the error marker and
// the pipeline must end cleanly.
type Camera struct {
	Script    string
	Device    string
	Duration  time.Duration
	Signature parser.ErrorSignature
}

func (s *Camera) Name() string { return config.ScenarioCamera }

func (s *Camera) Run(ctx context.Context, env *Environment) *Result {
	if !env.probe().DeviceExists(s.Device) {
		env.logger().Info("scenario_skipped", "scenario", s.Name(), "device", s.Device)
		return skipped(s.Name(), fmt.Sprintf("no camera detected at %s", s.Device))
	}

	pr := PipelineResult{Script: s.Script, Outcome: OutcomeFailed}
	fail := func(err error, run *pipelineRun) *Result {
		pr.Err = err
		env.logFailure(s.Name(), s.Script, err, run)
		return failed(s.Name(), err, []PipelineResult{pr})
	}

	opts, run := env.options(s.Name(), s.Script, s.Duration, s.Signature)
	out, err := harness.RunForDuration(ctx, env.Invocation(s.Script, "--input", s.Device), s.Duration, opts)
	pr.Output = out
	if err != nil {
		return fail(err, run)
	}
	pr.FPS = stats.SummarizeFPS(parser.FPS.Collect(out.Stdout))
	if err := RequireNoErrorSignature(out, s.Signature); err != nil {
		return fail(err, run)
	}
	if err := RequireCleanExit(out); err != nil {
		return fail(err, run)
	}

	pr.Outcome = OutcomePassed
	return passed(s.Name(), []PipelineResult{pr})
}
