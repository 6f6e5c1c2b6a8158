package scenario

import (
	"context"
	"time"

	"github.com/randomizedcoder/go-pipeline-harness/internal/config"
	"github.com/randomizedcoder/go-pipeline-harness/internal/harness"
	"github.com/randomizedcoder/go-pipeline-harness/internal/parser"
	"github.com/randomizedcoder/go-pipeline-harness/internal/stats"
)

// InferenceSpeed runs each model pipeline on the sample video for a fixed
// time and requires its average FPS to exceed MinFPS. Each pipeline must
// still be running when the timer fires and must stop on SIGTERM. It stops
// at the first failing model.
type InferenceSpeed struct {
	Models   []string
	Input    string
	Duration time.Duration
	MinFPS   float64

	// Matcher selects the FPS lines; nil means parser.FPS.
	Matcher *parser.Matcher
}

func (s *InferenceSpeed) Name() string { return config.ScenarioInferenceSpeed }

func (s *InferenceSpeed) Run(ctx context.Context, env *Environment) *Result {
	matcher := s.Matcher
	if matcher == nil {
		matcher = parser.FPS
	}
	matcher = matcher.WithLogger(env.logger())

	pipelines := make([]PipelineResult, 0, len(s.Models))
	for _, model := range s.Models {
		pr := s.runModel(ctx, env, model, matcher)
		pipelines = append(pipelines, pr)
		if pr.Outcome == OutcomeFailed {
			return failed(s.Name(), pr.Err, pipelines)
		}
	}
	return passed(s.Name(), pipelines)
}

func (s *InferenceSpeed) runModel(ctx context.Context, env *Environment, model string, matcher *parser.Matcher) PipelineResult {
	pr := PipelineResult{Script: model, Outcome: OutcomeFailed}

	opts, run := env.options(s.Name(), model, s.Duration, parser.ErrorSignature{})
	out, err := harness.RunForDuration(ctx, env.Invocation(model, "--input", s.Input), s.Duration, opts)
	pr.Output = out
	if err != nil {
		pr.Err = err
		env.logFailure(s.Name(), model, err, run)
		return pr
	}

	if err := requireStoppedByHarness(out); err != nil {
		pr.Err = err
		env.logFailure(s.Name(), model, err, run)
		return pr
	}

	values, err := RequireMetric(out, matcher)
	if err != nil {
		pr.Err = err
		env.logFailure(s.Name(), model, err, run)
		return pr
	}

	pr.FPS = stats.SummarizeFPS(values)
	if env.Collector != nil {
		env.Collector.SetFPSAverage(model, pr.FPS.Mean)
	}
	env.logger().Info("pipeline_fps",
		"scenario", s.Name(),
		"pipeline", model,
		"samples", pr.FPS.Count,
		"avg", pr.FPS.Mean,
		"p5", pr.FPS.P5,
		"p95", pr.FPS.P95,
	)

	if err := RequireAverageAbove(model, pr.FPS.Mean, s.MinFPS); err != nil {
		pr.Err = err
		env.logFailure(s.Name(), model, err, run)
		return pr
	}

	pr.Outcome = OutcomePassed
	return pr
}
