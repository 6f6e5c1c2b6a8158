package scenario

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrInterrupted is the reason recorded for scenarios cut short or never
// started because the run was cancelled.
var ErrInterrupted = errors.New("interrupted")

// Runner executes scenarios one at a time, in order. Pipelines compete for
// the same accelerator, so nothing runs concurrently.
type Runner struct {
	RunID     string
	env       *Environment
	scenarios []Scenario
}

// NewRunner creates a runner with a fresh run ID.
func NewRunner(env *Environment, scenarios ...Scenario) *Runner {
	return &Runner{
		RunID:     uuid.NewString(),
		env:       env,
		scenarios: scenarios,
	}
}

// Scenarios returns the planned scenario names in run order.
func (r *Runner) Scenarios() []string {
	names := make([]string, len(r.scenarios))
	for i, s := range r.scenarios {
		names[i] = s.Name()
	}
	return names
}

// Run executes every scenario and returns one result per scenario, in order.
// A failing scenario does not stop the ones after it. Once ctx is cancelled
// the scenario in flight is marked failed and the rest skipped.
func (r *Runner) Run(ctx context.Context) []*Result {
	logger := r.env.logger().With("run_id", r.RunID)
	results := make([]*Result, 0, len(r.scenarios))

	for _, s := range r.scenarios {
		name := s.Name()
		if ctx.Err() != nil {
			res := skipped(name, ErrInterrupted.Error())
			res.StartedAt = time.Now()
			results = append(results, r.finish(res))
			continue
		}

		logger.Info("scenario_started", "scenario", name)
		if r.env.Hooks.OnScenarioStart != nil {
			r.env.Hooks.OnScenarioStart(name)
		}

		start := time.Now()
		res := s.Run(ctx, r.env)
		if res == nil {
			res = passed(name, nil)
		}
		res.Name = name
		res.StartedAt = start
		res.Elapsed = time.Since(start)

		if ctx.Err() != nil && res.Outcome == OutcomePassed {
			res.Outcome = OutcomeFailed
			res.Err = ErrInterrupted
			res.Reason = ErrInterrupted.Error()
		}

		logger.Info("scenario_finished",
			"scenario", name,
			"outcome", res.Outcome.String(),
			"elapsed", res.Elapsed.Round(time.Millisecond).String(),
			"reason", res.Reason,
		)
		results = append(results, r.finish(res))
	}
	return results
}

func (r *Runner) finish(res *Result) *Result {
	if c := r.env.Collector; c != nil {
		c.ScenarioFinished(res.Name, res.Outcome.String(), res.Elapsed)
	}
	if r.env.Hooks.OnScenarioDone != nil {
		r.env.Hooks.OnScenarioDone(res)
	}
	return res
}
