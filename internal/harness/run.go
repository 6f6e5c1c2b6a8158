package harness

import (
	"context"
	"fmt"
	"time"
)

// RunForDuration starts inv, lets it run for d, then stops it and returns
// its output.
//
// The wait is a plain timer: it does not end early if the child exits (use
// Output.ExitedOnItsOwn to tell). It does end early if ctx is cancelled, in
// which case the output is still returned together with ctx.Err(). The child
// is stopped and reaped on every path, panics included.
func RunForDuration(ctx context.Context, inv Invocation, d time.Duration, opts Options) (out *Output, err error) {
	if d < 0 {
		return nil, fmt.Errorf("run %s: negative duration %v", inv.Name(), d)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h, err := Start(inv, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		out = h.Stop()
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RunUntilExitOrTimeout starts inv and checks every pollInterval that it is
// still alive, for at most maxDuration.
//
// Surviving the full duration is the success path: exitObserved is false and
// err is nil. If the child exits by itself first, exitObserved is true and
// err is an *UnexpectedExitError (errors.Is(err, ErrUnexpectedExit)). The
// child is stopped and reaped on every path.
func RunUntilExitOrTimeout(ctx context.Context, inv Invocation, maxDuration, pollInterval time.Duration, opts Options) (exitObserved bool, out *Output, err error) {
	if maxDuration < 0 {
		return false, nil, fmt.Errorf("run %s: negative duration %v", inv.Name(), maxDuration)
	}
	if pollInterval <= 0 {
		return false, nil, fmt.Errorf("run %s: poll interval must be positive, got %v", inv.Name(), pollInterval)
	}
	if err := ctx.Err(); err != nil {
		return false, nil, err
	}

	h, err := Start(inv, opts)
	if err != nil {
		return false, nil, err
	}
	defer func() {
		out = h.Stop()
		// An exit between the last poll and the deadline is still an exit.
		if err == nil && out.ExitedOnItsOwn() {
			exitObserved = true
		}
		if exitObserved {
			err = &UnexpectedExitError{
				Name:     out.Name,
				ExitCode: out.ExitCode,
				After:    out.Elapsed,
				Output:   out,
			}
		}
	}()

	deadline := time.NewTimer(maxDuration)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-deadline.C:
			return false, nil, nil
		case <-ctx.Done():
			return false, nil, ctx.Err()
		case <-ticker.C:
			if !h.Alive() {
				h.logger.Warn("child_exited_early",
					"pid", h.Pid(),
					"after", time.Since(h.startTime).Round(time.Millisecond).String(),
				)
				return true, nil, nil
			}
		}
	}
}
