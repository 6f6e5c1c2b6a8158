package harness

import (
	"fmt"
	"strings"
	"syscall"
	"time"
)

// Output is everything observed about one finished child. Read-only.
type Output struct {
	Name   string
	Pid    int
	Stdout string
	Stderr string

	// ExitCode is the exit status, or 128+signal if the child died of a
	// signal (shell convention).
	ExitCode int
	Signaled bool
	Signal   syscall.Signal

	// SignalSent is true if the harness asked the child to stop; false means
	// the child exited on its own.
	SignalSent bool
	// Killed is true if SIGTERM was ignored past the grace period.
	Killed bool

	StartedAt time.Time
	Elapsed   time.Duration
	WaitErr   error
}

// Clean reports whether the child ended the way a healthy pipeline should:
// status 0, or a prompt exit in response to the harness's own SIGTERM
// (default disposition, or a handler that exits 143).
func (o *Output) Clean() bool {
	if o.ExitCode == 0 && !o.Signaled {
		return true
	}
	return o.SignalSent && !o.Killed && o.ExitCode == 128+int(syscall.SIGTERM)
}

// ExitedOnItsOwn reports whether the child ended before being signalled.
func (o *Output) ExitedOnItsOwn() bool {
	return !o.SignalSent
}

// String renders the captured streams for attaching to a failure.
func (o *Output) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "--- Pipeline Output for %s (pid %d, exit %d) ---\n", o.Name, o.Pid, o.ExitCode)
	b.WriteString(o.Stdout)
	if o.Stdout != "" && !strings.HasSuffix(o.Stdout, "\n") {
		b.WriteString("\n")
	}
	b.WriteString(o.Stderr)
	if o.Stderr != "" && !strings.HasSuffix(o.Stderr, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("----------------------------------")
	return b.String()
}
