// Package harness runs external pipeline programs for a bounded time and
// hands back everything they printed.
//
// A child always ends up reaped: every exit path of RunForDuration and
// RunUntilExitOrTimeout (including panics and context cancellation) goes
// through Handle.Stop, which signals the child's process group, escalates to
// SIGKILL after a grace period, and waits for the exit status.
package harness

// State is the lifecycle position of a single child process.
//
//	NotStarted -> Running -> SignalSent -> Reaped
//	NotStarted -> Running -> Exited     -> Reaped
type State int

const (
	// StateNotStarted is the state before the process has been spawned.
	StateNotStarted State = iota

	// StateRunning indicates the child is alive.
	StateRunning

	// StateExited indicates the child ended on its own, before any signal.
	StateExited

	// StateSignalSent indicates the harness asked the child to stop.
	StateSignalSent

	// StateReaped indicates the exit status has been collected. Terminal.
	StateReaped
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateSignalSent:
		return "signal_sent"
	case StateReaped:
		return "reaped"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transition can happen.
func (s State) IsTerminal() bool {
	return s == StateReaped
}

// canTransition encodes the allowed edges of the lifecycle.
func canTransition(from, to State) bool {
	switch from {
	case StateNotStarted:
		return to == StateRunning
	case StateRunning:
		return to == StateExited || to == StateSignalSent
	case StateExited, StateSignalSent:
		return to == StateReaped
	default:
		return false
	}
}
