package harness

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnexpectedExit matches any UnexpectedExitError via errors.Is.
var ErrUnexpectedExit = errors.New("process exited unexpectedly")

// LaunchError reports that the program could not be found or started.
// errors.Is(err, exec.ErrNotFound) and os.ErrNotExist work through Unwrap.
type LaunchError struct {
	Name string
	Path string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s (%s): %v", e.Name, e.Path, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// UnexpectedExitError reports a child that ended before the harness stopped
// it. Output holds everything it printed.
type UnexpectedExitError struct {
	Name     string
	ExitCode int
	After    time.Duration
	Output   *Output
}

func (e *UnexpectedExitError) Error() string {
	return fmt.Sprintf("%s exited unexpectedly after %s with code %d",
		e.Name, e.After.Round(time.Millisecond), e.ExitCode)
}

// Is makes errors.Is(err, ErrUnexpectedExit) true.
func (e *UnexpectedExitError) Is(target error) bool {
	return target == ErrUnexpectedExit
}
