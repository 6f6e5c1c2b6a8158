package harness

import (
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
)

// Invocation is an immutable description of one child process: program,
// arguments, and where/how to run it.
//
// The With* methods return modified copies; an Invocation can be shared
// between test cases without aliasing.
type Invocation struct {
	name string
	path string
	args []string
	dir  string
	env  []string
}

// NewInvocation describes running path with args.
func NewInvocation(path string, args ...string) Invocation {
	return Invocation{
		path: path,
		args: slices.Clone(args),
	}
}

// WithName returns a copy labelled name in logs and metrics.
func (inv Invocation) WithName(name string) Invocation {
	inv.name = name
	inv.args = slices.Clone(inv.args)
	inv.env = slices.Clone(inv.env)
	return inv
}

// WithDir returns a copy that runs in dir. Relative program and argument
// paths resolve against it, as they would from a shell in that directory.
func (inv Invocation) WithDir(dir string) Invocation {
	inv.dir = dir
	inv.args = slices.Clone(inv.args)
	inv.env = slices.Clone(inv.env)
	return inv
}

// WithEnv returns a copy with extra KEY=VALUE entries appended to the
// inherited environment.
func (inv Invocation) WithEnv(kv ...string) Invocation {
	inv.args = slices.Clone(inv.args)
	inv.env = append(slices.Clone(inv.env), kv...)
	return inv
}

// Name returns the label, defaulting to the program's base name.
func (inv Invocation) Name() string {
	if inv.name != "" {
		return inv.name
	}
	return filepath.Base(inv.path)
}

// Path returns the program path.
func (inv Invocation) Path() string { return inv.path }

// Args returns a copy of the arguments (without the program).
func (inv Invocation) Args() []string { return slices.Clone(inv.args) }

// Dir returns the working directory ("" means the caller's).
func (inv Invocation) Dir() string { return inv.dir }

// Env returns a copy of the extra environment entries.
func (inv Invocation) Env() []string { return slices.Clone(inv.env) }

// Argv returns program followed by arguments.
func (inv Invocation) Argv() []string {
	return append([]string{inv.path}, inv.args...)
}

// String renders the command line, quoting arguments with spaces.
func (inv Invocation) String() string {
	parts := make([]string, 0, len(inv.args)+1)
	for _, a := range inv.Argv() {
		if a == "" || strings.ContainsAny(a, " \t\"'") {
			a = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// command builds an unstarted exec.Cmd. No context is attached: stopping is
// the Handle's job, so cancellation goes through the grace period instead of
// an immediate SIGKILL.
func (inv Invocation) command() *exec.Cmd {
	cmd := exec.Command(inv.path, inv.args...)
	cmd.Dir = inv.dir
	if len(inv.env) > 0 {
		cmd.Env = append(os.Environ(), inv.env...)
	}
	return cmd
}
