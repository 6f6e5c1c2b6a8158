// Package preflight checks that the machine can run the pipelines before any
// scenario starts, and exposes the environment probe scenarios use to decide
// whether optional hardware is present.
package preflight

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"
)

// Probe answers questions about the environment. OSProbe asks the real
// machine; tests substitute their own.
type Probe interface {
	DeviceExists(path string) bool
	FileExists(path string) bool
	LookPath(name string) (string, error)
}

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// Requirements lists what the selected scenarios need. Paths are final:
// relative paths are resolved against the working directory by the caller.
type Requirements struct {
	Interpreter string
	Scripts     []string
	Input       string

	// CameraDevice is checked as a warning only; an absent camera makes the
	// camera scenario skip rather than fail. Empty means not needed.
	CameraDevice string

	// MinOpenFiles defaults to 256.
	MinOpenFiles int
}

// RunAll executes all preflight checks against probe.
func RunAll(probe Probe, req Requirements) *Result {
	result := &Result{
		Checks: make([]Check, 0, 6),
		Passed: true,
	}
	add := func(c Check) {
		result.Checks = append(result.Checks, c)
		if !c.Passed {
			result.Passed = false
		}
	}

	if req.Interpreter != "" {
		add(checkInterpreter(probe, req.Interpreter))
	}
	if len(req.Scripts) > 0 {
		add(checkScripts(probe, req.Scripts))
	}
	if req.Input != "" {
		add(checkInput(probe, req.Input))
	}
	if req.CameraDevice != "" {
		add(checkCamera(probe, req.CameraDevice))
	}

	minFiles := req.MinOpenFiles
	if minFiles <= 0 {
		minFiles = 256
	}
	add(checkFileDescriptors(minFiles))
	add(checkProcessLimit())

	return result
}

func checkInterpreter(probe Probe, name string) Check {
	path, err := probe.LookPath(name)
	if err != nil {
		return Check{
			Name:    "interpreter",
			Passed:  false,
			Message: fmt.Sprintf("%s not found: %v", name, err),
		}
	}
	return Check{
		Name:    "interpreter",
		Passed:  true,
		Message: fmt.Sprintf("found at %s", path),
	}
}

func checkScripts(probe Probe, scripts []string) Check {
	var missing []string
	for _, s := range scripts {
		if !probe.FileExists(s) {
			missing = append(missing, s)
		}
	}
	if len(missing) > 0 {
		return Check{
			Name:    "pipeline_scripts",
			Passed:  false,
			Message: "missing " + strings.Join(missing, ", "),
		}
	}
	return Check{
		Name:    "pipeline_scripts",
		Passed:  true,
		Message: fmt.Sprintf("%d found", len(scripts)),
	}
}

func checkInput(probe Probe, path string) Check {
	if !probe.FileExists(path) {
		return Check{
			Name:    "input_video",
			Passed:  false,
			Message: fmt.Sprintf("%s not found", path),
		}
	}
	return Check{
		Name:    "input_video",
		Passed:  true,
		Message: path,
	}
}

func checkCamera(probe Probe, device string) Check {
	if !probe.DeviceExists(device) {
		return Check{
			Name:    "camera",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("%s not present (camera scenario will be skipped)", device),
		}
	}
	return Check{
		Name:    "camera",
		Passed:  true,
		Message: device,
	}
}

// checkFileDescriptors verifies the open-file soft limit. Every child holds
// two pipes, and the pipelines themselves open models, devices and sockets.
func checkFileDescriptors(required int) Check {
	var limit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &limit); err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to read limit: %v", err),
		}
	}
	actual := int(min(limit.Cur, 1<<30))
	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d)", actual, required),
	}
}

// rlimInfinity is RLIM_INFINITY on Linux.
const rlimInfinity = ^uint64(0)

// checkProcessLimit reports the process soft limit. GStreamer pipelines are
// thread-heavy, so a low limit shows up as spurious launch failures. It only
// ever warns.
func checkProcessLimit() Check {
	var limit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NPROC, &limit); err != nil {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to check (non-Linux or restricted)",
		}
	}
	if limit.Cur == rlimInfinity {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Message: "unlimited",
		}
	}
	const recommended = 512
	actual := int(min(limit.Cur, 1<<30))
	return Check{
		Name:    "process_limit",
		Passed:  true,
		Warning: actual < recommended,
		Message: fmt.Sprintf("ulimit -u %d (recommend %d)", actual, recommended),
	}
}

// PrintResults writes the check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "interpreter":
		return "activate the pipelines' virtualenv (source setup_env.sh) or pass -python"
	case "pipeline_scripts":
		return "run from the repository root or pass -workdir / -pipelines-dir"
	case "input_video":
		return "download the resources (./download_resources.sh) or pass -input"
	case "file_descriptors":
		return "ulimit -n 4096 (or edit /etc/security/limits.conf)"
	default:
		return "see documentation"
	}
}

// OSProbe inspects the real machine.
type OSProbe struct{}

// DeviceExists reports whether path exists and is a device node.
func (OSProbe) DeviceExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode()&os.ModeDevice != 0
}

// FileExists reports whether path exists and is not a directory.
func (OSProbe) FileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}

// LookPath resolves an executable the way exec.Command will.
func (OSProbe) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}
