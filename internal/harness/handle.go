package harness

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/randomizedcoder/go-pipeline-harness/internal/parser"
)

const (
	// DefaultGracePeriod is how long a child gets to honour SIGTERM before
	// the whole process group is sent SIGKILL.
	DefaultGracePeriod = 10 * time.Second

	// DefaultWaitDelay bounds how long Wait keeps copying output after the
	// child exits, in case a grandchild still holds the pipes open.
	DefaultWaitDelay = 5 * time.Second

	// drainTimeout bounds how long Stop waits for live parsers to catch up.
	drainTimeout = 5 * time.Second
)

// Callbacks contains optional hooks for lifecycle events.
type Callbacks struct {
	// OnStateChange is called on every lifecycle transition.
	OnStateChange func(name string, oldState, newState State)

	// OnStart is called once the child is running.
	OnStart func(name string, pid int)

	// OnReaped is called after the exit status has been collected.
	OnReaped func(name string, out *Output)
}

// Options tunes how a child is supervised. The zero value is usable.
type Options struct {
	GracePeriod time.Duration
	WaitDelay   time.Duration
	Logger      *slog.Logger
	Callbacks   Callbacks

	// Live parsers, fed while the child runs. Either may be nil.
	StdoutParser parser.LineParser
	StderrParser parser.LineParser

	// Live pipeline tuning (defaults: 1000 lines, 1% drop threshold).
	LineBufferSize int
	DropThreshold  float64
}

func (o Options) withDefaults() Options {
	if o.GracePeriod <= 0 {
		o.GracePeriod = DefaultGracePeriod
	}
	if o.WaitDelay <= 0 {
		o.WaitDelay = DefaultWaitDelay
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.LineBufferSize <= 0 {
		o.LineBufferSize = 1000
	}
	if o.DropThreshold <= 0 {
		o.DropThreshold = 0.01
	}
	return o
}

// liveStream couples a line writer with the parser draining its pipeline.
type liveStream struct {
	pipeline *parser.Pipeline
	writer   *parser.LineWriter
	parser   parser.LineParser
}

// Handle owns one running child process. It must be stopped exactly once;
// Stop is idempotent so a deferred Stop is always safe.
type Handle struct {
	inv    Invocation
	opts   Options
	logger *slog.Logger

	cmd    *exec.Cmd
	stdout bytes.Buffer
	stderr bytes.Buffer
	live   []liveStream
	liveWg sync.WaitGroup

	startTime time.Time
	endTime   time.Time
	waitErr   error
	done      chan struct{}

	stateMu sync.Mutex
	state   State

	stopOnce   sync.Once
	output     *Output
	signalSent bool
	killed     bool
}

// Start spawns the child in its own process group with stdout and stderr
// captured. It returns a *LaunchError if the program cannot be started.
func Start(inv Invocation, opts Options) (*Handle, error) {
	opts = opts.withDefaults()
	h := &Handle{
		inv:    inv,
		opts:   opts,
		logger: opts.Logger.With("pipeline", inv.Name()),
		done:   make(chan struct{}),
		state:  StateNotStarted,
	}

	cmd := inv.command()
	cmd.Stdout = h.attach(&h.stdout, "stdout", opts.StdoutParser)
	cmd.Stderr = h.attach(&h.stderr, "stderr", opts.StderrParser)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = opts.WaitDelay

	h.startTime = time.Now()
	if err := cmd.Start(); err != nil {
		for _, ls := range h.live {
			ls.writer.Close()
		}
		h.logger.Error("child_launch_failed",
			"path", inv.Path(),
			"error", err,
		)
		return nil, &LaunchError{Name: inv.Name(), Path: inv.Path(), Err: err}
	}
	h.cmd = cmd

	for _, ls := range h.live {
		h.liveWg.Add(1)
		go func(ls liveStream) {
			defer h.liveWg.Done()
			ls.pipeline.RunParser(ls.parser)
		}(ls)
	}

	h.setState(StateRunning)
	pid := cmd.Process.Pid
	h.logger.Info("child_started",
		"pid", pid,
		"cmd", inv.String(),
	)
	if opts.Callbacks.OnStart != nil {
		opts.Callbacks.OnStart(inv.Name(), pid)
	}

	go h.wait()
	return h, nil
}

// attach returns the writer for one output stream: the capture buffer, plus
// a live line pipeline when a parser is configured.
func (h *Handle) attach(buf *bytes.Buffer, stream string, lp parser.LineParser) io.Writer {
	if lp == nil {
		return buf
	}
	p := parser.NewPipeline(h.inv.Name(), stream, h.opts.LineBufferSize, h.opts.DropThreshold)
	w := parser.NewLineWriter(p)
	h.live = append(h.live, liveStream{pipeline: p, writer: w, parser: lp})
	return io.MultiWriter(buf, w)
}

// wait reaps the child. It is the only caller of cmd.Wait.
//
// Before reaping, it SIGKILLs whatever is left in the child's process group.
// The unreaped leader keeps the group id from being reused, so only the
// child's own descendants can receive it.
func (h *Handle) wait() {
	pid := h.cmd.Process.Pid
	if waitExited(pid) {
		if err := unix.Kill(-pid, unix.SIGKILL); err == nil {
			h.logger.Debug("process_group_swept", "pgid", pid)
		}
	}
	err := h.cmd.Wait()
	h.waitErr = err
	h.endTime = time.Now()
	close(h.done)
}

// Alive reports whether the child has not exited yet. Non-blocking.
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Done is closed once the child has exited and been reaped by Wait.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Pid returns the child's process id.
func (h *Handle) Pid() int {
	return h.cmd.Process.Pid
}

// Name returns the invocation's label.
func (h *Handle) Name() string {
	return h.inv.Name()
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	return h.state
}

// Stop ends the child and returns its output.
//
// If the child is still running it receives SIGTERM (as a process group),
// gets GracePeriod to exit, then SIGKILL. Either way Stop blocks until the
// exit status has been collected. Calling Stop again returns the same
// Output.
func (h *Handle) Stop() *Output {
	h.stopOnce.Do(func() {
		h.output = h.stop()
	})
	return h.output
}

func (h *Handle) stop() *Output {
	select {
	case <-h.done:
		h.setState(StateExited)
	default:
		h.terminate()
	}

	h.drainLive()
	h.setState(StateReaped)

	out := h.buildOutput()
	h.logger.Info("child_reaped",
		"pid", out.Pid,
		"exit_code", out.ExitCode,
		"signal_sent", out.SignalSent,
		"killed", out.Killed,
		"elapsed", out.Elapsed.String(),
	)
	if h.opts.Callbacks.OnReaped != nil {
		h.opts.Callbacks.OnReaped(h.inv.Name(), out)
	}
	return out
}

// terminate sends SIGTERM, waits out the grace period, and escalates.
func (h *Handle) terminate() {
	h.setState(StateSignalSent)
	h.signalSent = true
	if err := h.signalGroup(unix.SIGTERM); err != nil {
		h.logger.Warn("signal_failed", "signal", "SIGTERM", "error", err)
	}

	grace := time.NewTimer(h.opts.GracePeriod)
	defer grace.Stop()

	select {
	case <-h.done:
		return
	case <-grace.C:
	}

	h.logger.Warn("force_killing_process",
		"pid", h.Pid(),
		"grace_period", h.opts.GracePeriod.String(),
	)
	h.killed = true
	if err := h.signalGroup(unix.SIGKILL); err != nil {
		h.logger.Error("signal_failed", "signal", "SIGKILL", "error", err)
	}
	<-h.done
}

// signalGroup signals the child's whole process group (pgid == pid because
// of Setpgid), falling back to the child alone.
func (h *Handle) signalGroup(sig syscall.Signal) error {
	err := unix.Kill(-h.Pid(), sig)
	if err == nil || errors.Is(err, unix.ESRCH) {
		return nil
	}
	if perr := h.cmd.Process.Signal(sig); perr != nil && !errors.Is(perr, os.ErrProcessDone) {
		return perr
	}
	return nil
}

// drainLive flushes the live writers and waits for parsers to finish.
func (h *Handle) drainLive() {
	if len(h.live) == 0 {
		return
	}
	for _, ls := range h.live {
		ls.writer.Close()
	}

	done := make(chan struct{})
	go func() {
		h.liveWg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drainTimeout):
		h.logger.Warn("parser_drain_timeout", "timeout", drainTimeout.String())
	}

	for _, ls := range h.live {
		read, dropped, parsed := ls.pipeline.Stats()
		bytesWritten, _, _ := ls.writer.Stats()
		if dropped > 0 || h.logger.Enabled(context.Background(), slog.LevelDebug) {
			h.logger.Info("pipeline_stats",
				"stream", ls.pipeline.Stream(),
				"bytes", bytesWritten,
				"lines_read", read,
				"lines_dropped", dropped,
				"lines_parsed", parsed,
				"degraded", ls.pipeline.IsDegraded(),
			)
		}
	}
}

func (h *Handle) buildOutput() *Output {
	code, signaled, sig := exitStatus(h.cmd.ProcessState)
	return &Output{
		Name:       h.inv.Name(),
		Pid:        h.Pid(),
		Stdout:     decode(h.stdout.Bytes()),
		Stderr:     decode(h.stderr.Bytes()),
		ExitCode:   code,
		Signaled:   signaled,
		Signal:     sig,
		SignalSent: h.signalSent,
		Killed:     h.killed,
		StartedAt:  h.startTime,
		Elapsed:    h.endTime.Sub(h.startTime),
		WaitErr:    h.waitErr,
	}
}

// setState applies a lifecycle transition and notifies the callback.
// Illegal transitions are ignored.
func (h *Handle) setState(newState State) {
	h.stateMu.Lock()
	oldState := h.state
	if !canTransition(oldState, newState) {
		h.stateMu.Unlock()
		h.logger.Debug("illegal_state_transition",
			"from", oldState.String(),
			"to", newState.String(),
		)
		return
	}
	h.state = newState
	h.stateMu.Unlock()

	if h.opts.Callbacks.OnStateChange != nil {
		h.opts.Callbacks.OnStateChange(h.inv.Name(), oldState, newState)
	}
}

// exitStatus reads the exit status from the process state rather than from
// Wait's error, which can be exec.ErrWaitDelay even after a clean exit.
// Death by signal is reported shell-style as 128+signal.
func exitStatus(ps *os.ProcessState) (code int, signaled bool, sig syscall.Signal) {
	if ps == nil {
		return -1, false, 0
	}
	if status, ok := ps.Sys().(syscall.WaitStatus); ok {
		if status.Signaled() {
			return 128 + int(status.Signal()), true, status.Signal()
		}
		return status.ExitStatus(), false, 0
	}
	return ps.ExitCode(), false, 0
}

func decode(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}
