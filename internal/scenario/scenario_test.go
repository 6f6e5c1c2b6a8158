package scenario

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-pipeline-harness/internal/config"
	"github.com/randomizedcoder/go-pipeline-harness/internal/harness"
	"github.com/randomizedcoder/go-pipeline-harness/internal/metrics"
	"github.com/randomizedcoder/go-pipeline-harness/internal/parser"
)

// =============================================================================
// Helpers
// =============================================================================

// fakeProbe reports a fixed set of devices.
type fakeProbe struct {
	devices map[string]bool
}

func (p fakeProbe) DeviceExists(path string) bool { return p.devices[path] }
func (p fakeProbe) FileExists(string) bool        { return true }
func (p fakeProbe) LookPath(name string) (string, error) {
	return name, nil
}

// testEnv builds an Environment whose "interpreter" is /bin/sh and whose
// pipelines are the given shell scripts, written under basic_pipelines/ in a
// temporary working directory.
func testEnv(t *testing.T, scripts map[string]string) *Environment {
	t.Helper()
	dir := t.TempDir()
	pipelines := filepath.Join(dir, "basic_pipelines")
	if err := os.MkdirAll(pipelines, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, body := range scripts {
		if err := os.WriteFile(filepath.Join(pipelines, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return &Environment{
		Python:       "/bin/sh",
		WorkDir:      dir,
		PipelinesDir: "basic_pipelines",
		Probe:        fakeProbe{},
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Options: harness.Options{
			GracePeriod: 2 * time.Second,
			WaitDelay:   time.Second,
		},
	}
}

const loopForever = "while :; do sleep 0.05; done\n"

// fpsScript prints the given FPS lines, then idles until stopped.
func fpsScript(values ...string) string {
	var b strings.Builder
	for _, v := range values {
		b.WriteString("echo \"FPS: " + v + "\"\n")
	}
	b.WriteString(loopForever)
	return b.String()
}

// =============================================================================
// InferenceSpeed
// =============================================================================

func TestInferenceSpeed(t *testing.T) {
	tests := []struct {
		name       string
		scripts    map[string]string
		models     []string
		grace      time.Duration
		wantPassed bool
		wantErr    error
		wantRan    int
	}{
		{
			name: "all models fast",
			scripts: map[string]string{
				"detection.py": fpsScript("25.0", "30.0"),
				"pose.py":      fpsScript("12.5"),
			},
			models:     []string{"detection.py", "pose.py"},
			wantPassed: true,
			wantRan:    2,
		},
		{
			name: "slow model stops the run",
			scripts: map[string]string{
				"detection.py": fpsScript("5.0", "7.0"),
				"pose.py":      fpsScript("30.0"),
			},
			models:  []string{"detection.py", "pose.py"},
			wantErr: ErrBelowThreshold,
			wantRan: 1,
		},
		{
			name: "average equal to threshold fails",
			scripts: map[string]string{
				"detection.py": fpsScript("10.0"),
			},
			models:  []string{"detection.py"},
			wantErr: ErrBelowThreshold,
			wantRan: 1,
		},
		{
			name: "no fps lines",
			scripts: map[string]string{
				"detection.py": "echo \"starting pipeline\"\n" + loopForever,
			},
			models:  []string{"detection.py"},
			wantErr: ErrMetricNotFound,
			wantRan: 1,
		},
		{
			name: "second model fails after first passes",
			scripts: map[string]string{
				"detection.py": fpsScript("20.0"),
				"pose.py":      "echo nothing\n" + loopForever,
			},
			models:  []string{"detection.py", "pose.py"},
			wantErr: ErrMetricNotFound,
			wantRan: 2,
		},
		{
			name: "crashes with FPS printed",
			scripts: map[string]string{
				"detection.py": "echo \"FPS: 50.0\"\nexit 1\n",
			},
			models:  []string{"detection.py"},
			wantErr: harness.ErrUnexpectedExit,
			wantRan: 1,
		},
		{
			name: "finishes early with status 0",
			scripts: map[string]string{
				"detection.py": "echo \"FPS: 50.0\"\n",
			},
			models:  []string{"detection.py"},
			wantErr: harness.ErrUnexpectedExit,
			wantRan: 1,
		},
		{
			name: "ignores SIGTERM",
			scripts: map[string]string{
				"detection.py": "trap '' TERM\n" + fpsScript("50.0"),
			},
			models:  []string{"detection.py"},
			grace:   200 * time.Millisecond,
			wantErr: ErrUncleanExit,
			wantRan: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testEnv(t, tt.scripts)
			if tt.grace > 0 {
				env.Options.GracePeriod = tt.grace
			}
			s := &InferenceSpeed{
				Models:   tt.models,
				Input:    "resources/detection0.mp4",
				Duration: 300 * time.Millisecond,
				MinFPS:   10,
			}

			res := s.Run(context.Background(), env)

			if got := res.Outcome == OutcomePassed; got != tt.wantPassed {
				t.Fatalf("Outcome = %v, want passed=%v (reason %q)", res.Outcome, tt.wantPassed, res.Reason)
			}
			if tt.wantErr != nil && !errors.Is(res.Err, tt.wantErr) {
				t.Errorf("Err = %v, want %v", res.Err, tt.wantErr)
			}
			if len(res.Pipelines) != tt.wantRan {
				t.Errorf("ran %d pipelines, want %d", len(res.Pipelines), tt.wantRan)
			}
			for _, p := range res.Pipelines {
				if p.Output == nil {
					t.Errorf("%s: no output captured", p.Script)
				}
			}
		})
	}
}

func TestInferenceSpeed_FPSSummary(t *testing.T) {
	env := testEnv(t, map[string]string{"detection.py": fpsScript("20.0", "30.0", "40.0")})
	s := &InferenceSpeed{Models: []string{"detection.py"}, Input: "in.mp4", Duration: 300 * time.Millisecond, MinFPS: 10}

	res := s.Run(context.Background(), env)
	if res.Failed() {
		t.Fatalf("unexpected failure: %v", res.Err)
	}
	fps := res.Pipelines[0].FPS
	if fps.Count != 3 || fps.Mean != 30 || fps.Min != 20 || fps.Max != 40 {
		t.Errorf("FPS = %+v, want count 3 mean 30 min 20 max 40", fps)
	}
}

func TestInferenceSpeed_PassesInputArgument(t *testing.T) {
	// The script echoes its FPS only if it was invoked with --input <path>.
	script := `if [ "$1" = "--input" ] && [ "$2" = "resources/detection0.mp4" ]; then echo "FPS: 50"; fi` + "\n" + loopForever
	env := testEnv(t, map[string]string{"detection.py": script})
	s := &InferenceSpeed{Models: []string{"detection.py"}, Input: "resources/detection0.mp4", Duration: 300 * time.Millisecond, MinFPS: 10}

	if res := s.Run(context.Background(), env); res.Failed() {
		t.Fatalf("pipeline did not see expected arguments: %v", res.Err)
	}
}

func TestInferenceSpeed_LaunchFailure(t *testing.T) {
	env := testEnv(t, nil)
	env.Python = "/nonexistent/python"
	s := &InferenceSpeed{Models: []string{"detection.py"}, Input: "in.mp4", Duration: 100 * time.Millisecond, MinFPS: 10}

	res := s.Run(context.Background(), env)
	var le *harness.LaunchError
	if !errors.As(res.Err, &le) {
		t.Fatalf("Err = %v, want *harness.LaunchError", res.Err)
	}
}

// =============================================================================
// LongRunning
// =============================================================================

func TestLongRunning(t *testing.T) {
	tests := []struct {
		name       string
		script     string
		grace      time.Duration
		wantPassed bool
		wantErr    error
	}{
		{
			name:       "survives the run",
			script:     fpsScript("30"),
			wantPassed: true,
		},
		{
			name:    "crashes early",
			script:  "sleep 0.1\nexit 1\n",
			wantErr: harness.ErrUnexpectedExit,
		},
		{
			name:    "error marker on stderr",
			script:  "echo \"Error: pipeline stalled\" >&2\n" + loopForever,
			wantErr: ErrErrorSignature,
		},
		{
			name:       "lowercase error is tolerated",
			script:     "echo \"no error here\" >&2\n" + loopForever,
			wantPassed: true,
		},
		{
			name:    "force-killed",
			script:  "trap '' TERM\n" + loopForever,
			grace:   200 * time.Millisecond,
			wantErr: ErrUncleanExit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testEnv(t, map[string]string{"detection.py": tt.script})
			if tt.grace > 0 {
				env.Options.GracePeriod = tt.grace
			}
			s := &LongRunning{
				Script:       "detection.py",
				Input:        "in.mp4",
				Duration:     600 * time.Millisecond,
				PollInterval: 50 * time.Millisecond,
				Signature:    parser.StrictErrorSignature,
			}

			start := time.Now()
			res := s.Run(context.Background(), env)

			if got := res.Outcome == OutcomePassed; got != tt.wantPassed {
				t.Fatalf("Outcome = %v, want passed=%v (reason %q)", res.Outcome, tt.wantPassed, res.Reason)
			}
			if tt.wantErr != nil && !errors.Is(res.Err, tt.wantErr) {
				t.Errorf("Err = %v, want %v", res.Err, tt.wantErr)
			}
			if errors.Is(tt.wantErr, harness.ErrUnexpectedExit) && time.Since(start) > 500*time.Millisecond {
				t.Errorf("crash took %v to detect, want well under the run duration", time.Since(start))
			}
		})
	}
}

func TestLongRunning_LogsErrorSignatureLive(t *testing.T) {
	var logs bytes.Buffer
	env := testEnv(t, map[string]string{
		"detection.py": "echo \"Error: stream stalled\" >&2\necho \"Error: again\" >&2\n" + loopForever,
	})
	env.Logger = slog.New(slog.NewTextHandler(&logs, nil))
	s := &LongRunning{
		Script:       "detection.py",
		Input:        "in.mp4",
		Duration:     300 * time.Millisecond,
		PollInterval: 50 * time.Millisecond,
		Signature:    parser.StrictErrorSignature,
	}

	res := s.Run(context.Background(), env)
	if !errors.Is(res.Err, ErrErrorSignature) {
		t.Fatalf("Err = %v, want %v", res.Err, ErrErrorSignature)
	}
	if n := strings.Count(logs.String(), "msg=error_signature_seen"); n != 1 {
		t.Errorf("error_signature_seen logged %d times, want once:\n%s", n, logs.String())
	}
	if !strings.Contains(logs.String(), "Error: stream stalled") {
		t.Errorf("first matching line not logged:\n%s", logs.String())
	}
}

// =============================================================================
// Camera
// =============================================================================

func TestCamera_SkippedWithoutDevice(t *testing.T) {
	env := testEnv(t, map[string]string{"detection.py": "exit 1\n"})
	s := &Camera{Script: "detection.py", Device: "/dev/video0", Duration: time.Second, Signature: parser.AnyErrorSignature}

	res := s.Run(context.Background(), env)
	if res.Outcome != OutcomeSkipped {
		t.Fatalf("Outcome = %v, want skipped", res.Outcome)
	}
	if !strings.Contains(res.Reason, "/dev/video0") {
		t.Errorf("Reason = %q, want device path", res.Reason)
	}
	if len(res.Pipelines) != 0 {
		t.Errorf("skipped scenario ran %d pipelines", len(res.Pipelines))
	}
}

func TestCamera(t *testing.T) {
	tests := []struct {
		name       string
		script     string
		wantPassed bool
		wantErr    error
	}{
		{
			name:       "clean run",
			script:     `[ "$2" = "/dev/video9" ] || exit 2` + "\n" + fpsScript("30"),
			wantPassed: true,
		},
		{
			name:    "any-case error",
			script:  "echo \"v4l2: ERROR opening device\" >&2\n" + loopForever,
			wantErr: ErrErrorSignature,
		},
		{
			name:    "exits non-zero",
			script:  "exit 2\n",
			wantErr: ErrUncleanExit,
		},
		{
			name:       "exits zero early",
			script:     "exit 0\n",
			wantPassed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testEnv(t, map[string]string{"detection.py": tt.script})
			env.Probe = fakeProbe{devices: map[string]bool{"/dev/video9": true}}
			s := &Camera{Script: "detection.py", Device: "/dev/video9", Duration: 300 * time.Millisecond, Signature: parser.AnyErrorSignature}

			res := s.Run(context.Background(), env)

			if got := res.Outcome == OutcomePassed; got != tt.wantPassed {
				t.Fatalf("Outcome = %v, want passed=%v (reason %q)", res.Outcome, tt.wantPassed, res.Reason)
			}
			if tt.wantErr != nil && !errors.Is(res.Err, tt.wantErr) {
				t.Errorf("Err = %v, want %v", res.Err, tt.wantErr)
			}
		})
	}
}

// =============================================================================
// Runner
// =============================================================================

// stubScenario returns a canned result, optionally blocking until ctx ends.
type stubScenario struct {
	name    string
	outcome Outcome
	block   bool
	ran     bool
}

func (s *stubScenario) Name() string { return s.name }

func (s *stubScenario) Run(ctx context.Context, _ *Environment) *Result {
	s.ran = true
	if s.block {
		<-ctx.Done()
		return passed(s.name, nil)
	}
	switch s.outcome {
	case OutcomeFailed:
		return failed(s.name, errors.New("boom"), nil)
	case OutcomeSkipped:
		return skipped(s.name, "not here")
	default:
		return passed(s.name, nil)
	}
}

func TestRunner_RunsAllInOrder(t *testing.T) {
	env := testEnv(t, nil)
	var mu sync.Mutex
	var started, done []string
	env.Hooks = Hooks{
		OnScenarioStart: func(name string) {
			mu.Lock()
			started = append(started, name)
			mu.Unlock()
		},
		OnScenarioDone: func(r *Result) {
			mu.Lock()
			done = append(done, r.Name+":"+r.Outcome.String())
			mu.Unlock()
		},
	}

	a := &stubScenario{name: "a", outcome: OutcomeFailed}
	b := &stubScenario{name: "b", outcome: OutcomePassed}
	c := &stubScenario{name: "c", outcome: OutcomeSkipped}
	r := NewRunner(env, a, b, c)

	if r.RunID == "" {
		t.Error("RunID is empty")
	}
	if got := r.Scenarios(); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("Scenarios() = %v", got)
	}

	results := r.Run(context.Background())
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if !b.ran || !c.ran {
		t.Error("a failing scenario stopped the ones after it")
	}
	if !slices.Equal(started, []string{"a", "b", "c"}) {
		t.Errorf("started = %v", started)
	}
	if want := []string{"a:failed", "b:passed", "c:skipped"}; !slices.Equal(done, want) {
		t.Errorf("done = %v, want %v", done, want)
	}
	if !AnyFailed(results) {
		t.Error("AnyFailed = false, want true")
	}
	for _, res := range results {
		if res.StartedAt.IsZero() {
			t.Errorf("%s: StartedAt not set", res.Name)
		}
	}
}

func TestRunner_Cancellation(t *testing.T) {
	env := testEnv(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	blocking := &stubScenario{name: "blocking", block: true}
	after := &stubScenario{name: "after"}
	env.Hooks.OnScenarioStart = func(name string) {
		if name == "blocking" {
			go func() {
				time.Sleep(50 * time.Millisecond)
				cancel()
			}()
		}
	}

	results := NewRunner(env, blocking, after).Run(ctx)

	if results[0].Outcome != OutcomeFailed || !errors.Is(results[0].Err, ErrInterrupted) {
		t.Errorf("in-flight scenario = %v (%v), want failed/interrupted", results[0].Outcome, results[0].Err)
	}
	if results[1].Outcome != OutcomeSkipped || results[1].Reason != "interrupted" {
		t.Errorf("later scenario = %v %q, want skipped/interrupted", results[1].Outcome, results[1].Reason)
	}
	if after.ran {
		t.Error("scenario ran after cancellation")
	}
}

func TestRunner_RecordsMetrics(t *testing.T) {
	env := testEnv(t, map[string]string{"detection.py": fpsScript("30", "40")})
	reg := prometheus.NewRegistry()
	env.Collector = metrics.NewCollectorWithRegistry(metrics.CollectorConfig{Version: "test", RunID: "r", MinFPS: 10}, reg)

	var mu sync.Mutex
	var fps []float64
	env.Hooks.OnFPS = func(_ string, v float64) {
		mu.Lock()
		fps = append(fps, v)
		mu.Unlock()
	}

	s := &InferenceSpeed{Models: []string{"detection.py"}, Input: "in.mp4", Duration: 300 * time.Millisecond, MinFPS: 10}
	results := NewRunner(env, s).Run(context.Background())
	if results[0].Failed() {
		t.Fatalf("unexpected failure: %v", results[0].Err)
	}

	summary := env.Collector.GenerateSummary()
	if summary.ChildStarts != 1 {
		t.Errorf("ChildStarts = %d, want 1", summary.ChildStarts)
	}
	if env.Collector.ActiveChildren() != 0 {
		t.Errorf("ActiveChildren = %d after run, want 0", env.Collector.ActiveChildren())
	}
	mu.Lock()
	defer mu.Unlock()
	if !slices.Equal(fps, []float64{30, 40}) {
		t.Errorf("live FPS = %v, want [30 40]", fps)
	}
}

// =============================================================================
// Build / Report
// =============================================================================

func TestBuild(t *testing.T) {
	cfg := config.DefaultConfig()
	var names []string
	for _, s := range Build(cfg) {
		names = append(names, s.Name())
	}
	if !slices.Equal(names, config.KnownScenarios) {
		t.Errorf("Build(default) = %v, want %v", names, config.KnownScenarios)
	}

	// Selection order does not change run order.
	cfg.Scenarios = []string{config.ScenarioCamera, config.ScenarioInferenceSpeed}
	names = names[:0]
	for _, s := range Build(cfg) {
		names = append(names, s.Name())
	}
	if want := []string{config.ScenarioInferenceSpeed, config.ScenarioCamera}; !slices.Equal(names, want) {
		t.Errorf("Build = %v, want %v", names, want)
	}
}

func TestBuild_Wiring(t *testing.T) {
	cfg := config.DefaultConfig()
	scenarios := Build(cfg)

	inf := scenarios[0].(*InferenceSpeed)
	if !slices.Equal(inf.Models, cfg.Models) || inf.Duration != cfg.Duration || inf.MinFPS != cfg.MinFPS {
		t.Errorf("InferenceSpeed = %+v", inf)
	}
	lr := scenarios[1].(*LongRunning)
	if lr.Signature != parser.StrictErrorSignature || lr.Duration != cfg.StabilityDuration || lr.PollInterval != cfg.PollInterval {
		t.Errorf("LongRunning = %+v", lr)
	}
	cam := scenarios[2].(*Camera)
	if cam.Signature != parser.AnyErrorSignature || cam.Device != cfg.CameraDevice {
		t.Errorf("Camera = %+v", cam)
	}
}

func TestReport(t *testing.T) {
	out := &harness.Output{Name: "detection.py", ExitCode: 143, Elapsed: time.Second}
	results := []*Result{
		{Name: "inference_speed", Outcome: OutcomeFailed, Reason: "line one\nline two", Pipelines: []PipelineResult{
			{Script: "detection.py", Outcome: OutcomeFailed, Output: out},
		}},
		{Name: "camera", Outcome: OutcomeSkipped, Reason: "no camera"},
	}

	rows := Report(results)
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[0].Reason != "line one" {
		t.Errorf("Reason = %q, want first line only", rows[0].Reason)
	}
	if rows[1].Pipeline != "detection.py" || !rows[1].HasExit || rows[1].ExitCode != 143 {
		t.Errorf("pipeline row = %+v", rows[1])
	}
	if rows[2].Outcome != "skipped" {
		t.Errorf("skip row = %+v", rows[2])
	}
	if got := results[0].FailedOutput(); got != out {
		t.Errorf("FailedOutput = %v, want %v", got, out)
	}
}
