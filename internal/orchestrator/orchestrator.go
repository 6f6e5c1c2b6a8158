// Package orchestrator wires a harness run together: preflight checks, the
// metrics endpoint, the scenario runner, the optional dashboard, and the exit
// summary.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/randomizedcoder/go-pipeline-harness/internal/config"
	"github.com/randomizedcoder/go-pipeline-harness/internal/harness"
	"github.com/randomizedcoder/go-pipeline-harness/internal/metrics"
	"github.com/randomizedcoder/go-pipeline-harness/internal/preflight"
	"github.com/randomizedcoder/go-pipeline-harness/internal/scenario"
	"github.com/randomizedcoder/go-pipeline-harness/internal/stats"
	"github.com/randomizedcoder/go-pipeline-harness/internal/tui"
)

// ErrPreflightFailed is returned by Run when a required check failed.
var ErrPreflightFailed = errors.New("preflight checks failed (use -skip-preflight to override)")

// Options overrides the process-wide defaults, mainly for tests.
type Options struct {
	Version  string
	Probe    preflight.Probe      // nil: preflight.OSProbe
	Out      io.Writer            // nil: os.Stdout
	Registry *prometheus.Registry // nil: a fresh registry
}

// Orchestrator coordinates all components for one harness run.
type Orchestrator struct {
	config  *config.Config
	logger  *slog.Logger
	version string
	probe   preflight.Probe
	out     io.Writer

	registry      *prometheus.Registry
	metrics       *metrics.Collector
	metricsServer *metrics.Server

	env    *scenario.Environment
	runner *scenario.Runner

	startTime time.Time
}

// New creates an Orchestrator for cfg. cfg must already be validated.
func New(cfg *config.Config, logger *slog.Logger, opts Options) *Orchestrator {
	if opts.Probe == nil {
		opts.Probe = preflight.OSProbe{}
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}

	o := &Orchestrator{
		config:   cfg,
		logger:   logger,
		version:  opts.Version,
		probe:    opts.Probe,
		out:      opts.Out,
		registry: opts.Registry,
	}

	o.env = scenario.NewEnvironment(cfg, logger, opts.Probe, nil)
	o.runner = scenario.NewRunner(o.env, scenario.Build(cfg)...)

	o.metrics = metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		Version: opts.Version,
		RunID:   o.runner.RunID,
		MinFPS:  cfg.MinFPS,
	}, o.registry)
	o.env.Collector = o.metrics

	if cfg.MetricsAddr != "" {
		o.metricsServer = metrics.NewServer(cfg.MetricsAddr, o.registry, logger)
	}

	return o
}

// Run executes the selected scenarios and prints the exit summary. It
// returns the per-scenario results; the error is non-nil only when the run
// could not start.
func (o *Orchestrator) Run(ctx context.Context) ([]*scenario.Result, error) {
	o.startTime = time.Now()

	if !o.config.SkipPreflight {
		result := preflight.RunAll(o.probe, o.config.Requirements())
		preflight.PrintResults(o.out, result)
		if !result.Passed {
			return nil, ErrPreflightFailed
		}
	}

	if o.metricsServer != nil {
		if err := o.metricsServer.Start(); err != nil {
			return nil, fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := o.metricsServer.Shutdown(shutdownCtx); err != nil {
				o.logger.Warn("metrics_server_shutdown_error", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	o.logger.Info("run_starting",
		"run_id", o.runner.RunID,
		"version", o.version,
		"scenarios", o.runner.Scenarios(),
		"python", o.config.Python,
		"workdir", o.config.WorkDir,
		"min_fps", o.config.MinFPS,
	)

	var results []*scenario.Result
	if o.config.TUIEnabled {
		var err error
		results, err = o.runWithDashboard(ctx)
		if err != nil {
			return results, err
		}
	} else {
		results = o.runner.Run(ctx)
	}

	if ctx.Err() != nil {
		o.logger.Info("run_interrupted", "run_id", o.runner.RunID)
	}

	if path := o.config.MetricsTextfile; path != "" {
		if err := metrics.WriteTextfile(path, o.registry); err != nil {
			o.logger.Warn("metrics_textfile_failed", "path", path, "error", err)
		} else {
			o.logger.Info("metrics_textfile_written", "path", path)
		}
	}

	o.printExitSummary(results)
	return results, nil
}

// runWithDashboard runs the scenarios alongside the dashboard. Quitting the
// dashboard interrupts the run; finishing the run closes the dashboard.
func (o *Orchestrator) runWithDashboard(ctx context.Context) ([]*scenario.Result, error) {
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	program := tea.NewProgram(
		tui.New(tui.Config{
			RunID:       o.runner.RunID,
			Version:     o.version,
			Scenarios:   o.runner.Scenarios(),
			MinFPS:      o.config.MinFPS,
			MetricsAddr: o.MetricsAddr(),
		}),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	o.env.Hooks = dashboardHooks(program)

	var results []*scenario.Result
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		results = o.runner.Run(gctx)
		program.Send(tui.DoneMsg{})
		return nil
	})

	g.Go(func() error {
		final, err := program.Run()
		if m, ok := final.(tui.Model); ok && m.UserQuit() {
			o.logger.Info("dashboard_quit")
			cancelRun()
		}
		if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			cancelRun()
			return fmt.Errorf("dashboard: %w", err)
		}
		return nil
	})

	err := g.Wait()
	return results, err
}

// dashboardHooks forwards run progress to the dashboard. Send is a no-op
// once the program has exited.
func dashboardHooks(p *tea.Program) scenario.Hooks {
	return scenario.Hooks{
		OnScenarioStart: func(name string) {
			p.Send(tui.ScenarioStartedMsg{Name: name, At: time.Now()})
		},
		OnScenarioDone: func(r *scenario.Result) {
			p.Send(tui.ScenarioFinishedMsg{
				Name:    r.Name,
				Outcome: r.Outcome.String(),
				Reason:  r.Reason,
				Elapsed: r.Elapsed,
			})
		},
		OnPipelineStart: func(scenarioName, pipeline string, planned time.Duration) {
			p.Send(tui.PipelineStartedMsg{Scenario: scenarioName, Pipeline: pipeline, Planned: planned, At: time.Now()})
		},
		OnChildState: func(pipeline string, state harness.State) {
			p.Send(tui.ChildStateMsg{Pipeline: pipeline, State: state.String()})
		},
		OnFPS: func(pipeline string, fps float64) {
			p.Send(tui.FPSMsg{Pipeline: pipeline, FPS: fps})
		},
	}
}

// printExitSummary prints the verdict table followed by the captured output
// of every failed pipeline.
func (o *Orchestrator) printExitSummary(results []*scenario.Result) {
	summary := o.metrics.GenerateSummary()

	fmt.Fprint(o.out, stats.FormatExitSummary(scenario.Report(results), stats.SummaryConfig{
		RunID:           o.runner.RunID,
		Version:         o.version,
		Duration:        time.Since(o.startTime),
		MinFPS:          o.config.MinFPS,
		MetricsAddr:     o.MetricsAddr(),
		MetricsTextfile: o.config.MetricsTextfile,
		ChildStarts:     summary.ChildStarts,
		ForceKills:      summary.ForceKills,
		ExitCodes:       summary.ExitCodes,
	}))

	for _, r := range results {
		if !r.Failed() {
			continue
		}
		fmt.Fprintf(o.out, "\n%s failed: %v\n", r.Name, r.Err)
		if out := r.FailedOutput(); out != nil {
			fmt.Fprintln(o.out, out.String())
		}
	}
}

// RunID returns the identifier of this run.
func (o *Orchestrator) RunID() string {
	return o.runner.RunID
}

// Metrics returns the metrics collector for external access.
func (o *Orchestrator) Metrics() *metrics.Collector {
	return o.metrics
}

// MetricsAddr returns the bound metrics address, or "" when disabled.
func (o *Orchestrator) MetricsAddr() string {
	if o.metricsServer == nil {
		return ""
	}
	return o.metricsServer.Addr()
}
