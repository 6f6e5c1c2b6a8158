// Package metrics exposes harness activity as Prometheus metrics: scenario
// outcomes, child process lifecycle and the FPS each pipeline reports.
//
// Metrics live on a Collector rather than in package globals so that every
// run (and every test) registers into its own registry.
package metrics

import (
	"maps"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pipeline_harness"

// fpsBuckets cover the range between a stalled pipeline and a desktop GPU.
var fpsBuckets = []float64{1, 5, 10, 15, 20, 25, 30, 45, 60, 90, 120, 240}

// CollectorConfig holds run-wide labels.
type CollectorConfig struct {
	Version string
	RunID   string
	MinFPS  float64
}

// Collector records harness events. Safe for concurrent use.
type Collector struct {
	info           *prometheus.GaugeVec
	minFPS         prometheus.Gauge
	scenarioRuns   *prometheus.CounterVec
	scenarioPassed *prometheus.GaugeVec
	scenarioSecs   *prometheus.GaugeVec
	childStarts    *prometheus.CounterVec
	childExits     *prometheus.CounterVec
	forceKills     *prometheus.CounterVec
	activeChildren prometheus.Gauge
	childUptime    prometheus.Histogram
	fpsCurrent     *prometheus.GaugeVec
	fpsObserved    *prometheus.HistogramVec
	fpsAverage     *prometheus.GaugeVec

	mu          sync.Mutex
	startTime   time.Time
	totalStarts int
	totalKills  int
	active      int
	exitCodes   map[int]int
}

// NewCollector creates a collector registered with the default registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector registered with registry.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "info",
			Help:      "Information about the harness run (value always 1)",
		}, []string{"version", "run_id"}),
		minFPS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "min_fps",
			Help:      "Average FPS an inference pipeline must exceed",
		}),
		scenarioRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scenario_runs_total",
			Help:      "Scenario executions by outcome",
		}, []string{"scenario", "outcome"}),
		scenarioPassed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scenario_passed",
			Help:      "1 if the scenario's latest run passed or was skipped, 0 if it failed",
		}, []string{"scenario"}),
		scenarioSecs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scenario_duration_seconds",
			Help:      "Wall time of the scenario's latest run",
		}, []string{"scenario"}),
		childStarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "child_starts_total",
			Help:      "Pipeline processes started",
		}, []string{"pipeline"}),
		childExits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "child_exits_total",
			Help:      "Pipeline processes reaped, by exit category",
		}, []string{"pipeline", "category"}),
		forceKills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "child_force_kills_total",
			Help:      "Pipeline processes that ignored SIGTERM and were killed",
		}, []string{"pipeline"}),
		activeChildren: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_children",
			Help:      "Pipeline processes currently running",
		}),
		childUptime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "child_uptime_seconds",
			Help:      "How long each pipeline process ran",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		fpsCurrent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fps",
			Help:      "Most recent FPS reported by the pipeline",
		}, []string{"pipeline"}),
		fpsObserved: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fps_observed",
			Help:      "Distribution of FPS readings",
			Buckets:   fpsBuckets,
		}, []string{"pipeline"}),
		fpsAverage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fps_average",
			Help:      "Average FPS of the pipeline's latest run",
		}, []string{"pipeline"}),
		startTime: time.Now(),
		exitCodes: make(map[int]int),
	}

	registry.MustRegister(
		c.info,
		c.minFPS,
		c.scenarioRuns,
		c.scenarioPassed,
		c.scenarioSecs,
		c.childStarts,
		c.childExits,
		c.forceKills,
		c.activeChildren,
		c.childUptime,
		c.fpsCurrent,
		c.fpsObserved,
		c.fpsAverage,
	)

	c.info.WithLabelValues(cfg.Version, cfg.RunID).Set(1)
	c.minFPS.Set(cfg.MinFPS)
	return c
}

// =============================================================================
// Event Recording Methods
// =============================================================================

// ScenarioFinished records a scenario's outcome ("passed", "failed",
// "skipped") and duration.
func (c *Collector) ScenarioFinished(scenario, outcome string, d time.Duration) {
	c.scenarioRuns.WithLabelValues(scenario, outcome).Inc()
	c.scenarioSecs.WithLabelValues(scenario).Set(d.Seconds())
	passed := 1.0
	if outcome == "failed" {
		passed = 0
	}
	c.scenarioPassed.WithLabelValues(scenario).Set(passed)
}

// ChildStarted records a pipeline process start.
func (c *Collector) ChildStarted(pipeline string) {
	c.childStarts.WithLabelValues(pipeline).Inc()

	c.mu.Lock()
	c.totalStarts++
	c.active++
	c.activeChildren.Set(float64(c.active))
	c.mu.Unlock()
}

// ChildReaped records a pipeline process exit.
func (c *Collector) ChildReaped(pipeline string, exitCode int, killed bool, uptime time.Duration) {
	c.childExits.WithLabelValues(pipeline, exitCategory(exitCode)).Inc()
	c.childUptime.Observe(uptime.Seconds())
	if killed {
		c.forceKills.WithLabelValues(pipeline).Inc()
	}

	c.mu.Lock()
	c.exitCodes[exitCode]++
	if killed {
		c.totalKills++
	}
	if c.active > 0 {
		c.active--
	}
	c.activeChildren.Set(float64(c.active))
	c.mu.Unlock()
}

// ObserveFPS records one live FPS reading.
func (c *Collector) ObserveFPS(pipeline string, fps float64) {
	c.fpsCurrent.WithLabelValues(pipeline).Set(fps)
	c.fpsObserved.WithLabelValues(pipeline).Observe(fps)
}

// SetFPSAverage records the average FPS of a finished pipeline run.
func (c *Collector) SetFPSAverage(pipeline string, avg float64) {
	c.fpsAverage.WithLabelValues(pipeline).Set(avg)
}

// exitCategory buckets exit codes the way the summary reports them.
func exitCategory(code int) string {
	switch {
	case code == 0:
		return "success"
	case code > 128:
		return "signal"
	default:
		return "error"
	}
}

// =============================================================================
// Summary Generation
// =============================================================================

// Summary holds lifecycle totals for the exit summary.
type Summary struct {
	Duration    time.Duration
	ChildStarts int
	ForceKills  int
	ExitCodes   map[int]int
}

// GenerateSummary snapshots the lifecycle totals.
func (c *Collector) GenerateSummary() *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	return &Summary{
		Duration:    time.Since(c.startTime),
		ChildStarts: c.totalStarts,
		ForceKills:  c.totalKills,
		ExitCodes:   maps.Clone(c.exitCodes),
	}
}

// ActiveChildren returns how many children are currently running.
func (c *Collector) ActiveChildren() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}
