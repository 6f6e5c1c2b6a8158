// Package config holds the harness configuration: defaults, command-line
// flags, an optional YAML file, and validation.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/randomizedcoder/go-pipeline-harness/internal/preflight"
)

// Scenario names accepted by -scenarios.
const (
	ScenarioInferenceSpeed = "inference_speed"
	ScenarioLongRunning    = "long_running"
	ScenarioCamera         = "camera"
)

// KnownScenarios lists every scenario in run order.
var KnownScenarios = []string{ScenarioInferenceSpeed, ScenarioLongRunning, ScenarioCamera}

// StabilityScript is the pipeline used by the long-running and camera
// scenarios.
const StabilityScript = "detection.py"

// Config holds all configuration options for the harness.
type Config struct {
	// Pipelines
	Python       string   `yaml:"python"`
	WorkDir      string   `yaml:"workdir"`
	PipelinesDir string   `yaml:"pipelines_dir"`
	Input        string   `yaml:"input"`
	CameraDevice string   `yaml:"camera_device"`
	Models       []string `yaml:"models"`
	Env          []string `yaml:"env"`

	// Scenarios
	Scenarios         []string      `yaml:"scenarios"`
	Duration          time.Duration `yaml:"duration"`
	StabilityDuration time.Duration `yaml:"stability_duration"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	CameraDuration    time.Duration `yaml:"camera_duration"`
	MinFPS            float64       `yaml:"min_fps"`
	GracePeriod       time.Duration `yaml:"grace_period"`

	// Live output parsing
	StatsBufferSize    int     `yaml:"stats_buffer"`
	StatsDropThreshold float64 `yaml:"stats_drop_threshold"`

	// Observability
	MetricsAddr     string `yaml:"metrics_addr"` // empty disables the server
	MetricsTextfile string `yaml:"metrics_textfile"`
	TUIEnabled      bool   `yaml:"tui"`
	LogFormat       string `yaml:"log_format"` // json, text
	LogLevel        string `yaml:"log_level"`
	Verbose         bool   `yaml:"verbose"`

	SkipPreflight bool `yaml:"skip_preflight"`

	// Command-line only
	ConfigFile  string `yaml:"-"`
	ShowVersion bool   `yaml:"-"`
}

// DefaultConfig returns a Config matching the reference pipeline layout:
// run from the repository root, scripts under basic_pipelines/, sample video
// under resources/.
func DefaultConfig() *Config {
	return &Config{
		Python:       "python",
		WorkDir:      ".",
		PipelinesDir: "basic_pipelines",
		Input:        "resources/detection0.mp4",
		CameraDevice: "/dev/video0",
		Models:       []string{"detection.py", "pose_estimation.py", "instance_segmentation.py"},
		Env:          []string{"PYTHONUNBUFFERED=1"},

		Scenarios:         slices.Clone(KnownScenarios),
		Duration:          60 * time.Second,
		StabilityDuration: 360 * time.Second,
		PollInterval:      10 * time.Second,
		CameraDuration:    10 * time.Second,
		MinFPS:            10,
		GracePeriod:       10 * time.Second,

		StatsBufferSize:    1000,
		StatsDropThreshold: 0.01,

		MetricsAddr: "",
		TUIEnabled:  false,
		LogFormat:   "text",
		LogLevel:    "info",
	}
}

// LoadFile overlays the YAML file at path onto cfg. Keys absent from the
// file keep their current values.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// HasScenario reports whether name is selected.
func (c *Config) HasScenario(name string) bool {
	return slices.Contains(c.Scenarios, name)
}

// Resolve returns p relative to the working directory, unless absolute.
func (c *Config) Resolve(p string) string {
	if filepath.IsAbs(p) || c.WorkDir == "" {
		return p
	}
	return filepath.Join(c.WorkDir, p)
}

// ScriptPath returns the resolved path of a pipeline script.
func (c *Config) ScriptPath(script string) string {
	return c.Resolve(filepath.Join(c.PipelinesDir, script))
}

// Requirements lists what the selected scenarios need from the machine.
func (c *Config) Requirements() preflight.Requirements {
	req := preflight.Requirements{Interpreter: c.Python}

	var scripts []string
	if c.HasScenario(ScenarioInferenceSpeed) {
		scripts = append(scripts, c.Models...)
	}
	if c.HasScenario(ScenarioLongRunning) || c.HasScenario(ScenarioCamera) {
		scripts = append(scripts, StabilityScript)
	}
	slices.Sort(scripts)
	for _, s := range slices.Compact(scripts) {
		req.Scripts = append(req.Scripts, c.ScriptPath(s))
	}

	if c.HasScenario(ScenarioInferenceSpeed) || c.HasScenario(ScenarioLongRunning) {
		req.Input = c.Resolve(c.Input)
	}
	if c.HasScenario(ScenarioCamera) {
		req.CameraDevice = c.CameraDevice
	}
	return req
}
