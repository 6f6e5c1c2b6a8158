package scenario

import (
	"log/slog"

	"github.com/randomizedcoder/go-pipeline-harness/internal/config"
	"github.com/randomizedcoder/go-pipeline-harness/internal/harness"
	"github.com/randomizedcoder/go-pipeline-harness/internal/metrics"
	"github.com/randomizedcoder/go-pipeline-harness/internal/parser"
	"github.com/randomizedcoder/go-pipeline-harness/internal/preflight"
)

// NewEnvironment derives the shared scenario environment from cfg.
// collector may be nil.
func NewEnvironment(cfg *config.Config, logger *slog.Logger, probe preflight.Probe, collector *metrics.Collector) *Environment {
	return &Environment{
		Python:       cfg.Python,
		WorkDir:      cfg.WorkDir,
		PipelinesDir: cfg.PipelinesDir,
		Env:          cfg.Env,
		Probe:        probe,
		Logger:       logger,
		Collector:    collector,
		Verbose:      cfg.Verbose,
		Options: harness.Options{
			GracePeriod:    cfg.GracePeriod,
			LineBufferSize: cfg.StatsBufferSize,
			DropThreshold:  cfg.StatsDropThreshold,
		},
	}
}

// Build returns the selected scenarios in the fixed run order, regardless of
// the order they were named in.
func Build(cfg *config.Config) []Scenario {
	var out []Scenario
	for _, name := range config.KnownScenarios {
		if !cfg.HasScenario(name) {
			continue
		}
		switch name {
		case config.ScenarioInferenceSpeed:
			out = append(out, &InferenceSpeed{
				Models:   cfg.Models,
				Input:    cfg.Input,
				Duration: cfg.Duration,
				MinFPS:   cfg.MinFPS,
			})
		case config.ScenarioLongRunning:
			out = append(out, &LongRunning{
				Script:       config.StabilityScript,
				Input:        cfg.Input,
				Duration:     cfg.StabilityDuration,
				PollInterval: cfg.PollInterval,
				Signature:    parser.StrictErrorSignature,
			})
		case config.ScenarioCamera:
			out = append(out, &Camera{
				Script:    config.StabilityScript,
				Device:    cfg.CameraDevice,
				Duration:  cfg.CameraDuration,
				Signature: parser.AnyErrorSignature,
			})
		}
	}
	return out
}
