package config

import (
	"errors"
	"fmt"
	"math"
	"net"
	"slices"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or every problem found joined with errors.Join.
func Validate(cfg *Config) error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(cfg.Python) == "" {
		add("python", "interpreter is required")
	}

	// Scenarios
	if len(cfg.Scenarios) == 0 {
		add("scenarios", "at least one scenario is required")
	}
	seen := make(map[string]bool)
	for _, s := range cfg.Scenarios {
		if !slices.Contains(KnownScenarios, s) {
			add("scenarios", "unknown scenario %q (want one of: %s)", s, strings.Join(KnownScenarios, ", "))
		}
		if seen[s] {
			add("scenarios", "%q listed twice", s)
		}
		seen[s] = true
	}

	if cfg.HasScenario(ScenarioInferenceSpeed) {
		if len(cfg.Models) == 0 {
			add("models", "at least one model script is required for %s", ScenarioInferenceSpeed)
		}
		for _, m := range cfg.Models {
			if !strings.HasSuffix(m, ".py") {
				add("models", "%q is not a Python script", m)
			}
		}
		if cfg.MinFPS < 0 || math.IsNaN(cfg.MinFPS) || math.IsInf(cfg.MinFPS, 0) {
			add("min_fps", "must be a finite value >= 0 (got %v)", cfg.MinFPS)
		}
	}
	if (cfg.HasScenario(ScenarioInferenceSpeed) || cfg.HasScenario(ScenarioLongRunning)) && cfg.Input == "" {
		add("input", "input video is required")
	}
	if cfg.HasScenario(ScenarioCamera) && cfg.CameraDevice == "" {
		add("camera_device", "camera device is required for %s", ScenarioCamera)
	}

	// Durations
	positive := []struct {
		field string
		value time.Duration
	}{
		{"duration", cfg.Duration},
		{"stability_duration", cfg.StabilityDuration},
		{"poll_interval", cfg.PollInterval},
		{"camera_duration", cfg.CameraDuration},
		{"grace_period", cfg.GracePeriod},
	}
	for _, p := range positive {
		if p.value <= 0 {
			add(p.field, "must be positive (got %v)", p.value)
		}
	}
	if cfg.PollInterval > 0 && cfg.StabilityDuration > 0 && cfg.PollInterval > cfg.StabilityDuration {
		add("poll_interval", "must not exceed stability_duration (%v > %v)", cfg.PollInterval, cfg.StabilityDuration)
	}

	for _, kv := range cfg.Env {
		if k, _, ok := strings.Cut(kv, "="); !ok || k == "" {
			add("env", "%q is not KEY=VALUE", kv)
		}
	}

	if cfg.StatsBufferSize < 1 {
		add("stats_buffer", "must be at least 1")
	}
	if cfg.StatsDropThreshold <= 0 || cfg.StatsDropThreshold > 1 {
		add("stats_drop_threshold", "must be in (0, 1] (got %v)", cfg.StatsDropThreshold)
	}

	// Observability
	if cfg.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.MetricsAddr); err != nil {
			add("metrics_addr", "%v", err)
		}
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		add("log_format", "must be 'json' or 'text' (got %q)", cfg.LogFormat)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[strings.ToLower(cfg.LogLevel)] {
		add("log_level", "must be debug, info, warn or error (got %q)", cfg.LogLevel)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
