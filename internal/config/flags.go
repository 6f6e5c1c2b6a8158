package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
)

// listValue is a comma-separated list flag. The first Set replaces the
// default; repeating the flag appends.
type listValue struct {
	target *[]string
	set    bool
}

func (l *listValue) String() string {
	if l.target == nil {
		return ""
	}
	return strings.Join(*l.target, ",")
}

func (l *listValue) Set(value string) error {
	if !l.set {
		*l.target = nil
		l.set = true
	}
	for item := range strings.SplitSeq(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			*l.target = append(*l.target, item)
		}
	}
	return nil
}

// ParseFlags parses args (without the program name) into a Config.
//
// Precedence is defaults, then the -config YAML file, then flags. flag.ErrHelp
// is returned as-is when -h is given.
func ParseFlags(args []string, output io.Writer) (*Config, error) {
	cfg := DefaultConfig()
	if err := parseInto(cfg, args, output); err != nil {
		return nil, err
	}
	if cfg.ConfigFile == "" {
		return cfg, nil
	}

	fileCfg := DefaultConfig()
	if err := LoadFile(cfg.ConfigFile, fileCfg); err != nil {
		return nil, err
	}
	// Flags win over the file.
	if err := parseInto(fileCfg, args, io.Discard); err != nil {
		return nil, err
	}
	return fileCfg, nil
}

func parseInto(cfg *Config, args []string, output io.Writer) error {
	fs := newFlagSet(cfg, output)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return nil
}

// newFlagSet binds every flag to cfg, using cfg's current values as defaults.
func newFlagSet(cfg *Config, output io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("pipeline-harness", flag.ContinueOnError)
	fs.SetOutput(output)

	// Pipelines
	fs.StringVar(&cfg.Python, "python", cfg.Python, "Python interpreter used to run the pipelines")
	fs.StringVar(&cfg.WorkDir, "workdir", cfg.WorkDir, "Directory the pipelines run from (the pipelines repository root)")
	fs.StringVar(&cfg.PipelinesDir, "pipelines-dir", cfg.PipelinesDir, "Directory holding the pipeline scripts, relative to -workdir")
	fs.StringVar(&cfg.Input, "input", cfg.Input, "Video file fed to the pipelines, relative to -workdir")
	fs.StringVar(&cfg.CameraDevice, "camera-device", cfg.CameraDevice, "Camera device for the camera scenario")
	fs.Var(&listValue{target: &cfg.Models}, "models", "Comma-separated pipeline scripts for the inference speed scenario")
	fs.Var(&listValue{target: &cfg.Env}, "env", "Extra KEY=VALUE environment for the pipelines (comma-separated, can repeat)")

	// Scenarios
	fs.Var(&listValue{target: &cfg.Scenarios}, "scenarios", "Comma-separated scenarios to run: inference_speed, long_running, camera")
	fs.DurationVar(&cfg.Duration, "duration", cfg.Duration, "How long each inference pipeline runs")
	fs.DurationVar(&cfg.StabilityDuration, "stability-duration", cfg.StabilityDuration, "How long the long-running pipeline must stay up")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Liveness check interval during the long-running scenario")
	fs.DurationVar(&cfg.CameraDuration, "camera-duration", cfg.CameraDuration, "How long the camera pipeline runs")
	fs.Float64Var(&cfg.MinFPS, "min-fps", cfg.MinFPS, "Average FPS an inference pipeline must exceed")
	fs.DurationVar(&cfg.GracePeriod, "grace-period", cfg.GracePeriod, "Time a pipeline gets to exit after SIGTERM before SIGKILL")

	// Live output parsing
	fs.IntVar(&cfg.StatsBufferSize, "stats-buffer", cfg.StatsBufferSize, "Lines to buffer per output stream (increase if seeing drops)")
	fs.Float64Var(&cfg.StatsDropThreshold, "stats-drop-threshold", cfg.StatsDropThreshold, "")

	// Observability
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics listen address (empty disables)")
	fs.StringVar(&cfg.MetricsTextfile, "metrics-textfile", cfg.MetricsTextfile, "Write final metrics to this file for node_exporter")
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Show the live terminal dashboard")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, `Log level: "debug", "info", "warn" or "error"`)
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging (debug level, pipeline stderr echoed)")

	// Control
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")
	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "YAML file with settings (flags override it)")
	fs.BoolVar(&cfg.ShowVersion, "version", cfg.ShowVersion, "Print version and exit")

	fs.Usage = func() {
		w := fs.Output()
		fmt.Fprintf(w, `pipeline-harness - runs video inference pipelines and checks their FPS and stability

Usage:
  pipeline-harness [flags]

Pipelines:
`)
		printFlagCategory(fs, []string{"python", "workdir", "pipelines-dir", "input", "camera-device", "models", "env"})

		fmt.Fprintf(w, "\nScenarios:\n")
		printFlagCategory(fs, []string{"scenarios", "duration", "stability-duration", "poll-interval", "camera-duration", "min-fps", "grace-period"})

		fmt.Fprintf(w, "\nObservability:\n")
		printFlagCategory(fs, []string{"metrics", "metrics-textfile", "tui", "log-format", "log-level", "v", "stats-buffer"})

		fmt.Fprintf(w, "\nControl:\n")
		printFlagCategory(fs, []string{"config", "skip-preflight", "version"})

		fmt.Fprintf(w, `
Examples:
  # Full suite from the pipelines repository root
  pipeline-harness

  # Quick inference check of one model
  pipeline-harness -scenarios inference_speed -models detection.py -duration 20s

  # Stability only, with a dashboard and metrics
  pipeline-harness -scenarios long_running -tui -metrics 127.0.0.1:9109

`)
	}
	return fs
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(fs *flag.FlagSet, names []string) {
	w := fs.Output()
	for _, name := range names {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		fmt.Fprintf(w, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
		if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" {
			fmt.Fprintf(w, " (default %s)", f.DefValue)
		}
		fmt.Fprintln(w)
	}
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	switch f.Value.(type) {
	case *listValue:
		return "list"
	}
	if getter, ok := f.Value.(flag.Getter); ok {
		switch getter.Get().(type) {
		case bool:
			return ""
		case int:
			return "int"
		case float64:
			return "float"
		case fmt.Stringer:
			return "duration"
		}
	}
	return "string"
}

// IsHelp reports whether err is the flag package's -h/-help signal.
func IsHelp(err error) bool {
	return errors.Is(err, flag.ErrHelp)
}
