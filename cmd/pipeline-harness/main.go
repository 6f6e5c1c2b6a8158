// Package main provides the pipeline-harness CLI entry point.
//
// pipeline-harness runs video-inference pipeline scripts for a bounded time,
// stops and reaps them, and judges their output: average FPS above a
// threshold, stability over a long run, and a clean camera smoke test.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/randomizedcoder/go-pipeline-harness/internal/config"
	"github.com/randomizedcoder/go-pipeline-harness/internal/logging"
	"github.com/randomizedcoder/go-pipeline-harness/internal/orchestrator"
	"github.com/randomizedcoder/go-pipeline-harness/internal/scenario"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/pipeline-harness
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.ParseFlags(args, os.Stderr)
	if err != nil {
		if config.IsHelp(err) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	if cfg.ShowVersion {
		fmt.Printf("pipeline-harness %s\n", version)
		return 0
	}

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error:\n%v\n", err)
		return 1
	}

	// Logs would tear the dashboard; discard them while it is up.
	var logger *slog.Logger
	if cfg.TUIEnabled {
		logger = logging.Discard()
	} else {
		logger = logging.NewLogger(cfg.LogFormat, cfg.LogLevel, cfg.Verbose)
	}
	logging.SetDefault(logger)

	orch := orchestrator.New(cfg, logger, orchestrator.Options{Version: version})
	results, err := orch.Run(context.Background())
	if err != nil {
		if errors.Is(err, orchestrator.ErrPreflightFailed) {
			fmt.Fprintln(os.Stderr, err)
		} else {
			logger.Error("run_failed", "error", err)
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}

	if scenario.AnyFailed(results) {
		return 1
	}
	return 0
}
