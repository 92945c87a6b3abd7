// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kraklabs/cratescan/internal/bootstrap"
	"github.com/kraklabs/cratescan/internal/errors"
	"github.com/kraklabs/cratescan/internal/output"
	"github.com/kraklabs/cratescan/internal/ui"
	"github.com/kraklabs/cratescan/pkg/expand"
	"github.com/kraklabs/cratescan/pkg/pipeline"
	"github.com/kraklabs/cratescan/pkg/sources"
	"github.com/kraklabs/cratescan/pkg/stages"
)

// runPipeline executes the 'run' command: it opens the workspace, takes the
// run lock and drives the eight stages, skipping those the checkpoint
// already records.
//
// Flags:
//   - --debug: debug logging
//   - --metrics-addr: serve Prometheus metrics while running
//   - --lock-timeout: how long to wait for another run to finish
func runPipeline(args []string, globals GlobalFlags) {
	fs := newFlagSet("run", "[options]",
		"Runs the pipeline, resuming after the last completed stage.",
		"  cratescan run\n  cratescan run --metrics-addr :9102\n  cratescan -q run --lock-timeout 10m")
	debug := fs.Bool("debug", false, "Enable debug logging")
	metricsAddr := fs.String("metrics-addr", "", "HTTP listen address for Prometheus metrics (empty to disable)")
	lockTimeout := fs.Duration("lock-timeout", 0, "Wait this long for a concurrent run to release the lock")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg := loadConfigOrExit(globals)
	logger := newLogger(globals, *debug)
	slog.SetDefault(logger)

	ws, err := bootstrap.OpenWorkspace(cfg.ResolvedDataDir(), logger)
	if err != nil {
		errors.FatalError(errors.NewNotFoundError(
			"Workspace not initialised",
			err.Error(),
			"Run 'cratescan init' first"), globals.JSON)
	}

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("shutdown.signal", "signal", sig.String())
		cancel()
	}()

	lock := NewRunLock(ws.LockPath)
	acquired, err := lock.Wait(ctx, *lockTimeout)
	if err != nil {
		errors.FatalError(errors.NewPermissionError("Cannot take the run lock", err.Error(), "", err), globals.JSON)
	}
	if !acquired {
		cause := "another cratescan run is using this data directory"
		if info, _ := lock.Holder(); info != nil {
			cause = fmt.Sprintf("process %d has been running for %s", info.PID, FormatDuration(time.Since(info.StartedAt)))
		}
		errors.FatalError(errors.NewInputError(
			"Pipeline already running", cause,
			"Wait for it to finish or pass --lock-timeout"), globals.JSON)
	}
	defer lock.Release()

	deps, err := buildDeps(ctx, cfg, ws, logger)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	notifier := newTerminalNotifier(NewProgressConfig(globals), globals.Quiet)
	defer notifier.Close()

	engine := pipeline.NewEngine(pipeline.EngineConfig{
		Backend:  ws.Backend,
		Logger:   logger,
		Notifier: notifier,
	}, stages.All(deps)...)

	rc, err := engine.Open()
	if err == nil {
		err = engine.Run(ctx, rc)
	}
	if err != nil {
		notifier.Close()
		lock.Release()
		errors.FatalError(errors.FromPipeline(err), globals.JSON)
	}

	summary := summarize(rc.Checkpoint, rc.Ledger)
	if globals.JSON {
		if err := output.JSON(summary); err != nil {
			errors.FatalError(err, true)
		}
		return
	}
	printRunSummary(summary)
}

func buildDeps(ctx context.Context, cfg *Config, ws *bootstrap.Workspace, logger *slog.Logger) (stages.Deps, error) {
	gh := cfg.GitHubSource()
	gh.Logger = logger
	lister, err := sources.NewGitHub(ctx, gh)
	if err != nil {
		return stages.Deps{}, errors.NewConfigError("Cannot create GitHub client", err.Error(), "Check github.base_url", err)
	}

	ex := cfg.Expander()
	ex.Logger = logger
	return stages.Deps{
		Lister: lister,
		Syncer: sources.NewCloner(sources.CloneConfig{
			Root:   ws.ReposDir,
			Depth:  cfg.Clone.Depth,
			Logger: logger,
		}),
		Finder:          sources.NewDiscoverer(cfg.Discovery.Exclude, logger),
		Expander:        expand.NewExpander(ex),
		ReposDir:        ws.ReposDir,
		StripPredicates: cfg.Cfg.StripPredicates,
		Workers:         cfg.StageWorkers(),
	}, nil
}

// newLogger returns a text handler on stdout. With --json it logs to stderr
// so stdout carries only the document.
func newLogger(globals GlobalFlags, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug || globals.Verbose > 0 {
		level = slog.LevelDebug
	}
	w := os.Stdout
	if globals.JSON {
		w = os.Stderr
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	logger.Info("metrics.http.start", "addr", addr, "path", "/metrics")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Warn("metrics.http.error", "err", err)
	}
}

func loadConfigOrExit(globals GlobalFlags) *Config {
	cfg, err := LoadConfig(globals.Config)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	if globals.DataDir != "" {
		cfg.DataDir = globals.DataDir
	}
	return cfg
}

func printRunSummary(s *Summary) {
	fmt.Println()
	ui.Header("Run Complete")
	fmt.Printf("%s %s\n", ui.Label("Run ID:      "), s.RunID)
	fmt.Printf("%s %s\n", ui.Label("Repositories:"), ui.CountText(s.Repos))
	fmt.Printf("%s %s\n", ui.Label("Crates:      "), ui.CountText(s.Crates))
	if s.CloneFailures > 0 {
		ui.Warningf("%d repositories failed to clone", s.CloneFailures)
	}
	for _, m := range s.Metrics {
		if m.Failures > 0 {
			ui.Warningf("%s: %d of %d crates failed", m.Metric, m.Failures, m.Recorded)
		}
	}
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  cratescan report    Show macro usage by repository")
	fmt.Println("  cratescan status    Show stage checkpoints")
}
