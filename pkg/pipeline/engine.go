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

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kraklabs/cratescan/pkg/ledger"
	"github.com/kraklabs/cratescan/pkg/storage"
)

// Stage is one named, checkpointed phase of the pipeline.
type Stage interface {
	// Name is the checkpoint key of the stage.
	Name() string

	// Run performs the stage's work. Per-item failures must be recorded in
	// the ledger, not returned; any returned error is fatal.
	Run(ctx context.Context, rc *RunContext) error
}

// Notifier receives user-facing status notifications. All methods are
// observational.
type Notifier interface {
	StageSkipped(stage string, completedAt time.Time)
	StageStarted(stage string)
	StageCompleted(stage string, elapsed time.Duration)
	Progress(stage string, done, total int)
}

type nopNotifier struct{}

func (nopNotifier) StageSkipped(string, time.Time)       {}
func (nopNotifier) StageStarted(string)                  {}
func (nopNotifier) StageCompleted(string, time.Duration) {}
func (nopNotifier) Progress(string, int, int)            {}

// RunContext carries the mutable state of one pipeline run. It is passed
// explicitly to every stage.
type RunContext struct {
	Checkpoint *Checkpoint
	Ledger     *ledger.Ledger
	Logger     *slog.Logger
	Notifier   Notifier
}

// Pool returns a worker pool for stage whose progress is reported through
// the run's notifier. onDone may be nil.
func (rc *RunContext) Pool(stage string, limit int, onDone func(Outcome)) *Pool {
	return NewPool(PoolConfig{
		Name:   stage,
		Limit:  limit,
		OnDone: onDone,
		OnProgress: func(done, total int) {
			rc.Notifier.Progress(stage, done, total)
		},
		Logger: rc.Logger,
	})
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	Backend  storage.Backend
	Logger   *slog.Logger
	Notifier Notifier
	Now      func() time.Time
}

// Engine sequences stages and persists state between them.
type Engine struct {
	stages      []Stage
	backend     storage.Backend
	checkpoints *CheckpointManager
	logger      *slog.Logger
	notifier    Notifier
	now         func() time.Time
}

// NewEngine creates an engine running stages in the given order.
func NewEngine(cfg EngineConfig, stages ...Stage) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = nopNotifier{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cm := NewCheckpointManager(cfg.Backend)
	cm.now = cfg.Now
	return &Engine{
		stages:      stages,
		backend:     cfg.Backend,
		checkpoints: cm,
		logger:      cfg.Logger,
		notifier:    cfg.Notifier,
		now:         cfg.Now,
	}
}

// Stages returns the stage names in execution order.
func (e *Engine) Stages() []string {
	names := make([]string, len(e.stages))
	for i, s := range e.stages {
		names[i] = s.Name()
	}
	return names
}

// Open loads the checkpoint and ledger, default-initialising whichever is
// absent. A document that exists but cannot be decoded is fatal.
func (e *Engine) Open() (*RunContext, error) {
	cp, err := e.checkpoints.LoadOrCreate()
	if err != nil {
		return nil, Fatal("", err)
	}
	l, err := ledger.Load(e.backend)
	if err != nil {
		return nil, Fatal("", err)
	}
	if l == nil {
		l = ledger.New()
	}
	return &RunContext{
		Checkpoint: cp,
		Ledger:     l,
		Logger:     e.logger.With("run_id", cp.RunID),
		Notifier:   e.notifier,
	}, nil
}

// Run executes every stage in order and stops at the first fatal error.
func (e *Engine) Run(ctx context.Context, rc *RunContext) error {
	start := e.now()
	e.logger.Info("pipeline.start", "run_id", rc.Checkpoint.RunID, "stages", len(e.stages))

	ran := 0
	for _, stage := range e.stages {
		skipped, err := e.RunStage(ctx, rc, stage)
		if err != nil {
			e.logger.Error("pipeline.fatal", "stage", stage.Name(), "err", err)
			return err
		}
		if !skipped {
			ran++
		}
	}

	e.logger.Info("pipeline.complete",
		"run_id", rc.Checkpoint.RunID,
		"stages_run", ran,
		"stages_skipped", len(e.stages)-ran,
		"duration_ms", e.now().Sub(start).Milliseconds(),
	)
	return nil
}

// RunStage runs a single stage unless its checkpoint is already set. On
// success the stage's timestamp is recorded and the checkpoint and ledger
// are persisted. It reports whether the stage was skipped.
func (e *Engine) RunStage(ctx context.Context, rc *RunContext, stage Stage) (bool, error) {
	name := stage.Name()

	if at, ok := rc.Checkpoint.CompletedAt(name); ok {
		e.logger.Info("stage.skip", "stage", name, "completed_at", at.Format(time.RFC3339))
		recordStageSkipped(name)
		e.notifier.StageSkipped(name, at)
		return true, nil
	}

	if err := ctx.Err(); err != nil {
		return false, Fatal(name, err)
	}

	e.logger.Info("stage.start", "stage", name)
	e.notifier.StageStarted(name)
	start := e.now()

	err := stage.Run(ctx, rc)
	if err == nil {
		// Items cut short by cancellation must not be checkpointed as done
		err = ctx.Err()
	}
	if err != nil {
		recordStageFatal(name)
		return false, Fatal(name, err)
	}

	rc.Checkpoint.MarkCompleted(name, e.now())
	if err := e.persist(rc); err != nil {
		delete(rc.Checkpoint.Stages, name)
		recordStageFatal(name)
		return false, Fatal(name, err)
	}

	elapsed := e.now().Sub(start)
	recordStageCompleted(name, elapsed.Seconds())
	e.logger.Info("stage.complete", "stage", name, "duration_ms", elapsed.Milliseconds())
	e.notifier.StageCompleted(name, elapsed)
	return false, nil
}

// persist writes the ledger first: a saved checkpoint never covers results
// that were not saved.
func (e *Engine) persist(rc *RunContext) error {
	if err := rc.Ledger.Save(e.backend); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	if err := e.checkpoints.Save(rc.Checkpoint); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}
