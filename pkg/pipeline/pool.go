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
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultLimit is the number of slots used when a pool is configured with
// a non-positive limit.
const DefaultLimit = 10

// Task transforms one item. A non-nil error becomes an ItemFailure.
type Task func(ctx context.Context, item string) error

// Outcome pairs an item with the result of its task.
type Outcome struct {
	Item string
	Err  *ItemFailure // nil on success
}

// Failed reports whether the item's task failed.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// PoolConfig configures a Pool.
type PoolConfig struct {
	// Name labels log events and metrics, usually the stage name.
	Name string

	// Limit is the maximum number of tasks in flight. Defaults to DefaultLimit.
	Limit int

	// OnDone runs after each task, while the task still holds its slot.
	// It may be called concurrently.
	OnDone func(Outcome)

	// OnProgress is called with the number of finished items after each
	// task. Calls are serialized and done is strictly increasing.
	OnProgress func(done, total int)

	Logger *slog.Logger
}

// Pool runs tasks over a batch of items with bounded concurrency.
type Pool struct {
	name       string
	limit      int
	onDone     func(Outcome)
	onProgress func(done, total int)
	logger     *slog.Logger
}

// NewPool creates a pool from cfg.
func NewPool(cfg PoolConfig) *Pool {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Name == "" {
		cfg.Name = "pool"
	}
	return &Pool{
		name:       cfg.Name,
		limit:      cfg.Limit,
		onDone:     cfg.OnDone,
		onProgress: cfg.OnProgress,
		logger:     cfg.Logger,
	}
}

// Limit returns the pool's slot count.
func (p *Pool) Limit() int {
	return p.limit
}

// Run executes task for every item and blocks until all of them have
// finished. Outcomes are returned in completion order.
//
// A failing task never affects other items. Run itself fails only when a
// slot cannot be acquired (the context was cancelled); it then stops
// dispatching, waits for the tasks already started and returns their
// outcomes together with a FatalError.
func (p *Pool) Run(ctx context.Context, items []string, task Task) ([]Outcome, error) {
	total := len(items)
	if total == 0 {
		return nil, nil
	}

	sem := semaphore.NewWeighted(int64(p.limit))
	outcomes := make([]Outcome, 0, total)

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		done int
	)

	p.logger.Debug("pool.start", "pool", p.name, "items", total, "limit", p.limit)
	start := time.Now()

	var acquireErr error
	for _, item := range items {
		if err := sem.Acquire(ctx, 1); err != nil {
			acquireErr = fmt.Errorf("acquire slot for %s: %w", item, err)
			break
		}

		wg.Add(1)
		trackInFlight(p.name, 1)
		go func(item string) {
			defer wg.Done()
			defer sem.Release(1)
			defer trackInFlight(p.name, -1)

			itemStart := time.Now()
			out := Outcome{Item: item}
			if err := p.runTask(ctx, item, task); err != nil {
				out.Err = asItemFailure(item, err)
				p.logger.Debug("pool.item.failed", "pool", p.name, "item", item, "err", out.Err.Message)
			}
			recordItem(p.name, out.Failed(), time.Since(itemStart).Seconds())

			if p.onDone != nil {
				p.onDone(out)
			}

			mu.Lock()
			outcomes = append(outcomes, out)
			done++
			if p.onProgress != nil {
				p.onProgress(done, total)
			}
			mu.Unlock()
		}(item)
	}

	wg.Wait()

	if acquireErr != nil {
		p.logger.Error("pool.acquire.failed", "pool", p.name, "completed", len(outcomes), "items", total, "err", acquireErr)
		return outcomes, &FatalError{Stage: p.name, Cause: acquireErr}
	}

	failed := 0
	for _, o := range outcomes {
		if o.Failed() {
			failed++
		}
	}
	p.logger.Info("pool.complete",
		"pool", p.name,
		"items", total,
		"failed", failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return outcomes, nil
}

// runTask calls task, turning a panic into an error so one item cannot take
// down the batch.
func (p *Pool) runTask(ctx context.Context, item string, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return task(ctx, item)
}

// Failures filters outcomes down to the failed ones.
func Failures(outcomes []Outcome) []Outcome {
	var out []Outcome
	for _, o := range outcomes {
		if o.Failed() {
			out = append(out, o)
		}
	}
	return out
}
