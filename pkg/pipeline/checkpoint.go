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
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kraklabs/cratescan/pkg/storage"
)

// CheckpointDocument is the storage name the checkpoint is persisted under.
const CheckpointDocument = "checkpoint"

// RepoRef identifies a repository selected for analysis.
type RepoRef struct {
	FullName string `json:"full_name"`
	CloneURL string `json:"clone_url"`
	Stars    int    `json:"stars"`
}

// Checkpoint tracks which stages completed and when.
type Checkpoint struct {
	RunID          string               `json:"run_id"`
	Stages         map[string]time.Time `json:"stages"`
	Repos          []RepoRef            `json:"repos,omitempty"` // fetch-repos output, consumed by clone-repos
	StartTime      string               `json:"start_time"`
	LastUpdateTime string               `json:"last_update_time"`
}

// NewCheckpoint returns an empty checkpoint with a fresh run ID.
func NewCheckpoint(now time.Time) *Checkpoint {
	return &Checkpoint{
		RunID:     uuid.NewString(),
		Stages:    make(map[string]time.Time),
		StartTime: now.UTC().Format(time.RFC3339),
	}
}

// CompletedAt returns the completion time of stage, if recorded.
func (c *Checkpoint) CompletedAt(stage string) (time.Time, bool) {
	at, ok := c.Stages[stage]
	return at, ok
}

// MarkCompleted records the completion time of stage.
func (c *Checkpoint) MarkCompleted(stage string, at time.Time) {
	if c.Stages == nil {
		c.Stages = make(map[string]time.Time)
	}
	c.Stages[stage] = at.UTC()
}

// CheckpointManager loads and saves the checkpoint document.
type CheckpointManager struct {
	backend storage.Backend
	now     func() time.Time
}

// NewCheckpointManager creates a manager over backend.
func NewCheckpointManager(backend storage.Backend) *CheckpointManager {
	return &CheckpointManager{backend: backend, now: time.Now}
}

// Load reads the checkpoint. It returns (nil, nil) if none was saved.
func (cm *CheckpointManager) Load() (*Checkpoint, error) {
	var cp Checkpoint
	found, err := cm.backend.Load(CheckpointDocument, &cp)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if !found {
		return nil, nil
	}
	if cp.Stages == nil {
		cp.Stages = make(map[string]time.Time)
	}
	return &cp, nil
}

// LoadOrCreate reads the checkpoint, starting a new one when absent.
func (cm *CheckpointManager) LoadOrCreate() (*Checkpoint, error) {
	cp, err := cm.Load()
	if err != nil {
		return nil, err
	}
	if cp == nil {
		cp = NewCheckpoint(cm.now())
	}
	return cp, nil
}

// Save persists the checkpoint, stamping its update time.
func (cm *CheckpointManager) Save(cp *Checkpoint) error {
	cp.LastUpdateTime = cm.now().UTC().Format(time.RFC3339)
	if err := cm.backend.Save(CheckpointDocument, cp); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// Clear removes the checkpoint so the next run starts from scratch.
func (cm *CheckpointManager) Clear() error {
	if err := cm.backend.Remove(CheckpointDocument); err != nil {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}
