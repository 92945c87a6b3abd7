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

package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kraklabs/cratescan/pkg/ledger"
	"github.com/kraklabs/cratescan/pkg/pipeline"
	"github.com/kraklabs/cratescan/pkg/storage"
)

const (
	ReposDirName = "repos"
	LockFileName = "cratescan.lock"
)

// ErrNoWorkspace is returned by OpenWorkspace for an uninitialised data dir.
var ErrNoWorkspace = errors.New("workspace not initialised")

// Workspace is an initialised data directory.
type Workspace struct {
	DataDir  string
	ReposDir string
	LockPath string
	Backend  *storage.FileBackend
}

func newWorkspace(dataDir string) *Workspace {
	return &Workspace{
		DataDir:  dataDir,
		ReposDir: filepath.Join(dataDir, ReposDirName),
		LockPath: filepath.Join(dataDir, LockFileName),
		Backend:  storage.NewFileBackend(dataDir),
	}
}

// InitWorkspace creates the workspace directories under dataDir.
func InitWorkspace(dataDir string, logger *slog.Logger) (*Workspace, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dataDir == "" {
		return nil, fmt.Errorf("data dir is required")
	}
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}

	ws := newWorkspace(abs)
	if err := os.MkdirAll(ws.ReposDir, 0o750); err != nil {
		return nil, fmt.Errorf("create repos dir: %w", err)
	}
	logger.Info("bootstrap.workspace.init", "data_dir", ws.DataDir)
	return ws, nil
}

// OpenWorkspace opens a workspace created by InitWorkspace.
func OpenWorkspace(dataDir string, logger *slog.Logger) (*Workspace, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}
	ws := newWorkspace(abs)
	info, err := os.Stat(ws.ReposDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s (run 'cratescan init' first)", ErrNoWorkspace, abs)
		}
		return nil, fmt.Errorf("stat repos dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrNoWorkspace, ws.ReposDir)
	}
	logger.Debug("bootstrap.workspace.open", "data_dir", ws.DataDir)
	return ws, nil
}

// Reset removes the checkpoint and, when withLedger is set, the ledger.
// Cloned repositories are kept. It returns the paths that were removed.
func (w *Workspace) Reset(withLedger bool) ([]string, error) {
	docs := []string{pipeline.CheckpointDocument}
	if withLedger {
		docs = append(docs, ledger.DocumentName)
	}
	var removed []string
	for _, doc := range docs {
		p := w.Backend.Path(doc)
		if _, err := os.Stat(p); os.IsNotExist(err) {
			continue
		}
		if err := w.Backend.Remove(doc); err != nil {
			return removed, err
		}
		removed = append(removed, p)
	}
	return removed, nil
}

// State loads the checkpoint and ledger for read-only commands. Either may
// be nil when it was never saved.
func (w *Workspace) State() (*pipeline.Checkpoint, *ledger.Ledger, error) {
	cp, err := pipeline.NewCheckpointManager(w.Backend).Load()
	if err != nil {
		return nil, nil, err
	}
	l, err := ledger.Load(w.Backend)
	if err != nil {
		return nil, nil, err
	}
	return cp, l, nil
}
