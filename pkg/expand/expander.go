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

package expand

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/kraklabs/cratescan/pkg/pipeline"
)

// ExpandedFileName is the file expansion output is written to, inside the
// crate directory.
const ExpandedFileName = ".macro-expanded.rs"

// Config configures an Expander.
type Config struct {
	// Program is the cargo executable. Default: "cargo".
	Program string

	// Toolchain selects the rustup toolchain, passed both as "+<toolchain>"
	// and as RUSTUP_TOOLCHAIN. Empty disables both.
	Toolchain string

	// NoDefaultFeatures adds --no-default-features.
	NoDefaultFeatures bool

	Logger *slog.Logger
}

// DefaultConfig returns the configuration matching the standard nightly
// cargo-expand invocation.
func DefaultConfig() Config {
	return Config{
		Program:           "cargo",
		Toolchain:         "nightly",
		NoDefaultFeatures: true,
	}
}

// Expander runs macro expansion on crates.
type Expander struct {
	cfg Config
}

// NewExpander creates an Expander.
func NewExpander(cfg Config) *Expander {
	if cfg.Program == "" {
		cfg.Program = "cargo"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Expander{cfg: cfg}
}

// Args returns the command-line arguments for expanding the crate whose
// manifest is at manifestPath.
func (e *Expander) Args(manifestPath string, m *Manifest) []string {
	var args []string
	if e.cfg.Toolchain != "" {
		args = append(args, "+"+e.cfg.Toolchain)
	}
	args = append(args, "expand")
	if e.cfg.NoDefaultFeatures {
		args = append(args, "--no-default-features")
	}
	args = append(args, "--manifest-path", manifestPath)
	if m.HasLib() {
		args = append(args, "--lib")
	}
	return args
}

// Expand expands the crate in dir, writes the output next to its manifest
// and returns the number of bytes written. Every failure is returned as a
// *pipeline.ItemFailure.
func (e *Expander) Expand(ctx context.Context, dir string) (int, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return 0, pipeline.NewItemFailure("", err.Error(), err)
	}

	manifestPath := filepath.Join(dir, ManifestName)
	cmd := exec.CommandContext(ctx, e.cfg.Program, e.Args(manifestPath, m)...)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	if e.cfg.Toolchain != "" {
		cmd.Env = append(cmd.Env, "RUSTUP_TOOLCHAIN="+e.cfg.Toolchain)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		e.cfg.Logger.Debug("expand.failed", "dir", dir, "err", err)
		return 0, pipeline.NewItemFailure("", msg, err)
	}

	out := filepath.Join(dir, ExpandedFileName)
	if err := os.WriteFile(out, stdout.Bytes(), 0644); err != nil {
		return 0, pipeline.NewItemFailure("", fmt.Sprintf("write expansion: %v", err), err)
	}
	return stdout.Len(), nil
}
