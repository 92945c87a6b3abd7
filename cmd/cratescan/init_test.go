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
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateInitConfig(t *testing.T) {
	cfg := createInitConfig(initFlags{}, GlobalFlags{})
	assert.Equal(t, DefaultConfig(), cfg)

	cfg = createInitConfig(initFlags{
		repoCount:     25,
		query:         "language:rust stars:>100",
		expandWorkers: 2,
		toolchain:     "nightly-2024-06-01",
	}, GlobalFlags{DataDir: "/tmp/scan"})
	assert.Equal(t, 25, cfg.GitHub.RepoCount)
	assert.Equal(t, "language:rust stars:>100", cfg.GitHub.Query)
	assert.Equal(t, 2, cfg.Workers.Expand)
	assert.Equal(t, "nightly-2024-06-01", cfg.Expand.Toolchain)
	assert.Equal(t, "/tmp/scan", cfg.DataDir)
	assert.NoError(t, cfg.Validate())
}

func TestPrompt(t *testing.T) {
	tests := []struct {
		name, input, def, want string
	}{
		{"default on empty line", "\n", "nightly", "nightly"},
		{"default on EOF", "", "nightly", "nightly"},
		{"answer trimmed", "  stable \n", "nightly", "stable"},
		{"no default", "x\n", "", "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w bytes.Buffer
			got := prompt(bufio.NewReader(strings.NewReader(tt.input)), &w, "Toolchain", tt.def)
			if got != tt.want {
				t.Errorf("prompt() = %q, want %q", got, tt.want)
			}
			if !strings.HasPrefix(w.String(), "Toolchain") {
				t.Errorf("prompt wrote %q", w.String())
			}
		})
	}
}

func TestPromptInt(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"\n", 8},
		{"3\n", 3},
		{"zero\n", 8},
		{"-1\n", 8},
	}
	for _, tt := range tests {
		var w bytes.Buffer
		if got := promptInt(bufio.NewReader(strings.NewReader(tt.input)), &w, "Workers", 8); got != tt.want {
			t.Errorf("promptInt(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestAddToGitignore(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		dir := t.TempDir()
		assert.False(t, addToGitignore(dir))
		_, err := os.Stat(filepath.Join(dir, ".gitignore"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("appends once", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, ".gitignore")
		require.NoError(t, os.WriteFile(path, []byte("target"), 0o600))

		assert.True(t, addToGitignore(dir))
		assert.False(t, addToGitignore(dir))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "target\n\n# cratescan workspace\n.cratescan/\n", string(data))
	})

	t.Run("already listed", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("/.cratescan\n"), 0o600))
		assert.False(t, addToGitignore(dir))
	})
}
