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

package testing

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"

	"github.com/kraklabs/cratescan/pkg/ledger"
	"github.com/kraklabs/cratescan/pkg/storage"
)

// WriteFile writes content to root/rel, creating parent directories, and
// returns the absolute path.
func WriteFile(t testing.TB, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(p), err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

// Crate describes a crate to lay out with WriteCrate.
type Crate struct {
	// Name defaults to the last segment of the crate key.
	Name string
	// Lib adds an explicit [lib] table.
	Lib bool
	// Features are written as empty feature lists.
	Features []string
	// Sources maps crate-relative paths to file contents.
	Sources map[string]string
}

// Manifest renders the Cargo.toml for c.
func (c Crate) Manifest(key string) string {
	name := c.Name
	if name == "" {
		name = path.Base(key)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[package]\nname = %q\nversion = \"0.1.0\"\nedition = \"2021\"\n", name)
	if c.Lib {
		b.WriteString("\n[lib]\npath = \"src/lib.rs\"\n")
	}
	if len(c.Features) > 0 {
		b.WriteString("\n[features]\n")
		for _, f := range c.Features {
			fmt.Fprintf(&b, "%s = []\n", f)
		}
	}
	return b.String()
}

// WriteCrate lays out a crate under root at the slash path key and returns
// its directory.
func WriteCrate(t testing.TB, root, key string, c Crate) string {
	t.Helper()
	WriteFile(t, root, path.Join(key, "Cargo.toml"), c.Manifest(key))

	names := make([]string, 0, len(c.Sources))
	for rel := range c.Sources {
		names = append(names, rel)
	}
	sort.Strings(names)
	for _, rel := range names {
		WriteFile(t, root, path.Join(key, rel), c.Sources[rel])
	}
	return filepath.Join(root, filepath.FromSlash(key))
}

// WriteVirtualManifest writes a workspace-only Cargo.toml at root/rel.
func WriteVirtualManifest(t testing.TB, root, rel string, members ...string) {
	t.Helper()
	quoted := make([]string, len(members))
	for i, m := range members {
		quoted[i] = fmt.Sprintf("%q", m)
	}
	WriteFile(t, root, path.Join(rel, "Cargo.toml"),
		fmt.Sprintf("[workspace]\nmembers = [%s]\n", strings.Join(quoted, ", ")))
}

// FakeCargo writes an executable shell script standing in for cargo and
// returns its path. body runs with the cargo arguments in "$@".
func FakeCargo(t testing.TB, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	p := filepath.Join(t.TempDir(), "cargo")
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write fake cargo: %v", err)
	}
	return p
}

// SaveLedger persists l to backend, failing the test on error.
func SaveLedger(t testing.TB, backend storage.Backend, l *ledger.Ledger) {
	t.Helper()
	if err := l.Save(backend); err != nil {
		t.Fatalf("save ledger: %v", err)
	}
}

// LoadLedger reads the ledger from backend. It fails the test when the
// ledger is missing or unreadable.
func LoadLedger(t testing.TB, backend storage.Backend) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Load(backend)
	if err != nil {
		t.Fatalf("load ledger: %v", err)
	}
	if l == nil {
		t.Fatalf("ledger %q not saved", ledger.DocumentName)
	}
	return l
}
