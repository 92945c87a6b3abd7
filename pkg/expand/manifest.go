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
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ManifestName is the Cargo manifest file name.
const ManifestName = "Cargo.toml"

// Manifest is the subset of a Cargo manifest used by expansion.
type Manifest struct {
	Package *struct {
		Name    string `toml:"name"`
		Version any    `toml:"version"` // string or { workspace = true }
	} `toml:"package"`
	Lib          *struct{}      `toml:"lib"`
	Features     map[string]any `toml:"features"`
	Dependencies map[string]any `toml:"dependencies"`
}

// HasLib reports whether the manifest declares a [lib] target.
func (m *Manifest) HasLib() bool {
	return m != nil && m.Lib != nil
}

// Name returns the package name, or "" for a virtual manifest.
func (m *Manifest) Name() string {
	if m == nil || m.Package == nil {
		return ""
	}
	return m.Package.Name
}

// ReadManifest decodes <dir>/Cargo.toml.
func ReadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if _, err := toml.Decode(string(data), &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}
