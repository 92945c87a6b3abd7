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

package sources

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// ManifestName is the Cargo manifest file name.
const ManifestName = "Cargo.toml"

// defaultSkipDirs are never descended into.
var defaultSkipDirs = map[string]bool{
	".git":   true,
	"target": true,
}

// manifestHeader is the part of a Cargo manifest discovery cares about.
type manifestHeader struct {
	Package *struct{} `toml:"package"`
}

// DiscoverResult is the outcome of a crate discovery walk.
type DiscoverResult struct {
	// Crates holds crate keys: slash-separated directories relative to the
	// walk root, sorted.
	Crates []string

	// SkipReasons counts manifests or directories that were not crates.
	SkipReasons map[string]int
}

// Discoverer finds crates under a directory tree.
type Discoverer struct {
	exclude []string
	logger  *slog.Logger
}

// NewDiscoverer creates a Discoverer skipping paths that match any of the
// exclude globs.
func NewDiscoverer(exclude []string, logger *slog.Logger) *Discoverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discoverer{exclude: exclude, logger: logger}
}

// Discover walks root and returns every directory holding a Cargo manifest
// with a [package] table. Virtual workspace manifests are skipped. A
// manifest that cannot be decoded is kept as a crate: its error surfaces
// when the crate itself is processed.
func (d *Discoverer) Discover(root string) (*DiscoverResult, error) {
	result := &DiscoverResult{SkipReasons: make(map[string]int)}

	err := filepath.WalkDir(root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			d.logger.Warn("discover.walk.error", "path", p, "err", err)
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if entry.IsDir() {
			if p == root {
				return nil
			}
			if defaultSkipDirs[entry.Name()] {
				result.SkipReasons["skip_dir"]++
				return filepath.SkipDir
			}
			if d.excluded(rel) {
				result.SkipReasons["excluded_dir"]++
				return filepath.SkipDir
			}
			return nil
		}

		if entry.Name() != ManifestName {
			return nil
		}

		var header manifestHeader
		if _, err := toml.DecodeFile(p, &header); err != nil {
			d.logger.Debug("discover.manifest.invalid", "path", rel, "err", err)
			result.SkipReasons["invalid_manifest"]++
		} else if header.Package == nil {
			result.SkipReasons["virtual_manifest"]++
			return nil
		}

		key := path.Dir(rel)
		if key == "." {
			result.SkipReasons["root_manifest"]++
			return nil
		}
		result.Crates = append(result.Crates, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Strings(result.Crates)
	d.logger.Info("discover.complete",
		"root", root,
		"crates", len(result.Crates),
		"skip_reasons", result.SkipReasons,
	)
	return result, nil
}

func (d *Discoverer) excluded(rel string) bool {
	for _, pattern := range d.exclude {
		if matchesGlob(rel, pattern) {
			return true
		}
	}
	return false
}

// matchesGlob matches a slash-separated path against a glob. Patterns use
// path.Match syntax per segment plus "**" for any number of segments. A
// pattern without a leading "/" may match at any depth.
func matchesGlob(rel, pattern string) bool {
	pattern = filepath.ToSlash(pattern)
	anchored := strings.HasPrefix(pattern, "/")
	pattern = strings.Trim(pattern, "/")
	if pattern == "" {
		return false
	}

	pathParts := strings.Split(rel, "/")
	patParts := strings.Split(pattern, "/")
	if anchored {
		return matchSegments(pathParts, patParts)
	}
	for i := range pathParts {
		if matchSegments(pathParts[i:], patParts) {
			return true
		}
	}
	return false
}

// matchSegments reports whether the path segments match the pattern
// segments.
func matchSegments(pathParts, patParts []string) bool {
	if len(patParts) == 0 {
		return len(pathParts) == 0
	}
	if patParts[0] == "**" {
		for i := 0; i <= len(pathParts); i++ {
			if matchSegments(pathParts[i:], patParts[1:]) {
				return true
			}
		}
		return false
	}
	if len(pathParts) == 0 {
		return false
	}
	ok, err := path.Match(patParts[0], pathParts[0])
	if err != nil || !ok {
		return false
	}
	return matchSegments(pathParts[1:], patParts[1:])
}
