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

// Package rustsrc analyzes Rust source with Tree-sitter.
//
// It provides the per-crate transforms used by the pipeline:
//
//   - CountCrate: code lines (blank and comment-only lines excluded)
//   - StripCrate: removal of items gated by selected #[cfg(..)] predicates
//   - AnalyzeCrate: macro definition and usage statistics
//
// Parsing is error tolerant; files with syntax errors are still measured.
// A fresh parser is created for every file, so all functions are safe for
// concurrent use.
package rustsrc
