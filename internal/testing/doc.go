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

// Package testing provides fixtures for cratescan tests: Rust crate trees
// on disk, a stand-in cargo executable and persisted ledgers.
//
//	import cietest "github.com/kraklabs/cratescan/internal/testing"
//
//	func TestCountCode(t *testing.T) {
//	    root := t.TempDir()
//	    cietest.WriteCrate(t, root, "rust-lang/regex", cietest.Crate{
//	        Sources: map[string]string{"src/lib.rs": "pub fn f() {}\n"},
//	    })
//	    ...
//	}
//
// FakeCargo writes a /bin/sh script and skips the test on Windows.
package testing
