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

// Package expand runs the macro expansion tool on a crate and reads Cargo
// manifests.
//
// Expansion invokes, for a crate directory <dir>:
//
//	RUSTUP_TOOLCHAIN=nightly cargo +nightly expand --no-default-features \
//	    --manifest-path <dir>/Cargo.toml [--lib]
//
// with --lib added when the manifest declares a [lib] target. Standard
// output is written to <dir>/.macro-expanded.rs; when the tool fails, its
// standard error becomes the failure message.
package expand
