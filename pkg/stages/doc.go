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

// Package stages binds the pipeline engine to its collaborators. It defines
// the eight stages of a cratescan run, in execution order:
//
//	fetch-repos     ranked repository list from GitHub
//	clone-repos     shallow clone or update of every repository
//	find-crates     crate discovery; seeds the ledger
//	count-code      code lines per crate
//	clear-cfg       removal of cfg-gated items
//	expand-macros   macro expansion per crate
//	count-expanded  code lines of the expansion output
//	analyze-macros  macro definition and usage statistics
//
// Every per-crate stage resets its own metric before running, runs through
// the bounded worker pool and records failures through the ledger's
// failure aggregation.
package stages
