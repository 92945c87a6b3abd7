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

// Package bootstrap lays out and opens a cratescan workspace.
//
// A workspace is a data directory holding the pipeline state documents,
// the cloned repositories and the run lock:
//
//	<data_dir>/
//	  checkpoint.json
//	  ledger.json
//	  cratescan.lock
//	  repos/<owner>/<name>/
//
// InitWorkspace is idempotent. OpenWorkspace refuses a directory that was
// never initialised so that a typo in --data-dir does not start a new run
// silently.
package bootstrap
