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

// Package ledger holds the result ledger: one record per discovered crate
// plus one aggregate record per owning repository.
//
// All mutation goes through UpsertCrate and UpsertRepo, which create the
// record when it is missing and apply the caller's closure while holding a
// per-key lock. Calls on different keys proceed in parallel; calls on the
// same key are serialized.
//
// Per-item failures are recorded with RecordFailure, which writes the
// message on the crate and bumps the failure tally on its repository.
// Crate keys are slash-separated paths relative to the repositories
// directory; the repository key is their first two segments (see RepoKey).
package ledger
