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

// Package pipeline implements the resumable stage engine and the bounded
// worker pool that per-crate stages run on.
//
// # Stages and checkpoints
//
// An Engine runs a fixed, ordered list of Stage values. Before a stage runs
// the engine consults the Checkpoint: a stage whose completion timestamp is
// already recorded is skipped without side effects. After a stage returns
// without error its timestamp is set, and both the checkpoint and the
// result ledger are persisted before the next stage begins. Interrupting
// the process therefore repeats at most the stage that was in flight.
//
// # Errors
//
// Two error classes exist. An *ItemFailure describes one crate whose
// transformation failed; it is recorded in the ledger and never stops a
// stage. A *FatalError stops the pipeline immediately and leaves the
// failing stage without a checkpoint so the next run retries it.
//
// # Worker pool
//
// Pool runs a Task for every item with at most Limit tasks in flight and
// returns one Outcome per item. The OnDone hook runs inside the task's slot,
// so ledger updates made there are visible once Run returns.
package pipeline
