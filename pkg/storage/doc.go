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

// Package storage provides whole-document persistence for cratescan state.
//
// The pipeline keeps exactly two durable documents: the checkpoint record
// and the result ledger. Both are loaded once at startup and overwritten
// wholesale on every save; there is no incremental or append format.
//
// # Available Backends
//
//   - FileBackend: JSON documents in a directory, written atomically
//     through a temporary file and rename
//   - MemBackend: in-memory documents for tests
//
// # Quick Start
//
//	backend := storage.NewFileBackend("./data")
//
//	var cp pipeline.Checkpoint
//	found, err := backend.Load("checkpoint", &cp)
//	if err != nil {
//	    log.Fatal(err) // corrupt document: never silently defaulted
//	}
//	if !found {
//	    // first run: start from an empty document
//	}
//
//	if err := backend.Save("checkpoint", &cp); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// Both backends are safe for concurrent use. Callers are responsible for
// not mutating a value while it is being saved.
package storage
