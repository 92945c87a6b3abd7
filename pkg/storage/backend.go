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

package storage

import (
	"errors"
)

// ErrCorrupt is returned (wrapped) when a stored document exists but cannot
// be decoded.
var ErrCorrupt = errors.New("corrupt document")

// Backend is the interface that all document stores implement.
// Documents are addressed by a short name such as "checkpoint" or "ledger".
type Backend interface {
	// Load decodes the named document into v. It reports false with a nil
	// error when the document does not exist yet.
	Load(name string, v any) (bool, error)

	// Save encodes v and replaces the named document.
	Save(name string, v any) error

	// Remove deletes the named document. Removing a missing document is not
	// an error.
	Remove(name string) error
}
