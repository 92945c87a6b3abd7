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
	"encoding/json"
	"fmt"
	"sync"
)

// MemBackend keeps encoded documents in memory. It encodes exactly like
// FileBackend so tests can compare stored bytes.
type MemBackend struct {
	mu    sync.Mutex
	docs  map[string][]byte
	saves int
}

// NewMemBackend creates an empty in-memory backend.
func NewMemBackend() *MemBackend {
	return &MemBackend{docs: make(map[string][]byte)}
}

// Load decodes a stored document.
func (b *MemBackend) Load(name string, v any) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, ok := b.docs[name]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("parse %s: %w: %v", name, ErrCorrupt, err)
	}
	return true, nil
}

// Save encodes and stores a document.
func (b *MemBackend) Save(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.docs[name] = data
	b.saves++
	return nil
}

// Remove deletes a stored document.
func (b *MemBackend) Remove(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.docs, name)
	return nil
}

// Raw returns a copy of the encoded document, or nil if absent.
func (b *MemBackend) Raw(name string) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, ok := b.docs[name]
	if !ok {
		return nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out
}

// Put stores raw bytes as a document, bypassing encoding.
func (b *MemBackend) Put(name string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.docs[name] = data
}

// Saves reports how many Save calls succeeded.
func (b *MemBackend) Saves() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saves
}
