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

package ledger

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/kraklabs/cratescan/pkg/storage"
)

// DocumentName is the storage name the ledger is persisted under.
const DocumentName = "ledger"

type crateEntry struct {
	mu  sync.Mutex
	rec CrateRecord
}

type repoEntry struct {
	mu  sync.Mutex
	rec RepoRecord
}

// Ledger maps crate keys to crate records and repository keys to
// repository aggregates. The zero value is not usable; call New.
type Ledger struct {
	mu     sync.Mutex
	crates map[string]*crateEntry
	repos  map[string]*repoEntry
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		crates: make(map[string]*crateEntry),
		repos:  make(map[string]*repoEntry),
	}
}

// FromCrates creates a ledger seeded with a default record for every crate
// key and a repository record counting its crates.
func FromCrates(keys []string) *Ledger {
	l := New()
	l.Seed(keys)
	return l
}

// Seed adds default records for crate keys that are not in the ledger yet.
func (l *Ledger) Seed(keys []string) {
	for _, key := range keys {
		l.mu.Lock()
		_, exists := l.crates[key]
		if !exists {
			l.crates[key] = &crateEntry{}
		}
		l.mu.Unlock()

		if !exists {
			l.UpsertRepo(RepoKey(key), func(r *RepoRecord) { r.Crates++ })
		}
	}
}

// RepoKey derives the repository key from a crate key: its first two
// slash-separated segments ("owner/name"). Keys with fewer segments are
// their own repository.
func RepoKey(crateKey string) string {
	key := path.Clean(strings.ReplaceAll(crateKey, "\\", "/"))
	key = strings.TrimPrefix(key, "/")
	parts := strings.SplitN(key, "/", 3)
	if len(parts) < 2 {
		return key
	}
	return parts[0] + "/" + parts[1]
}

func (l *Ledger) crate(key string) *crateEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.crates[key]
	if !ok {
		e = &crateEntry{}
		l.crates[key] = e
	}
	return e
}

func (l *Ledger) repo(key string) *repoEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.repos[key]
	if !ok {
		e = &repoEntry{}
		l.repos[key] = e
	}
	return e
}

// UpsertCrate applies fn to the crate record for key, creating a default
// record first if none exists. fn runs under the record's lock and must not
// call back into the ledger for the same key.
func (l *Ledger) UpsertCrate(key string, fn func(*CrateRecord)) {
	e := l.crate(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.rec)
}

// UpsertRepo applies fn to the repository record for key, creating a
// default record first if none exists.
func (l *Ledger) UpsertRepo(key string, fn func(*RepoRecord)) {
	e := l.repo(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.rec)
}

// RecordSuccess stores value as the crate's m measurement and adds it to
// the repository tally.
func (l *Ledger) RecordSuccess(m Metric, key string, value int) {
	l.UpsertCrate(key, func(r *CrateRecord) {
		*m.crateSlot(r) = &Count{Value: value}
	})
	l.UpsertRepo(RepoKey(key), func(r *RepoRecord) {
		slot := m.repoSlot(r)
		if *slot == nil {
			*slot = &Tally{}
		}
		(*slot).add(value)
	})
}

// RecordFailure stores msg as the crate's m outcome and counts the failure
// on the owning repository. The first failure for a repository replaces any
// accumulated sum with a failure count of one; later failures increment it.
func (l *Ledger) RecordFailure(m Metric, key, msg string) {
	if msg == "" {
		msg = "unknown error"
	}
	l.UpsertCrate(key, func(r *CrateRecord) {
		*m.crateSlot(r) = &Count{Err: msg}
	})
	l.UpsertRepo(RepoKey(key), func(r *RepoRecord) {
		slot := m.repoSlot(r)
		if *slot == nil {
			*slot = &Tally{}
		}
		(*slot).fail()
	})
}

// RecordMacros stores a crate's macro statistics and adds them to its
// repository.
func (l *Ledger) RecordMacros(key string, stats MacroStats) {
	l.UpsertCrate(key, func(r *CrateRecord) {
		r.Macros = stats.clone()
	})
	l.UpsertRepo(RepoKey(key), func(r *RepoRecord) {
		r.Macros.Add(&stats)
	})
}

// ResetMetric clears m on every crate and repository, so a stage that runs
// again starts from zero rather than counting twice. Resetting
// MetricAnalysis also clears macro statistics.
func (l *Ledger) ResetMetric(m Metric) {
	for _, key := range l.Keys() {
		l.UpsertCrate(key, func(r *CrateRecord) {
			*m.crateSlot(r) = nil
			if m == MetricAnalysis {
				r.Macros = nil
			}
		})
	}
	for _, key := range l.RepoKeys() {
		l.UpsertRepo(key, func(r *RepoRecord) {
			*m.repoSlot(r) = nil
			if m == MetricAnalysis {
				r.Macros = MacroStats{}
			}
		})
	}
}

// Keys returns every crate key in sorted order.
func (l *Ledger) Keys() []string {
	l.mu.Lock()
	keys := make([]string, 0, len(l.crates))
	for k := range l.crates {
		keys = append(keys, k)
	}
	l.mu.Unlock()
	sort.Strings(keys)
	return keys
}

// RepoKeys returns every repository key in sorted order.
func (l *Ledger) RepoKeys() []string {
	l.mu.Lock()
	keys := make([]string, 0, len(l.repos))
	for k := range l.repos {
		keys = append(keys, k)
	}
	l.mu.Unlock()
	sort.Strings(keys)
	return keys
}

// Crate returns a copy of the crate record for key.
func (l *Ledger) Crate(key string) (CrateRecord, bool) {
	l.mu.Lock()
	e, ok := l.crates[key]
	l.mu.Unlock()
	if !ok {
		return CrateRecord{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.Clone(), true
}

// Repo returns a copy of the repository record for key.
func (l *Ledger) Repo(key string) (RepoRecord, bool) {
	l.mu.Lock()
	e, ok := l.repos[key]
	l.mu.Unlock()
	if !ok {
		return RepoRecord{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.Clone(), true
}

// Len returns the number of crate records.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.crates)
}

// document is the persisted shape of the ledger.
type document struct {
	Crates map[string]CrateRecord `json:"crates"`
	Repos  map[string]RepoRecord  `json:"repos"`
}

func (l *Ledger) snapshot() document {
	doc := document{
		Crates: make(map[string]CrateRecord),
		Repos:  make(map[string]RepoRecord),
	}
	for _, key := range l.Keys() {
		rec, _ := l.Crate(key)
		doc.Crates[key] = rec
	}
	for _, key := range l.RepoKeys() {
		rec, _ := l.Repo(key)
		doc.Repos[key] = rec
	}
	return doc
}

// MarshalJSON encodes a consistent snapshot of the ledger.
func (l *Ledger) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.snapshot())
}

// UnmarshalJSON replaces the ledger contents with the decoded document.
func (l *Ledger) UnmarshalJSON(data []byte) error {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	crates := make(map[string]*crateEntry, len(doc.Crates))
	for k, rec := range doc.Crates {
		crates[k] = &crateEntry{rec: rec}
	}
	repos := make(map[string]*repoEntry, len(doc.Repos))
	for k, rec := range doc.Repos {
		repos[k] = &repoEntry{rec: rec}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.crates = crates
	l.repos = repos
	return nil
}

// Load reads the ledger from backend. It returns (nil, nil) when no ledger
// has been saved yet; a document that cannot be decoded is an error.
func Load(backend storage.Backend) (*Ledger, error) {
	l := New()
	found, err := backend.Load(DocumentName, l)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	if !found {
		return nil, nil
	}
	return l, nil
}

// Save persists the whole ledger to backend.
func (l *Ledger) Save(backend storage.Backend) error {
	if err := backend.Save(DocumentName, l); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	return nil
}
