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
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/cratescan/pkg/storage"
)

func TestRepoKey(t *testing.T) {
	tests := []struct {
		crateKey string
		want     string
	}{
		{"tokio-rs/tokio/tokio", "tokio-rs/tokio"},
		{"tokio-rs/tokio/tokio-macros/src", "tokio-rs/tokio"},
		{"serde-rs/serde", "serde-rs/serde"},
		{"/rust-lang/regex/regex-syntax", "rust-lang/regex"},
		{`BurntSushi\ripgrep\crates\core`, "BurntSushi/ripgrep"},
		{"lonely", "lonely"},
	}

	for _, tt := range tests {
		t.Run(tt.crateKey, func(t *testing.T) {
			if got := RepoKey(tt.crateKey); got != tt.want {
				t.Errorf("RepoKey(%q) = %q, want %q", tt.crateKey, got, tt.want)
			}
		})
	}
}

func TestUpsertCrate_CreatesMissing(t *testing.T) {
	l := New()

	l.UpsertCrate("a/b/c", func(r *CrateRecord) {
		assert.Nil(t, r.Lines, "new record starts at defaults")
		r.Lines = &Count{Value: 10}
	})

	rec, ok := l.Crate("a/b/c")
	require.True(t, ok)
	assert.Equal(t, 10, rec.Lines.Value)
}

func TestUpsertCrate_ConcurrentSameKey(t *testing.T) {
	l := New()
	const workers = 50

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.UpsertCrate("a/b/c", func(r *CrateRecord) {
				if r.Lines == nil {
					r.Lines = &Count{}
				}
				r.Lines.Value++
			})
		}()
	}
	wg.Wait()

	rec, _ := l.Crate("a/b/c")
	assert.Equal(t, workers, rec.Lines.Value, "read-modify-write must be serialized per key")
}

func TestFromCrates_CountsCratesPerRepo(t *testing.T) {
	l := FromCrates([]string{"o/r/a", "o/r/b", "o/other/x"})

	assert.Equal(t, 3, l.Len())
	assert.Equal(t, []string{"o/other", "o/r"}, l.RepoKeys())

	repo, ok := l.Repo("o/r")
	require.True(t, ok)
	assert.Equal(t, 2, repo.Crates)

	// Seeding again is a no-op for known keys
	l.Seed([]string{"o/r/a"})
	repo, _ = l.Repo("o/r")
	assert.Equal(t, 2, repo.Crates)
}

func TestRecordFailure_Aggregation(t *testing.T) {
	l := FromCrates([]string{"o/r/a", "o/r/b", "o/r/c"})

	l.RecordSuccess(MetricExpansion, "o/r/a", 100)
	repo, _ := l.Repo("o/r")
	assert.Equal(t, &Tally{Sum: 100}, repo.Expansion)

	// First failure replaces the sum with a failure count of one
	l.RecordFailure(MetricExpansion, "o/r/b", "boom")
	repo, _ = l.Repo("o/r")
	assert.Equal(t, &Tally{Failures: 1}, repo.Expansion)

	// Later failures increment; later successes do not add back
	l.RecordFailure(MetricExpansion, "o/r/c", "bang")
	l.RecordSuccess(MetricExpansion, "o/r/a", 5)
	repo, _ = l.Repo("o/r")
	assert.Equal(t, &Tally{Failures: 2}, repo.Expansion)

	rec, _ := l.Crate("o/r/b")
	assert.True(t, rec.Expansion.Failed())
	assert.Equal(t, "boom", rec.Expansion.Err)
}

func TestRecordFailure_CreatesMissingRepo(t *testing.T) {
	l := New()

	l.RecordFailure(MetricLines, "ghost/repo/crate", "read error")

	repo, ok := l.Repo("ghost/repo")
	require.True(t, ok)
	assert.Equal(t, 1, repo.Lines.Failures)
}

func TestRecordFailure_ConcurrentConsistency(t *testing.T) {
	var keys []string
	for i := 0; i < 40; i++ {
		keys = append(keys, fmt.Sprintf("owner/repo%d/crate%d", i%4, i))
	}
	l := FromCrates(keys)

	var wg sync.WaitGroup
	for i, key := range keys {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			if i%3 == 0 {
				l.RecordFailure(MetricExpansion, key, "failed")
			} else {
				l.RecordSuccess(MetricExpansion, key, 1)
			}
		}(i, key)
	}
	wg.Wait()

	for _, repoKey := range l.RepoKeys() {
		want := 0
		for _, key := range l.Keys() {
			if RepoKey(key) != repoKey {
				continue
			}
			rec, _ := l.Crate(key)
			if rec.Expansion.Failed() {
				want++
			}
		}
		repo, _ := l.Repo(repoKey)
		assert.Equal(t, want, repo.Expansion.Failures, "repo %s", repoKey)
	}
}

func TestResetMetric(t *testing.T) {
	l := FromCrates([]string{"o/r/a", "o/r/b"})
	l.RecordSuccess(MetricLines, "o/r/a", 10)
	l.RecordFailure(MetricExpansion, "o/r/b", "boom")
	l.RecordMacros("o/r/a", MacroStats{Invocations: 3})

	l.ResetMetric(MetricExpansion)

	a, _ := l.Crate("o/r/a")
	b, _ := l.Crate("o/r/b")
	repo, _ := l.Repo("o/r")
	assert.Nil(t, b.Expansion)
	assert.Nil(t, repo.Expansion)
	assert.Equal(t, 10, a.Lines.Value, "other metrics untouched")
	assert.Equal(t, 3, repo.Macros.Invocations)

	l.ResetMetric(MetricAnalysis)
	a, _ = l.Crate("o/r/a")
	repo, _ = l.Repo("o/r")
	assert.Nil(t, a.Macros)
	assert.Zero(t, repo.Macros.Invocations)
}

func TestRecordMacros_SumsPerRepo(t *testing.T) {
	l := FromCrates([]string{"o/r/a", "o/r/b"})

	l.RecordMacros("o/r/a", MacroStats{Invocations: 2, DeriveUsage: map[string]int{"Debug": 1}})
	l.RecordMacros("o/r/b", MacroStats{Invocations: 5, DeriveUsage: map[string]int{"Debug": 2, "Clone": 1}})

	repo, _ := l.Repo("o/r")
	assert.Equal(t, 7, repo.Macros.Invocations)
	assert.Equal(t, map[string]int{"Debug": 3, "Clone": 1}, repo.Macros.DeriveUsage)
}

func TestCrate_ReturnsCopy(t *testing.T) {
	l := New()
	l.RecordMacros("o/r/a", MacroStats{DeriveUsage: map[string]int{"Debug": 1}})

	rec, _ := l.Crate("o/r/a")
	rec.Macros.DeriveUsage["Debug"] = 99

	again, _ := l.Crate("o/r/a")
	assert.Equal(t, 1, again.Macros.DeriveUsage["Debug"])
}

func TestSaveLoad(t *testing.T) {
	backend := storage.NewMemBackend()

	l, err := Load(backend)
	require.NoError(t, err)
	assert.Nil(t, l, "absent ledger loads as nil")

	l = FromCrates([]string{"o/r/a", "o/r/b"})
	l.RecordSuccess(MetricLines, "o/r/a", 42)
	l.RecordFailure(MetricLines, "o/r/b", "bad utf-8")
	require.NoError(t, l.Save(backend))
	first := backend.Raw(DocumentName)

	loaded, err := Load(backend)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, l.Keys(), loaded.Keys())

	rec, _ := loaded.Crate("o/r/b")
	assert.Equal(t, "bad utf-8", rec.Lines.Err)

	// Encoding is deterministic
	require.NoError(t, loaded.Save(backend))
	assert.Equal(t, first, backend.Raw(DocumentName))
}

func TestLoad_Corrupt(t *testing.T) {
	backend := storage.NewMemBackend()
	backend.Put(DocumentName, []byte(`{"crates": [`))

	l, err := Load(backend)
	require.Error(t, err)
	assert.Nil(t, l)
}

func TestTopUsage(t *testing.T) {
	got := TopUsage(map[string]int{"Debug": 5, "Clone": 5, "Serialize": 9, "Eq": 1}, 3)
	assert.Equal(t, []UsageEntry{
		{Name: "Serialize", Count: 9},
		{Name: "Clone", Count: 5},
		{Name: "Debug", Count: 5},
	}, got)
}
