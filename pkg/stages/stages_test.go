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

package stages

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/cratescan/pkg/expand"
	"github.com/kraklabs/cratescan/pkg/ledger"
	"github.com/kraklabs/cratescan/pkg/pipeline"
	"github.com/kraklabs/cratescan/pkg/sources"
	"github.com/kraklabs/cratescan/pkg/storage"
)

const libSource = `#[derive(Debug)]
pub struct S;

pub fn a() {}

#[cfg(test)]
mod tests {
    #[test]
    fn t() {}
}
`

type fakeLister struct {
	repos []pipeline.RepoRef
	err   error
	calls int32
}

func (f *fakeLister) TopRepositories(context.Context) ([]pipeline.RepoRef, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.repos, f.err
}

// fakeSyncer lays out crate trees instead of cloning.
type fakeSyncer struct {
	root  string
	trees map[string]map[string]string // repo -> rel path -> content
	fail  map[string]string
}

func (f *fakeSyncer) Sync(_ context.Context, repo pipeline.RepoRef) (string, error) {
	if msg, ok := f.fail[repo.FullName]; ok {
		return "", errors.New(msg)
	}
	dir := filepath.Join(f.root, filepath.FromSlash(repo.FullName))
	for rel, content := range f.trees[repo.FullName] {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return "", err
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			return "", err
		}
	}
	return dir, nil
}

type fakeExpander struct {
	calls int32
}

func (f *fakeExpander) Expand(_ context.Context, dir string) (int, error) {
	atomic.AddInt32(&f.calls, 1)
	if filepath.Base(dir) == "bad" {
		return 0, pipeline.NewItemFailure("", "boom", nil)
	}
	out := []byte("fn expanded() {}\nfn two() {}\n")
	if err := os.WriteFile(filepath.Join(dir, expand.ExpandedFileName), out, 0644); err != nil {
		return 0, err
	}
	return len(out), nil
}

const manifest = "[package]\nname = \"x\"\nversion = \"0.1.0\"\n"

type fixture struct {
	root     string
	backend  *storage.MemBackend
	lister   *fakeLister
	expander *fakeExpander
	deps     Deps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := filepath.Join(t.TempDir(), "repos")

	lister := &fakeLister{repos: []pipeline.RepoRef{
		{FullName: "o/a", CloneURL: "https://github.com/o/a.git", Stars: 300},
		{FullName: "o/b", CloneURL: "https://github.com/o/b.git", Stars: 200},
		{FullName: "o/c", CloneURL: "https://github.com/o/c.git", Stars: 100},
	}}
	syncer := &fakeSyncer{
		root: root,
		trees: map[string]map[string]string{
			"o/a": {"Cargo.toml": manifest, "src/lib.rs": libSource},
			"o/b": {
				"Cargo.toml":      "[workspace]\nmembers = [\"good\", \"bad\"]\n",
				"good/Cargo.toml": manifest,
				"good/src/lib.rs": "pub fn good() {\n    println!(\"hi\");\n}\n",
				"bad/Cargo.toml":  manifest,
				"bad/src/lib.rs":  "pub fn bad() {}\n",
			},
		},
		fail: map[string]string{"o/c": "authentication required"},
	}
	expander := &fakeExpander{}

	return &fixture{
		root:     root,
		backend:  storage.NewMemBackend(),
		lister:   lister,
		expander: expander,
		deps: Deps{
			Lister:          lister,
			Syncer:          syncer,
			Finder:          sources.NewDiscoverer(nil, nil),
			Expander:        expander,
			ReposDir:        root,
			StripPredicates: []string{"test"},
			Workers:         Workers{Clone: 2, Count: 2, Expand: 2, Analyze: 2},
		},
	}
}

func (f *fixture) run(t *testing.T) (*pipeline.RunContext, error) {
	t.Helper()
	e := pipeline.NewEngine(pipeline.EngineConfig{Backend: f.backend}, All(f.deps)...)
	rc, err := e.Open()
	require.NoError(t, err)
	return rc, e.Run(context.Background(), rc)
}

func TestAll_Order(t *testing.T) {
	var names []string
	for _, s := range All(Deps{}) {
		names = append(names, s.Name())
	}
	assert.Equal(t, Names, names)
}

func TestPipeline_EndToEnd(t *testing.T) {
	f := newFixture(t)
	rc, err := f.run(t)
	require.NoError(t, err)

	for _, name := range Names {
		_, ok := rc.Checkpoint.CompletedAt(name)
		assert.True(t, ok, "stage %s checkpointed", name)
	}
	assert.Len(t, rc.Checkpoint.Repos, 3)

	l := rc.Ledger
	assert.Equal(t, []string{"o/a", "o/b/bad", "o/b/good"}, l.Keys())

	// Clone failure is recorded on the repository and contributes no crates
	c, ok := l.Repo("o/c")
	require.True(t, ok)
	assert.Equal(t, "authentication required", c.CloneError)
	assert.Zero(t, c.Crates)

	a, _ := l.Crate("o/a")
	assert.Equal(t, 8, a.Lines.Value)
	assert.Equal(t, 1, a.CfgStripped.Value)
	assert.Equal(t, 2, a.ExpandedLines.Value)
	assert.Equal(t, 1, a.Macros.DeriveUsage["Debug"])
	assert.Equal(t, 1, a.Analysis.Value)

	bad, _ := l.Crate("o/b/bad")
	assert.Equal(t, "boom", bad.Expansion.Err)
	assert.Nil(t, bad.ExpandedLines, "failed expansions are not counted")

	b, _ := l.Repo("o/b")
	assert.Equal(t, 2, b.Crates)
	assert.Equal(t, &ledger.Tally{Failures: 1}, b.Expansion)
	assert.Equal(t, &ledger.Tally{Sum: 2}, b.ExpandedLines)
	assert.Equal(t, 1, b.Macros.Invocations)

	assert.EqualValues(t, 3, atomic.LoadInt32(&f.expander.calls))
}

func TestPipeline_ResumeSkipsCompletedStages(t *testing.T) {
	f := newFixture(t)
	_, err := f.run(t)
	require.NoError(t, err)
	ledgerBytes := f.backend.Raw(ledger.DocumentName)

	_, err = f.run(t)
	require.NoError(t, err)

	assert.EqualValues(t, 1, atomic.LoadInt32(&f.lister.calls))
	assert.EqualValues(t, 3, atomic.LoadInt32(&f.expander.calls))
	assert.Equal(t, ledgerBytes, f.backend.Raw(ledger.DocumentName))
}

func TestPipeline_FetchFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.lister.err = errors.New("api unreachable")

	rc, err := f.run(t)
	require.Error(t, err)
	assert.True(t, pipeline.IsFatal(err))
	assert.Empty(t, rc.Checkpoint.Stages)
	assert.Zero(t, atomic.LoadInt32(&f.expander.calls))
}

func TestCrateStage_RerunDoesNotDoubleCount(t *testing.T) {
	f := newFixture(t)
	rc, err := f.run(t)
	require.NoError(t, err)

	stage := newExpandMacros(f.root, f.expander, 2)
	require.NoError(t, stage.Run(context.Background(), rc))

	b, _ := rc.Ledger.Repo("o/b")
	assert.Equal(t, 1, b.Expansion.Failures)
}

func TestCountCode_MissingCrateDirIsItemFailure(t *testing.T) {
	rc, err := pipeline.NewEngine(pipeline.EngineConfig{Backend: storage.NewMemBackend()}).Open()
	require.NoError(t, err)
	rc.Ledger.Seed([]string{"o/r/gone"})

	require.NoError(t, newCountCode(t.TempDir(), 1).Run(context.Background(), rc))

	rec, _ := rc.Ledger.Crate("o/r/gone")
	assert.True(t, rec.Lines.Failed())
	repo, _ := rc.Ledger.Repo("o/r")
	assert.Equal(t, 1, repo.Lines.Failures)
}
