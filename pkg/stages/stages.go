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
	"path/filepath"

	"github.com/kraklabs/cratescan/pkg/ledger"
	"github.com/kraklabs/cratescan/pkg/pipeline"
	"github.com/kraklabs/cratescan/pkg/sources"
)

// Stage names, which double as checkpoint keys.
const (
	FetchRepos    = "fetch-repos"
	CloneRepos    = "clone-repos"
	FindCrates    = "find-crates"
	CountCode     = "count-code"
	ClearCfg      = "clear-cfg"
	ExpandMacros  = "expand-macros"
	CountExpanded = "count-expanded"
	AnalyzeMacros = "analyze-macros"
)

// Names lists every stage in execution order.
var Names = []string{
	FetchRepos, CloneRepos, FindCrates, CountCode,
	ClearCfg, ExpandMacros, CountExpanded, AnalyzeMacros,
}

// RepoLister supplies the ranked repository list.
type RepoLister interface {
	TopRepositories(ctx context.Context) ([]pipeline.RepoRef, error)
}

// RepoSyncer materializes a repository on disk.
type RepoSyncer interface {
	Sync(ctx context.Context, repo pipeline.RepoRef) (string, error)
}

// CrateFinder discovers crates under a directory.
type CrateFinder interface {
	Discover(root string) (*sources.DiscoverResult, error)
}

// CrateExpander expands the macros of the crate in a directory and returns
// the size of the output.
type CrateExpander interface {
	Expand(ctx context.Context, dir string) (int, error)
}

// Workers holds per-stage pool sizes. Zero means pipeline.DefaultLimit.
type Workers struct {
	Clone   int
	Count   int
	Expand  int
	Analyze int
}

// Deps collects everything the stages need.
type Deps struct {
	Lister   RepoLister
	Syncer   RepoSyncer
	Finder   CrateFinder
	Expander CrateExpander

	// ReposDir is the root crate keys are relative to.
	ReposDir string

	// StripPredicates are the cfg predicates clear-cfg removes.
	StripPredicates []string

	Workers Workers
}

// All returns the eight stages in execution order.
func All(d Deps) []pipeline.Stage {
	return []pipeline.Stage{
		&fetchRepos{lister: d.Lister},
		&cloneRepos{syncer: d.Syncer, limit: d.Workers.Clone},
		&findCrates{finder: d.Finder, root: d.ReposDir},
		newCountCode(d.ReposDir, d.Workers.Count),
		newClearCfg(d.ReposDir, d.StripPredicates, d.Workers.Count),
		newExpandMacros(d.ReposDir, d.Expander, d.Workers.Expand),
		newCountExpanded(d.ReposDir, d.Workers.Count),
		newAnalyzeMacros(d.ReposDir, d.Workers.Analyze),
	}
}

// CrateDir returns the directory of a crate key under root.
func CrateDir(root, key string) string {
	return filepath.Join(root, filepath.FromSlash(key))
}

// crateStage is a per-crate stage: measure runs for every selected crate
// and its value or failure is recorded under metric.
type crateStage struct {
	name    string
	metric  ledger.Metric
	root    string
	limit   int
	measure func(ctx context.Context, rc *pipeline.RunContext, key, dir string) (int, error)

	// selects filters crates; nil selects all of them.
	selects func(rec ledger.CrateRecord) bool
}

func (s *crateStage) Name() string { return s.name }

func (s *crateStage) Run(ctx context.Context, rc *pipeline.RunContext) error {
	l := rc.Ledger
	l.ResetMetric(s.metric)

	var keys []string
	for _, key := range l.Keys() {
		if s.selects != nil {
			rec, _ := l.Crate(key)
			if !s.selects(rec) {
				continue
			}
		}
		keys = append(keys, key)
	}
	rc.Logger.Info("stage.crates", "stage", s.name, "crates", len(keys), "skipped", l.Len()-len(keys))

	pool := rc.Pool(s.name, s.limit, func(o pipeline.Outcome) {
		if o.Failed() {
			l.RecordFailure(s.metric, o.Item, o.Err.Message)
		}
	})
	_, err := pool.Run(ctx, keys, func(ctx context.Context, key string) error {
		v, err := s.measure(ctx, rc, key, CrateDir(s.root, key))
		if err != nil {
			return err
		}
		l.RecordSuccess(s.metric, key, v)
		return nil
	})
	return err
}
