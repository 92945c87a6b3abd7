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
	"fmt"
	"os"

	"github.com/kraklabs/cratescan/pkg/ledger"
	"github.com/kraklabs/cratescan/pkg/pipeline"
)

type fetchRepos struct {
	lister RepoLister
}

func (s *fetchRepos) Name() string { return FetchRepos }

func (s *fetchRepos) Run(ctx context.Context, rc *pipeline.RunContext) error {
	repos, err := s.lister.TopRepositories(ctx)
	if err != nil {
		return fmt.Errorf("fetch repositories: %w", err)
	}
	rc.Checkpoint.Repos = repos
	rc.Logger.Info("stage.repos.fetched", "repos", len(repos))
	return nil
}

type cloneRepos struct {
	syncer RepoSyncer
	limit  int
}

func (s *cloneRepos) Name() string { return CloneRepos }

func (s *cloneRepos) Run(ctx context.Context, rc *pipeline.RunContext) error {
	l := rc.Ledger
	byName := make(map[string]pipeline.RepoRef, len(rc.Checkpoint.Repos))
	names := make([]string, 0, len(rc.Checkpoint.Repos))
	for _, r := range rc.Checkpoint.Repos {
		if _, dup := byName[r.FullName]; dup {
			continue
		}
		byName[r.FullName] = r
		names = append(names, r.FullName)
		l.UpsertRepo(r.FullName, func(rec *ledger.RepoRecord) { rec.CloneError = "" })
	}

	pool := rc.Pool(CloneRepos, s.limit, func(o pipeline.Outcome) {
		if o.Failed() {
			l.UpsertRepo(o.Item, func(rec *ledger.RepoRecord) { rec.CloneError = o.Err.Message })
		}
	})
	outcomes, err := pool.Run(ctx, names, func(ctx context.Context, name string) error {
		_, err := s.syncer.Sync(ctx, byName[name])
		return err
	})
	if err != nil {
		return err
	}

	rc.Logger.Info("stage.repos.cloned", "repos", len(names), "failed", len(pipeline.Failures(outcomes)))
	return nil
}

type findCrates struct {
	finder CrateFinder
	root   string
}

func (s *findCrates) Name() string { return FindCrates }

// Run seeds the ledger with the crates of every successfully cloned
// repository from the current list.
func (s *findCrates) Run(ctx context.Context, rc *pipeline.RunContext) error {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return fmt.Errorf("create repos dir: %w", err)
	}
	result, err := s.finder.Discover(s.root)
	if err != nil {
		return fmt.Errorf("discover crates: %w", err)
	}

	wanted := make(map[string]bool, len(rc.Checkpoint.Repos))
	for _, r := range rc.Checkpoint.Repos {
		wanted[r.FullName] = true
	}

	var keys []string
	dropped := 0
	for _, key := range result.Crates {
		repoKey := ledger.RepoKey(key)
		if len(wanted) > 0 && !wanted[repoKey] {
			dropped++
			continue
		}
		if repo, ok := rc.Ledger.Repo(repoKey); ok && repo.CloneError != "" {
			dropped++
			continue
		}
		keys = append(keys, key)
	}

	rc.Ledger.Seed(keys)
	rc.Logger.Info("stage.crates.found", "crates", len(keys), "dropped", dropped)
	return nil
}
