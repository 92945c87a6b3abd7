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

	"github.com/kraklabs/cratescan/pkg/expand"
	"github.com/kraklabs/cratescan/pkg/ledger"
	"github.com/kraklabs/cratescan/pkg/pipeline"
	"github.com/kraklabs/cratescan/pkg/rustsrc"
)

func newCountCode(root string, limit int) pipeline.Stage {
	return &crateStage{
		name:   CountCode,
		metric: ledger.MetricLines,
		root:   root,
		limit:  limit,
		measure: func(ctx context.Context, _ *pipeline.RunContext, _, dir string) (int, error) {
			return rustsrc.CountCrate(ctx, dir)
		},
	}
}

func newClearCfg(root string, predicates []string, limit int) pipeline.Stage {
	return &crateStage{
		name:   ClearCfg,
		metric: ledger.MetricCfgStripped,
		root:   root,
		limit:  limit,
		measure: func(ctx context.Context, _ *pipeline.RunContext, _, dir string) (int, error) {
			return rustsrc.StripCrate(ctx, dir, predicates)
		},
	}
}

func newExpandMacros(root string, expander CrateExpander, limit int) pipeline.Stage {
	return &crateStage{
		name:   ExpandMacros,
		metric: ledger.MetricExpansion,
		root:   root,
		limit:  limit,
		measure: func(ctx context.Context, _ *pipeline.RunContext, _, dir string) (int, error) {
			return expander.Expand(ctx, dir)
		},
	}
}

// newCountExpanded counts the expansion output of crates whose expansion
// succeeded.
func newCountExpanded(root string, limit int) pipeline.Stage {
	return &crateStage{
		name:   CountExpanded,
		metric: ledger.MetricExpandedLines,
		root:   root,
		limit:  limit,
		selects: func(rec ledger.CrateRecord) bool {
			return rec.Expansion != nil && !rec.Expansion.Failed()
		},
		measure: func(ctx context.Context, _ *pipeline.RunContext, _, dir string) (int, error) {
			return rustsrc.CountFile(ctx, filepath.Join(dir, expand.ExpandedFileName))
		},
	}
}

// newAnalyzeMacros records macro statistics; the analysis count is the
// crate's total macro usage.
func newAnalyzeMacros(root string, limit int) pipeline.Stage {
	return &crateStage{
		name:   AnalyzeMacros,
		metric: ledger.MetricAnalysis,
		root:   root,
		limit:  limit,
		measure: func(ctx context.Context, rc *pipeline.RunContext, key, dir string) (int, error) {
			stats, err := rustsrc.AnalyzeCrate(ctx, dir)
			if err != nil {
				return 0, err
			}
			rc.Ledger.RecordMacros(key, stats)
			return stats.Usage(), nil
		},
	}
}
