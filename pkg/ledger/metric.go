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

import "fmt"

// Metric names one per-crate field together with its repository tally.
type Metric string

const (
	MetricLines         Metric = "lines"
	MetricCfgStripped   Metric = "cfg_stripped"
	MetricExpansion     Metric = "expansion"
	MetricExpandedLines Metric = "expanded_lines"
	MetricAnalysis      Metric = "analysis"
)

// Metrics lists every metric in pipeline order.
var Metrics = []Metric{
	MetricLines,
	MetricCfgStripped,
	MetricExpansion,
	MetricExpandedLines,
	MetricAnalysis,
}

func (m Metric) crateSlot(r *CrateRecord) **Count {
	switch m {
	case MetricLines:
		return &r.Lines
	case MetricCfgStripped:
		return &r.CfgStripped
	case MetricExpansion:
		return &r.Expansion
	case MetricExpandedLines:
		return &r.ExpandedLines
	case MetricAnalysis:
		return &r.Analysis
	}
	panic(fmt.Sprintf("ledger: unknown metric %q", string(m)))
}

func (m Metric) repoSlot(r *RepoRecord) **Tally {
	switch m {
	case MetricLines:
		return &r.Lines
	case MetricCfgStripped:
		return &r.CfgStripped
	case MetricExpansion:
		return &r.Expansion
	case MetricExpandedLines:
		return &r.ExpandedLines
	case MetricAnalysis:
		return &r.Analysis
	}
	panic(fmt.Sprintf("ledger: unknown metric %q", string(m)))
}

// Of returns the crate's count for m, or nil if unset.
func (m Metric) Of(r CrateRecord) *Count {
	return *m.crateSlot(&r)
}

// TallyOf returns the repository's tally for m, or nil if unset.
func (m Metric) TallyOf(r RepoRecord) *Tally {
	return *m.repoSlot(&r)
}
