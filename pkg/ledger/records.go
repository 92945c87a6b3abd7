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

import "sort"

// Count is a per-crate measurement. A non-empty Err marks the measurement
// as failed; Value is meaningless in that case.
type Count struct {
	Value int    `json:"value"`
	Err   string `json:"error,omitempty"`
}

// Failed reports whether the count holds a failure.
func (c *Count) Failed() bool {
	return c != nil && c.Err != ""
}

// Tally is the repository-level rollup of one crate metric.
//
// Once any child crate fails, the tally switches to counting failures and
// stops summing values.
type Tally struct {
	Sum      int `json:"sum"`
	Failures int `json:"failures,omitempty"`
}

// Failed reports whether at least one child failure was recorded.
func (t *Tally) Failed() bool {
	return t != nil && t.Failures > 0
}

func (t *Tally) add(v int) {
	if t.Failures > 0 {
		return
	}
	t.Sum += v
}

func (t *Tally) fail() {
	if t.Failures > 0 {
		t.Failures++
		return
	}
	*t = Tally{Failures: 1}
}

// MacroStats summarizes macro definitions and usage in a crate.
type MacroStats struct {
	DeclarativeDefinitions int            `json:"declarative_macro_definition_count"`
	ProceduralDefinitions  int            `json:"procedural_macro_definition_count"`
	DeriveDefinitions      int            `json:"derive_macro_definition_count"`
	AttributeDefinitions   int            `json:"attribute_macro_definition_count"`
	Invocations            int            `json:"macro_invocation_count"`
	AttributeInvocations   int            `json:"attribute_macro_invocation_count"`
	DeriveUsage            map[string]int `json:"derive_macro_usage"`
	AttributeUsage         map[string]int `json:"attribute_macro_usage"`
}

// Add accumulates other into s.
func (s *MacroStats) Add(other *MacroStats) {
	if other == nil {
		return
	}
	s.DeclarativeDefinitions += other.DeclarativeDefinitions
	s.ProceduralDefinitions += other.ProceduralDefinitions
	s.DeriveDefinitions += other.DeriveDefinitions
	s.AttributeDefinitions += other.AttributeDefinitions
	s.Invocations += other.Invocations
	s.AttributeInvocations += other.AttributeInvocations
	s.DeriveUsage = mergeUsage(s.DeriveUsage, other.DeriveUsage)
	s.AttributeUsage = mergeUsage(s.AttributeUsage, other.AttributeUsage)
}

// Definitions returns the total number of macro definitions of every kind.
func (s *MacroStats) Definitions() int {
	if s == nil {
		return 0
	}
	return s.DeclarativeDefinitions + s.ProceduralDefinitions + s.DeriveDefinitions + s.AttributeDefinitions
}

// Usage returns the total number of macro uses: bang invocations,
// attribute macro applications and derived traits.
func (s *MacroStats) Usage() int {
	if s == nil {
		return 0
	}
	n := s.Invocations + s.AttributeInvocations
	for _, c := range s.DeriveUsage {
		n += c
	}
	return n
}

// UsageEntry is one named usage counter.
type UsageEntry struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// TopUsage returns the n most used names in usage, most used first.
// Ties are broken by name.
func TopUsage(usage map[string]int, n int) []UsageEntry {
	entries := make([]UsageEntry, 0, len(usage))
	for name, c := range usage {
		entries = append(entries, UsageEntry{Name: name, Count: c})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Name < entries[j].Name
	})
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

func mergeUsage(dst, src map[string]int) map[string]int {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]int, len(src))
	}
	for k, v := range src {
		dst[k] += v
	}
	return dst
}

func (s *MacroStats) clone() *MacroStats {
	if s == nil {
		return nil
	}
	out := *s
	out.DeriveUsage = mergeUsage(nil, s.DeriveUsage)
	out.AttributeUsage = mergeUsage(nil, s.AttributeUsage)
	return &out
}

// CrateRecord is the analysis record of one crate. Each field is written by
// exactly one stage and is nil until that stage has processed the crate.
type CrateRecord struct {
	Lines         *Count      `json:"lines,omitempty"`
	CfgStripped   *Count      `json:"cfg_stripped,omitempty"`
	Expansion     *Count      `json:"expansion,omitempty"`
	ExpandedLines *Count      `json:"expanded_lines,omitempty"`
	Analysis      *Count      `json:"analysis,omitempty"`
	Macros        *MacroStats `json:"macros,omitempty"`
}

// Clone returns a deep copy of the record.
func (r CrateRecord) Clone() CrateRecord {
	out := CrateRecord{
		Lines:         cloneCount(r.Lines),
		CfgStripped:   cloneCount(r.CfgStripped),
		Expansion:     cloneCount(r.Expansion),
		ExpandedLines: cloneCount(r.ExpandedLines),
		Analysis:      cloneCount(r.Analysis),
		Macros:        r.Macros.clone(),
	}
	return out
}

// RepoRecord aggregates the crates of one repository.
type RepoRecord struct {
	Crates        int        `json:"crates"`
	CloneError    string     `json:"clone_error,omitempty"`
	Lines         *Tally     `json:"lines,omitempty"`
	CfgStripped   *Tally     `json:"cfg_stripped,omitempty"`
	Expansion     *Tally     `json:"expansion,omitempty"`
	ExpandedLines *Tally     `json:"expanded_lines,omitempty"`
	Analysis      *Tally     `json:"analysis,omitempty"`
	Macros        MacroStats `json:"macros"`
}

// Clone returns a deep copy of the record.
func (r RepoRecord) Clone() RepoRecord {
	out := r
	out.Lines = cloneTally(r.Lines)
	out.CfgStripped = cloneTally(r.CfgStripped)
	out.Expansion = cloneTally(r.Expansion)
	out.ExpandedLines = cloneTally(r.ExpandedLines)
	out.Analysis = cloneTally(r.Analysis)
	out.Macros = *r.Macros.clone()
	return out
}

func cloneCount(c *Count) *Count {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}

func cloneTally(t *Tally) *Tally {
	if t == nil {
		return nil
	}
	out := *t
	return &out
}
