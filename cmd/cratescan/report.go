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

package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/kraklabs/cratescan/internal/bootstrap"
	"github.com/kraklabs/cratescan/internal/errors"
	"github.com/kraklabs/cratescan/internal/output"
	"github.com/kraklabs/cratescan/pkg/ledger"
)

// RepoRow is one repository line of the report.
type RepoRow struct {
	Repo          string  `json:"repo"`
	Crates        int     `json:"crates"`
	Lines         int     `json:"lines"`
	ExpandedLines int     `json:"expanded_lines"`
	Growth        float64 `json:"growth,omitempty"`
	Usage         int     `json:"macro_usage"`
	Definitions   int     `json:"macro_definitions"`
	Failures      int     `json:"failures"`
	CloneError    string  `json:"clone_error,omitempty"`
}

// Report is the 'report' command output.
type Report struct {
	Repos      []RepoRow           `json:"repos"`
	Derives    []ledger.UsageEntry `json:"top_derives"`
	Attributes []ledger.UsageEntry `json:"top_attributes"`
	Totals     RepoRow             `json:"totals"`
}

// CrateRow is one line of the --crates export.
type CrateRow struct {
	Key string `json:"key"`
	ledger.CrateRecord
}

var reportSorts = map[string]func(a, b RepoRow) bool{
	"usage":    func(a, b RepoRow) bool { return a.Usage > b.Usage },
	"lines":    func(a, b RepoRow) bool { return a.Lines > b.Lines },
	"growth":   func(a, b RepoRow) bool { return a.Growth > b.Growth },
	"failures": func(a, b RepoRow) bool { return a.Failures > b.Failures },
}

func tallySum(t *ledger.Tally) int {
	if t == nil {
		return 0
	}
	return t.Sum
}

// buildReport ranks repositories by sortBy and keeps the top n (all when
// n <= 0). Totals cover every repository.
func buildReport(l *ledger.Ledger, n int, sortBy string) (*Report, error) {
	less, ok := reportSorts[sortBy]
	if !ok {
		return nil, fmt.Errorf("unknown sort key %q (usage, lines, growth, failures)", sortBy)
	}

	r := &Report{Totals: RepoRow{Repo: "total"}}
	var derives, attributes map[string]int
	for _, key := range l.RepoKeys() {
		rec, _ := l.Repo(key)
		row := RepoRow{
			Repo:          key,
			Crates:        rec.Crates,
			Lines:         tallySum(rec.Lines),
			ExpandedLines: tallySum(rec.ExpandedLines),
			Usage:         rec.Macros.Usage(),
			Definitions:   rec.Macros.Definitions(),
			CloneError:    rec.CloneError,
		}
		if row.Lines > 0 && row.ExpandedLines > 0 {
			row.Growth = float64(row.ExpandedLines) / float64(row.Lines)
		}
		for _, m := range ledger.Metrics {
			if t := m.TallyOf(rec); t != nil {
				row.Failures += t.Failures
			}
		}
		r.Repos = append(r.Repos, row)

		r.Totals.Crates += row.Crates
		r.Totals.Lines += row.Lines
		r.Totals.ExpandedLines += row.ExpandedLines
		r.Totals.Usage += row.Usage
		r.Totals.Definitions += row.Definitions
		r.Totals.Failures += row.Failures

		derives = addUsage(derives, rec.Macros.DeriveUsage)
		attributes = addUsage(attributes, rec.Macros.AttributeUsage)
	}
	if r.Totals.Lines > 0 && r.Totals.ExpandedLines > 0 {
		r.Totals.Growth = float64(r.Totals.ExpandedLines) / float64(r.Totals.Lines)
	}

	sort.SliceStable(r.Repos, func(i, j int) bool {
		if less(r.Repos[i], r.Repos[j]) {
			return true
		}
		if less(r.Repos[j], r.Repos[i]) {
			return false
		}
		return r.Repos[i].Repo < r.Repos[j].Repo
	})
	if n > 0 && len(r.Repos) > n {
		r.Repos = r.Repos[:n]
	}
	r.Derives = ledger.TopUsage(derives, 10)
	r.Attributes = ledger.TopUsage(attributes, 10)
	return r, nil
}

func addUsage(dst, src map[string]int) map[string]int {
	if dst == nil {
		dst = make(map[string]int)
	}
	for k, v := range src {
		dst[k] += v
	}
	return dst
}

func comma(n int) string { return humanize.Comma(int64(n)) }

func growth(g float64) string {
	if g == 0 {
		return "-"
	}
	return fmt.Sprintf("%.2fx", g)
}

// renderReport writes the report tables.
func renderReport(w io.Writer, r *Report) {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateColumns = false
	tbl.AppendHeader(table.Row{"Repository", "Crates", "Lines", "Expanded", "Growth", "Macro uses", "Definitions", "Failures"})
	for _, row := range r.Repos {
		failures := comma(row.Failures)
		if row.CloneError != "" {
			failures = "clone failed"
		}
		tbl.AppendRow(table.Row{row.Repo, row.Crates, comma(row.Lines), comma(row.ExpandedLines),
			growth(row.Growth), comma(row.Usage), comma(row.Definitions), failures})
	}
	t := r.Totals
	tbl.AppendFooter(table.Row{"Total", t.Crates, comma(t.Lines), comma(t.ExpandedLines),
		growth(t.Growth), comma(t.Usage), comma(t.Definitions), comma(t.Failures)})
	tbl.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignFooter: text.AlignRight},
		{Number: 3, Align: text.AlignRight, AlignFooter: text.AlignRight},
		{Number: 4, Align: text.AlignRight, AlignFooter: text.AlignRight},
		{Number: 5, Align: text.AlignRight, AlignFooter: text.AlignRight},
		{Number: 6, Align: text.AlignRight, AlignFooter: text.AlignRight},
		{Number: 7, Align: text.AlignRight, AlignFooter: text.AlignRight},
		{Number: 8, Align: text.AlignRight, AlignFooter: text.AlignRight},
	})
	tbl.Render()

	for _, section := range []struct {
		title   string
		entries []ledger.UsageEntry
	}{
		{"Top derives", r.Derives},
		{"Top attribute macros", r.Attributes},
	} {
		if len(section.entries) == 0 {
			continue
		}
		fmt.Fprintln(w)
		usage := table.NewWriter()
		usage.SetOutputMirror(w)
		usage.SetStyle(table.StyleLight)
		usage.Style().Options.DrawBorder = false
		usage.SetTitle(section.title)
		usage.AppendHeader(table.Row{"#", "Name", "Uses"})
		for i, e := range section.entries {
			usage.AppendRow(table.Row{i + 1, e.Name, comma(e.Count)})
		}
		usage.Render()
	}
}

// runReport executes the 'report' command.
func runReport(args []string, globals GlobalFlags) {
	fs := newFlagSet("report", "[options]",
		"Summarises the ledger: repositories ranked by macro usage, plus the most\nused derives and attribute macros.",
		"  cratescan report --top 50 --sort growth\n  cratescan report --crates > crates.jsonl")
	top := fs.IntP("top", "n", 20, "Number of repositories to show (0 for all)")
	sortBy := fs.String("sort", "usage", "Rank by usage, lines, growth or failures")
	crates := fs.Bool("crates", false, "Export every crate record as JSON lines")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg := loadConfigOrExit(globals)
	ws, err := bootstrap.OpenWorkspace(cfg.ResolvedDataDir(), nil)
	if err != nil {
		errors.FatalError(errors.NewNotFoundError("Workspace not initialised", err.Error(), "Run 'cratescan init' first"), globals.JSON)
	}
	_, l, err := ws.State()
	if err != nil {
		errors.FatalError(errors.FromPipeline(err), globals.JSON)
	}
	if l == nil {
		errors.FatalError(errors.NewNotFoundError("No results yet", "the ledger has not been written", "Run 'cratescan run' first"), globals.JSON)
	}

	if *crates {
		rows := make([]CrateRow, 0, l.Len())
		for _, key := range l.Keys() {
			rec, _ := l.Crate(key)
			rows = append(rows, CrateRow{Key: key, CrateRecord: rec})
		}
		if err := output.JSONLines(os.Stdout, rows); err != nil {
			errors.FatalError(err, globals.JSON)
		}
		return
	}

	r, err := buildReport(l, *top, *sortBy)
	if err != nil {
		errors.FatalError(errors.NewInputError("Invalid --sort", err.Error(), "Use one of: usage, lines, growth, failures"), globals.JSON)
	}
	if globals.JSON {
		if err := output.JSON(r); err != nil {
			errors.FatalError(err, true)
		}
		return
	}
	renderReport(os.Stdout, r)
}
