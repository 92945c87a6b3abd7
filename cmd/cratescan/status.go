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
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/kraklabs/cratescan/internal/bootstrap"
	"github.com/kraklabs/cratescan/internal/contract"
	"github.com/kraklabs/cratescan/internal/errors"
	"github.com/kraklabs/cratescan/internal/output"
	"github.com/kraklabs/cratescan/internal/ui"
	"github.com/kraklabs/cratescan/pkg/ledger"
	"github.com/kraklabs/cratescan/pkg/pipeline"
	"github.com/kraklabs/cratescan/pkg/stages"
)

// StageStatus is one row of the stage table.
type StageStatus struct {
	Name        string     `json:"name"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// MetricSummary aggregates one metric across the ledger.
type MetricSummary struct {
	Metric   ledger.Metric `json:"metric"`
	Recorded int           `json:"recorded"`
	Failures int           `json:"failures"`
	Sum      int           `json:"sum"`
}

// Summary is the state reported by 'run' and 'status'.
type Summary struct {
	DataDir       string               `json:"data_dir,omitempty"`
	RunID         string               `json:"run_id,omitempty"`
	StartedAt     string               `json:"started_at,omitempty"`
	LastUpdate    string               `json:"last_update,omitempty"`
	Stages        []StageStatus        `json:"stages"`
	Repos         int                  `json:"repos"`
	Crates        int                  `json:"crates"`
	CloneFailures int                  `json:"clone_failures"`
	Metrics       []MetricSummary      `json:"metrics"`
	Lock          *LockInfo            `json:"lock,omitempty"`
	Violations    []contract.Violation `json:"violations,omitempty"`
}

// summarize builds a Summary from persisted state; either argument may be nil.
func summarize(cp *pipeline.Checkpoint, l *ledger.Ledger) *Summary {
	s := &Summary{}
	for _, name := range stages.Names {
		st := StageStatus{Name: name}
		if cp != nil {
			if at, ok := cp.CompletedAt(name); ok {
				st.CompletedAt = &at
			}
		}
		s.Stages = append(s.Stages, st)
	}
	if cp != nil {
		s.RunID = cp.RunID
		s.StartedAt = cp.StartTime
		s.LastUpdate = cp.LastUpdateTime
	}
	if l == nil {
		return s
	}

	s.Crates = l.Len()
	s.Metrics = make([]MetricSummary, len(ledger.Metrics))
	metrics := make(map[ledger.Metric]*MetricSummary, len(ledger.Metrics))
	for i, m := range ledger.Metrics {
		s.Metrics[i].Metric = m
		metrics[m] = &s.Metrics[i]
	}
	for _, key := range l.Keys() {
		rec, _ := l.Crate(key)
		for _, m := range ledger.Metrics {
			if c := m.Of(rec); c != nil {
				metrics[m].Recorded++
				if !c.Failed() {
					metrics[m].Sum += c.Value
				}
			}
		}
	}
	// Failure counts come from the repository tallies.
	for _, key := range l.RepoKeys() {
		rec, _ := l.Repo(key)
		s.Repos++
		if rec.CloneError != "" {
			s.CloneFailures++
		}
		for _, m := range ledger.Metrics {
			if t := m.TallyOf(rec); t != nil {
				metrics[m].Failures += t.Failures
			}
		}
	}
	return s
}

// runStatus executes the 'status' command.
//
// Flags:
//   - --check: validate repository tallies against crate records; exit 10
//     on any mismatch
func runStatus(args []string, globals GlobalFlags) {
	fs := newFlagSet("status", "[options]",
		"Shows which stages completed and how many crates failed per metric.",
		"  cratescan status\n  cratescan --json status --check")
	check := fs.Bool("check", false, "Validate ledger aggregates")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg := loadConfigOrExit(globals)
	ws, err := bootstrap.OpenWorkspace(cfg.ResolvedDataDir(), nil)
	if err != nil {
		errors.FatalError(errors.NewNotFoundError("Workspace not initialised", err.Error(), "Run 'cratescan init' first"), globals.JSON)
	}
	cp, l, err := ws.State()
	if err != nil {
		errors.FatalError(errors.FromPipeline(err), globals.JSON)
	}

	s := summarize(cp, l)
	s.DataDir = ws.DataDir
	if info, _ := NewRunLock(ws.LockPath).Holder(); info != nil {
		s.Lock = info
	}
	if *check && l != nil {
		s.Violations = contract.ValidateLedger(l)
	}

	if globals.JSON {
		if err := output.JSON(s); err != nil {
			errors.FatalError(err, true)
		}
	} else {
		printStatus(s, *check)
	}
	if len(s.Violations) > 0 {
		os.Exit(errors.ExitInternal)
	}
}

func printStatus(s *Summary, checked bool) {
	ui.Header("cratescan Status")
	fmt.Printf("%s %s\n", ui.Label("Data Dir:"), ui.DimText(s.DataDir))
	if s.RunID == "" {
		fmt.Println()
		ui.Info("No run started yet. Run 'cratescan run' to begin.")
		return
	}
	fmt.Printf("%s   %s\n", ui.Label("Run ID:"), s.RunID)
	if s.Lock != nil {
		ui.Infof("running as pid %d for %s", s.Lock.PID, FormatDuration(time.Since(s.Lock.StartedAt)))
	}
	fmt.Println()

	ui.SubHeader("Stages:")
	for _, st := range s.Stages {
		if st.CompletedAt == nil {
			fmt.Printf("  %-16s %s\n", st.Name, ui.DimText("pending"))
			continue
		}
		fmt.Printf("  %-16s %s\n", st.Name, ui.Green.Sprint(humanize.Time(*st.CompletedAt)))
	}
	fmt.Println()

	ui.SubHeader("Ledger:")
	fmt.Printf("  Repositories:  %s\n", ui.CountText(s.Repos))
	fmt.Printf("  Crates:        %s\n", ui.CountText(s.Crates))
	if s.CloneFailures > 0 {
		fmt.Printf("  Clone errors:  %s\n", ui.Red.Sprint(s.CloneFailures))
	}
	for _, m := range s.Metrics {
		if m.Recorded == 0 {
			continue
		}
		line := fmt.Sprintf("  %-14s %s recorded", string(m.Metric)+":", humanize.Comma(int64(m.Recorded)))
		if m.Failures > 0 {
			line += ", " + ui.Red.Sprintf("%d failed", m.Failures)
		}
		fmt.Println(line)
	}

	if checked {
		fmt.Println()
		if len(s.Violations) == 0 {
			ui.Success("Ledger aggregates are consistent")
			return
		}
		ui.Errorf("%d aggregate mismatches", len(s.Violations))
		for _, v := range s.Violations {
			fmt.Printf("  %s\n", v)
		}
	}
}
