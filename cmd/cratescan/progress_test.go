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
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/kraklabs/cratescan/internal/ui"
)

func TestNewProgressConfig(t *testing.T) {
	tests := []struct {
		name            string
		globals         GlobalFlags
		expectedNoColor bool
	}{
		{"default flags", GlobalFlags{}, false},
		{"quiet mode", GlobalFlags{Quiet: true}, false},
		{"JSON mode", GlobalFlags{JSON: true, Quiet: true}, false},
		{"noColor propagates", GlobalFlags{NoColor: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewProgressConfig(tt.globals)
			// stderr is not a TTY under go test.
			if cfg.Enabled {
				t.Errorf("NewProgressConfig().Enabled = true, want false")
			}
			if cfg.NoColor != tt.expectedNoColor {
				t.Errorf("NewProgressConfig().NoColor = %v, want %v", cfg.NoColor, tt.expectedNoColor)
			}
			if cfg.Writer != os.Stderr {
				t.Error("NewProgressConfig().Writer should be os.Stderr")
			}
		})
	}
}

func TestNewProgressBar(t *testing.T) {
	if bar := NewProgressBar(ProgressConfig{}, 100, "Test"); bar != nil {
		t.Error("NewProgressBar() should return nil when disabled")
	}
	if s := NewSpinner(ProgressConfig{}, "Test"); s != nil {
		t.Error("NewSpinner() should return nil when disabled")
	}

	var buf bytes.Buffer
	cfg := ProgressConfig{Enabled: true, Writer: &buf, NoColor: true}
	bar := NewProgressBar(cfg, 10, "Expanding macros")
	if bar == nil {
		t.Fatal("NewProgressBar() should return non-nil when enabled")
	}
	_ = bar.Set(5)
	_ = bar.Finish()

	spinner := NewSpinner(cfg, "Listing repositories")
	if spinner == nil {
		t.Fatal("NewSpinner() should return non-nil when enabled")
	}
	_ = spinner.Finish()
}

func TestStageDescription(t *testing.T) {
	tests := []struct {
		stage, want string
	}{
		{"clone-repos", "Cloning repositories"},
		{"expand-macros", "Expanding macros"},
		{"analyze-macros", "Analyzing macros"},
		{"custom", "custom"},
	}
	for _, tt := range tests {
		if got := stageDescription(tt.stage); got != tt.want {
			t.Errorf("stageDescription(%q) = %q, want %q", tt.stage, got, tt.want)
		}
	}
}

func TestTerminalNotifier(t *testing.T) {
	origOut, origNoColor := ui.Out, color.NoColor
	defer func() { ui.Out, color.NoColor = origOut, origNoColor }()
	var out, bars bytes.Buffer
	ui.Out = &out
	color.NoColor = true

	n := newTerminalNotifier(ProgressConfig{Enabled: true, Writer: &bars, NoColor: true}, false)
	n.StageSkipped("fetch-repos", time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local))
	n.StageStarted("count-code")
	n.Progress("count-code", 1, 3)
	n.Progress("other-stage", 1, 3)
	n.Progress("count-code", 3, 3)
	n.StageCompleted("count-code", 2*time.Second)
	n.Close()

	got := out.String()
	for _, want := range []string{"⏭ fetch-repos", "▶ count-code", "✓ count-code 2s"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if n.bar != nil || n.spinner != nil {
		t.Error("bars should be cleared after completion")
	}
}

func TestTerminalNotifier_Quiet(t *testing.T) {
	origOut := ui.Out
	defer func() { ui.Out = origOut }()
	var out bytes.Buffer
	ui.Out = &out

	n := newTerminalNotifier(ProgressConfig{}, true)
	n.StageSkipped("fetch-repos", time.Now())
	n.StageStarted("count-code")
	n.Progress("count-code", 1, 1)
	n.StageCompleted("count-code", time.Second)

	if out.Len() != 0 {
		t.Errorf("quiet notifier printed %q", out.String())
	}
}
