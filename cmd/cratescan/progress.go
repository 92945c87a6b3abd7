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
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"github.com/kraklabs/cratescan/internal/ui"
)

// ProgressConfig determines if and how progress is displayed.
type ProgressConfig struct {
	// Enabled is false with --quiet, --json, or when stderr is not a TTY.
	Enabled bool
	Writer  io.Writer
	NoColor bool
}

func NewProgressConfig(globals GlobalFlags) ProgressConfig {
	return ProgressConfig{
		Enabled: !globals.Quiet && isatty.IsTerminal(os.Stderr.Fd()),
		Writer:  os.Stderr,
		NoColor: globals.NoColor,
	}
}

// NewProgressBar returns nil when progress is disabled.
func NewProgressBar(cfg ProgressConfig, total int64, description string) *progressbar.ProgressBar {
	if !cfg.Enabled {
		return nil
	}
	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(cfg.Writer),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionEnableColorCodes(!cfg.NoColor),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// NewSpinner returns an indeterminate spinner, or nil when progress is
// disabled. fetch-repos and find-crates have no item count up front.
func NewSpinner(cfg ProgressConfig, description string) *progressbar.ProgressBar {
	if !cfg.Enabled {
		return nil
	}
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(cfg.Writer),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionEnableColorCodes(!cfg.NoColor),
	)
}

func stageDescription(stage string) string {
	switch stage {
	case "fetch-repos":
		return "Listing repositories"
	case "clone-repos":
		return "Cloning repositories"
	case "find-crates":
		return "Finding crates"
	case "count-code":
		return "Counting lines"
	case "clear-cfg":
		return "Clearing cfg items"
	case "expand-macros":
		return "Expanding macros"
	case "count-expanded":
		return "Counting expanded lines"
	case "analyze-macros":
		return "Analyzing macros"
	default:
		return stage
	}
}

// terminalNotifier renders pipeline notifications as stage lines and one
// progress bar per running stage.
type terminalNotifier struct {
	cfg   ProgressConfig
	quiet bool

	mu      sync.Mutex
	bar     *progressbar.ProgressBar
	spinner *progressbar.ProgressBar
	stage   string
}

func newTerminalNotifier(cfg ProgressConfig, quiet bool) *terminalNotifier {
	return &terminalNotifier{cfg: cfg, quiet: quiet}
}

func (n *terminalNotifier) StageSkipped(stage string, completedAt time.Time) {
	if !n.quiet {
		ui.StageSkipped(stage, completedAt)
	}
}

func (n *terminalNotifier) StageStarted(stage string) {
	if !n.quiet {
		ui.StageStarted(stage)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stage = stage
	n.spinner = NewSpinner(n.cfg, stageDescription(stage))
	if n.spinner != nil {
		_ = n.spinner.RenderBlank()
	}
}

func (n *terminalNotifier) Progress(stage string, done, total int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if stage != n.stage {
		return
	}
	if n.bar == nil {
		n.finishSpinner()
		n.bar = NewProgressBar(n.cfg, int64(total), stageDescription(stage))
	}
	if n.bar != nil {
		_ = n.bar.Set(done)
	}
}

func (n *terminalNotifier) StageCompleted(stage string, elapsed time.Duration) {
	n.mu.Lock()
	n.finishSpinner()
	if n.bar != nil {
		_ = n.bar.Finish()
		n.bar = nil
	}
	n.stage = ""
	n.mu.Unlock()
	if !n.quiet {
		ui.StageCompleted(stage, elapsed)
	}
}

// Close clears any bar left by a stage that failed.
func (n *terminalNotifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.finishSpinner()
	if n.bar != nil {
		_ = n.bar.Exit()
		n.bar = nil
	}
}

func (n *terminalNotifier) finishSpinner() {
	if n.spinner != nil {
		_ = n.spinner.Finish()
		n.spinner = nil
	}
}
