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

// Package ui renders human-facing cratescan output.
//
// Colors follow fatih/color, which already honours NO_COLOR and disables
// itself when stdout is not a terminal. InitColors applies --no-color.
//
//   - Red: failures
//   - Yellow: skipped stages, warnings
//   - Green: completed stages
//   - Cyan: counts and informational lines
//   - Dim: paths and timestamps
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

var (
	Red    = color.New(color.FgRed)
	Yellow = color.New(color.FgYellow)
	Green  = color.New(color.FgGreen)
	Cyan   = color.New(color.FgCyan)
	Bold   = color.New(color.Bold)
	Dim    = color.New(color.Faint)
)

// Out receives every message printed by this package.
var Out io.Writer = os.Stdout

// InitColors applies the --no-color flag.
func InitColors(noColor bool) {
	if noColor {
		color.NoColor = true
	}
}

func Success(msg string) { _, _ = Green.Fprintln(Out, "✓ "+msg) }

func Successf(format string, args ...any) { Success(fmt.Sprintf(format, args...)) }

func Warning(msg string) { _, _ = Yellow.Fprintln(Out, "⚠ "+msg) }

func Warningf(format string, args ...any) { Warning(fmt.Sprintf(format, args...)) }

func Error(msg string) { _, _ = Red.Fprintln(Out, "✗ "+msg) }

func Errorf(format string, args ...any) { Error(fmt.Sprintf(format, args...)) }

func Info(msg string) { _, _ = Cyan.Fprintln(Out, "ℹ "+msg) }

func Infof(format string, args ...any) { Info(fmt.Sprintf(format, args...)) }

// Header prints a bold title underlined with '='.
func Header(text string) {
	_, _ = Bold.Fprintln(Out, text)
	fmt.Fprintln(Out, strings.Repeat("=", len(text)))
}

func SubHeader(text string) { _, _ = Bold.Fprintln(Out, text) }

func Label(text string) string { return Bold.Sprint(text) }

func DimText(text string) string { return Dim.Sprint(text) }

func CountText(count int) string { return Cyan.Sprint(count) }

// StageSkipped reports a stage that a previous run already completed.
//
//	⏭ clone-repos (completed 2026-10-18 09:12:44)
func StageSkipped(stage string, at time.Time) {
	_, _ = Yellow.Fprintf(Out, "⏭ %s ", stage)
	fmt.Fprintln(Out, DimText("(completed "+at.Local().Format(time.DateTime)+")"))
}

// StageStarted announces a stage.
func StageStarted(stage string) {
	_, _ = Bold.Fprintf(Out, "▶ %s\n", stage)
}

// StageCompleted reports a finished stage and its duration, rounded to
// milliseconds.
func StageCompleted(stage string, d time.Duration) {
	_, _ = Green.Fprintf(Out, "✓ %s ", stage)
	fmt.Fprintln(Out, DimText(d.Round(time.Millisecond).String()))
}
