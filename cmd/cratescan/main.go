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

// Package main implements the cratescan CLI, a resumable scraper that
// measures macro usage across the most starred Rust repositories on GitHub.
//
// Usage:
//
//	cratescan init                  Create .cratescan/config.yaml and the workspace
//	cratescan run                   Run or resume the pipeline
//	cratescan status [--json]       Show stage checkpoints and failure counts
//	cratescan report [--json]       Show macro usage by repository
//	cratescan reset --yes           Forget the checkpoint and start a new run
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/cratescan/internal/ui"
)

// Version information, set via ldflags.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GlobalFlags are accepted before the command name.
type GlobalFlags struct {
	JSON    bool
	Quiet   bool
	NoColor bool
	Verbose int
	Config  string
	DataDir string
}

func main() {
	var globals GlobalFlags
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.BoolVar(&globals.JSON, "json", false, "Machine readable output (implies --quiet)")
	flag.BoolVarP(&globals.Quiet, "quiet", "q", false, "Suppress progress bars and stage notices")
	flag.BoolVar(&globals.NoColor, "no-color", false, "Disable colored output")
	flag.CountVarP(&globals.Verbose, "verbose", "v", "Enable debug logging (same as run --debug)")
	flag.StringVarP(&globals.Config, "config", "c", "", "Path to .cratescan/config.yaml (default: ./.cratescan/config.yaml)")
	flag.StringVar(&globals.DataDir, "data-dir", "", "Override data_dir from the configuration")

	flag.CommandLine.SetInterspersed(false)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `cratescan - macro usage across popular Rust crates

cratescan lists the most starred Rust repositories on GitHub, clones them,
finds their crates and measures each crate before and after macro
expansion. Every stage is checkpointed: an interrupted run resumes at the
first stage that did not complete.

Usage:
  cratescan [global options] <command> [options]

Commands:
  init        Create .cratescan/config.yaml and the data directory
  run         Run or resume the pipeline
  status      Show stage checkpoints and failure counts
  report      Show macro usage by repository
  reset       Forget the checkpoint (and optionally the ledger)
  completion  Generate shell completion script (bash|zsh|fish)

Global Options:
`)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Stages:
  fetch-repos, clone-repos, find-crates, count-code,
  clear-cfg, expand-macros, count-expanded, analyze-macros

Environment Variables:
  GITHUB_TOKEN         GitHub token for the search API
  CRATESCAN_DATA_DIR   Overrides data_dir

For detailed command help: cratescan <command> --help
`)
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("cratescan version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}
	if globals.JSON {
		globals.Quiet = true
	}
	ui.InitColors(globals.NoColor)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command, cmdArgs := args[0], args[1:]
	switch command {
	case "init":
		runInit(cmdArgs, globals)
	case "run":
		runPipeline(cmdArgs, globals)
	case "status":
		runStatus(cmdArgs, globals)
	case "report":
		runReport(cmdArgs, globals)
	case "reset":
		runReset(cmdArgs, globals)
	case "completion":
		runCompletion(cmdArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

// newFlagSet returns a command flag set with the shared usage layout.
func newFlagSet(name, synopsis, description, examples string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cratescan %s %s\n\n%s\n\nOptions:\n", name, synopsis, description)
		fs.PrintDefaults()
		if examples != "" {
			fmt.Fprintf(os.Stderr, "\nExamples:\n%s\n", examples)
		}
	}
	return fs
}
