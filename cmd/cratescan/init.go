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
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kraklabs/cratescan/internal/bootstrap"
	"github.com/kraklabs/cratescan/internal/errors"
	"github.com/kraklabs/cratescan/internal/output"
	"github.com/kraklabs/cratescan/internal/ui"
)

type initFlags struct {
	force, nonInteractive bool
	repoCount             int
	query                 string
	expandWorkers         int
	toolchain             string
}

// runInit executes the 'init' command: it writes .cratescan/config.yaml in
// the current directory and creates the data directory.
//
//	cratescan init                 Interactive setup
//	cratescan init -y              Use all defaults
//	cratescan init -y --repos 500  Scan the top 500 repositories
func runInit(args []string, globals GlobalFlags) {
	fs := newFlagSet("init", "[options]",
		"Creates .cratescan/config.yaml and the data directory.",
		"  cratescan init -y\n  cratescan init --repos 500 --toolchain nightly-2024-06-01")
	var f initFlags
	fs.BoolVar(&f.force, "force", false, "Overwrite existing configuration")
	fs.BoolVarP(&f.nonInteractive, "yes", "y", false, "Non-interactive mode (use defaults)")
	fs.IntVar(&f.repoCount, "repos", 0, "Number of repositories to scan (default 100)")
	fs.StringVar(&f.query, "query", "", "GitHub search query (default \"language:rust\")")
	fs.IntVar(&f.expandWorkers, "expand-workers", 0, "Concurrent cargo expand processes")
	fs.StringVar(&f.toolchain, "toolchain", "", "Rust toolchain for cargo expand (default nightly)")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cwd, err := os.Getwd()
	if err != nil {
		errors.FatalError(errors.NewInternalError("Cannot get current directory", err.Error(), "", err), globals.JSON)
	}
	configPath := globals.Config
	if configPath == "" {
		configPath = ConfigPath(cwd)
	}
	if _, err := os.Stat(configPath); err == nil && !f.force {
		errors.FatalError(errors.NewInputError(
			"Configuration already exists",
			configPath+" is present",
			"Use --force to overwrite"), globals.JSON)
	}

	cfg := createInitConfig(f, globals)
	if !f.nonInteractive && !globals.JSON {
		runInteractiveConfig(bufio.NewReader(os.Stdin), os.Stdout, cfg)
	}
	if err := cfg.Validate(); err != nil {
		errors.FatalError(err, globals.JSON)
	}
	if err := SaveConfig(configPath, cfg); err != nil {
		errors.FatalError(errors.NewPermissionError("Cannot save configuration", err.Error(), "Check directory permissions", err), globals.JSON)
	}

	cfg.root = filepath.Dir(filepath.Dir(configPath))
	ws, err := bootstrap.InitWorkspace(cfg.ResolvedDataDir(), nil)
	if err != nil {
		errors.FatalError(errors.NewPermissionError("Cannot create data directory", err.Error(), "Check data_dir", err), globals.JSON)
	}

	if globals.JSON {
		if err := output.JSON(map[string]string{"config": configPath, "data_dir": ws.DataDir}); err != nil {
			errors.FatalError(err, true)
		}
		return
	}
	ui.Successf("Created %s", configPath)
	ui.Successf("Data directory %s", ws.DataDir)
	if addToGitignore(cwd) {
		ui.Info("Added .cratescan/ to .gitignore")
	}
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. export GITHUB_TOKEN=...   (raises the search API rate limit)")
	fmt.Println("  2. cratescan run")
	fmt.Println("  3. cratescan report")
}

func createInitConfig(f initFlags, globals GlobalFlags) *Config {
	cfg := DefaultConfig()
	if globals.DataDir != "" {
		cfg.DataDir = globals.DataDir
	}
	if f.repoCount > 0 {
		cfg.GitHub.RepoCount = f.repoCount
	}
	if f.query != "" {
		cfg.GitHub.Query = f.query
	}
	if f.expandWorkers > 0 {
		cfg.Workers.Expand = f.expandWorkers
	}
	if f.toolchain != "" {
		cfg.Expand.Toolchain = f.toolchain
	}
	return cfg
}

func runInteractiveConfig(reader *bufio.Reader, w io.Writer, cfg *Config) {
	ui.Header("cratescan Configuration")
	fmt.Fprintln(w)
	cfg.GitHub.Query = prompt(reader, w, "GitHub search query", cfg.GitHub.Query)
	cfg.GitHub.RepoCount = promptInt(reader, w, "Repositories to scan", cfg.GitHub.RepoCount)
	cfg.Expand.Toolchain = prompt(reader, w, "Toolchain for cargo expand", cfg.Expand.Toolchain)
	cfg.Workers.Expand = promptInt(reader, w, "Concurrent expansions", cfg.Workers.Expand)
	fmt.Fprintln(w)
}

// prompt reads one line, returning defaultValue for an empty answer.
func prompt(reader *bufio.Reader, w io.Writer, label, defaultValue string) string {
	if defaultValue != "" {
		fmt.Fprintf(w, "%s [%s]: ", label, defaultValue)
	} else {
		fmt.Fprintf(w, "%s: ", label)
	}
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultValue
	}
	return input
}

func promptInt(reader *bufio.Reader, w io.Writer, label string, defaultValue int) int {
	answer := prompt(reader, w, label, strconv.Itoa(defaultValue))
	n, err := strconv.Atoi(answer)
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}

// addToGitignore appends .cratescan/ to dir/.gitignore when the file exists
// and does not list it. It reports whether the file changed.
func addToGitignore(dir string) bool {
	gitignorePath := filepath.Join(dir, ".gitignore")
	content, err := os.ReadFile(gitignorePath) //nolint:gosec // G304: path built from cwd
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(content), "\n") {
		switch strings.TrimSpace(line) {
		case ".cratescan", ".cratescan/", "/.cratescan", "/.cratescan/":
			return false
		}
	}

	f, err := os.OpenFile(gitignorePath, os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // G304: path built from cwd
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()
	if len(content) > 0 && content[len(content)-1] != '\n' {
		_, _ = f.WriteString("\n")
	}
	_, err = f.WriteString("\n# cratescan workspace\n.cratescan/\n")
	return err == nil
}
