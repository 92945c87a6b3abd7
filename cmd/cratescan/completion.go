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
	"strings"

	"github.com/kraklabs/cratescan/internal/errors"
)

type flagSpec struct {
	name  string
	desc  string
	value string // non-empty when the flag takes an argument
}

type commandSpec struct {
	name  string
	desc  string
	flags []flagSpec
	args  []string
}

var globalFlagSpecs = []flagSpec{
	{"version", "Show version and exit", ""},
	{"json", "Machine readable output", ""},
	{"quiet", "Suppress progress output", ""},
	{"no-color", "Disable colored output", ""},
	{"verbose", "Enable debug logging", ""},
	{"config", "Path to .cratescan/config.yaml", "file"},
	{"data-dir", "Override data_dir", "dir"},
}

var commandSpecs = []commandSpec{
	{name: "init", desc: "Create .cratescan/config.yaml", flags: []flagSpec{
		{"force", "Overwrite existing configuration", ""},
		{"yes", "Use defaults without prompting", ""},
		{"repos", "Repositories to scan", "count"},
		{"query", "GitHub search query", "query"},
		{"expand-workers", "Concurrent expansions", "count"},
		{"toolchain", "Rust toolchain", "toolchain"},
	}},
	{name: "run", desc: "Run or resume the pipeline", flags: []flagSpec{
		{"debug", "Enable debug logging", ""},
		{"metrics-addr", "Prometheus metrics address", "address"},
		{"lock-timeout", "Wait for a concurrent run", "duration"},
	}},
	{name: "status", desc: "Show stage checkpoints", flags: []flagSpec{
		{"check", "Validate ledger aggregates", ""},
	}},
	{name: "report", desc: "Show macro usage by repository", flags: []flagSpec{
		{"top", "Repositories to show", "count"},
		{"sort", "Ranking key", "key"},
		{"crates", "Export crate records as JSON lines", ""},
	}},
	{name: "reset", desc: "Forget the checkpoint", flags: []flagSpec{
		{"yes", "Confirm the reset", ""},
		{"ledger", "Also delete the ledger", ""},
	}},
	{name: "completion", desc: "Generate shell completion script", args: []string{"bash", "zsh", "fish"}},
}

func longFlags(flags []flagSpec) string {
	names := make([]string, len(flags))
	for i, f := range flags {
		names[i] = "--" + f.name
	}
	return strings.Join(names, " ")
}

func writeBashCompletion(w io.Writer) {
	names := make([]string, len(commandSpecs))
	for i, c := range commandSpecs {
		names[i] = c.name
	}
	fmt.Fprintf(w, `# bash completion for cratescan
#   source <(cratescan completion bash)

_cratescan_completion() {
    local cur="${COMP_WORDS[COMP_CWORD]}"
    local cmd=""
    local i
    for (( i=1; i < COMP_CWORD; i++ )); do
        case "${COMP_WORDS[i]}" in
            -*) ;;
            *) cmd="${COMP_WORDS[i]}"; break ;;
        esac
    done

    if [ -z "${cmd}" ]; then
        if [[ ${cur} == -* ]]; then
            COMPREPLY=( $(compgen -W "%s" -- "${cur}") )
        else
            COMPREPLY=( $(compgen -W "%s" -- "${cur}") )
        fi
        return 0
    fi

    case "${cmd}" in
`, longFlags(globalFlagSpecs), strings.Join(names, " "))
	for _, c := range commandSpecs {
		words := longFlags(c.flags)
		if len(c.args) > 0 {
			words = strings.Join(c.args, " ")
		}
		fmt.Fprintf(w, "        %s) COMPREPLY=( $(compgen -W \"%s\" -- \"${cur}\") ) ;;\n", c.name, words)
	}
	fmt.Fprint(w, `    esac
}

complete -F _cratescan_completion cratescan
`)
}

func writeZshCompletion(w io.Writer) {
	fmt.Fprint(w, `#compdef cratescan
#   cratescan completion zsh > "${fpath[1]}/_cratescan"

_cratescan() {
    local -a commands
    commands=(
`)
	for _, c := range commandSpecs {
		fmt.Fprintf(w, "        '%s:%s'\n", c.name, c.desc)
	}
	fmt.Fprint(w, "    )\n\n    _arguments -C \\\n")
	for _, f := range globalFlagSpecs {
		fmt.Fprintf(w, "        %s \\\n", zshFlag(f))
	}
	fmt.Fprint(w, `        '1: :->command' \
        '*:: :->args'

    case $state in
        command)
            _describe 'command' commands
            ;;
        args)
            case $words[1] in
`)
	for _, c := range commandSpecs {
		fmt.Fprintf(w, "                %s)\n                    _arguments", c.name)
		for _, f := range c.flags {
			fmt.Fprintf(w, " \\\n                        %s", zshFlag(f))
		}
		if len(c.args) > 0 {
			fmt.Fprintf(w, " \\\n                        '1:shell:(%s)'", strings.Join(c.args, " "))
		}
		fmt.Fprint(w, "\n                    ;;\n")
	}
	fmt.Fprint(w, `            esac
            ;;
    esac
}

_cratescan
`)
}

func zshFlag(f flagSpec) string {
	if f.value == "" {
		return fmt.Sprintf("'--%s[%s]'", f.name, f.desc)
	}
	return fmt.Sprintf("'--%s[%s]:%s:'", f.name, f.desc, f.value)
}

func writeFishCompletion(w io.Writer) {
	fmt.Fprint(w, "# fish completion for cratescan\n#   cratescan completion fish | source\n\n")
	for _, c := range commandSpecs {
		fmt.Fprintf(w, "complete -c cratescan -f -n \"__fish_use_subcommand\" -a %q -d %q\n", c.name, c.desc)
	}
	fmt.Fprintln(w)
	for _, f := range globalFlagSpecs {
		fmt.Fprintf(w, "complete -c cratescan -l %s -d %q%s\n", f.name, f.desc, fishRequires(f))
	}
	for _, c := range commandSpecs {
		for _, f := range c.flags {
			fmt.Fprintf(w, "complete -c cratescan -n \"__fish_seen_subcommand_from %s\" -l %s -d %q%s\n",
				c.name, f.name, f.desc, fishRequires(f))
		}
		for _, a := range c.args {
			fmt.Fprintf(w, "complete -c cratescan -n \"__fish_seen_subcommand_from %s\" -f -a %q\n", c.name, a)
		}
	}
}

func fishRequires(f flagSpec) string {
	if f.value == "" {
		return ""
	}
	return " -r"
}

// writeCompletion writes the script for shell.
func writeCompletion(w io.Writer, shell string) error {
	switch shell {
	case "bash":
		writeBashCompletion(w)
	case "zsh":
		writeZshCompletion(w)
	case "fish":
		writeFishCompletion(w)
	default:
		return errors.NewInputError(
			"Unsupported shell",
			fmt.Sprintf("Shell '%s' is not supported. Valid options: bash, zsh, fish", shell),
			"Run 'cratescan completion bash', 'cratescan completion zsh', or 'cratescan completion fish'")
	}
	return nil
}

// runCompletion executes the 'completion' command.
func runCompletion(args []string) {
	fs := newFlagSet("completion", "<bash|zsh|fish>",
		"Generates a shell completion script.",
		"  source <(cratescan completion bash)\n  cratescan completion fish > ~/.config/fish/completions/cratescan.fish")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		errors.FatalError(errors.NewInputError(
			"Invalid arguments",
			"The completion command requires exactly one argument: the shell name",
			"Run 'cratescan completion bash', 'cratescan completion zsh', or 'cratescan completion fish'",
		), false)
	}
	if err := writeCompletion(os.Stdout, fs.Arg(0)); err != nil {
		errors.FatalError(err, false)
	}
}
