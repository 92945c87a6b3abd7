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

package rustsrc

import (
	"context"
	"fmt"
	"os"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/kraklabs/cratescan/pkg/ledger"
)

// builtinAttributes are compiler and tool attributes that are not macro
// invocations.
var builtinAttributes = map[string]bool{
	"allow": true, "automatically_derived": true, "bench": true, "cfg": true,
	"cfg_attr": true, "cold": true, "collapse_debuginfo": true, "crate_name": true,
	"crate_type": true, "debugger_visualizer": true, "deny": true, "deprecated": true,
	"derive": true, "doc": true, "expect": true, "export_name": true, "feature": true,
	"forbid": true, "global_allocator": true, "ignore": true, "inline": true,
	"instruction_set": true, "link": true, "link_name": true, "link_ordinal": true,
	"link_section": true, "macro_export": true, "macro_use": true, "must_use": true,
	"no_builtins": true, "no_implicit_prelude": true, "no_link": true, "no_main": true,
	"no_mangle": true, "no_std": true, "non_exhaustive": true, "panic_handler": true,
	"path": true, "proc_macro": true, "proc_macro_attribute": true,
	"proc_macro_derive": true, "recursion_limit": true, "repr": true,
	"should_panic": true, "target_feature": true, "test": true, "track_caller": true,
	"type_length_limit": true, "used": true, "warn": true, "windows_subsystem": true,
}

// builtinToolPrefixes are tool namespaces whose attributes are inert.
var builtinToolPrefixes = []string{"rustfmt::", "clippy::", "rustdoc::", "diagnostic::"}

// AnalyzeMacros counts macro definitions and uses in one source file.
func AnalyzeMacros(ctx context.Context, content []byte) (ledger.MacroStats, error) {
	stats := ledger.MacroStats{
		DeriveUsage:    make(map[string]int),
		AttributeUsage: make(map[string]int),
	}
	if len(content) == 0 {
		return stats, nil
	}

	tree, err := parse(ctx, content)
	if err != nil {
		return stats, err
	}
	defer tree.Close()

	walk(tree.RootNode(), func(node *sitter.Node) bool {
		switch node.Type() {
		case "macro_definition":
			stats.DeclarativeDefinitions++
			return false
		case "macro_invocation":
			stats.Invocations++
		case "attribute_item", "inner_attribute_item":
			countAttribute(&stats, attributeText(node, content))
			return false
		}
		return true
	})
	return stats, nil
}

func countAttribute(stats *ledger.MacroStats, text string) {
	name, args := splitAttribute(text)
	if name == "" {
		return
	}

	switch name {
	case "derive":
		for _, arg := range strings.Split(args, ",") {
			if trait := lastSegment(arg); trait != "" {
				stats.DeriveUsage[trait]++
			}
		}
		return
	case "proc_macro":
		stats.ProceduralDefinitions++
		return
	case "proc_macro_derive":
		stats.DeriveDefinitions++
		return
	case "proc_macro_attribute":
		stats.AttributeDefinitions++
		return
	}

	if builtinAttributes[name] {
		return
	}
	for _, prefix := range builtinToolPrefixes {
		if strings.HasPrefix(name, prefix) {
			return
		}
	}
	stats.AttributeInvocations++
	stats.AttributeUsage[name]++
}

// splitAttribute splits "path(args)" or "path = value" into the path with
// whitespace removed and the raw argument text.
func splitAttribute(text string) (string, string) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "unsafe(") && strings.HasSuffix(text, ")") {
		text = strings.TrimSpace(text[len("unsafe(") : len(text)-1])
	}

	end := strings.IndexAny(text, "([{=")
	if end < 0 {
		return squash(text), ""
	}
	name := squash(text[:end])
	args := text[end+1:]
	if text[end] != '=' && len(args) > 0 {
		args = args[:len(args)-1]
	}
	return name, args
}

func lastSegment(path string) string {
	path = squash(path)
	if i := strings.LastIndex(path, "::"); i >= 0 {
		path = path[i+2:]
	}
	return path
}

// AnalyzeFile analyzes one source file.
func AnalyzeFile(ctx context.Context, path string) (ledger.MacroStats, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return ledger.MacroStats{}, fmt.Errorf("read %s: %w", path, err)
	}
	stats, err := AnalyzeMacros(ctx, content)
	if err != nil {
		return ledger.MacroStats{}, fmt.Errorf("analyze %s: %w", path, err)
	}
	return stats, nil
}

// AnalyzeCrate sums the macro statistics of every source file of the crate
// in dir.
func AnalyzeCrate(ctx context.Context, dir string) (ledger.MacroStats, error) {
	var total ledger.MacroStats

	files, err := SourceFiles(dir)
	if err != nil {
		return total, err
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		stats, err := AnalyzeFile(ctx, f)
		if err != nil {
			return total, err
		}
		total.Add(&stats)
	}
	return total, nil
}
