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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestCountLines(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want int
	}{
		{"empty", "", 0},
		{"only comments", "// one\n/* two\n three */\n\n//! doc\n", 0},
		{
			name: "code with comments",
			src: `// header comment
use std::io;

/* block
   comment */
fn main() {
    let s = "a"; // trailing
}
`,
			want: 4,
		},
		{
			name: "multi-line string",
			src: `fn f() -> &'static str {
    "line one
line two"
}
`,
			want: 4,
		},
		{
			name: "doc comments",
			src: `/// Adds one.
pub fn add_one(x: i32) -> i32 {
    x + 1
}
`,
			want: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CountLines(context.Background(), []byte(tt.src))
			require.NoError(t, err)
			if got != tt.want {
				t.Errorf("CountLines() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSourceFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Cargo.toml", "[package]\nname = \"a\"\n")
	lib := writeFile(t, dir, "src/lib.rs", "pub mod util;")
	util := writeFile(t, dir, "src/util/mod.rs", "pub fn f() {}")
	writeFile(t, dir, ".macro-expanded.rs", "fn expanded() {}")
	writeFile(t, dir, "target/debug/build.rs", "fn main() {}")
	writeFile(t, dir, "nested/Cargo.toml", "[package]\nname = \"b\"\n")
	writeFile(t, dir, "nested/src/lib.rs", "fn nested() {}")
	writeFile(t, dir, "README.md", "# a")

	files, err := SourceFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{lib, util}, files)
}

func TestCountCrate(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "src/lib.rs", "// lib\npub fn a() {}\n\npub fn b() {}\n")
	writeFile(t, dir, "src/main.rs", "fn main() {\n    lib::a();\n}\n")

	n, err := CountCrate(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestCountCrate_MissingDir(t *testing.T) {
	_, err := CountCrate(context.Background(), filepath.Join(t.TempDir(), "gone"))
	require.Error(t, err)
}

const cfgSource = `fn keep() {}

#[cfg(test)]
mod tests {
    #[test]
    fn t() {}
}

#[cfg(feature = "x")]
fn gated() {}
`

func TestStripCfg(t *testing.T) {
	ctx := context.Background()

	out, n, err := StripCfg(ctx, []byte(cfgSource), []string{"test"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NotContains(t, string(out), "mod tests")
	assert.NotContains(t, string(out), "cfg(test)")
	assert.Contains(t, string(out), "fn keep()")
	assert.Contains(t, string(out), "fn gated()")

	out, n, err = StripCfg(ctx, []byte(cfgSource), []string{"test", `feature="x"`})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NotContains(t, string(out), "fn gated()")
}

func TestStripCfg_StructField(t *testing.T) {
	src := `struct S {
    a: u32,
    #[cfg(test)]
    b: u32,
    c: u32,
}
`
	out, n, err := StripCfg(context.Background(), []byte(src), []string{"test"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NotContains(t, string(out), "b: u32")
	assert.Contains(t, string(out), "a: u32")
	assert.Contains(t, string(out), "c: u32")
}

func TestStripCfg_StackedAttributes(t *testing.T) {
	src := "#[allow(dead_code)]\n#[cfg( test )]\n#[inline]\nfn helper() {}\n\nfn main() {}\n"

	out, n, err := StripCfg(context.Background(), []byte(src), []string{"test"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NotContains(t, string(out), "allow")
	assert.NotContains(t, string(out), "inline")
	assert.NotContains(t, string(out), "helper")
	assert.Contains(t, string(out), "fn main()")
}

func TestStripCfg_InnerAttributeGatesFile(t *testing.T) {
	out, n, err := StripCfg(context.Background(), []byte("#![cfg(test)]\n\nfn only_in_tests() {}\n"), []string{"test"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, out)
}

func TestStripCfg_NoMatch(t *testing.T) {
	src := []byte(cfgSource)

	out, n, err := StripCfg(context.Background(), src, []string{"windows"})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, src, out)

	out, n, err = StripCfg(context.Background(), src, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, src, out)
}

func TestStripCrate(t *testing.T) {
	dir := t.TempDir()
	lib := writeFile(t, dir, "src/lib.rs", cfgSource)
	plain := writeFile(t, dir, "src/plain.rs", "pub fn plain() {}\n")
	before, err := os.Stat(plain)
	require.NoError(t, err)

	n, err := StripCrate(context.Background(), dir, []string{"test"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	content, err := os.ReadFile(lib)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "mod tests")

	after, err := os.Stat(plain)
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime(), "unchanged files are not rewritten")

	// Stripping is idempotent
	n, err = StripCrate(context.Background(), dir, []string{"test"})
	require.NoError(t, err)
	assert.Zero(t, n)
}

const macroSource = `macro_rules! square {
    ($x:expr) => { $x * $x };
}

#[derive(Debug, Clone, serde::Serialize)]
struct Point { x: i32 }

#[tokio::main]
async fn main() {
    println!("{}", square!(2));
    let v = vec![1, 2];
}

#[proc_macro_derive(Builder)]
pub fn builder(input: TokenStream) -> TokenStream { input }

#[proc_macro]
pub fn make(input: TokenStream) -> TokenStream { input }

#[proc_macro_attribute]
pub fn route(attr: TokenStream, item: TokenStream) -> TokenStream { item }

#[allow(unused)]
#[rustfmt::skip]
fn f() {}
`

func TestAnalyzeMacros(t *testing.T) {
	stats, err := AnalyzeMacros(context.Background(), []byte(macroSource))
	require.NoError(t, err)

	assert.Equal(t, 1, stats.DeclarativeDefinitions)
	assert.Equal(t, 1, stats.ProceduralDefinitions)
	assert.Equal(t, 1, stats.DeriveDefinitions)
	assert.Equal(t, 1, stats.AttributeDefinitions)
	assert.Equal(t, 2, stats.Invocations, "println! and vec!; macros inside token trees are not parsed")
	assert.Equal(t, map[string]int{"Debug": 1, "Clone": 1, "Serialize": 1}, stats.DeriveUsage)
	assert.Equal(t, 1, stats.AttributeInvocations)
	assert.Equal(t, map[string]int{"tokio::main": 1}, stats.AttributeUsage)
}

func TestAnalyzeCrate(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "src/lib.rs", macroSource)
	writeFile(t, dir, "src/extra.rs", "#[derive(Debug)]\nstruct E;\nfn g() { assert!(true); }\n")

	stats, err := AnalyzeCrate(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Invocations)
	assert.Equal(t, 2, stats.DeriveUsage["Debug"])
}

func TestSplitAttribute(t *testing.T) {
	tests := []struct {
		text, name, args string
	}{
		{"derive(Debug, Clone)", "derive", "Debug, Clone"},
		{"tokio :: main", "tokio::main", ""},
		{`path = "x.rs"`, "path", ` "x.rs"`},
		{"unsafe(no_mangle)", "no_mangle", ""},
		{"serde(rename_all = \"camelCase\")", "serde", "rename_all = \"camelCase\""},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			name, args := splitAttribute(tt.text)
			if name != tt.name || args != tt.args {
				t.Errorf("splitAttribute(%q) = (%q, %q), want (%q, %q)", tt.text, name, args, tt.name, tt.args)
			}
		})
	}
}
