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
	"sort"
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"
)

type byteRange struct {
	start, end uint32
}

// StripCfg removes every item gated by #[cfg(P)] where P is one of
// predicates, together with its attributes. An inner #![cfg(P)] at the top
// of the file empties the whole file. It returns the new content and the
// number of gated items removed.
//
// Predicates are compared with whitespace removed, so "test" matches
// #[cfg( test )] and `feature="std"` matches #[cfg(feature = "std")].
func StripCfg(ctx context.Context, content []byte, predicates []string) ([]byte, int, error) {
	if len(content) == 0 || len(predicates) == 0 {
		return content, 0, nil
	}

	gated := make(map[string]bool, len(predicates))
	for _, p := range predicates {
		gated["cfg("+squash(p)+")"] = true
	}

	tree, err := parse(ctx, content)
	if err != nil {
		return nil, 0, err
	}
	defer tree.Close()

	var ranges []byteRange
	removed := 0
	fileGated := false

	walk(tree.RootNode(), func(node *sitter.Node) bool {
		switch node.Type() {
		case "inner_attribute_item":
			if gated[squash(attributeText(node, content))] && node.Parent() != nil && node.Parent().Type() == "source_file" {
				fileGated = true
			}
			return false
		case "attribute_item":
			if !gated[squash(attributeText(node, content))] {
				return false
			}
			r := byteRange{start: firstAttribute(node).StartByte(), end: node.EndByte()}
			if target := gatedItem(node); target != nil {
				r.end = target.EndByte()
				if next := target.NextSibling(); next != nil && next.Type() == "," {
					r.end = next.EndByte()
				}
			}
			ranges = append(ranges, r)
			removed++
			return false
		}
		return true
	})

	if fileGated {
		return []byte{}, 1, nil
	}
	if len(ranges) == 0 {
		return content, 0, nil
	}
	return cut(content, ranges), removed, nil
}

// gatedItem returns the item an outer attribute applies to: the next named
// sibling that is neither another attribute nor a comment.
func gatedItem(attr *sitter.Node) *sitter.Node {
	for n := attr.NextNamedSibling(); n != nil; n = n.NextNamedSibling() {
		if n.Type() == "attribute_item" || isComment(n) {
			continue
		}
		return n
	}
	return nil
}

// firstAttribute walks back over the attributes stacked before attr.
func firstAttribute(attr *sitter.Node) *sitter.Node {
	first := attr
	for n := attr.PrevNamedSibling(); n != nil && n.Type() == "attribute_item"; n = n.PrevNamedSibling() {
		first = n
	}
	return first
}

// attributeText returns the text inside #[...] or #![...].
func attributeText(item *sitter.Node, content []byte) string {
	for i := 0; i < int(item.NamedChildCount()); i++ {
		child := item.NamedChild(i)
		if child.Type() == "attribute" {
			return child.Content(content)
		}
	}
	return ""
}

// cut removes ranges from content. Overlapping ranges are merged.
func cut(content []byte, ranges []byteRange) []byte {
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].start < ranges[j].start })

	var out []byte
	pos := uint32(0)
	for _, r := range ranges {
		if r.end <= pos {
			continue
		}
		if r.start > pos {
			out = append(out, content[pos:r.start]...)
		}
		pos = r.end
	}
	return append(out, content[pos:]...)
}

func squash(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// StripFile applies StripCfg to one file, rewriting it only if it changed.
func StripFile(ctx context.Context, path string, predicates []string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	stripped, n, err := StripCfg(ctx, content, predicates)
	if err != nil {
		return 0, fmt.Errorf("strip %s: %w", path, err)
	}
	if n == 0 {
		return 0, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	if err := os.WriteFile(path, stripped, info.Mode().Perm()); err != nil {
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	return n, nil
}

// StripCrate applies StripCfg to every source file of the crate in dir and
// returns the total number of removed items.
func StripCrate(ctx context.Context, dir string, predicates []string) (int, error) {
	files, err := SourceFiles(dir)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := StripFile(ctx, f, predicates)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
