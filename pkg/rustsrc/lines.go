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

	sitter "github.com/smacker/go-tree-sitter"
)

// CountLines returns the number of lines in content that hold at least one
// code token. Blank lines and lines holding only comments are not counted.
func CountLines(ctx context.Context, content []byte) (int, error) {
	if len(content) == 0 {
		return 0, nil
	}

	tree, err := parse(ctx, content)
	if err != nil {
		return 0, err
	}
	defer tree.Close()

	rows := make(map[uint32]struct{})
	walk(tree.RootNode(), func(node *sitter.Node) bool {
		if isComment(node) {
			return false
		}
		if node.ChildCount() > 0 || node.StartByte() == node.EndByte() {
			return true
		}
		for r := node.StartPoint().Row; r <= node.EndPoint().Row; r++ {
			rows[r] = struct{}{}
		}
		return true
	})
	return len(rows), nil
}

// CountFile counts the code lines of one source file.
func CountFile(ctx context.Context, path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	n, err := CountLines(ctx, content)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", path, err)
	}
	return n, nil
}

// CountCrate sums the code lines of every source file of the crate in dir.
func CountCrate(ctx context.Context, dir string) (int, error) {
	files, err := SourceFiles(dir)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := CountFile(ctx, f)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
