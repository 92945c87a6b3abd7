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

// Package output writes --json renderings of cratescan commands.
//
// Documents go to stdout, pretty-printed with two-space indentation:
//
//	if err := output.JSON(status); err != nil {
//	    errors.FatalError(err, true)
//	}
//
// Ledger exports use JSONLines, one compact object per line, so they can
// be piped into jq or loaded line by line.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// JSON writes data to stdout as indented JSON.
func JSON(data any) error {
	return JSONTo(os.Stdout, data)
}

func JSONTo(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("JSON encoding failed: %w", err)
	}
	return nil
}

// JSONLines writes each row as one compact JSON line. It stops at the
// first encoding error.
func JSONLines[T any](w io.Writer, rows []T) error {
	enc := json.NewEncoder(w)
	for i, row := range rows {
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("JSON encoding failed at row %d: %w", i, err)
		}
	}
	return nil
}

// ErrorJSON is the fallback error document for errors that carry no
// structured context.
type ErrorJSON struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}

// JSONErrorTo writes err as an ErrorJSON document.
func JSONErrorTo(w io.Writer, err error, stage string) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(ErrorJSON{Error: err.Error(), Stage: stage}); encErr != nil {
		return fmt.Errorf("JSON error encoding failed: %w", encErr)
	}
	return nil
}
