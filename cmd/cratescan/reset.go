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
	"os"

	"github.com/kraklabs/cratescan/internal/bootstrap"
	"github.com/kraklabs/cratescan/internal/errors"
	"github.com/kraklabs/cratescan/internal/output"
	"github.com/kraklabs/cratescan/internal/ui"
)

// runReset executes the 'reset' command. Without --ledger the next run
// starts over at fetch-repos but keeps existing crate records until the
// stages overwrite them; with --ledger every result is discarded. Clones
// are always kept.
func runReset(args []string, globals GlobalFlags) {
	fs := newFlagSet("reset", "--yes [options]",
		"Deletes the checkpoint so the next run starts from the first stage.\nCloned repositories are kept.",
		"  cratescan reset --yes\n  cratescan reset --yes --ledger")
	confirm := fs.Bool("yes", false, "Confirm the reset (required)")
	withLedger := fs.Bool("ledger", false, "Also delete the result ledger")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if !*confirm {
		errors.FatalError(errors.NewInputError(
			"Reset not confirmed",
			"reset deletes pipeline state and cannot be undone",
			"Pass --yes to confirm"), globals.JSON)
	}

	cfg := loadConfigOrExit(globals)
	ws, err := bootstrap.OpenWorkspace(cfg.ResolvedDataDir(), nil)
	if err != nil {
		errors.FatalError(errors.NewNotFoundError("Workspace not initialised", err.Error(), "Nothing to reset"), globals.JSON)
	}

	lock := NewRunLock(ws.LockPath)
	ok, err := lock.TryAcquire()
	if err != nil {
		errors.FatalError(errors.NewPermissionError("Cannot take the run lock", err.Error(), "", err), globals.JSON)
	}
	if !ok {
		errors.FatalError(errors.NewInputError(
			"Pipeline is running",
			"a run holds the lock on this data directory",
			"Stop the run before resetting"), globals.JSON)
	}
	defer lock.Release()

	removed, err := ws.Reset(*withLedger)
	if err != nil {
		lock.Release()
		errors.FatalError(errors.NewStorageError("Reset failed", err.Error(), "Check permissions on the data directory", err), globals.JSON)
	}
	if globals.JSON {
		if removed == nil {
			removed = []string{}
		}
		if err := output.JSON(map[string][]string{"removed": removed}); err != nil {
			errors.FatalError(err, true)
		}
		return
	}
	if len(removed) == 0 {
		ui.Info("Nothing to reset")
		return
	}
	for _, p := range removed {
		fmt.Printf("  removed %s\n", ui.DimText(p))
	}
	ui.Success("Reset complete")
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  cratescan run    Start a new run")
}
