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

// Package errors provides user-facing errors for the cratescan CLI.
//
// A UserError carries three pieces of context: what went wrong, why it
// happened and how to fix it, plus the exit code the process should use.
//
//	err := errors.NewStorageError(
//	    "Cannot load pipeline checkpoint",
//	    "checkpoint.json is not valid JSON",
//	    "Run 'cratescan reset --yes' to start a new run",
//	    underlyingErr,
//	)
//	errors.FatalError(err, false)
//
// Rendered on a terminal:
//
//	Error: Cannot load pipeline checkpoint
//	Cause: checkpoint.json is not valid JSON
//	Fix:   Run 'cratescan reset --yes' to start a new run
//
// # Exit Codes
//
//   - ExitSuccess (0)
//   - ExitConfig (1): missing or invalid .cratescan/config.yaml
//   - ExitStorage (2): checkpoint or ledger unreadable or unwritable
//   - ExitNetwork (3): GitHub API or git transport failures
//   - ExitInput (4): bad arguments
//   - ExitPermission (5)
//   - ExitNotFound (6): workspace or crate not found
//   - ExitInternal (10): bugs
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/kraklabs/cratescan/pkg/pipeline"
	"github.com/kraklabs/cratescan/pkg/stages"
	"github.com/kraklabs/cratescan/pkg/storage"
)

// Exit codes by error category.
const (
	ExitSuccess    = 0
	ExitConfig     = 1
	ExitStorage    = 2
	ExitNetwork    = 3
	ExitInput      = 4
	ExitPermission = 5
	ExitNotFound   = 6

	// ExitInternal signals a bug that should be reported.
	ExitInternal = 10

	// ExitInterrupted follows the shell convention for SIGINT.
	ExitInterrupted = 130
)

// UserError is an error with a message, a cause and a suggested fix.
type UserError struct {
	Message  string
	Cause    string
	Fix      string
	ExitCode int

	// Err is the wrapped error, if any.
	Err error
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *UserError) Unwrap() error {
	return e.Err
}

func newError(code int, msg, cause, fix string, err error) *UserError {
	return &UserError{Message: msg, Cause: cause, Fix: fix, ExitCode: code, Err: err}
}

// NewConfigError reports a missing or invalid configuration.
func NewConfigError(msg, cause, fix string, err error) *UserError {
	return newError(ExitConfig, msg, cause, fix, err)
}

// NewStorageError reports a checkpoint or ledger that could not be read or written.
func NewStorageError(msg, cause, fix string, err error) *UserError {
	return newError(ExitStorage, msg, cause, fix, err)
}

// NewNetworkError reports a failure talking to GitHub or a git remote.
func NewNetworkError(msg, cause, fix string, err error) *UserError {
	return newError(ExitNetwork, msg, cause, fix, err)
}

// NewInputError reports invalid arguments. Input errors never wrap.
func NewInputError(msg, cause, fix string) *UserError {
	return newError(ExitInput, msg, cause, fix, nil)
}

func NewPermissionError(msg, cause, fix string, err error) *UserError {
	return newError(ExitPermission, msg, cause, fix, err)
}

func NewNotFoundError(msg, cause, fix string) *UserError {
	return newError(ExitNotFound, msg, cause, fix, nil)
}

// NewInternalError reports a bug.
func NewInternalError(msg, cause, fix string, err error) *UserError {
	return newError(ExitInternal, msg, cause, fix, err)
}

// FromPipeline maps an error returned by the pipeline engine to a UserError.
// Nil stays nil and an existing UserError is returned unchanged.
func FromPipeline(err error) error {
	if err == nil {
		return nil
	}
	var ue *UserError
	if stderrors.As(err, &ue) {
		return ue
	}

	stage := ""
	var fe *pipeline.FatalError
	if stderrors.As(err, &fe) {
		stage = fe.Stage
	}

	switch {
	case stderrors.Is(err, context.Canceled):
		return newError(ExitInterrupted,
			"Pipeline interrupted",
			stageCause(stage, "the run was cancelled before the stage finished"),
			"Run 'cratescan run' again to resume from the last completed stage",
			err)
	case stderrors.Is(err, storage.ErrCorrupt):
		return NewStorageError(
			"Cannot load pipeline state",
			"the checkpoint or ledger file is not valid JSON",
			"Inspect .cratescan/data or run 'cratescan reset --yes' to start over",
			err)
	case stage == stages.FetchRepos:
		return NewNetworkError(
			"Cannot list repositories from GitHub",
			stageCause(stage, rootCause(err)),
			"Check network access and set GITHUB_TOKEN to raise the rate limit",
			err)
	case stage != "":
		return NewStorageError(
			fmt.Sprintf("Stage %s failed", stage),
			rootCause(err),
			"Fix the cause and run 'cratescan run' again; completed stages are skipped",
			err)
	}
	return NewInternalError("Pipeline failed", rootCause(err), "", err)
}

func stageCause(stage, cause string) string {
	if stage == "" {
		return cause
	}
	return fmt.Sprintf("%s (stage %s)", cause, stage)
}

func rootCause(err error) string {
	for {
		next := stderrors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

var (
	colorError = color.New(color.FgRed, color.Bold)
	colorCause = color.New(color.FgYellow)
	colorFix   = color.New(color.FgGreen)
)

// Format renders the error for a terminal. Empty Cause and Fix lines are
// omitted. Colors are off when noColor is set or NO_COLOR is present.
func (e *UserError) Format(noColor bool) string {
	saved := color.NoColor
	defer func() { color.NoColor = saved }()
	if noColor || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}

	var out strings.Builder
	out.WriteString(colorError.Sprint("Error: "))
	out.WriteString(e.Message)
	out.WriteString("\n")
	if e.Cause != "" {
		out.WriteString(colorCause.Sprint("Cause: "))
		out.WriteString(e.Cause)
		out.WriteString("\n")
	}
	if e.Fix != "" {
		out.WriteString(colorFix.Sprint("Fix:   "))
		out.WriteString(e.Fix)
		out.WriteString("\n")
	}
	return out.String()
}

// ErrorJSON is the --json rendering of a UserError.
type ErrorJSON struct {
	Error    string `json:"error"`
	Cause    string `json:"cause,omitempty"`
	Fix      string `json:"fix,omitempty"`
	ExitCode int    `json:"exit_code"`
}

func (e *UserError) ToJSON() ErrorJSON {
	return ErrorJSON{Error: e.Message, Cause: e.Cause, Fix: e.Fix, ExitCode: e.ExitCode}
}

// FatalError prints err to stderr and exits. Errors that are not a
// UserError exit with ExitInternal.
func FatalError(err error, jsonOutput bool) {
	if err == nil {
		return
	}
	var ue *UserError
	if stderrors.As(err, &ue) {
		if jsonOutput {
			enc := json.NewEncoder(os.Stderr)
			enc.SetIndent("", "  ")
			_ = enc.Encode(ue.ToJSON())
		} else {
			fmt.Fprint(os.Stderr, ue.Format(false))
		}
		os.Exit(ue.ExitCode)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(ExitInternal)
}
