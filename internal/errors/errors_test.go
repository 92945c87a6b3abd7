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

package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/cratescan/pkg/pipeline"
	"github.com/kraklabs/cratescan/pkg/stages"
	"github.com/kraklabs/cratescan/pkg/storage"
)

func TestUserError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *UserError
		want string
	}{
		{"with cause error", &UserError{Message: "Cannot save ledger", Err: fmt.Errorf("disk full")}, "Cannot save ledger: disk full"},
		{"message only", &UserError{Message: "Unknown metric"}, "Unknown metric"},
		{"empty message", &UserError{Err: fmt.Errorf("boom")}, ": boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExitCodes_Unique(t *testing.T) {
	codes := []int{ExitSuccess, ExitConfig, ExitStorage, ExitNetwork, ExitInput, ExitPermission, ExitNotFound, ExitInternal, ExitInterrupted}
	seen := map[int]bool{}
	for _, c := range codes {
		if seen[c] {
			t.Errorf("exit code %d used twice", c)
		}
		seen[c] = true
	}
}

func TestConstructors(t *testing.T) {
	cause := errors.New("underlying")
	tests := []struct {
		name    string
		err     *UserError
		code    int
		wrapped bool
	}{
		{"config", NewConfigError("m", "c", "f", cause), ExitConfig, true},
		{"storage", NewStorageError("m", "c", "f", cause), ExitStorage, true},
		{"network", NewNetworkError("m", "c", "f", cause), ExitNetwork, true},
		{"input", NewInputError("m", "c", "f"), ExitInput, false},
		{"permission", NewPermissionError("m", "c", "f", cause), ExitPermission, true},
		{"not found", NewNotFoundError("m", "c", "f"), ExitNotFound, false},
		{"internal", NewInternalError("m", "c", "f", cause), ExitInternal, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.ExitCode != tt.code {
				t.Errorf("ExitCode = %d, want %d", tt.err.ExitCode, tt.code)
			}
			if got := errors.Is(tt.err, cause); got != tt.wrapped {
				t.Errorf("errors.Is(cause) = %v, want %v", got, tt.wrapped)
			}
			if tt.err.Message != "m" || tt.err.Cause != "c" || tt.err.Fix != "f" {
				t.Errorf("fields not set: %+v", tt.err)
			}
		})
	}
}

func TestUserError_Format(t *testing.T) {
	err := NewStorageError("Cannot load ledger", "ledger.json truncated", "Run 'cratescan reset --yes --ledger'", nil)
	got := err.Format(true)
	want := "Error: Cannot load ledger\nCause: ledger.json truncated\nFix:   Run 'cratescan reset --yes --ledger'\n"
	if got != want {
		t.Errorf("Format() =\n%s\nwant\n%s", got, want)
	}

	bare := NewInputError("Missing stage name", "", "")
	if got := bare.Format(true); got != "Error: Missing stage name\n" {
		t.Errorf("Format() without cause and fix = %q", got)
	}
}

func TestUserError_ToJSON(t *testing.T) {
	err := NewNetworkError("Cannot list repositories", "rate limited", "", errors.New("403"))
	data, jerr := json.Marshal(err.ToJSON())
	require.NoError(t, jerr)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "Cannot list repositories", decoded["error"])
	assert.Equal(t, "rate limited", decoded["cause"])
	assert.NotContains(t, decoded, "fix")
	assert.EqualValues(t, ExitNetwork, decoded["exit_code"])
}

func TestFromPipeline(t *testing.T) {
	existing := NewConfigError("bad config", "", "", nil)

	tests := []struct {
		name     string
		err      error
		code     int
		contains string
	}{
		{"corrupt state", pipeline.Fatal("", fmt.Errorf("parse ledger: %w: eof", storage.ErrCorrupt)), ExitStorage, "Cannot load pipeline state"},
		{"cancelled", pipeline.Fatal(stages.ExpandMacros, context.Canceled), ExitInterrupted, "interrupted"},
		{"fetch stage", pipeline.Fatal(stages.FetchRepos, errors.New("dial tcp: timeout")), ExitNetwork, "GitHub"},
		{"other stage", pipeline.Fatal(stages.FindCrates, errors.New("permission denied")), ExitStorage, "find-crates"},
		{"plain error", errors.New("weird"), ExitInternal, "Pipeline failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromPipeline(tt.err)
			var ue *UserError
			require.True(t, errors.As(got, &ue))
			assert.Equal(t, tt.code, ue.ExitCode)
			assert.True(t, strings.Contains(ue.Message, tt.contains), "message %q", ue.Message)
			assert.ErrorIs(t, got, tt.err)
		})
	}

	assert.Nil(t, FromPipeline(nil))
	assert.Same(t, existing, FromPipeline(existing))
}

func TestFromPipeline_RootCause(t *testing.T) {
	err := pipeline.Fatal(stages.CloneRepos, fmt.Errorf("save ledger: %w", errors.New("no space left on device")))
	var ue *UserError
	require.True(t, errors.As(FromPipeline(err), &ue))
	assert.Equal(t, "no space left on device", ue.Cause)
}
