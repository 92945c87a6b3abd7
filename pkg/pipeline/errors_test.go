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

package pipeline

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestItemFailure_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ItemFailure
		want string
	}{
		{"with item", &ItemFailure{Item: "o/r/c", Message: "boom"}, "o/r/c: boom"},
		{"without item", &ItemFailure{Message: "boom"}, "boom"},
		{"message from cause", NewItemFailure("o/r/c", "", errors.New("exit status 1")), "o/r/c: exit status 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFatal(t *testing.T) {
	assert.NoError(t, Fatal("x", nil))

	cause := errors.New("disk full")
	err := Fatal("expand-macros", cause)
	assert.True(t, IsFatal(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "stage expand-macros: disk full", err.Error())

	// Already fatal errors keep their original stage
	wrapped := fmt.Errorf("outer: %w", err)
	assert.Same(t, wrapped, Fatal("other", wrapped))
	assert.False(t, IsFatal(cause))
}

func TestFatalError_NoStage(t *testing.T) {
	err := &FatalError{Cause: errors.New("bad config")}
	assert.Equal(t, "fatal: bad config", err.Error())
}
