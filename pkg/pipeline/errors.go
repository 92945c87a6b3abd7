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
)

// ItemFailure reports that the work for a single item failed. It is
// recoverable: the failure is recorded and the batch continues.
type ItemFailure struct {
	Item    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ItemFailure) Error() string {
	if e.Item == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Item, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ItemFailure) Unwrap() error {
	return e.Err
}

// NewItemFailure builds an ItemFailure from a message and optional cause.
func NewItemFailure(item, message string, err error) *ItemFailure {
	if message == "" && err != nil {
		message = err.Error()
	}
	return &ItemFailure{Item: item, Message: message, Err: err}
}

// FatalError aborts the pipeline. The stage that produced it is not
// checkpointed.
type FatalError struct {
	Stage string
	Cause error
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("fatal: %v", e.Cause)
	}
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *FatalError) Unwrap() error {
	return e.Cause
}

// Fatal wraps err as a FatalError for stage. An error that already is a
// FatalError is returned unchanged.
func Fatal(stage string, err error) error {
	if err == nil {
		return nil
	}
	var fe *FatalError
	if errors.As(err, &fe) {
		return err
	}
	return &FatalError{Stage: stage, Cause: err}
}

// IsFatal reports whether err is or wraps a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// asItemFailure converts a task error into an ItemFailure for item.
func asItemFailure(item string, err error) *ItemFailure {
	var f *ItemFailure
	if errors.As(err, &f) {
		if f.Item == "" {
			f.Item = item
		}
		return f
	}
	return NewItemFailure(item, err.Error(), err)
}
