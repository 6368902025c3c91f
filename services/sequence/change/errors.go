// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package change

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by every sequence package.
var (
	// ErrIndexOutOfBounds is returned when an index argument is outside
	// [0, size), or outside [0, size] for insertion points.
	ErrIndexOutOfBounds = errors.New("index out of bounds")

	// ErrNotWritable is returned when a mutation is attempted on a view that
	// is not writable or has no reverse mapping for the operation.
	ErrNotWritable = errors.New("sequence is not writable")

	// ErrIllegalState is returned on protocol violations such as a commit
	// without a matching begin, or undo when nothing can be undone.
	ErrIllegalState = errors.New("illegal state")

	// ErrIllegalArgument is returned for nil or mismatched construction
	// arguments.
	ErrIllegalArgument = errors.New("illegal argument")
)

// CheckIndex returns ErrIndexOutOfBounds unless 0 <= index < size.
func CheckIndex(index, size int) error {
	if index < 0 || index >= size {
		return fmt.Errorf("%w: index %d not in [0,%d)", ErrIndexOutOfBounds, index, size)
	}
	return nil
}

// CheckInsertionPoint returns ErrIndexOutOfBounds unless 0 <= index <= size.
func CheckInsertionPoint(index, size int) error {
	if index < 0 || index > size {
		return fmt.Errorf("%w: insertion point %d not in [0,%d]", ErrIndexOutOfBounds, index, size)
	}
	return nil
}
