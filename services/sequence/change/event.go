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
	"fmt"
	"reflect"
	"strings"
)

// -----------------------------------------------------------------------------
// Kind
// -----------------------------------------------------------------------------

// Kind identifies the element-level operation a Block describes.
type Kind int

const (
	// Insert adds New at Index.
	Insert Kind = iota

	// Delete removes the element at Index; Old carries its value.
	Delete

	// Update replaces Old with New at Index.
	Update
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case Insert:
		return "insert"
	case Delete:
		return "delete"
	case Update:
		return "update"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Block
// -----------------------------------------------------------------------------

// Block is one element-level change within an Event.
type Block[T any] struct {
	// Index is the position in the index space produced by all earlier
	// blocks of the same event.
	Index int

	// Kind is the operation.
	Kind Kind

	// Old is the previous value for Delete and Update blocks.
	Old T

	// New is the new value for Insert and Update blocks.
	New T
}

// String returns a compact description such as "insert@3".
func (b Block[T]) String() string {
	return fmt.Sprintf("%s@%d", b.Kind, b.Index)
}

// -----------------------------------------------------------------------------
// Event
// -----------------------------------------------------------------------------

// Event describes one published transaction.
//
// Description:
//
//	Either Blocks or Reorder is meaningful. When Reorder is non-nil the
//	event is a pure permutation: the element now at index i was at index
//	Reorder[i] before the event, and Blocks is empty.
//
// Invariants:
//   - Blocks replay in order against the pre-event contents
//   - Reorder, when present, is a permutation of [0, len(Reorder))
//
// Events are immutable once published.
type Event[T any] struct {
	// Seq is the publication sequence number of the assembler, starting at 1.
	Seq uint64

	// Blocks are the element changes in replay order.
	Blocks []Block[T]

	// Reorder is the permutation of a reorder event, nil otherwise.
	Reorder []int
}

// IsReorder reports whether the event is a pure reorder.
func (e *Event[T]) IsReorder() bool {
	return e.Reorder != nil
}

// Len returns the number of blocks.
func (e *Event[T]) Len() int {
	return len(e.Blocks)
}

// Empty reports whether the event carries no change at all.
func (e *Event[T]) Empty() bool {
	return e.Reorder == nil && len(e.Blocks) == 0
}

// Replay applies the event to a copy of snapshot and returns the result.
//
// Description:
//
//	Implements the replay law: applying the blocks in order to the
//	pre-event contents yields the post-event contents. The input slice is
//	not modified.
//
// Inputs:
//   - snapshot: The sequence contents before the event.
//
// Outputs:
//   - []T: The contents after the event.
//   - error: ErrIndexOutOfBounds if a block does not fit the snapshot, or
//     ErrIllegalArgument if the reorder length does not match.
func (e *Event[T]) Replay(snapshot []T) ([]T, error) {
	out := make([]T, len(snapshot), len(snapshot)+len(e.Blocks))
	copy(out, snapshot)

	if e.Reorder != nil {
		if len(e.Reorder) != len(out) {
			return nil, fmt.Errorf("%w: reorder length %d, sequence length %d",
				ErrIllegalArgument, len(e.Reorder), len(out))
		}
		permuted := make([]T, len(out))
		for i, from := range e.Reorder {
			permuted[i] = out[from]
		}
		return permuted, nil
	}

	for n, b := range e.Blocks {
		switch b.Kind {
		case Insert:
			if err := CheckInsertionPoint(b.Index, len(out)); err != nil {
				return nil, fmt.Errorf("block %d: %w", n, err)
			}
			var zero T
			out = append(out, zero)
			copy(out[b.Index+1:], out[b.Index:])
			out[b.Index] = b.New
		case Delete:
			if err := CheckIndex(b.Index, len(out)); err != nil {
				return nil, fmt.Errorf("block %d: %w", n, err)
			}
			out = append(out[:b.Index], out[b.Index+1:]...)
		case Update:
			if err := CheckIndex(b.Index, len(out)); err != nil {
				return nil, fmt.Errorf("block %d: %w", n, err)
			}
			out[b.Index] = b.New
		}
	}
	return out, nil
}

// String returns a compact description for logs and test failures.
func (e *Event[T]) String() string {
	if e.Reorder != nil {
		return fmt.Sprintf("event#%d reorder%v", e.Seq, e.Reorder)
	}
	parts := make([]string, len(e.Blocks))
	for i, b := range e.Blocks {
		parts[i] = b.String()
	}
	return fmt.Sprintf("event#%d [%s]", e.Seq, strings.Join(parts, " "))
}

// -----------------------------------------------------------------------------
// Value identity
// -----------------------------------------------------------------------------

// Same reports whether a and b are the same value.
//
// Description:
//
//	Uses interface equality when the dynamic type is comparable, which is
//	reference identity for pointers. Values of non-comparable types
//	(slices, maps, functions) are never the same.
func Same[T any](a, b T) bool {
	va, vb := any(a), any(b)
	if va == nil || vb == nil {
		return va == nil && vb == nil
	}
	ta := reflect.TypeOf(va)
	if ta != reflect.TypeOf(vb) || !ta.Comparable() {
		return false
	}
	return va == vb
}

// InversePermutation returns inv such that inv[perm[i]] == i.
func InversePermutation(perm []int) []int {
	inv := make([]int, len(perm))
	for i, p := range perm {
		inv[p] = i
	}
	return inv
}

// ValidPermutation reports whether perm is a permutation of [0, len(perm)).
func ValidPermutation(perm []int) bool {
	seen := make([]bool, len(perm))
	for _, p := range perm {
		if p < 0 || p >= len(perm) || seen[p] {
			return false
		}
		seen[p] = true
	}
	return true
}
