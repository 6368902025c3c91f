// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package list

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/glazedlists/glazedlists-sub004/services/sequence/change"
)

// BasicList is the root observable sequence, backed by a slice.
//
// Description:
//
//	A mutation made outside any transaction publishes one event of its
//	own. Inside a transaction opened with BeginEvent it records into that
//	transaction, so an insert later removed in the same transaction
//	cancels and the caller receives one net event at the outer commit.
//
// Thread Safety: NOT safe for concurrent use. Callers hold Lock().
type BasicList[T any] struct {
	data    []T
	lock    *change.Lock
	updates *change.Assembler[T]
	logger  *slog.Logger
}

// NewBasicList creates a list holding a copy of values.
//
// Inputs:
//   - values: Initial contents. No event is published for them.
//   - opts: Optional name, logger and lock.
//
// Outputs:
//   - *BasicList[T]: The list. Never nil.
func NewBasicList[T any](values []T, opts ...Option) *BasicList[T] {
	o := buildOptions("basic", opts)
	if o.lock == nil {
		o.lock = change.NewLock()
	}
	return &BasicList[T]{
		data:    slices.Clone(values),
		lock:    o.lock,
		updates: change.NewAssembler[T](change.WithName(o.name), change.WithLogger(o.logger)),
		logger:  o.logger.With(slog.String("component", "basic_list"), slog.String("sequence", o.name)),
	}
}

// Size returns the number of elements.
func (l *BasicList[T]) Size() int {
	return len(l.data)
}

// Get returns the element at index.
func (l *BasicList[T]) Get(index int) (T, error) {
	if err := change.CheckIndex(index, len(l.data)); err != nil {
		var zero T
		return zero, err
	}
	return l.data[index], nil
}

// IsWritable returns true.
func (l *BasicList[T]) IsWritable() bool {
	return true
}

// Lock returns the list's lock.
func (l *BasicList[T]) Lock() *change.Lock {
	return l.lock
}

// Updates returns the list's assembler.
func (l *BasicList[T]) Updates() *change.Assembler[T] {
	return l.updates
}

// AddListener registers a change listener.
func (l *BasicList[T]) AddListener(listener change.Listener[T]) string {
	return l.updates.AddListener(listener)
}

// RemoveListener removes a change listener.
func (l *BasicList[T]) RemoveListener(id string) bool {
	return l.updates.RemoveListener(id)
}

// BeginEvent opens a transaction on the list's assembler.
func (l *BasicList[T]) BeginEvent(buffered bool) {
	l.updates.BeginEvent(buffered)
}

// CommitEvent closes the innermost transaction.
func (l *BasicList[T]) CommitEvent() error {
	return l.updates.CommitEvent()
}

// DiscardEvent closes the innermost transaction without publishing it.
// Storage is not reverted.
func (l *BasicList[T]) DiscardEvent() error {
	return l.updates.DiscardEvent()
}

// Add inserts value at index.
func (l *BasicList[T]) Add(index int, value T) error {
	if err := change.CheckInsertionPoint(index, len(l.data)); err != nil {
		return err
	}
	l.data = slices.Insert(l.data, index, value)

	end := l.begin()
	l.updates.ElementInserted(index, value)
	return end()
}

// Append adds value at the end.
func (l *BasicList[T]) Append(value T) error {
	return l.Add(len(l.data), value)
}

// AddAll inserts values starting at index in one event.
func (l *BasicList[T]) AddAll(index int, values ...T) error {
	if err := change.CheckInsertionPoint(index, len(l.data)); err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}
	l.data = slices.Insert(l.data, index, values...)

	end := l.begin()
	for i, v := range values {
		l.updates.ElementInserted(index+i, v)
	}
	return end()
}

// Set replaces the element at index and returns the previous one.
func (l *BasicList[T]) Set(index int, value T) (T, error) {
	if err := change.CheckIndex(index, len(l.data)); err != nil {
		var zero T
		return zero, err
	}
	old := l.data[index]
	l.data[index] = value

	end := l.begin()
	l.updates.ElementUpdated(index, old, value)
	return old, end()
}

// Remove deletes the element at index and returns it.
func (l *BasicList[T]) Remove(index int) (T, error) {
	if err := change.CheckIndex(index, len(l.data)); err != nil {
		var zero T
		return zero, err
	}
	old := l.data[index]
	l.data = slices.Delete(l.data, index, index+1)

	end := l.begin()
	l.updates.ElementDeleted(index, old)
	return old, end()
}

// Clear removes every element in one event.
func (l *BasicList[T]) Clear() error {
	if len(l.data) == 0 {
		return nil
	}
	old := l.data
	l.data = nil

	end := l.begin()
	for i := len(old) - 1; i >= 0; i-- {
		l.updates.ElementDeleted(i, old[i])
	}
	return end()
}

// Reorder permutes the list. perm[i] is the current index of the element
// that moves to i.
//
// Outputs:
//   - error: change.ErrIllegalArgument if perm is not a permutation of the
//     list's indices.
func (l *BasicList[T]) Reorder(perm []int) error {
	if len(perm) != len(l.data) || !change.ValidPermutation(perm) {
		return fmt.Errorf("%w: invalid permutation of length %d for size %d",
			change.ErrIllegalArgument, len(perm), len(l.data))
	}
	next := make([]T, len(l.data))
	for i, from := range perm {
		next[i] = l.data[from]
	}
	l.data = next

	end := l.begin()
	l.updates.ElementsReordered(slices.Clone(perm), slices.Clone(next))
	return end()
}

// Sort stably sorts the list with cmp and publishes a reorder event.
func (l *BasicList[T]) Sort(cmp func(a, b T) int) error {
	perm := make([]int, len(l.data))
	for i := range perm {
		perm[i] = i
	}
	slices.SortStableFunc(perm, func(a, b int) int {
		return cmp(l.data[a], l.data[b])
	})
	if slices.IsSorted(perm) {
		return nil
	}
	l.logger.Debug("sorting", slog.Int("size", len(l.data)))
	return l.Reorder(perm)
}

// begin groups one mutation into an event. Inside an open transaction the
// mutation records straight into it, so it can coalesce with earlier changes.
func (l *BasicList[T]) begin() func() error {
	if l.updates.Depth() > 0 {
		return func() error { return nil }
	}
	l.updates.BeginEvent(true)
	return l.updates.CommitEvent
}

// Snapshot returns a copy of the contents.
func (l *BasicList[T]) Snapshot() []T {
	return slices.Clone(l.data)
}
