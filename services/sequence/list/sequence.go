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
	"log/slog"

	"github.com/glazedlists/glazedlists-sub004/services/sequence/change"
)

// Sequence is an observable list.
//
// Description:
//
//	Every implementation publishes a change.Event for each committed
//	mutation. Indices are zero-based. Mutations return
//	change.ErrNotWritable when the sequence does not accept them and
//	change.ErrIndexOutOfBounds for bad indices.
type Sequence[T any] interface {
	// Size returns the number of elements.
	Size() int

	// Get returns the element at index.
	Get(index int) (T, error)

	// Add inserts value so that it ends up at index.
	Add(index int, value T) error

	// Set replaces the element at index and returns the previous one.
	Set(index int, value T) (T, error)

	// Remove deletes the element at index and returns it.
	Remove(index int) (T, error)

	// IsWritable reports whether Add, Set and Remove are supported.
	IsWritable() bool

	// Lock returns the lock shared with every view of this sequence.
	Lock() *change.Lock

	// AddListener registers l and returns its registration id.
	AddListener(l change.Listener[T]) string

	// RemoveListener removes a registration.
	RemoveListener(id string) bool
}

// -----------------------------------------------------------------------------
// Options
// -----------------------------------------------------------------------------

type options struct {
	name   string
	logger *slog.Logger
	lock   *change.Lock
}

// Option configures a list or view.
type Option func(*options)

// WithName names the sequence in log records.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLock sets the lock.
//
// A root list uses it instead of allocating its own, so several roots can
// share one lock. A view requires it to be its source's lock.
func WithLock(lock *change.Lock) Option {
	return func(o *options) {
		o.lock = lock
	}
}

func buildOptions(defaultName string, opts []Option) options {
	o := options{name: defaultName}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// Snapshot copies the contents of any sequence.
func Snapshot[T any](s Sequence[T]) []T {
	out := make([]T, 0, s.Size())
	for i := 0; i < s.Size(); i++ {
		v, err := s.Get(i)
		if err != nil {
			break
		}
		out = append(out, v)
	}
	return out
}
