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

	"github.com/glazedlists/glazedlists-sub004/services/sequence/change"
)

// Hook reacts to one source event.
//
// It runs inside the view's own BeginEvent/CommitEvent pair. It updates
// the view's index structures and reports the translated changes to
// View.Updates().
type Hook[T any] func(ev *change.Event[T]) error

// ViewConfig describes a TransformView.
type ViewConfig[T any] struct {
	// Writable enables Add, Set and Remove.
	Writable bool

	// Hook handles source events. Nil forwards every event unchanged,
	// which is only correct for the identity mapping.
	Hook Hook[T]

	// Add replaces the default write-through insert.
	Add func(index int, value T) error

	// Remove replaces the default write-through removal.
	Remove func(index int) (T, error)
}

// TransformView is a Sequence derived from one source through a Mapping.
//
// Description:
//
//	Reads translate the index through the mapping and delegate to the
//	source. Writes do the same when the view is writable. Source events
//	reach the hook, whose output the view publishes from its own
//	assembler as one event per source event.
//
// Invariants:
//   - view.Get(i) == source.Get(mapping.ToSource(i)) for i in [0, Size())
//
// Thread Safety: NOT safe for concurrent use. Callers hold Lock().
type TransformView[T any] struct {
	source  Sequence[T]
	mapping Mapping
	cfg     ViewConfig[T]
	updates *change.Assembler[T]
	logger  *slog.Logger

	listenerID string
}

// NewTransformView creates a view that listens to source.
//
// Inputs:
//   - source: The source sequence. Must not be nil.
//   - mapping: The index translation.
//   - cfg: Writability, hook and write overrides.
//   - opts: Optional name, logger, lock.
//
// Outputs:
//   - *TransformView[T]: The view.
//   - error: change.ErrIllegalArgument for a nil source,
//     change.ErrIllegalState if WithLock names a lock other than the
//     source's.
func NewTransformView[T any](source Sequence[T], mapping Mapping, cfg ViewConfig[T], opts ...Option) (*TransformView[T], error) {
	v, err := newView(source, mapping, cfg, opts)
	if err != nil {
		return nil, err
	}
	v.listenerID = source.AddListener(change.ListenerFunc[T](v.sourceChanged))
	return v, nil
}

// NewDerivedView creates a view that does not listen to its source. Its
// owner reports changes through Updates().
func NewDerivedView[T any](source Sequence[T], mapping Mapping, cfg ViewConfig[T], opts ...Option) (*TransformView[T], error) {
	return newView(source, mapping, cfg, opts)
}

func newView[T any](source Sequence[T], mapping Mapping, cfg ViewConfig[T], opts []Option) (*TransformView[T], error) {
	if source == nil {
		return nil, fmt.Errorf("%w: nil source", change.ErrIllegalArgument)
	}
	o := buildOptions("view", opts)
	if o.lock != nil && o.lock != source.Lock() {
		return nil, fmt.Errorf("%w: view lock differs from source lock", change.ErrIllegalState)
	}
	return &TransformView[T]{
		source:  source,
		mapping: mapping,
		cfg:     cfg,
		updates: change.NewAssembler[T](change.WithName(o.name), change.WithLogger(o.logger)),
		logger: o.logger.With(
			slog.String("component", "transform_view"),
			slog.String("sequence", o.name),
			slog.String("mapping", mapping.Kind().String()),
		),
	}, nil
}

// Source returns the source sequence.
func (v *TransformView[T]) Source() Sequence[T] {
	return v.source
}

// Mapping returns the index translation.
func (v *TransformView[T]) Mapping() Mapping {
	return v.mapping
}

// Updates returns the view's assembler.
func (v *TransformView[T]) Updates() *change.Assembler[T] {
	return v.updates
}

// Size returns the number of elements visible through the mapping.
func (v *TransformView[T]) Size() int {
	return v.mapping.Size(v.source.Size())
}

// Get returns the element at view index.
func (v *TransformView[T]) Get(index int) (T, error) {
	if err := change.CheckIndex(index, v.Size()); err != nil {
		var zero T
		return zero, err
	}
	return v.source.Get(v.mapping.ToSource(index))
}

// SourceIndex translates a view index to a source index.
func (v *TransformView[T]) SourceIndex(index int) (int, error) {
	if err := change.CheckIndex(index, v.Size()); err != nil {
		return -1, err
	}
	return v.mapping.ToSource(index), nil
}

// IsWritable reports whether writes are enabled.
func (v *TransformView[T]) IsWritable() bool {
	return v.cfg.Writable
}

// Lock returns the source's lock.
func (v *TransformView[T]) Lock() *change.Lock {
	return v.source.Lock()
}

// AddListener registers a change listener on the view.
func (v *TransformView[T]) AddListener(l change.Listener[T]) string {
	return v.updates.AddListener(l)
}

// RemoveListener removes a change listener from the view.
func (v *TransformView[T]) RemoveListener(id string) bool {
	return v.updates.RemoveListener(id)
}

// Add inserts value so that it appears at view index.
func (v *TransformView[T]) Add(index int, value T) error {
	if !v.cfg.Writable {
		return fmt.Errorf("%w: add on read-only view", change.ErrNotWritable)
	}
	if err := change.CheckInsertionPoint(index, v.Size()); err != nil {
		return err
	}
	if v.cfg.Add != nil {
		return v.cfg.Add(index, value)
	}
	return v.source.Add(v.mapping.InsertionPoint(index, v.source.Size()), value)
}

// Set replaces the element at view index.
func (v *TransformView[T]) Set(index int, value T) (T, error) {
	var zero T
	if !v.cfg.Writable {
		return zero, fmt.Errorf("%w: set on read-only view", change.ErrNotWritable)
	}
	if err := change.CheckIndex(index, v.Size()); err != nil {
		return zero, err
	}
	return v.source.Set(v.mapping.ToSource(index), value)
}

// Remove deletes the element at view index.
func (v *TransformView[T]) Remove(index int) (T, error) {
	var zero T
	if !v.cfg.Writable {
		return zero, fmt.Errorf("%w: remove on read-only view", change.ErrNotWritable)
	}
	if err := change.CheckIndex(index, v.Size()); err != nil {
		return zero, err
	}
	if v.cfg.Remove != nil {
		return v.cfg.Remove(index)
	}
	return v.source.Remove(v.mapping.ToSource(index))
}

// Dispose stops listening to the source. The view must not be used
// afterwards.
func (v *TransformView[T]) Dispose() {
	if v.listenerID != "" {
		v.source.RemoveListener(v.listenerID)
		v.listenerID = ""
	}
}

// sourceChanged wraps the hook in the view's own transaction.
func (v *TransformView[T]) sourceChanged(ev *change.Event[T]) {
	v.updates.BeginEvent(true)
	if err := v.handle(ev); err != nil {
		v.logger.Error("source event not applied",
			slog.Uint64("seq", ev.Seq),
			slog.String("error", err.Error()),
		)
	}
	if err := v.updates.CommitEvent(); err != nil {
		v.logger.Error("commit failed", slog.String("error", err.Error()))
	}
}

func (v *TransformView[T]) handle(ev *change.Event[T]) error {
	if v.cfg.Hook != nil {
		return v.cfg.Hook(ev)
	}
	v.forward(ev)
	return nil
}

// forward reports every change of ev unchanged. Identity mapping only.
func (v *TransformView[T]) forward(ev *change.Event[T]) {
	if ev.IsReorder() {
		v.updates.ElementsReordered(ev.Reorder, Snapshot(v.source))
		return
	}
	for _, b := range ev.Blocks {
		switch b.Kind {
		case change.Insert:
			v.updates.ElementInserted(b.Index, b.New)
		case change.Delete:
			v.updates.ElementDeleted(b.Index, b.Old)
		case change.Update:
			v.updates.ElementUpdated(b.Index, b.Old, b.New)
		}
	}
}
