// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package undo records the change events of a sequence as invertible edits
// and replays them backwards and forwards.
//
// A Support listens to one target sequence and turns every published event
// into an Edit: one AddEdit, RemoveEdit or UpdateEdit per block, a
// ReorderEdit for a permutation, and a CompositeEdit when an event carries
// more than one block. Edits are handed to an EditListener, normally a
// Manager, which keeps the undo stack.
//
// Replaying an edit mutates the target inside its own transaction, so
// listeners of the target observe each undo or redo as one ordinary event.
// The Support ignores the events its own replays produce.
package undo

import (
	"fmt"
	"strings"

	"github.com/glazedlists/glazedlists-sub004/services/sequence/change"
)

// Edit is one undoable unit of work.
//
// Invariants:
//   - Exactly one of CanUndo and CanRedo is true at any time.
//   - Undo and Redo return change.ErrIllegalState when not permitted.
type Edit interface {
	Undo() error
	Redo() error
	CanUndo() bool
	CanRedo() bool
	String() string
}

// EditListener receives edits as they are captured.
type EditListener interface {
	EditHappened(e Edit)
}

// EditListenerFunc adapts a function to EditListener.
type EditListenerFunc func(e Edit)

// EditHappened calls f(e).
func (f EditListenerFunc) EditHappened(e Edit) {
	f(e)
}

// ---- State machine ----

// state tracks the undo/redo toggle shared by every edit type.
type state struct {
	undone bool
}

func (s *state) CanUndo() bool { return !s.undone }
func (s *state) CanRedo() bool { return s.undone }

// toggle runs fn when the edit is in the wanted state and flips it on
// success.
func (s *state) toggle(undo bool, name string, fn func() error) error {
	if undo && s.undone {
		return fmt.Errorf("%w: %s cannot be undone", change.ErrIllegalState, name)
	}
	if !undo && !s.undone {
		return fmt.Errorf("%w: %s cannot be redone", change.ErrIllegalState, name)
	}
	if err := fn(); err != nil {
		return err
	}
	s.undone = undo
	return nil
}

// ---- Element edits ----

// AddEdit undoes an insert by removing the element again.
type AddEdit[T any] struct {
	state
	support *Support[T]
	index   int
	value   T
}

func (e *AddEdit[T]) Undo() error {
	return e.toggle(true, e.String(), func() error {
		return e.support.replay(func(t Target[T]) error {
			_, err := t.Remove(e.index)
			return err
		})
	})
}

func (e *AddEdit[T]) Redo() error {
	return e.toggle(false, e.String(), func() error {
		return e.support.replay(func(t Target[T]) error {
			return t.Add(e.index, e.value)
		})
	})
}

func (e *AddEdit[T]) String() string {
	return fmt.Sprintf("add@%d", e.index)
}

// RemoveEdit undoes a delete by inserting the removed element back.
type RemoveEdit[T any] struct {
	state
	support *Support[T]
	index   int
	value   T
}

func (e *RemoveEdit[T]) Undo() error {
	return e.toggle(true, e.String(), func() error {
		return e.support.replay(func(t Target[T]) error {
			return t.Add(e.index, e.value)
		})
	})
}

func (e *RemoveEdit[T]) Redo() error {
	return e.toggle(false, e.String(), func() error {
		return e.support.replay(func(t Target[T]) error {
			_, err := t.Remove(e.index)
			return err
		})
	})
}

func (e *RemoveEdit[T]) String() string {
	return fmt.Sprintf("remove@%d", e.index)
}

// UpdateEdit undoes a replacement by restoring the old element.
type UpdateEdit[T any] struct {
	state
	support  *Support[T]
	index    int
	old, new T
}

func (e *UpdateEdit[T]) Undo() error {
	return e.toggle(true, e.String(), func() error {
		return e.support.replay(func(t Target[T]) error {
			_, err := t.Set(e.index, e.old)
			return err
		})
	})
}

func (e *UpdateEdit[T]) Redo() error {
	return e.toggle(false, e.String(), func() error {
		return e.support.replay(func(t Target[T]) error {
			_, err := t.Set(e.index, e.new)
			return err
		})
	})
}

func (e *UpdateEdit[T]) String() string {
	return fmt.Sprintf("update@%d", e.index)
}

// ReorderEdit undoes a permutation by applying its inverse.
type ReorderEdit[T any] struct {
	state
	support *Support[T]
	perm    []int
}

func (e *ReorderEdit[T]) Undo() error {
	return e.toggle(true, e.String(), func() error {
		return e.support.replay(func(t Target[T]) error {
			return t.Reorder(change.InversePermutation(e.perm))
		})
	})
}

func (e *ReorderEdit[T]) Redo() error {
	return e.toggle(false, e.String(), func() error {
		return e.support.replay(func(t Target[T]) error {
			return t.Reorder(e.perm)
		})
	})
}

func (e *ReorderEdit[T]) String() string {
	return fmt.Sprintf("reorder%v", e.perm)
}

// ---- Composite ----

// CompositeEdit groups the edits of one event.
//
// Description:
//
//	Undo runs the children in reverse order and Redo in original order.
//	When built by a Support, the whole batch runs inside one transaction
//	on the target, so it is observed as a single event.
//
// Invariants:
//   - Each child keeps its own undo state. Undo and Redo toggle every
//     child together with the composite, so all of them agree after a
//     successful call.
type CompositeEdit struct {
	state
	edits []Edit
	batch func(func() error) error
}

// NewCompositeEdit groups edits. Each child is replayed separately.
func NewCompositeEdit(edits ...Edit) *CompositeEdit {
	return &CompositeEdit{edits: edits}
}

// Edits returns the children in original order.
func (c *CompositeEdit) Edits() []Edit {
	return c.edits
}

func (c *CompositeEdit) Undo() error {
	return c.toggle(true, "composite", func() error {
		return c.run(func() error {
			for i := len(c.edits) - 1; i >= 0; i-- {
				if err := c.edits[i].Undo(); err != nil {
					return fmt.Errorf("undo %s: %w", c.edits[i], err)
				}
			}
			return nil
		})
	})
}

func (c *CompositeEdit) Redo() error {
	return c.toggle(false, "composite", func() error {
		return c.run(func() error {
			for _, e := range c.edits {
				if err := e.Redo(); err != nil {
					return fmt.Errorf("redo %s: %w", e, err)
				}
			}
			return nil
		})
	})
}

func (c *CompositeEdit) run(fn func() error) error {
	if c.batch == nil {
		return fn()
	}
	return c.batch(fn)
}

func (c *CompositeEdit) String() string {
	parts := make([]string, len(c.edits))
	for i, e := range c.edits {
		parts[i] = e.String()
	}
	return "composite[" + strings.Join(parts, " ") + "]"
}
