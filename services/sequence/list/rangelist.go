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
	"errors"
	"fmt"
	"log/slog"

	"github.com/glazedlists/glazedlists-sub004/services/sequence/change"
)

// RangeList is a writable view of a contiguous window of its source.
//
// Description:
//
//	The window [start, end) follows the elements it covers: inserts and
//	deletes before it shift it, inserts inside it (including at start and
//	at end) and deletes inside it resize it. A source reorder replaces the
//	view contents.
//
// Thread Safety: NOT safe for concurrent use. Callers hold Lock().
type RangeList[T any] struct {
	*TransformView[T]

	window *Window
	logger *slog.Logger
}

// NewRangeList creates a view of source[start:end].
//
// Outputs:
//   - *RangeList[T]: The view.
//   - error: change.ErrIndexOutOfBounds unless 0 <= start <= end <= size.
func NewRangeList[T any](source Sequence[T], start, end int, opts ...Option) (*RangeList[T], error) {
	if source == nil {
		return nil, fmt.Errorf("%w: nil source", change.ErrIllegalArgument)
	}
	if err := checkRange(start, end, source.Size()); err != nil {
		return nil, err
	}
	r := &RangeList[T]{window: &Window{Start: start, End: end}}

	opts = append([]Option{WithName("range")}, opts...)
	view, err := NewTransformView(source, WindowMapping(r.window), ViewConfig[T]{
		Writable: true,
		Hook:     r.sourceChanged,
	}, opts...)
	if err != nil {
		return nil, err
	}
	r.TransformView = view
	r.logger = buildOptions("range", opts).logger.With(slog.String("component", "range_list"))
	return r, nil
}

// Range returns the current window in source coordinates.
func (r *RangeList[T]) Range() (start, end int) {
	return r.window.Start, r.window.End
}

// SetRange moves the window and publishes the change as one event.
func (r *RangeList[T]) SetRange(start, end int) error {
	if err := checkRange(start, end, r.Source().Size()); err != nil {
		return err
	}
	a := r.Updates()
	a.BeginEvent(true)
	if err := r.replace(func() { r.window.Start, r.window.End = start, end }); err != nil {
		return errors.Join(err, a.DiscardEvent())
	}
	r.logger.Debug("range changed", slog.Int("start", start), slog.Int("end", end))
	return a.CommitEvent()
}

// replace reports the current contents deleted, applies move, then
// reports the new contents inserted.
func (r *RangeList[T]) replace(move func()) error {
	a := r.Updates()
	for i := r.window.End - 1; i >= r.window.Start; i-- {
		v, err := r.Source().Get(i)
		if err != nil {
			return err
		}
		a.ElementDeleted(i-r.window.Start, v)
	}
	move()
	for i := r.window.Start; i < r.window.End; i++ {
		v, err := r.Source().Get(i)
		if err != nil {
			return err
		}
		a.ElementInserted(i-r.window.Start, v)
	}
	return nil
}

func (r *RangeList[T]) sourceChanged(ev *change.Event[T]) error {
	if ev.IsReorder() {
		return r.reordered(ev.Reorder)
	}
	w := r.window
	a := r.Updates()
	for _, b := range ev.Blocks {
		switch b.Kind {
		case change.Insert:
			switch {
			case b.Index < w.Start:
				w.Start++
				w.End++
			case b.Index <= w.End:
				w.End++
				a.ElementInserted(b.Index-w.Start, b.New)
			}
		case change.Delete:
			switch {
			case b.Index < w.Start:
				w.Start--
				w.End--
			case b.Index < w.End:
				w.End--
				a.ElementDeleted(b.Index-w.Start, b.Old)
			}
		case change.Update:
			if b.Index >= w.Start && b.Index < w.End {
				a.ElementUpdated(b.Index-w.Start, b.Old, b.New)
			}
		}
	}
	return nil
}

// reordered replaces the view contents. The window keeps its bounds.
func (r *RangeList[T]) reordered(perm []int) error {
	w := r.window
	inv := change.InversePermutation(perm)
	a := r.Updates()
	for i := w.End - 1; i >= w.Start; i-- {
		// The element that was at i before the reorder is now at inv[i].
		v, err := r.Source().Get(inv[i])
		if err != nil {
			return err
		}
		a.ElementDeleted(i-w.Start, v)
	}
	for i := w.Start; i < w.End; i++ {
		v, err := r.Source().Get(i)
		if err != nil {
			return err
		}
		a.ElementInserted(i-w.Start, v)
	}
	return nil
}

func checkRange(start, end, size int) error {
	if start < 0 || end < start || end > size {
		return fmt.Errorf("%w: range [%d,%d) for size %d", change.ErrIndexOutOfBounds, start, end, size)
	}
	return nil
}
