// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package selection

import (
	"fmt"

	"github.com/glazedlists/glazedlists-sub004/services/sequence/barcode"
	"github.com/glazedlists/glazedlists-sub004/services/sequence/change"
	"github.com/glazedlists/glazedlists-sub004/services/sequence/list"
)

// Selected returns the view of selected elements.
//
// Set and Remove write through to the source. Add returns
// change.ErrNotWritable since an added element would not be selected.
func (s *Selection[T]) Selected() (*list.TransformView[T], error) {
	if s.selectedView == nil {
		v, err := s.newView(selected, "selected", list.ViewConfig[T]{
			Writable: true,
			Add:      rejectAdd[T],
		})
		if err != nil {
			return nil, err
		}
		s.selectedView = v
	}
	return s.selectedView, nil
}

// Deselected returns the view of deselected elements. Writes behave as in
// Selected.
func (s *Selection[T]) Deselected() (*list.TransformView[T], error) {
	if s.deselectedView == nil {
		v, err := s.newView(deselected, "deselected", list.ViewConfig[T]{
			Writable: true,
			Add:      rejectAdd[T],
		})
		if err != nil {
			return nil, err
		}
		s.deselectedView = v
	}
	return s.deselectedView, nil
}

// TogglingSelected returns a view of selected elements whose writes edit
// the selection: Remove deselects, Add selects the given element, which
// must currently be deselected.
func (s *Selection[T]) TogglingSelected() (*list.TransformView[T], error) {
	if s.togglingSelectedView == nil {
		v, err := s.newView(selected, "toggling_selected", list.ViewConfig[T]{
			Writable: true,
			Add: func(_ int, value T) error {
				return s.toggleValue(value, deselected)
			},
			Remove: func(index int) (T, error) {
				return s.toggleIndex(index, selected)
			},
		})
		if err != nil {
			return nil, err
		}
		s.togglingSelectedView = v
	}
	return s.togglingSelectedView, nil
}

// TogglingDeselected returns a view of deselected elements whose writes
// edit the selection: Remove selects, Add deselects the given element,
// which must currently be selected.
func (s *Selection[T]) TogglingDeselected() (*list.TransformView[T], error) {
	if s.togglingDeselectedView == nil {
		v, err := s.newView(deselected, "toggling_deselected", list.ViewConfig[T]{
			Writable: true,
			Add: func(_ int, value T) error {
				return s.toggleValue(value, selected)
			},
			Remove: func(index int) (T, error) {
				return s.toggleIndex(index, deselected)
			},
		})
		if err != nil {
			return nil, err
		}
		s.togglingDeselectedView = v
	}
	return s.togglingDeselectedView, nil
}

func (s *Selection[T]) newView(c barcode.Color, name string, cfg list.ViewConfig[T]) (*list.TransformView[T], error) {
	return list.NewDerivedView(s.source, list.BarcodeMapping(s.bar, c), cfg,
		list.WithName(s.name+"."+name),
		list.WithLogger(s.logger),
	)
}

func rejectAdd[T any](int, T) error {
	return fmt.Errorf("%w: add to a selection view", change.ErrNotWritable)
}

// toggleIndex flips the element at rank index of color c.
func (s *Selection[T]) toggleIndex(index int, c barcode.Color) (T, error) {
	src := s.bar.ToAbsolute(index, c)
	v, err := s.source.Get(src)
	if err != nil {
		return v, err
	}
	if c == selected {
		return v, s.Deselect(src, src)
	}
	return v, s.Select(src, src)
}

// toggleValue finds value among the cells of color c and flips it.
func (s *Selection[T]) toggleValue(value T, c barcode.Color) error {
	for k := 0; k < s.bar.Count(c); k++ {
		src := s.bar.ToAbsolute(k, c)
		v, err := s.source.Get(src)
		if err != nil {
			return err
		}
		if !change.Same(v, value) {
			continue
		}
		if c == selected {
			return s.Deselect(src, src)
		}
		return s.Select(src, src)
	}
	return fmt.Errorf("%w: element not in the %s set", change.ErrIllegalArgument, colorName(c))
}

// views returns the live views.
func (s *Selection[T]) views() []*list.TransformView[T] {
	var out []*list.TransformView[T]
	for _, v := range []*list.TransformView[T]{
		s.selectedView, s.deselectedView, s.togglingSelectedView, s.togglingDeselectedView,
	} {
		if v != nil {
			out = append(out, v)
		}
	}
	return out
}

// viewsOf returns the live views over color c.
func (s *Selection[T]) viewsOf(c barcode.Color) []*list.TransformView[T] {
	pair := [2]*list.TransformView[T]{s.deselectedView, s.togglingDeselectedView}
	if c == selected {
		pair = [2]*list.TransformView[T]{s.selectedView, s.togglingSelectedView}
	}
	out := make([]*list.TransformView[T], 0, 2)
	for _, v := range pair {
		if v != nil {
			out = append(out, v)
		}
	}
	return out
}

func (s *Selection[T]) emitInserted(c barcode.Color, rank int, v T) {
	for _, view := range s.viewsOf(c) {
		view.Updates().ElementInserted(rank, v)
	}
}

func (s *Selection[T]) emitDeleted(c barcode.Color, rank int, old T) {
	for _, view := range s.viewsOf(c) {
		view.Updates().ElementDeleted(rank, old)
	}
}

func (s *Selection[T]) emitUpdated(c barcode.Color, rank int, old, v T) {
	for _, view := range s.viewsOf(c) {
		view.Updates().ElementUpdated(rank, old, v)
	}
}

func (s *Selection[T]) emitReordered(c barcode.Color, perm []int, after []T) {
	for _, view := range s.viewsOf(c) {
		view.Updates().ElementsReordered(perm, after)
	}
}
