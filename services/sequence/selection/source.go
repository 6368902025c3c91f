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
	"log/slog"

	"github.com/glazedlists/glazedlists-sub004/services/sequence/barcode"
	"github.com/glazedlists/glazedlists-sub004/services/sequence/change"
)

// sourceChanged keeps the barcode, anchor and lead in step with the source
// and forwards the translated changes to the views.
func (s *Selection[T]) sourceChanged(ev *change.Event[T]) {
	err := s.mutate("source_changed", func() error {
		if ev.IsReorder() {
			return s.reordered(ev.Reorder)
		}
		for _, b := range ev.Blocks {
			var err error
			switch b.Kind {
			case change.Insert:
				err = s.inserted(b.Index, b.New)
			case change.Delete:
				err = s.deleted(b.Index, b.Old)
			case change.Update:
				err = s.updated(b.Index, b.Old, b.New)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("source event not applied", slog.Uint64("seq", ev.Seq), slog.String("error", err.Error()))
	}
}

func (s *Selection[T]) inserted(i int, v T) error {
	if s.anchor >= i {
		s.anchor++
	}
	if s.lead >= i {
		s.lead++
	}

	c := deselected
	if (s.mode == MultipleInterval || s.mode == SingleInterval) && s.insideSelectedRun(i) && s.eligibleValue(v) {
		c = selected
	}
	if err := s.bar.Insert(i, c, 1); err != nil {
		return err
	}
	s.emitInserted(c, s.bar.ToRelative(i, c), v)
	if c == selected {
		s.touch(i)
	}
	return nil
}

// insideSelectedRun reports whether an insert at i lands between two
// selected cells.
func (s *Selection[T]) insideSelectedRun(i int) bool {
	return i > 0 && s.IsSelected(i-1) && s.IsSelected(i)
}

func (s *Selection[T]) deleted(i int, old T) error {
	switch {
	case s.anchor == i:
		s.anchor = -1
	case s.anchor > i:
		s.anchor--
	}
	switch {
	case s.lead == i:
		s.lead = -1
	case s.lead > i:
		s.lead--
	}

	c, err := s.bar.Get(i)
	if err != nil {
		return err
	}
	s.emitDeleted(c, s.bar.ToRelative(i, c), old)
	if err := s.bar.Remove(i, 1); err != nil {
		return err
	}
	if c == selected {
		s.touch(min(i, max(s.bar.Size()-1, 0)))
	}
	return nil
}

// updated forwards an update to the view holding the element, deselecting
// it first if it is no longer eligible.
func (s *Selection[T]) updated(i int, old, v T) error {
	c, err := s.bar.Get(i)
	if err != nil {
		return err
	}
	if c == selected && !s.eligibleValue(v) {
		s.emitDeleted(selected, s.bar.ToRelative(i, selected), old)
		if err := s.bar.Set(i, deselected); err != nil {
			return err
		}
		s.emitInserted(deselected, s.bar.ToRelative(i, deselected), v)
		s.touch(i)
		flipsTotal.WithLabelValues(colorName(deselected)).Inc()
		return nil
	}
	s.emitUpdated(c, s.bar.ToRelative(i, c), old, v)
	return nil
}

// reordered permutes the barcode and publishes, for each color, the
// induced permutation of that color's views computed with the old ranks.
func (s *Selection[T]) reordered(perm []int) error {
	viewPerms := make(map[barcode.Color][]int, 2)
	after := make(map[barcode.Color][]T, 2)
	for i, from := range perm {
		c, err := s.bar.Get(from)
		if err != nil {
			return err
		}
		v, err := s.source.Get(i)
		if err != nil {
			return err
		}
		viewPerms[c] = append(viewPerms[c], s.bar.ToRelative(from, c))
		after[c] = append(after[c], v)
	}
	if err := s.bar.Permute(perm); err != nil {
		return err
	}

	inv := change.InversePermutation(perm)
	if s.anchor >= 0 {
		s.anchor = inv[s.anchor]
	}
	if s.lead >= 0 {
		s.lead = inv[s.lead]
	}

	for _, c := range []barcode.Color{deselected, selected} {
		if p := viewPerms[c]; len(p) > 0 && !isIdentity(p) {
			s.emitReordered(c, p, after[c])
		}
	}
	if n := s.SelectedCount(); n > 0 && !isIdentity(viewPerms[selected]) {
		s.touch(s.MinSelectionIndex())
		s.touch(s.MaxSelectionIndex())
	}
	return nil
}

func isIdentity(perm []int) bool {
	for i, p := range perm {
		if i != p {
			return false
		}
	}
	return true
}
