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
	"log/slog"
	"slices"

	"github.com/glazedlists/glazedlists-sub004/services/sequence/barcode"
	"github.com/glazedlists/glazedlists-sub004/services/sequence/change"
)

// -----------------------------------------------------------------------------
// Range operations
// -----------------------------------------------------------------------------

// Select selects the inclusive range [start, end].
//
// Description:
//
//	Single mode selects only end. SingleInterval replaces the selection
//	with the range. The multiple modes add the range to the selection.
//	Anchor becomes start and lead becomes end.
//
// Outputs:
//   - error: change.ErrIndexOutOfBounds for an index outside the source.
func (s *Selection[T]) Select(start, end int) error {
	if err := s.checkRange(start, end); err != nil {
		return err
	}
	switch s.mode {
	case Single:
		return s.SetSelection(end, end)
	case SingleInterval:
		return s.SetSelection(start, end)
	}
	return s.mutate("select", func() error {
		s.anchor, s.lead = start, end
		return s.setSubRangeOfRange(true, start, end, -1, -1)
	})
}

// SelectIndex selects one index.
func (s *Selection[T]) SelectIndex(index int) error {
	return s.Select(index, index)
}

// Deselect deselects the inclusive range [start, end].
//
// In SingleInterval mode a range starting after the first selected index
// is extended through the last one so the selection stays contiguous.
func (s *Selection[T]) Deselect(start, end int) error {
	if err := s.checkRange(start, end); err != nil {
		return err
	}
	return s.mutate("deselect", func() error {
		if s.mode == SingleInterval {
			lo, hi := ordered(start, end)
			if minSel := s.MinSelectionIndex(); minSel >= 0 && lo > minSel {
				start, end = lo, max(hi, s.MaxSelectionIndex())
			}
		}
		s.anchor, s.lead = start, end
		return s.setSubRangeOfRange(false, start, end, -1, -1)
	})
}

// DeselectIndex deselects one index.
func (s *Selection[T]) DeselectIndex(index int) error {
	return s.Deselect(index, index)
}

// SetSelection replaces the selection with the inclusive range
// [start, end]. Single mode selects only end.
func (s *Selection[T]) SetSelection(start, end int) error {
	if err := s.checkRange(start, end); err != nil {
		return err
	}
	if s.mode == Single {
		start = end
	}
	return s.mutate("set_selection", func() error {
		s.anchor, s.lead = start, end
		return s.setSubRangeOfRange(true, start, end, s.MinSelectionIndex(), s.MaxSelectionIndex())
	})
}

// SelectAll selects every element.
func (s *Selection[T]) SelectAll() error {
	if s.source.Size() == 0 {
		return nil
	}
	return s.Select(0, s.source.Size()-1)
}

// DeselectAll clears the selection. Anchor and lead are kept.
func (s *Selection[T]) DeselectAll() error {
	return s.mutate("deselect_all", s.deselectAll)
}

func (s *Selection[T]) deselectAll() error {
	lo, hi := s.MinSelectionIndex(), s.MaxSelectionIndex()
	if lo < 0 {
		return nil
	}
	return s.setSubRangeOfRange(false, lo, hi, -1, -1)
}

// InvertSelection flips every element and clears anchor and lead.
// Elements the matchers reject stay deselected.
//
// Outputs:
//   - error: change.ErrIllegalState in Single and SingleInterval modes.
func (s *Selection[T]) InvertSelection() error {
	if s.mode == Single || s.mode == SingleInterval {
		return fmt.Errorf("%w: invert in %s mode", change.ErrIllegalState, s.mode)
	}
	return s.mutate("invert", func() error {
		s.anchor, s.lead = -1, -1
		// Cells from the cursor on are not yet flipped, so the run found
		// at the cursor still has its pre-invert color up to RunEnd.
		it := s.bar.Iterator()
		for it.Next() {
			start, end, cur := it.Position(), it.RunEnd(), it.Color()
			for i := start; i < end; i++ {
				want := cur == deselected
				if want {
					ok, err := s.eligibleAt(i)
					if err != nil {
						return err
					}
					want = ok
				}
				if err := s.recolor(i, cur, want); err != nil {
					return err
				}
			}
			it.SkipTo(end)
		}
		return nil
	})
}

// SetMode changes the selection mode. Switching to Single or
// SingleInterval clears the selection.
func (s *Selection[T]) SetMode(mode Mode) error {
	if mode < Single || mode > MultipleIntervalDefensive {
		return fmt.Errorf("%w: mode %d", change.ErrIllegalArgument, mode)
	}
	if mode == s.mode {
		return nil
	}
	s.logger.Debug("mode changed", slog.String("from", s.mode.String()), slog.String("to", mode.String()))
	s.mode = mode
	if mode == Single || mode == SingleInterval {
		return s.mutate("set_mode", s.deselectAll)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Anchor and lead
// -----------------------------------------------------------------------------

// SetAnchorSelectionIndex moves the anchor and reselects between anchor
// and lead according to the mode. -1 clears anchor, lead and selection.
//
// In the multiple modes the span from the new anchor to the lead is
// selected, and cells of the old span from the previous anchor that fall
// outside it are deselected.
func (s *Selection[T]) SetAnchorSelectionIndex(index int) error {
	if index == -1 {
		return s.clearAnchorLead()
	}
	if err := change.CheckIndex(index, s.bar.Size()); err != nil {
		return err
	}
	return s.mutate("set_anchor", func() error {
		oldAnchor := s.anchor
		if oldAnchor == -1 {
			oldAnchor = index
		}
		s.anchor = index
		if s.lead == -1 || s.mode == Single {
			s.lead = index
		}

		switch s.mode {
		case Single:
			return s.setSubRangeOfRange(true, index, index, s.MinSelectionIndex(), s.MaxSelectionIndex())
		case SingleInterval:
			return s.setSubRangeOfRange(true, s.anchor, s.lead, s.MinSelectionIndex(), s.MaxSelectionIndex())
		}
		return s.setSubRangeOfRange(true, s.anchor, s.lead, oldAnchor, s.lead)
	})
}

// SetLeadSelectionIndex moves the lead and reselects between anchor and
// lead according to the mode. -1 clears anchor, lead and selection.
//
// In the multiple modes the span from the anchor to the new lead is
// selected, and cells between the anchor and the previous lead that fall
// outside it are deselected.
func (s *Selection[T]) SetLeadSelectionIndex(index int) error {
	if index == -1 {
		return s.clearAnchorLead()
	}
	if err := change.CheckIndex(index, s.bar.Size()); err != nil {
		return err
	}
	return s.mutate("set_lead", func() error {
		oldLead := s.lead
		if oldLead == -1 {
			oldLead = index
		}
		s.lead = index
		if s.anchor == -1 || s.mode == Single {
			s.anchor = index
		}

		switch s.mode {
		case Single:
			return s.setSubRangeOfRange(true, index, index, s.MinSelectionIndex(), s.MaxSelectionIndex())
		case SingleInterval:
			return s.setSubRangeOfRange(true, s.anchor, s.lead, s.MinSelectionIndex(), s.MaxSelectionIndex())
		}
		return s.setSubRangeOfRange(true, s.anchor, s.lead, s.anchor, oldLead)
	})
}

func (s *Selection[T]) clearAnchorLead() error {
	return s.mutate("clear_anchor", func() error {
		s.anchor, s.lead = -1, -1
		return s.deselectAll()
	})
}

// -----------------------------------------------------------------------------
// Bulk operations
// -----------------------------------------------------------------------------

// SelectIndices selects every index in indices.
//
// Description:
//
//	Indices are sorted and deduplicated first. Single mode selects only
//	the last index and SingleInterval the span from first to last. The
//	multiple modes walk the indices and the barcode cursor together.
func (s *Selection[T]) SelectIndices(indices []int) error {
	sorted, err := s.prepareIndices(indices)
	if err != nil || len(sorted) == 0 {
		return err
	}
	switch s.mode {
	case Single:
		return s.SetSelection(sorted[len(sorted)-1], sorted[len(sorted)-1])
	case SingleInterval:
		return s.SetSelection(sorted[0], sorted[len(sorted)-1])
	}
	return s.mutate("select_indices", func() error {
		return s.flipIndices(sorted, true)
	})
}

// DeselectIndices deselects every index in indices.
//
// SingleInterval mode deselects from the first index through the end of
// the selection when the indices would split it.
func (s *Selection[T]) DeselectIndices(indices []int) error {
	sorted, err := s.prepareIndices(indices)
	if err != nil || len(sorted) == 0 {
		return err
	}
	if s.mode == SingleInterval {
		return s.Deselect(sorted[0], sorted[len(sorted)-1])
	}
	return s.mutate("deselect_indices", func() error {
		return s.flipIndices(sorted, false)
	})
}

// SetSelectionIndices replaces the selection with indices.
func (s *Selection[T]) SetSelectionIndices(indices []int) error {
	sorted, err := s.prepareIndices(indices)
	if err != nil {
		return err
	}
	if len(sorted) == 0 {
		return s.DeselectAll()
	}
	switch s.mode {
	case Single:
		return s.SetSelection(sorted[len(sorted)-1], sorted[len(sorted)-1])
	case SingleInterval:
		return s.SetSelection(sorted[0], sorted[len(sorted)-1])
	}
	return s.mutate("set_selection_indices", func() error {
		it := s.bar.Iterator()
		hasSel := it.NextColor(selected)
		k := 0
		for hasSel || k < len(sorted) {
			switch {
			case hasSel && (k == len(sorted) || it.Position() < sorted[k]):
				if err := s.setColor(it.Position(), false); err != nil {
					return err
				}
				hasSel = it.NextColor(selected)
			case hasSel && it.Position() == sorted[k]:
				k++
				hasSel = it.NextColor(selected)
			default:
				ok, err := s.eligibleAt(sorted[k])
				if err != nil {
					return err
				}
				if err := s.setColor(sorted[k], ok); err != nil {
					return err
				}
				k++
			}
		}
		return nil
	})
}

// flipIndices colors every index of sorted, skipping runs of cells that
// already have the target color with the barcode cursor.
func (s *Selection[T]) flipIndices(sorted []int, selecting bool) error {
	from := selected
	if selecting {
		from = deselected
	}
	it := s.bar.Iterator()
	for k := 0; k < len(sorted); {
		// Position the cursor just before sorted[k] and find the next
		// cell that still has the source color.
		it.SkipTo(sorted[k])
		if !it.NextColor(from) {
			return nil
		}
		p := it.Position()
		for k < len(sorted) && sorted[k] < p {
			k++
		}
		if k == len(sorted) || sorted[k] != p {
			continue
		}
		want := selecting
		if selecting {
			ok, err := s.eligibleAt(p)
			if err != nil {
				return err
			}
			want = ok
		}
		if err := s.setColor(p, want); err != nil {
			return err
		}
		k++
	}
	return nil
}

func (s *Selection[T]) prepareIndices(indices []int) ([]int, error) {
	sorted := slices.Clone(indices)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	for _, i := range sorted {
		if err := change.CheckIndex(i, s.bar.Size()); err != nil {
			return nil, err
		}
	}
	return sorted, nil
}

// -----------------------------------------------------------------------------
// Core
// -----------------------------------------------------------------------------

// mutate runs op inside a transaction on every live view, enforces the
// mode invariant and notifies selection listeners of the touched range.
func (s *Selection[T]) mutate(op string, fn func() error) error {
	s.changedLo, s.changedHi = -1, -1
	views := s.views()
	for _, v := range views {
		v.Updates().BeginEvent(true)
	}

	err := fn()
	if err == nil && s.mode == SingleInterval {
		err = s.enforceContiguous()
	}

	for _, v := range views {
		if cerr := v.Updates().CommitEvent(); cerr != nil {
			s.logger.Error("view commit failed", slog.String("op", op), slog.String("error", cerr.Error()))
		}
	}
	if err != nil {
		s.logger.Warn("selection operation failed", slog.String("op", op), slog.String("error", err.Error()))
	}
	operationsTotal.WithLabelValues(op).Inc()
	s.notify()
	return err
}

// setSubRangeOfRange colors the union of the change range [c0, c1] and
// the invert range [i0, i1].
//
// Description:
//
//	Cells in the change range become selecting (subject to eligibility
//	when selecting), cells only in the invert range become !selecting.
//	Either range may be absent (-1). Each cell of the union is visited
//	once and only flipped cells produce view events.
//
// Complexity: O(k log R) for k cells in the union
func (s *Selection[T]) setSubRangeOfRange(selecting bool, c0, c1, i0, i1 int) error {
	c0, c1 = ordered(c0, c1)
	i0, i1 = ordered(i0, i1)

	var spans [][2]int
	if c0 >= 0 {
		spans = append(spans, [2]int{c0, c1})
	}
	if i0 >= 0 {
		spans = append(spans, [2]int{i0, i1})
	}
	for _, span := range mergeSpans(spans) {
		for i := span[0]; i <= span[1]; i++ {
			inChange := c0 >= 0 && i >= c0 && i <= c1
			want := inChange == selecting
			if want {
				ok, err := s.eligibleAt(i)
				if err != nil {
					return err
				}
				want = ok
			}
			if err := s.setColor(i, want); err != nil {
				return err
			}
		}
	}
	return nil
}

// setColor recolors source cell i and reports the flip to the views.
func (s *Selection[T]) setColor(i int, sel bool) error {
	cur, err := s.bar.Get(i)
	if err != nil {
		return err
	}
	return s.recolor(i, cur, sel)
}

// recolor is setColor for a caller that already knows cell i has color cur.
func (s *Selection[T]) recolor(i int, cur barcode.Color, sel bool) error {
	target := deselected
	if sel {
		target = selected
	}
	if cur == target {
		return nil
	}
	v, err := s.source.Get(i)
	if err != nil {
		return err
	}

	s.emitDeleted(cur, s.bar.ToRelative(i, cur), v)
	if err := s.bar.Set(i, target); err != nil {
		return err
	}
	s.emitInserted(target, s.bar.ToRelative(i, target), v)

	s.touch(i)
	flipsTotal.WithLabelValues(colorName(target)).Inc()
	return nil
}

// enforceContiguous keeps only one selected run in SingleInterval mode:
// the run holding the lead when it is selected, otherwise the first.
func (s *Selection[T]) enforceContiguous() error {
	n := s.SelectedCount()
	if n == 0 {
		return nil
	}
	lo, hi := s.MinSelectionIndex(), s.MaxSelectionIndex()
	if hi-lo+1 == n {
		return nil
	}

	keepStart, keepEnd := lo, lo
	pos := 0
	first := true
	for _, r := range s.bar.Runs() {
		if r.Color == selected {
			holdsLead := s.lead >= pos && s.lead < pos+r.Length
			if first || holdsLead {
				keepStart, keepEnd = pos, pos+r.Length
				first = false
			}
			if holdsLead {
				break
			}
		}
		pos += r.Length
	}

	it := s.bar.Iterator()
	for it.NextColor(selected) {
		p := it.Position()
		if p >= keepStart && p < keepEnd {
			continue
		}
		if err := s.setColor(p, false); err != nil {
			return err
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func (s *Selection[T]) checkRange(start, end int) error {
	if err := change.CheckIndex(start, s.bar.Size()); err != nil {
		return err
	}
	return change.CheckIndex(end, s.bar.Size())
}

func (s *Selection[T]) touch(i int) {
	if s.changedLo < 0 || i < s.changedLo {
		s.changedLo = i
	}
	if i > s.changedHi {
		s.changedHi = i
	}
}

func (s *Selection[T]) notify() {
	if s.changedLo < 0 {
		return
	}
	lo, hi := s.changedLo, s.changedHi
	s.changedLo, s.changedHi = -1, -1
	for _, e := range slices.Clone(s.listeners) {
		e.listener.SelectionChanged(lo, hi)
	}
}

// ordered returns (a, b) in ascending order, or (-1, -1) if either is -1.
func ordered(a, b int) (int, int) {
	if a < 0 || b < 0 {
		return -1, -1
	}
	if a > b {
		return b, a
	}
	return a, b
}

// mergeSpans merges overlapping or adjacent inclusive spans.
func mergeSpans(spans [][2]int) [][2]int {
	if len(spans) < 2 {
		return spans
	}
	slices.SortFunc(spans, func(a, b [2]int) int { return a[0] - b[0] })
	out := [][2]int{spans[0]}
	for _, sp := range spans[1:] {
		last := &out[len(out)-1]
		if sp[0] <= last[1]+1 {
			last[1] = max(last[1], sp[1])
			continue
		}
		out = append(out, sp)
	}
	return out
}

func colorName(c barcode.Color) string {
	if c == selected {
		return "selected"
	}
	return "deselected"
}
