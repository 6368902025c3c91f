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
	"cmp"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glazedlists/glazedlists-sub004/services/sequence/change"
	"github.com/glazedlists/glazedlists-sub004/services/sequence/list"
)

// mirror replays a view's events and checks them against the view.
type mirror[T any] struct {
	t      *testing.T
	view   list.Sequence[T]
	data   []T
	events int
}

func newMirror[T any](t *testing.T, view list.Sequence[T]) *mirror[T] {
	m := &mirror[T]{t: t, view: view, data: list.Snapshot(view)}
	view.AddListener(m)
	return m
}

func (m *mirror[T]) ListChanged(ev *change.Event[T]) {
	out, err := ev.Replay(m.data)
	require.NoError(m.t, err)
	m.data = out
	m.events++
	require.Equal(m.t, list.Snapshot(m.view), m.data, "replay of %s", ev)
}

func ints(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func setup[T any](t *testing.T, values []T, opts ...Option) (*list.BasicList[T], *Selection[T], *mirror[T], *mirror[T]) {
	t.Helper()
	l := list.NewBasicList(values)
	s, err := New[T](l, opts...)
	require.NoError(t, err)
	sel, err := s.Selected()
	require.NoError(t, err)
	desel, err := s.Deselected()
	require.NoError(t, err)
	return l, s, newMirror[T](t, sel), newMirror[T](t, desel)
}

// -----------------------------------------------------------------------------
// Construction
// -----------------------------------------------------------------------------

func TestNew(t *testing.T) {
	_, err := New[int](nil)
	assert.ErrorIs(t, err, change.ErrIllegalArgument)

	_, err = New[int](list.NewBasicList([]int{1}), WithMode(Mode(9)))
	assert.ErrorIs(t, err, change.ErrIllegalArgument)

	s, err := New[int](list.NewBasicList([]int{1, 2}))
	require.NoError(t, err)
	assert.Equal(t, MultipleInterval, s.Mode())
	assert.Equal(t, -1, s.Anchor())
	assert.Equal(t, -1, s.Lead())
	assert.Equal(t, -1, s.MinSelectionIndex())
	assert.Equal(t, -1, s.MaxSelectionIndex())
	assert.Equal(t, 0, s.SelectedCount())
}

func TestParseMode(t *testing.T) {
	for m := Single; m <= MultipleIntervalDefensive; m++ {
		got, err := ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseMode("bogus")
	assert.ErrorIs(t, err, change.ErrIllegalArgument)
}

// -----------------------------------------------------------------------------
// Source reaction
// -----------------------------------------------------------------------------

func TestSelection_InsertBeforeSelectedElement(t *testing.T) {
	l, s, selected, _ := setup(t, []string{"A", "B", "C"}, WithMode(MultipleInterval))

	require.NoError(t, s.SelectIndex(1))
	require.NoError(t, l.Add(1, "X"))

	assert.Equal(t, []string{"A", "X", "B", "C"}, l.Snapshot())
	assert.Equal(t, []int{2}, s.SelectedIndices())
	assert.Equal(t, []string{"B"}, selected.data)
	assert.Equal(t, 2, s.Anchor())
	assert.Equal(t, 2, s.Lead())
}

func TestSelection_InsertInsideSelectedRun(t *testing.T) {
	for _, tc := range []struct {
		mode Mode
		want []int
	}{
		{MultipleInterval, []int{1, 2, 3}},
		{MultipleIntervalDefensive, []int{1, 3}},
		{SingleInterval, []int{1, 2, 3}},
	} {
		t.Run(tc.mode.String(), func(t *testing.T) {
			l, s, selected, deselected := setup(t, []int{10, 11, 12, 13}, WithMode(tc.mode))
			require.NoError(t, s.Select(1, 2))

			require.NoError(t, l.Add(2, 99))
			assert.Equal(t, tc.want, s.SelectedIndices())
			assert.Equal(t, len(tc.want), len(selected.data))
			assert.Equal(t, 5-len(tc.want), len(deselected.data))
			require.NoError(t, s.Validate())
		})
	}
}

func TestSelection_DeleteShiftsAnchorAndLead(t *testing.T) {
	l, s, selected, _ := setup(t, ints(6))

	require.NoError(t, s.Select(2, 4))
	_, err := l.Remove(0)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Anchor())
	assert.Equal(t, 3, s.Lead())

	_, err = l.Remove(1) // the anchor
	require.NoError(t, err)
	assert.Equal(t, -1, s.Anchor())
	assert.Equal(t, 2, s.Lead())
	assert.Equal(t, []int{3, 4}, selected.data)
}

func TestSelection_UpdateDeselectsIneligible(t *testing.T) {
	l, s, selected, deselected := setup(t, []int{2, 4, 6})
	_, err := s.AddValidSelectionMatcher(func(v int) bool { return v%2 == 0 })
	require.NoError(t, err)
	require.NoError(t, s.SelectAll())
	assert.Equal(t, 3, s.SelectedCount())

	_, err = l.Set(1, 8)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 8, 6}, selected.data)

	_, err = l.Set(1, 7)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 6}, selected.data)
	assert.Equal(t, []int{7}, deselected.data)
}

func TestSelection_Reorder(t *testing.T) {
	l, s, selected, deselected := setup(t, []string{"e", "d", "c", "b", "a"})

	require.NoError(t, s.SelectIndex(2))
	require.NoError(t, s.SelectIndex(0))
	assert.Equal(t, []string{"e", "c"}, selected.data)

	require.NoError(t, l.Sort(cmp.Compare[string]))

	assert.Equal(t, []int{2, 4}, s.SelectedIndices())
	assert.Equal(t, []string{"c", "e"}, selected.data)
	assert.Equal(t, []string{"a", "b", "d"}, deselected.data)
	assert.Equal(t, 4, s.Anchor())
	assert.Equal(t, 4, s.Lead())
}

// -----------------------------------------------------------------------------
// Modes
// -----------------------------------------------------------------------------

func TestSelection_SingleMode(t *testing.T) {
	_, s, selected, _ := setup(t, ints(5), WithMode(Single))

	require.NoError(t, s.Select(1, 3))
	assert.Equal(t, []int{3}, s.SelectedIndices())

	require.NoError(t, s.SelectIndex(0))
	assert.Equal(t, []int{0}, s.SelectedIndices())

	require.NoError(t, s.SelectIndices([]int{1, 2, 4}))
	assert.Equal(t, []int{4}, s.SelectedIndices())
	assert.Equal(t, []int{4}, selected.data)

	require.NoError(t, s.SetAnchorSelectionIndex(2))
	assert.Equal(t, []int{2}, s.SelectedIndices())
	assert.Equal(t, 2, s.Lead())

	require.NoError(t, s.SelectAll())
	assert.LessOrEqual(t, s.SelectedCount(), 1)
	require.NoError(t, s.Validate())

	err := s.InvertSelection()
	assert.ErrorIs(t, err, change.ErrIllegalState)
}

func TestSelection_SingleIntervalMode(t *testing.T) {
	_, s, selected, _ := setup(t, ints(10), WithMode(SingleInterval))

	require.NoError(t, s.SelectIndex(2))
	require.NoError(t, s.Select(4, 6))
	assert.Equal(t, []int{4, 5, 6}, s.SelectedIndices())

	// Deselecting the middle removes through the end.
	require.NoError(t, s.Deselect(5, 5))
	assert.Equal(t, []int{4}, s.SelectedIndices())

	require.NoError(t, s.SelectIndices([]int{7, 1}))
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, s.SelectedIndices())

	require.NoError(t, s.DeselectIndices([]int{3}))
	assert.Equal(t, []int{1, 2}, s.SelectedIndices())
	assert.Equal(t, []int{1, 2}, selected.data)
	require.NoError(t, s.Validate())

	assert.ErrorIs(t, s.InvertSelection(), change.ErrIllegalState)
}

func TestSelection_SingleIntervalKeepsLeadRun(t *testing.T) {
	_, s, _, _ := setup(t, ints(10), WithMode(SingleInterval))
	_, err := s.AddValidSelectionMatcher(func(v int) bool { return v != 5 })
	require.NoError(t, err)

	require.NoError(t, s.SetSelection(3, 7))
	assert.Equal(t, []int{6, 7}, s.SelectedIndices())
	require.NoError(t, s.Validate())
}

func TestSelection_SetMode(t *testing.T) {
	_, s, selected, _ := setup(t, ints(5))
	require.NoError(t, s.SelectIndices([]int{0, 2, 4}))

	require.NoError(t, s.SetMode(MultipleIntervalDefensive))
	assert.Equal(t, 3, s.SelectedCount())

	require.NoError(t, s.SetMode(Single))
	assert.Equal(t, 0, s.SelectedCount())
	assert.Empty(t, selected.data)

	assert.ErrorIs(t, s.SetMode(Mode(-1)), change.ErrIllegalArgument)
}

// -----------------------------------------------------------------------------
// Operations
// -----------------------------------------------------------------------------

func TestSelection_OutOfRange(t *testing.T) {
	_, s, _, _ := setup(t, ints(3))

	assert.ErrorIs(t, s.Select(0, 3), change.ErrIndexOutOfBounds)
	assert.ErrorIs(t, s.Deselect(-1, 0), change.ErrIndexOutOfBounds)
	assert.ErrorIs(t, s.SetSelection(4, 4), change.ErrIndexOutOfBounds)
	assert.ErrorIs(t, s.SelectIndices([]int{1, 3}), change.ErrIndexOutOfBounds)
	assert.ErrorIs(t, s.SetAnchorSelectionIndex(3), change.ErrIndexOutOfBounds)
	assert.ErrorIs(t, s.SetLeadSelectionIndex(-2), change.ErrIndexOutOfBounds)
	assert.Equal(t, 0, s.SelectedCount())
	assert.False(t, s.IsSelected(7))
}

func TestSelection_SetSelectionReplaces(t *testing.T) {
	_, s, selected, deselected := setup(t, ints(8))

	require.NoError(t, s.Select(0, 1))
	require.NoError(t, s.Select(6, 7))
	require.NoError(t, s.SetSelection(3, 4))

	assert.Equal(t, []int{3, 4}, s.SelectedIndices())
	assert.Equal(t, []int{3, 4}, selected.data)
	assert.Equal(t, []int{0, 1, 2, 5, 6, 7}, deselected.data)
	assert.Equal(t, 3, s.Anchor())
	assert.Equal(t, 4, s.Lead())
}

func TestSelection_BulkIndices(t *testing.T) {
	_, s, selected, deselected := setup(t, ints(8))

	require.NoError(t, s.SelectIndices([]int{5, 1, 3, 3}))
	assert.Equal(t, []int{1, 3, 5}, s.SelectedIndices())

	require.NoError(t, s.DeselectIndices([]int{3, 4}))
	assert.Equal(t, []int{1, 5}, s.SelectedIndices())

	require.NoError(t, s.SetSelectionIndices([]int{0, 5, 7}))
	assert.Equal(t, []int{0, 5, 7}, s.SelectedIndices())
	assert.Equal(t, []int{0, 5, 7}, selected.data)
	assert.Equal(t, []int{1, 2, 3, 4, 6}, deselected.data)

	require.NoError(t, s.SetSelectionIndices(nil))
	assert.Equal(t, 0, s.SelectedCount())
}

func TestSelection_InvertSelection(t *testing.T) {
	_, s, selected, _ := setup(t, ints(7))
	_, err := s.AddValidSelectionMatcher(func(v int) bool { return v != 6 })
	require.NoError(t, err)

	require.NoError(t, s.SelectIndices([]int{1, 5}))
	require.NoError(t, s.SetAnchorSelectionIndex(5))
	require.NoError(t, s.InvertSelection())

	assert.Equal(t, []int{0, 2, 3, 4}, s.SelectedIndices())
	assert.Equal(t, []int{0, 2, 3, 4}, selected.data)
	assert.Equal(t, -1, s.Anchor())
	assert.Equal(t, -1, s.Lead())
}

func TestSelection_InvertSelectionAcrossRuns(t *testing.T) {
	_, s, selected, deselected := setup(t, ints(12))

	require.NoError(t, s.SelectIndices([]int{0, 1, 4, 5, 6, 9, 11}))
	require.NoError(t, s.InvertSelection())
	assert.Equal(t, []int{2, 3, 7, 8, 10}, s.SelectedIndices())
	assert.Equal(t, []int{2, 3, 7, 8, 10}, selected.data)
	assert.Equal(t, []int{0, 1, 4, 5, 6, 9, 11}, deselected.data)
	require.NoError(t, s.Validate())

	require.NoError(t, s.InvertSelection())
	assert.Equal(t, []int{0, 1, 4, 5, 6, 9, 11}, s.SelectedIndices())
	require.NoError(t, s.Validate())

	require.NoError(t, s.SelectAll())
	require.NoError(t, s.InvertSelection())
	assert.Equal(t, 0, s.SelectedCount())
	assert.Empty(t, selected.data)
	assert.Equal(t, ints(12), deselected.data)
}

func TestSelection_AnchorAndLead(t *testing.T) {
	_, s, selected, _ := setup(t, ints(10))

	require.NoError(t, s.SelectIndex(2))
	require.NoError(t, s.SetLeadSelectionIndex(5))
	assert.Equal(t, []int{2, 3, 4, 5}, s.SelectedIndices())

	require.NoError(t, s.SetLeadSelectionIndex(3))
	assert.Equal(t, []int{2, 3}, s.SelectedIndices())

	// Moving the anchor selects the new span and drops the part of the old
	// one it no longer covers.
	require.NoError(t, s.SetAnchorSelectionIndex(7))
	assert.Equal(t, []int{3, 4, 5, 6, 7}, s.SelectedIndices())
	assert.Equal(t, 7, s.Anchor())
	assert.Equal(t, 3, s.Lead())
	assert.Equal(t, []int{3, 4, 5, 6, 7}, selected.data)

	require.NoError(t, s.SetLeadSelectionIndex(-1))
	assert.Equal(t, 0, s.SelectedCount())
	assert.Equal(t, -1, s.Anchor())
}

func TestSelection_AnchorThenLeadSelectsSpan(t *testing.T) {
	for _, mode := range []Mode{MultipleInterval, MultipleIntervalDefensive} {
		t.Run(mode.String(), func(t *testing.T) {
			_, s, selected, deselected := setup(t, ints(5), WithMode(mode))

			require.NoError(t, s.SetAnchorSelectionIndex(1))
			assert.Equal(t, []int{1}, s.SelectedIndices())
			require.NoError(t, s.SetLeadSelectionIndex(3))

			assert.Equal(t, []int{1, 2, 3}, s.SelectedIndices())
			assert.Equal(t, []int{1, 2, 3}, selected.data)
			assert.Equal(t, []int{0, 4}, deselected.data)
			assert.Equal(t, 1, s.Anchor())
			assert.Equal(t, 3, s.Lead())
			require.NoError(t, s.Validate())
		})
	}
}

func TestSelection_LeadMoveKeepsOtherIntervals(t *testing.T) {
	_, s, _, _ := setup(t, ints(10))

	require.NoError(t, s.SelectIndex(8))
	require.NoError(t, s.SelectIndex(1))
	require.NoError(t, s.SetLeadSelectionIndex(4))
	assert.Equal(t, []int{1, 2, 3, 4, 8}, s.SelectedIndices())

	require.NoError(t, s.SetLeadSelectionIndex(2))
	assert.Equal(t, []int{1, 2, 8}, s.SelectedIndices())
}

func TestSelection_Matchers(t *testing.T) {
	_, s, selected, _ := setup(t, []int{1, 2, 3, 4, 5, 6})
	require.NoError(t, s.SelectAll())

	id, err := s.AddValidSelectionMatcher(func(v int) bool { return v%2 == 0 })
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 6}, selected.data)

	require.NoError(t, s.SelectIndex(2))
	assert.False(t, s.IsSelected(2), "ineligible element stays deselected")

	assert.True(t, s.RemoveValidSelectionMatcher(id))
	assert.False(t, s.RemoveValidSelectionMatcher(id))
	require.NoError(t, s.SelectIndex(2))
	assert.True(t, s.IsSelected(2))
}

func TestSelection_Listeners(t *testing.T) {
	_, s, _, _ := setup(t, ints(6))
	var got [][2]int
	id := s.AddSelectionListener(ListenerFunc(func(start, end int) {
		got = append(got, [2]int{start, end})
	}))

	require.NoError(t, s.SelectIndex(3))
	require.NoError(t, s.SetSelection(1, 2))
	require.NoError(t, s.SelectIndex(1)) // no change, no notification

	assert.Equal(t, [][2]int{{3, 3}, {1, 3}}, got)

	assert.True(t, s.RemoveSelectionListener(id))
	require.NoError(t, s.SelectIndex(5))
	assert.Len(t, got, 2)
}

// -----------------------------------------------------------------------------
// Views
// -----------------------------------------------------------------------------

func TestSelection_ViewWrites(t *testing.T) {
	l, s, selected, _ := setup(t, []string{"a", "b", "c", "d"})
	require.NoError(t, s.Select(1, 2))

	view, err := s.Selected()
	require.NoError(t, err)
	again, err := s.Selected()
	require.NoError(t, err)
	assert.Same(t, view, again, "views are cached")

	assert.ErrorIs(t, view.Add(0, "z"), change.ErrNotWritable)

	old, err := view.Set(0, "B")
	require.NoError(t, err)
	assert.Equal(t, "b", old)
	assert.Equal(t, []string{"B", "c"}, selected.data)

	removed, err := view.Remove(1)
	require.NoError(t, err)
	assert.Equal(t, "c", removed)
	assert.Equal(t, []string{"a", "B", "d"}, l.Snapshot())
	assert.Equal(t, []string{"B"}, selected.data)
}

func TestSelection_TogglingViews(t *testing.T) {
	l, s, selected, deselected := setup(t, []string{"a", "b", "c", "d"})

	tSel, err := s.TogglingSelected()
	require.NoError(t, err)
	tDesel, err := s.TogglingDeselected()
	require.NoError(t, err)
	mSel := newMirror[string](t, tSel)
	mDesel := newMirror[string](t, tDesel)

	// Removing from the deselected view selects.
	v, err := tDesel.Remove(1)
	require.NoError(t, err)
	assert.Equal(t, "b", v)
	assert.Equal(t, []string{"b"}, selected.data)
	assert.Equal(t, []string{"b"}, mSel.data)

	// Adding to the selected view selects the matching element.
	require.NoError(t, tSel.Add(0, "d"))
	assert.Equal(t, []string{"b", "d"}, mSel.data)
	assert.Equal(t, []string{"a", "c"}, mDesel.data)

	// Removing from the selected view deselects.
	v, err = tSel.Remove(0)
	require.NoError(t, err)
	assert.Equal(t, "b", v)
	assert.Equal(t, []string{"d"}, mSel.data)

	// Adding to the deselected view deselects.
	require.NoError(t, tDesel.Add(0, "d"))
	assert.Empty(t, mSel.data)
	assert.Equal(t, []string{"a", "b", "c", "d"}, deselected.data)

	assert.ErrorIs(t, tDesel.Add(0, "zz"), change.ErrIllegalArgument)
	assert.Equal(t, []string{"a", "b", "c", "d"}, l.Snapshot(), "toggling never edits the source")

	s.Dispose()
	require.NoError(t, l.Append("e"))
	assert.Equal(t, 4, len(deselected.data), "disposed selection stops tracking")
}

// -----------------------------------------------------------------------------
// Randomized operations
// -----------------------------------------------------------------------------

func TestSelection_RandomOperations(t *testing.T) {
	for _, mode := range []Mode{Single, SingleInterval, MultipleInterval, MultipleIntervalDefensive} {
		t.Run(mode.String(), func(t *testing.T) {
			rng := rand.New(rand.NewPCG(uint64(mode)+3, 17))
			l, s, selected, deselected := setup(t, ints(8), WithMode(mode))
			_, err := s.AddValidSelectionMatcher(func(v int) bool { return v%5 != 4 })
			require.NoError(t, err)
			next := 100

			for step := range 300 {
				size := l.Size()
				pick := func() int { return rng.IntN(size) }
				op := rng.IntN(14)
				if size == 0 {
					op = 0
				}
				switch op {
				case 0:
					require.NoError(t, l.Add(rng.IntN(size+1), next))
				case 1:
					require.NoError(t, l.AddAll(rng.IntN(size+1), next, next+1, next+2))
				case 2:
					_, err = l.Remove(pick())
					require.NoError(t, err)
				case 3:
					_, err = l.Set(pick(), next)
					require.NoError(t, err)
				case 4:
					require.NoError(t, l.Reorder(rng.Perm(size)))
				case 5:
					require.NoError(t, s.Select(pick(), pick()))
				case 6:
					require.NoError(t, s.Deselect(pick(), pick()))
				case 7:
					require.NoError(t, s.SetSelection(pick(), pick()))
				case 8:
					require.NoError(t, s.SetAnchorSelectionIndex(pick()))
				case 9:
					require.NoError(t, s.SetLeadSelectionIndex(pick()))
				case 10:
					if rng.IntN(2) == 0 {
						require.NoError(t, s.SelectIndices([]int{pick(), pick(), pick()}))
					} else {
						require.NoError(t, s.SetSelectionIndices([]int{pick(), pick()}))
					}
				case 11:
					require.NoError(t, s.DeselectIndices([]int{pick(), pick()}))
				case 12:
					err = s.InvertSelection()
					if mode == Single || mode == SingleInterval {
						require.ErrorIs(t, err, change.ErrIllegalState)
					} else {
						require.NoError(t, err)
					}
				default:
					if rng.IntN(2) == 0 {
						require.NoError(t, s.SelectAll())
					} else {
						require.NoError(t, s.DeselectAll())
					}
				}
				next += 3

				require.NoError(t, s.Validate(), "step %d: %s", step, s)
				values := l.Snapshot()
				var wantSel, wantDesel []int
				for i, v := range values {
					if s.IsSelected(i) {
						assert.NotEqual(t, 4, v%5, "step %d: ineligible %d selected", step, v)
						wantSel = append(wantSel, v)
					} else {
						wantDesel = append(wantDesel, v)
					}
				}
				require.Equal(t, wantSel, nilIfEmpty(selected.data), "step %d", step)
				require.Equal(t, wantDesel, nilIfEmpty(deselected.data), "step %d", step)
				for _, p := range []int{s.Anchor(), s.Lead()} {
					assert.GreaterOrEqual(t, p, -1)
					assert.Less(t, p, max(l.Size(), 1))
				}
			}
		})
	}
}

func nilIfEmpty(v []int) []int {
	if len(v) == 0 {
		return nil
	}
	return v
}
