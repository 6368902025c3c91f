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

	"github.com/glazedlists/glazedlists-sub004/services/sequence/barcode"
	"github.com/glazedlists/glazedlists-sub004/services/sequence/change"
)

// Filter colors.
const (
	unmatched barcode.Color = 0
	matched   barcode.Color = 1
)

// Matcher reports whether an element belongs in a FilterList.
type Matcher[T any] func(value T) bool

// MatchAll accepts every element.
func MatchAll[T any](T) bool {
	return true
}

// FilterList is a writable view of the source elements a Matcher accepts.
//
// Description:
//
//	A two-color barcode marks each source position matched or unmatched.
//	The view's index i is the i-th matched position. Updates that flip an
//	element's match state surface as inserts or deletes in the view.
//
// Thread Safety: NOT safe for concurrent use. Callers hold Lock().
type FilterList[T any] struct {
	*TransformView[T]

	bar     *barcode.Barcode
	matcher Matcher[T]
	logger  *slog.Logger
}

// NewFilterList creates a filtered view of source.
//
// Inputs:
//   - source: The source sequence.
//   - matcher: The filter. Nil matches everything.
//   - opts: Optional name, logger, lock.
//
// Outputs:
//   - *FilterList[T]: The view.
//   - error: As NewTransformView.
func NewFilterList[T any](source Sequence[T], matcher Matcher[T], opts ...Option) (*FilterList[T], error) {
	if source == nil {
		return nil, fmt.Errorf("%w: nil source", change.ErrIllegalArgument)
	}
	if matcher == nil {
		matcher = MatchAll[T]
	}
	bar, err := barcode.New(2)
	if err != nil {
		return nil, err
	}
	f := &FilterList[T]{bar: bar, matcher: matcher}
	for i := 0; i < source.Size(); i++ {
		v, err := source.Get(i)
		if err != nil {
			return nil, err
		}
		if err := bar.Insert(i, f.colorOf(v), 1); err != nil {
			return nil, err
		}
	}

	opts = append([]Option{WithName("filter")}, opts...)
	view, err := NewTransformView(source, BarcodeMapping(bar, matched), ViewConfig[T]{
		Writable: true,
		Hook:     f.sourceChanged,
	}, opts...)
	if err != nil {
		return nil, err
	}
	f.TransformView = view
	f.logger = buildOptions("filter", opts).logger.With(slog.String("component", "filter_list"))
	return f, nil
}

// SetMatcher replaces the filter and publishes the resulting changes as
// one event.
func (f *FilterList[T]) SetMatcher(matcher Matcher[T]) error {
	if matcher == nil {
		matcher = MatchAll[T]
	}
	f.matcher = matcher

	a := f.Updates()
	a.BeginEvent(true)
	changed, err := f.refilter()
	if err != nil {
		// Cells recolored before the failure stay recolored and their
		// changes are dropped, so listeners are out of sync with the view.
		return errors.Join(err, a.DiscardEvent())
	}
	f.logger.Debug("matcher changed", slog.Int("flipped", changed), slog.Int("matched", f.bar.Count(matched)))
	return a.CommitEvent()
}

// refilter recolors every source cell against the current matcher and
// returns how many changed.
func (f *FilterList[T]) refilter() (int, error) {
	changed := 0
	for i := 0; i < f.Source().Size(); i++ {
		v, err := f.Source().Get(i)
		if err != nil {
			return changed, err
		}
		was, err := f.bar.Get(i)
		if err != nil {
			return changed, err
		}
		now := f.colorOf(v)
		if was == now {
			continue
		}
		changed++
		if err := f.recolor(i, was, now, v, v); err != nil {
			return changed, err
		}
	}
	return changed, nil
}

// Matches reports whether the source element at index is in the view.
func (f *FilterList[T]) Matches(sourceIndex int) bool {
	c, err := f.bar.Get(sourceIndex)
	return err == nil && c == matched
}

func (f *FilterList[T]) colorOf(v T) barcode.Color {
	if f.matcher(v) {
		return matched
	}
	return unmatched
}

// recolor moves source cell i between colors and reports the view change.
func (f *FilterList[T]) recolor(i int, was, now barcode.Color, old, value T) error {
	a := f.Updates()
	if was == matched {
		a.ElementDeleted(f.bar.ToRelative(i, matched), old)
		return f.bar.Set(i, now)
	}
	if err := f.bar.Set(i, now); err != nil {
		return err
	}
	a.ElementInserted(f.bar.ToRelative(i, matched), value)
	return nil
}

func (f *FilterList[T]) sourceChanged(ev *change.Event[T]) error {
	if ev.IsReorder() {
		return f.reordered(ev.Reorder)
	}
	a := f.Updates()
	for _, b := range ev.Blocks {
		switch b.Kind {
		case change.Insert:
			c := f.colorOf(b.New)
			if err := f.bar.Insert(b.Index, c, 1); err != nil {
				return err
			}
			if c == matched {
				a.ElementInserted(f.bar.ToRelative(b.Index, matched), b.New)
			}
		case change.Delete:
			if r := f.bar.ToRelative(b.Index, matched); r >= 0 {
				a.ElementDeleted(r, b.Old)
			}
			if err := f.bar.Remove(b.Index, 1); err != nil {
				return err
			}
		case change.Update:
			was, err := f.bar.Get(b.Index)
			if err != nil {
				return err
			}
			now := f.colorOf(b.New)
			if was == now {
				if now == matched {
					a.ElementUpdated(f.bar.ToRelative(b.Index, matched), b.Old, b.New)
				}
				continue
			}
			if err := f.recolor(b.Index, was, now, b.Old, b.New); err != nil {
				return err
			}
		}
	}
	return nil
}

// reordered permutes the barcode for a source reorder and publishes the
// induced permutation of the view, remapped through the old ranks.
func (f *FilterList[T]) reordered(perm []int) error {
	var viewPerm []int
	var after []T
	for i, from := range perm {
		r := f.bar.ToRelative(from, matched)
		if r < 0 {
			continue
		}
		viewPerm = append(viewPerm, r)
		v, err := f.Source().Get(i)
		if err != nil {
			return err
		}
		after = append(after, v)
	}
	if err := f.bar.Permute(perm); err != nil {
		return err
	}
	if len(viewPerm) > 0 && !isIdentity(viewPerm) {
		f.Updates().ElementsReordered(viewPerm, after)
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
