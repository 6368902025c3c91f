// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package selection tracks which elements of a sequence are selected.
//
// A Selection colors every source position selected or deselected in a
// two-color barcode and keeps it in lock-step with the source. Selection
// operations walk only the affected ranges and publish one paired
// delete/insert per flipped cell on the selected and deselected views.
//
// Ranges passed to Select, Deselect and SetSelection are inclusive, as are
// the bounds reported to a Listener.
package selection

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/glazedlists/glazedlists-sub004/services/sequence/barcode"
	"github.com/glazedlists/glazedlists-sub004/services/sequence/change"
	"github.com/glazedlists/glazedlists-sub004/services/sequence/list"
)

// Mode is a selection policy.
type Mode int

const (
	// Single allows at most one selected element.
	Single Mode = iota

	// SingleInterval allows one contiguous run of selected elements.
	SingleInterval

	// MultipleInterval allows any subset. An element inserted strictly
	// inside a selected run is selected.
	MultipleInterval

	// MultipleIntervalDefensive allows any subset. Inserted elements are
	// never selected.
	MultipleIntervalDefensive
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case Single:
		return "single"
	case SingleInterval:
		return "single_interval"
	case MultipleInterval:
		return "multiple_interval"
	case MultipleIntervalDefensive:
		return "multiple_interval_defensive"
	default:
		return "unknown"
	}
}

// ParseMode returns the Mode named s.
func ParseMode(s string) (Mode, error) {
	for m := Single; m <= MultipleIntervalDefensive; m++ {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown selection mode %q", change.ErrIllegalArgument, s)
}

const (
	deselected barcode.Color = 0
	selected   barcode.Color = 1
)

// Matcher reports whether an element may be selected.
type Matcher[T any] func(value T) bool

// Listener receives coarse selection change notifications.
type Listener interface {
	// SelectionChanged reports that selection state may have changed for
	// source indices in [start, end].
	SelectionChanged(start, end int)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(start, end int)

// SelectionChanged calls f(start, end).
func (f ListenerFunc) SelectionChanged(start, end int) {
	f(start, end)
}

type matcherEntry[T any] struct {
	id      string
	matcher Matcher[T]
}

type listenerEntry struct {
	id       string
	listener Listener
}

// -----------------------------------------------------------------------------
// Options
// -----------------------------------------------------------------------------

type options struct {
	mode   Mode
	name   string
	logger *slog.Logger
}

// Option configures a Selection.
type Option func(*options)

// WithMode sets the initial selection mode. Default: MultipleInterval.
func WithMode(mode Mode) Option {
	return func(o *options) {
		o.mode = mode
	}
}

// WithName names the selection in log records.
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

// -----------------------------------------------------------------------------
// Selection
// -----------------------------------------------------------------------------

// Selection is the selection tracker for one source sequence.
//
// Description:
//
//	Holds a barcode over {deselected, selected}, the anchor and lead of
//	the last selection gesture, the selection mode and the eligibility
//	matchers. It listens to the source and publishes to up to four lazily
//	created views.
//
// Invariants:
//   - barcode size == source size
//   - Single: at most one selected element
//   - SingleInterval: selected elements form one contiguous run
//   - anchor and lead are -1 or valid source indices
//
// Thread Safety: NOT safe for concurrent use. Callers hold the source's
// write lock for every mutation and its read lock for queries.
type Selection[T any] struct {
	source list.Sequence[T]
	bar    *barcode.Barcode
	mode   Mode
	name   string
	logger *slog.Logger

	anchor int
	lead   int

	matchers  []matcherEntry[T]
	listeners []listenerEntry

	selectedView           *list.TransformView[T]
	deselectedView         *list.TransformView[T]
	togglingSelectedView   *list.TransformView[T]
	togglingDeselectedView *list.TransformView[T]

	sourceListenerID string

	// changedLo and changedHi bound the source indices touched by the
	// operation in progress, -1 when none.
	changedLo int
	changedHi int
}

// New creates a Selection over source with nothing selected.
//
// Inputs:
//   - source: The sequence to track. Must not be nil.
//   - opts: Optional mode, name and logger.
//
// Outputs:
//   - *Selection[T]: The tracker, registered as a listener of source.
//   - error: change.ErrIllegalArgument for a nil source or unknown mode.
func New[T any](source list.Sequence[T], opts ...Option) (*Selection[T], error) {
	if source == nil {
		return nil, fmt.Errorf("%w: nil source", change.ErrIllegalArgument)
	}
	o := options{mode: MultipleInterval, name: "selection"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.mode < Single || o.mode > MultipleIntervalDefensive {
		return nil, fmt.Errorf("%w: mode %d", change.ErrIllegalArgument, o.mode)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	bar, err := barcode.NewFilled(2, deselected, source.Size())
	if err != nil {
		return nil, err
	}
	s := &Selection[T]{
		source:    source,
		bar:       bar,
		mode:      o.mode,
		name:      o.name,
		logger:    o.logger.With(slog.String("component", "selection"), slog.String("sequence", o.name)),
		anchor:    -1,
		lead:      -1,
		changedLo: -1,
		changedHi: -1,
	}
	s.sourceListenerID = source.AddListener(change.ListenerFunc[T](s.sourceChanged))
	return s, nil
}

// Source returns the tracked sequence.
func (s *Selection[T]) Source() list.Sequence[T] {
	return s.source
}

// Mode returns the selection mode.
func (s *Selection[T]) Mode() Mode {
	return s.mode
}

// Anchor returns the anchor index, or -1.
func (s *Selection[T]) Anchor() int {
	return s.anchor
}

// Lead returns the lead index, or -1.
func (s *Selection[T]) Lead() int {
	return s.lead
}

// IsSelected reports whether the source element at index is selected.
// Out-of-range indices are not selected.
func (s *Selection[T]) IsSelected(index int) bool {
	c, err := s.bar.Get(index)
	return err == nil && c == selected
}

// SelectedCount returns the number of selected elements.
func (s *Selection[T]) SelectedCount() int {
	return s.bar.Count(selected)
}

// MinSelectionIndex returns the first selected index, or -1.
func (s *Selection[T]) MinSelectionIndex() int {
	return s.bar.ToAbsolute(0, selected)
}

// MaxSelectionIndex returns the last selected index, or -1.
func (s *Selection[T]) MaxSelectionIndex() int {
	return s.bar.ToAbsolute(s.bar.Count(selected)-1, selected)
}

// SelectedIndices returns the selected source indices in order.
func (s *Selection[T]) SelectedIndices() []int {
	out := make([]int, 0, s.SelectedCount())
	it := s.bar.Iterator()
	for it.NextColor(selected) {
		out = append(out, it.Position())
	}
	return out
}

// String renders the selection barcode.
func (s *Selection[T]) String() string {
	return fmt.Sprintf("%s mode=%s anchor=%d lead=%d %s", s.name, s.mode, s.anchor, s.lead, s.bar)
}

// Validate checks the barcode and the mode invariants.
func (s *Selection[T]) Validate() error {
	if err := s.bar.Validate(); err != nil {
		return err
	}
	if s.bar.Size() != s.source.Size() {
		return fmt.Errorf("%w: barcode size %d, source size %d", change.ErrIllegalState, s.bar.Size(), s.source.Size())
	}
	n := s.SelectedCount()
	switch s.mode {
	case Single:
		if n > 1 {
			return fmt.Errorf("%w: %d selected in single mode", change.ErrIllegalState, n)
		}
	case SingleInterval:
		if n > 0 && s.MaxSelectionIndex()-s.MinSelectionIndex()+1 != n {
			return fmt.Errorf("%w: selection not contiguous", change.ErrIllegalState)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Listeners and matchers
// -----------------------------------------------------------------------------

// AddSelectionListener registers l and returns its registration id.
func (s *Selection[T]) AddSelectionListener(l Listener) string {
	id := uuid.NewString()
	s.listeners = append(s.listeners, listenerEntry{id: id, listener: l})
	return id
}

// RemoveSelectionListener removes a registration.
func (s *Selection[T]) RemoveSelectionListener(id string) bool {
	for i, e := range s.listeners {
		if e.id == id {
			s.listeners = slices.Delete(slices.Clone(s.listeners), i, i+1)
			return true
		}
	}
	return false
}

// AddValidSelectionMatcher restricts which elements may be selected and
// deselects every selected element the matcher rejects.
//
// Outputs:
//   - string: The registration id.
//   - error: Non-nil if a source element could not be read.
func (s *Selection[T]) AddValidSelectionMatcher(m Matcher[T]) (string, error) {
	id := uuid.NewString()
	s.matchers = append(s.matchers, matcherEntry[T]{id: id, matcher: m})

	err := s.mutate("add_matcher", func() error {
		it := s.bar.Iterator()
		for it.NextColor(selected) {
			p := it.Position()
			v, err := s.source.Get(p)
			if err != nil {
				return err
			}
			if !m(v) {
				if err := s.setColor(p, false); err != nil {
					return err
				}
			}
		}
		return nil
	})
	return id, err
}

// RemoveValidSelectionMatcher removes a matcher. The selection is not
// changed.
func (s *Selection[T]) RemoveValidSelectionMatcher(id string) bool {
	for i, e := range s.matchers {
		if e.id == id {
			s.matchers = slices.Delete(s.matchers, i, i+1)
			return true
		}
	}
	return false
}

func (s *Selection[T]) eligibleValue(v T) bool {
	for _, e := range s.matchers {
		if !e.matcher(v) {
			return false
		}
	}
	return true
}

func (s *Selection[T]) eligibleAt(index int) (bool, error) {
	if len(s.matchers) == 0 {
		return true, nil
	}
	v, err := s.source.Get(index)
	if err != nil {
		return false, err
	}
	return s.eligibleValue(v), nil
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Dispose disposes every view and stops tracking the source. The Selection
// must not be used afterwards.
func (s *Selection[T]) Dispose() {
	for _, v := range s.views() {
		v.Dispose()
	}
	s.selectedView, s.deselectedView = nil, nil
	s.togglingSelectedView, s.togglingDeselectedView = nil, nil
	s.source.RemoveListener(s.sourceListenerID)
}
