// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package undo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/glazedlists/glazedlists-sub004/services/sequence/change"
	"github.com/glazedlists/glazedlists-sub004/services/sequence/list"
)

// Target is a writable sequence whose changes can be captured and replayed.
// list.BasicList satisfies it.
type Target[T any] interface {
	list.Sequence[T]
	BeginEvent(buffered bool)
	CommitEvent() error
	DiscardEvent() error
	Reorder(perm []int) error
	Updates() *change.Assembler[T]
}

// Option configures a Support.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Support captures the events of one target as edits.
//
// Description:
//
//	Support keeps a shadow copy of the target's elements in lock-step with
//	every event, so the value of a removed or replaced element is known
//	even when an event does not carry it.
//
//	While one of its own edits is replaying, the guard counter is positive
//	and published events only update the shadow. The counter nests, so an
//	undo that triggers a redo stays suppressed.
//
// Thread Safety: NOT safe for concurrent use. Callers hold the target's
// write lock.
type Support[T any] struct {
	target     Target[T]
	listener   EditListener
	prior      []T
	guard      int
	listenerID string
	logger     *slog.Logger
}

// Install starts capturing edits of target and hands them to listener.
//
// Inputs:
//   - listener: Receives every captured edit. A Manager is the usual choice.
//   - target: The sequence to observe.
//
// Outputs:
//   - *Support[T]: The installed support. Call Uninstall to stop capturing.
//   - error: change.ErrIllegalArgument if either argument is nil.
func Install[T any](listener EditListener, target Target[T], opts ...Option) (*Support[T], error) {
	if listener == nil || target == nil {
		return nil, fmt.Errorf("%w: undo support needs a listener and a target", change.ErrIllegalArgument)
	}
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Support[T]{
		target:   target,
		listener: listener,
		prior:    list.Snapshot[T](target),
		logger:   o.logger.With(slog.String("component", "undo.Support")),
	}
	s.listenerID = target.AddListener(change.ListenerFunc[T](s.ListChanged))
	return s, nil
}

// Uninstall stops capturing. Edits already handed out keep working.
func (s *Support[T]) Uninstall() {
	if s.listenerID == "" {
		return
	}
	s.target.RemoveListener(s.listenerID)
	s.listenerID = ""
	s.prior = nil
}

// Replaying reports whether one of this support's edits is running.
func (s *Support[T]) Replaying() bool {
	return s.guard > 0
}

// ListChanged updates the shadow list and, outside of a replay, emits the
// edit for ev.
func (s *Support[T]) ListChanged(ev *change.Event[T]) {
	capture := s.guard == 0
	var edits []Edit

	if ev.IsReorder() {
		next := make([]T, len(s.prior))
		for i, from := range ev.Reorder {
			next[i] = s.prior[from]
		}
		s.prior = next
		if capture {
			edits = append(edits, &ReorderEdit[T]{support: s, perm: slices.Clone(ev.Reorder)})
		}
	}

	for _, b := range ev.Blocks {
		switch b.Kind {
		case change.Insert:
			s.prior = slices.Insert(s.prior, b.Index, b.New)
			if capture {
				edits = append(edits, &AddEdit[T]{support: s, index: b.Index, value: b.New})
			}
		case change.Delete:
			old := s.prior[b.Index]
			s.prior = slices.Delete(s.prior, b.Index, b.Index+1)
			if capture {
				edits = append(edits, &RemoveEdit[T]{support: s, index: b.Index, value: old})
			}
		case change.Update:
			old := s.prior[b.Index]
			s.prior[b.Index] = b.New
			if capture && !change.Same(old, b.New) {
				edits = append(edits, &UpdateEdit[T]{support: s, index: b.Index, old: old, new: b.New})
			}
		}
	}

	if !capture || len(edits) == 0 {
		return
	}
	var e Edit = edits[0]
	if len(edits) > 1 {
		e = &CompositeEdit{edits: edits, batch: s.batch}
	}
	recordCaptured(context.Background(), len(edits))
	s.logger.Debug("edit captured", slog.Uint64("seq", ev.Seq), slog.String("edit", e.String()))
	s.listener.EditHappened(e)
}

// replay runs fn against the target inside one buffered transaction with
// capture suppressed.
func (s *Support[T]) replay(fn func(Target[T]) error) error {
	s.guard++
	defer func() { s.guard-- }()

	s.target.BeginEvent(true)
	err := fn(s.target)
	if cerr := s.target.CommitEvent(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return err
}

func (s *Support[T]) batch(fn func() error) error {
	return s.replay(func(Target[T]) error { return fn() })
}
