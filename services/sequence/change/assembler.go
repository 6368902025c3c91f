// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package change

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Listeners
// -----------------------------------------------------------------------------

// Listener receives published events.
//
// ListChanged is invoked synchronously during the outermost commit, after
// the sequence reached its final state for the transaction. It must not
// mutate the sequence that is publishing.
type Listener[T any] interface {
	ListChanged(ev *Event[T])
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc[T any] func(ev *Event[T])

// ListChanged calls f(ev).
func (f ListenerFunc[T]) ListChanged(ev *Event[T]) {
	f(ev)
}

type registration[T any] struct {
	id       string
	listener Listener[T]
}

// -----------------------------------------------------------------------------
// Options
// -----------------------------------------------------------------------------

type options struct {
	name   string
	logger *slog.Logger
}

// Option configures an Assembler.
type Option func(*options)

// WithName sets the name used in log records.
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
// Assembler
// -----------------------------------------------------------------------------

// txContext is one open BeginEvent.
type txContext struct {
	buffered bool

	// floor is the number of pending blocks when the context began.
	// Coalescing never merges a block with one below the floor.
	floor int
}

// Assembler accumulates element changes into events and publishes them.
//
// Description:
//
//	Each observable sequence owns one Assembler. Mutations call BeginEvent,
//	report their element changes, then CommitEvent. The outermost commit
//	freezes the pending blocks into an Event and invokes every listener once
//	in registration order.
//
// Invariants:
//   - Depth() >= 0
//   - Pending blocks replay in order against the last published state
//   - A pending reorder and pending blocks never coexist
//
// Thread Safety: NOT safe for concurrent use. Callers hold the sequence's
// write lock for the whole transaction.
type Assembler[T any] struct {
	name   string
	logger *slog.Logger

	contexts []txContext

	blocks       []Block[T]
	reorder      []int
	reorderAfter []T

	// dirty is true when an element operation was recorded since the last
	// publication, even if coalescing cancelled it.
	dirty bool

	seq       uint64
	listeners []registration[T]
}

// NewAssembler creates an Assembler with no open transaction.
//
// Inputs:
//   - opts: Optional name and logger.
//
// Outputs:
//   - *Assembler[T]: The new assembler. Never nil.
func NewAssembler[T any](opts ...Option) *Assembler[T] {
	o := options{name: "sequence"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return &Assembler[T]{
		name:   o.name,
		logger: o.logger.With(slog.String("component", "assembler"), slog.String("sequence", o.name)),
	}
}

// Name returns the assembler name.
func (a *Assembler[T]) Name() string {
	return a.name
}

// Depth returns the number of open transaction contexts.
func (a *Assembler[T]) Depth() int {
	return len(a.contexts)
}

// Pending reports whether changes were recorded but not yet published.
func (a *Assembler[T]) Pending() bool {
	return a.dirty
}

// LastSeq returns the sequence number of the last published event.
func (a *Assembler[T]) LastSeq() uint64 {
	return a.seq
}

// BeginEvent opens a transaction context.
//
// Description:
//
//	The outermost begin opens a new pending event. A nested buffered begin
//	is a sub-scope that the outer commit subsumes. While the innermost open
//	context is unbuffered, every element operation is published at once,
//	together with anything recorded before it.
//
// Inputs:
//   - buffered: Whether element operations accumulate until commit.
func (a *Assembler[T]) BeginEvent(buffered bool) {
	if len(a.contexts) > 0 {
		a.decomposeReorder()
	}
	a.contexts = append(a.contexts, txContext{buffered: buffered, floor: len(a.blocks)})
}

// CommitEvent closes the innermost context.
//
// Description:
//
//	Publishes the pending event when the outermost context closes and an
//	element operation happened since the last publication. An event whose
//	blocks all cancelled is still published, with zero blocks.
//
// Outputs:
//   - error: ErrIllegalState if no context is open.
func (a *Assembler[T]) CommitEvent() error {
	if len(a.contexts) == 0 {
		return fmt.Errorf("%w: commit without matching begin on %s", ErrIllegalState, a.name)
	}
	a.contexts = a.contexts[:len(a.contexts)-1]
	if len(a.contexts) == 0 && a.dirty {
		a.publish()
	}
	return nil
}

// DiscardEvent closes the innermost context without publishing it.
//
// Description:
//
//	Drops the blocks recorded in the closed context. The sequence storage
//	is not touched: the caller either reverted it already or accepts that
//	listeners are out of sync.
//
// Outputs:
//   - error: ErrIllegalState if no context is open.
func (a *Assembler[T]) DiscardEvent() error {
	if len(a.contexts) == 0 {
		return fmt.Errorf("%w: discard without matching begin on %s", ErrIllegalState, a.name)
	}
	ctx := a.contexts[len(a.contexts)-1]
	a.contexts = a.contexts[:len(a.contexts)-1]

	if len(a.contexts) == 0 {
		a.reset()
		a.logger.Debug("event discarded")
		return nil
	}

	// A pending reorder always belongs to the innermost context, since
	// nested begins decompose any earlier one.
	a.reorder, a.reorderAfter = nil, nil
	if ctx.floor < len(a.blocks) {
		a.blocks = a.blocks[:ctx.floor]
	}
	return nil
}

// ContextBlocks returns a copy of the blocks recorded by the innermost open
// context. A pending reorder is first decomposed into update blocks.
func (a *Assembler[T]) ContextBlocks() []Block[T] {
	a.decomposeReorder()
	floor := a.floor()
	if floor >= len(a.blocks) {
		return nil
	}
	return slices.Clone(a.blocks[floor:])
}

// ElementInserted records an insert of value at index.
func (a *Assembler[T]) ElementInserted(index int, value T) {
	a.record(Block[T]{Index: index, Kind: Insert, New: value})
}

// ElementUpdated records that the element at index changed from old to new.
func (a *Assembler[T]) ElementUpdated(index int, old, new T) {
	a.record(Block[T]{Index: index, Kind: Update, Old: old, New: new})
}

// ElementDeleted records the removal of old from index.
func (a *Assembler[T]) ElementDeleted(index int, old T) {
	a.record(Block[T]{Index: index, Kind: Delete, Old: old})
}

// ElementsReordered records a permutation of the whole sequence.
//
// Description:
//
//	perm[i] is the pre-reorder index of the element now at i. after holds
//	the post-reorder contents and is used only when the reorder has to be
//	expressed as update blocks, which happens when other changes are
//	pending in the same event. Consecutive reorders compose.
//
// Inputs:
//   - perm: The permutation. Must have the sequence's length.
//   - after: The contents after the reorder. Same length as perm.
func (a *Assembler[T]) ElementsReordered(perm []int, after []T) {
	if len(perm) == 0 {
		return
	}
	if len(a.contexts) == 0 {
		a.BeginEvent(false)
		defer a.CommitEvent()
	}

	switch {
	case len(a.blocks) > 0:
		blocksCoalescedTotal.WithLabelValues(coalesceReorder).Inc()
		a.appendReorderUpdates(perm, after)
	case a.reorder != nil:
		combined := make([]int, len(perm))
		for i, p := range perm {
			combined[i] = a.reorder[p]
		}
		a.reorder = combined
		a.reorderAfter = slices.Clone(after)
	default:
		a.reorder = slices.Clone(perm)
		a.reorderAfter = slices.Clone(after)
	}

	a.dirty = true
	if !a.contexts[len(a.contexts)-1].buffered {
		a.publish()
	}
}

// AddListener registers a listener and returns its registration id.
//
// Listeners are invoked in registration order.
func (a *Assembler[T]) AddListener(l Listener[T]) string {
	id := uuid.NewString()
	a.listeners = append(a.listeners, registration[T]{id: id, listener: l})
	return id
}

// RemoveListener removes the registration with the given id.
//
// Outputs:
//   - bool: True if the registration existed.
func (a *Assembler[T]) RemoveListener(id string) bool {
	for i, r := range a.listeners {
		if r.id == id {
			a.listeners = slices.Delete(slices.Clone(a.listeners), i, i+1)
			return true
		}
	}
	return false
}

// Listeners returns the number of registered listeners.
func (a *Assembler[T]) Listeners() int {
	return len(a.listeners)
}

// -----------------------------------------------------------------------------
// Internals
// -----------------------------------------------------------------------------

func (a *Assembler[T]) floor() int {
	if len(a.contexts) == 0 {
		return 0
	}
	return a.contexts[len(a.contexts)-1].floor
}

// record appends b, opening an implicit unbuffered transaction when none
// is open.
func (a *Assembler[T]) record(b Block[T]) {
	if len(a.contexts) == 0 {
		a.BeginEvent(false)
		defer a.CommitEvent()
	}

	a.decomposeReorder()
	a.appendBlock(b)
	a.dirty = true

	if !a.contexts[len(a.contexts)-1].buffered {
		a.publish()
	}
}

// appendBlock adds b to the pending blocks, coalescing with the last block
// when both touch the same index within the current context.
func (a *Assembler[T]) appendBlock(b Block[T]) {
	n := len(a.blocks)
	if n > a.floor() {
		last := &a.blocks[n-1]
		if last.Index == b.Index {
			switch {
			case b.Kind == Update && last.Kind == Insert:
				last.New = b.New
				blocksCoalescedTotal.WithLabelValues(coalesceInsertUpdate).Inc()
				return
			case b.Kind == Update && last.Kind == Update:
				last.New = b.New
				blocksCoalescedTotal.WithLabelValues(coalesceUpdateUpdate).Inc()
				return
			case b.Kind == Delete && last.Kind == Insert:
				a.blocks = a.blocks[:n-1]
				blocksCoalescedTotal.WithLabelValues(coalesceInsertDelete).Inc()
				return
			case b.Kind == Delete && last.Kind == Update:
				var zero T
				last.Kind = Delete
				last.New = zero
				blocksCoalescedTotal.WithLabelValues(coalesceUpdateDelete).Inc()
				return
			}
		}
	}
	a.blocks = append(a.blocks, b)
}

// decomposeReorder turns a pending reorder into update blocks.
func (a *Assembler[T]) decomposeReorder() {
	if a.reorder == nil {
		return
	}
	perm, after := a.reorder, a.reorderAfter
	a.reorder, a.reorderAfter = nil, nil
	blocksCoalescedTotal.WithLabelValues(coalesceReorder).Inc()
	a.appendReorderUpdates(perm, after)
}

// appendReorderUpdates expresses perm as updates of every moved position.
// The value that was at i before the reorder is now at inv[i].
func (a *Assembler[T]) appendReorderUpdates(perm []int, after []T) {
	inv := InversePermutation(perm)
	for i, from := range perm {
		if from == i {
			continue
		}
		a.appendBlock(Block[T]{Index: i, Kind: Update, Old: after[inv[i]], New: after[i]})
	}
}

// reset drops all pending state.
func (a *Assembler[T]) reset() {
	a.blocks = nil
	a.reorder, a.reorderAfter = nil, nil
	a.dirty = false
}

// publish freezes the pending changes into an event and dispatches it.
func (a *Assembler[T]) publish() {
	a.seq++
	ev := &Event[T]{
		Seq:     a.seq,
		Blocks:  a.blocks,
		Reorder: a.reorder,
	}
	a.reset()
	for i := range a.contexts {
		a.contexts[i].floor = 0
	}

	recordPublished(ev)

	// Snapshot so listeners may (de)register during dispatch.
	listeners := slices.Clone(a.listeners)
	start := time.Now()
	for _, r := range listeners {
		r.listener.ListChanged(ev)
	}
	elapsed := time.Since(start)
	dispatchDuration.Observe(elapsed.Seconds())

	a.logger.Debug("event published",
		slog.Uint64("seq", ev.Seq),
		slog.Int("blocks", len(ev.Blocks)),
		slog.Bool("reorder", ev.Reorder != nil),
		slog.Int("listeners", len(listeners)),
		slog.Duration("dispatch", elapsed),
	)
}
