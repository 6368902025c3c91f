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
	"fmt"
	"log/slog"

	"github.com/glazedlists/glazedlists-sub004/services/sequence/change"
)

// TransactionList wraps a target with transactions that can be rolled back.
//
// Description:
//
//	Every method of the target stays available. BeginEvent always opens a
//	buffered context. RollbackEvent reverts the changes of the innermost
//	open transaction and closes it: listeners see one net event, or none
//	if the outer transaction is still open.
//
// Thread Safety: NOT safe for concurrent use.
type TransactionList[T any] struct {
	Target[T]
	depth  int
	logger *slog.Logger
}

// NewTransactionList wraps target.
func NewTransactionList[T any](target Target[T], opts ...Option) (*TransactionList[T], error) {
	if target == nil {
		return nil, fmt.Errorf("%w: nil target", change.ErrIllegalArgument)
	}
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &TransactionList[T]{
		Target: target,
		logger: o.logger.With(slog.String("component", "undo.TransactionList")),
	}, nil
}

// Depth returns the number of open transactions.
func (tl *TransactionList[T]) Depth() int {
	return tl.depth
}

// BeginEvent opens a buffered transaction.
func (tl *TransactionList[T]) BeginEvent() {
	tl.Target.BeginEvent(true)
	tl.depth++
}

// CommitEvent closes the innermost transaction, publishing when it is the
// outermost.
func (tl *TransactionList[T]) CommitEvent() error {
	if tl.depth == 0 {
		return fmt.Errorf("%w: commit without begin", change.ErrIllegalState)
	}
	tl.depth--
	return tl.Target.CommitEvent()
}

// DiscardEvent closes the innermost transaction without publishing it and
// without reverting the target.
func (tl *TransactionList[T]) DiscardEvent() error {
	if tl.depth == 0 {
		return fmt.Errorf("%w: discard without begin", change.ErrIllegalState)
	}
	tl.depth--
	return tl.Target.DiscardEvent()
}

// RollbackEvent reverts and closes the innermost transaction.
//
// Description:
//
//	The blocks recorded since the matching BeginEvent are inverted in
//	reverse order and applied to the target while the transaction is
//	still open, then the transaction is committed. The assembler cancels
//	each insert against its inverse delete, so the published event holds
//	only what could not cancel.
//
// Outputs:
//   - error: change.ErrIllegalState without an open transaction, or the
//     first error from applying an inverse. The transaction is closed in
//     either case.
func (tl *TransactionList[T]) RollbackEvent() error {
	if tl.depth == 0 {
		return fmt.Errorf("%w: rollback without begin", change.ErrIllegalState)
	}
	blocks := tl.Updates().ContextBlocks()

	var err error
	for i := len(blocks) - 1; i >= 0 && err == nil; i-- {
		err = tl.invert(blocks[i])
	}
	tl.depth--
	if cerr := tl.Target.CommitEvent(); cerr != nil && err == nil {
		err = cerr
	}
	recordRollback(context.Background(), err == nil)
	if err != nil {
		tl.logger.Error("rollback failed", slog.Int("blocks", len(blocks)), slog.String("error", err.Error()))
		return err
	}
	tl.logger.Debug("rolled back", slog.Int("blocks", len(blocks)))
	return nil
}

func (tl *TransactionList[T]) invert(b change.Block[T]) error {
	switch b.Kind {
	case change.Insert:
		_, err := tl.Remove(b.Index)
		return err
	case change.Delete:
		return tl.Add(b.Index, b.Old)
	case change.Update:
		_, err := tl.Set(b.Index, b.Old)
		return err
	}
	return nil
}
