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

// DefaultLimit is the undo depth used when none is configured.
const DefaultLimit = 100

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLimit bounds the number of edits kept. Older edits are dropped first.
// Values below 1 mean DefaultLimit.
func WithLimit(limit int) ManagerOption {
	return func(m *Manager) {
		if limit > 0 {
			m.limit = limit
		}
	}
}

// WithManagerLogger sets the logger. Defaults to slog.Default().
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// Manager keeps a bounded history of edits with an undo/redo cursor.
//
// Description:
//
//	Edits before the cursor can be undone, edits after it can be redone.
//	A new edit discards everything after the cursor.
//
// Thread Safety: NOT safe for concurrent use. Undo and Redo mutate the
// target, so callers hold its write lock.
type Manager struct {
	edits  []Edit
	cursor int
	limit  int
	logger *slog.Logger
}

// NewManager creates an empty Manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{limit: DefaultLimit, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(slog.String("component", "undo.Manager"))
	return m
}

// EditHappened pushes e, dropping the redo tail and the oldest edits beyond
// the limit.
func (m *Manager) EditHappened(e Edit) {
	m.edits = append(m.edits[:m.cursor], e)
	if over := len(m.edits) - m.limit; over > 0 {
		m.edits = m.edits[over:]
	}
	m.cursor = len(m.edits)
}

// CanUndo reports whether Undo would succeed.
func (m *Manager) CanUndo() bool {
	return m.cursor > 0 && m.edits[m.cursor-1].CanUndo()
}

// CanRedo reports whether Redo would succeed.
func (m *Manager) CanRedo() bool {
	return m.cursor < len(m.edits) && m.edits[m.cursor].CanRedo()
}

// Undo reverts the most recent edit.
//
// Outputs:
//   - error: change.ErrIllegalState when nothing can be undone, or the
//     replay error. A failed edit stays on the stack.
func (m *Manager) Undo() error {
	if !m.CanUndo() {
		return fmt.Errorf("%w: nothing to undo", change.ErrIllegalState)
	}
	e := m.edits[m.cursor-1]
	if err := e.Undo(); err != nil {
		m.logger.Warn("undo failed", slog.String("edit", e.String()), slog.String("error", err.Error()))
		return err
	}
	m.cursor--
	recordReplay(context.Background(), "undo")
	return nil
}

// Redo re-applies the most recently undone edit.
//
// Outputs:
//   - error: change.ErrIllegalState when nothing can be redone, or the
//     replay error.
func (m *Manager) Redo() error {
	if !m.CanRedo() {
		return fmt.Errorf("%w: nothing to redo", change.ErrIllegalState)
	}
	e := m.edits[m.cursor]
	if err := e.Redo(); err != nil {
		m.logger.Warn("redo failed", slog.String("edit", e.String()), slog.String("error", err.Error()))
		return err
	}
	m.cursor++
	recordReplay(context.Background(), "redo")
	return nil
}

// Clear drops the whole history.
func (m *Manager) Clear() {
	m.edits = nil
	m.cursor = 0
}

// Len returns the number of edits held, undoable or redoable.
func (m *Manager) Len() int {
	return len(m.edits)
}
