// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package script

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/glazedlists/glazedlists-sub004/services/sequence/journal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, doc string, opts ...RunnerOption) (*Runner, error) {
	t.Helper()
	s, err := Parse([]byte(doc))
	require.NoError(t, err)
	r, err := NewRunner(context.Background(), s, opts...)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r, r.Run(context.Background())
}

func TestParse_Valid(t *testing.T) {
	s, err := Parse([]byte(`
name: demo
initial: [a, b, c]
mode: single_interval
undo_limit: 10
window: {start: 0, end: 2}
steps:
  - {op: select, start: 0, end: 1}
  - op: expect
    expect: {selected_indices: [0, 1]}
`))
	require.NoError(t, err)
	assert.Equal(t, "demo", s.Name)
	assert.Equal(t, []string{"a", "b", "c"}, s.Initial)
	assert.Equal(t, 2, s.Window.End)
	require.Len(t, s.Steps, 2)
	assert.Equal(t, []int{0, 1}, s.Steps[1].Expect.SelectedIndices)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", ``},
		{"no name", "steps: [{op: print}]"},
		{"no steps", "name: x"},
		{"unknown op", "name: x\nsteps: [{op: explode}]"},
		{"unknown field", "name: x\ncolour: red\nsteps: [{op: print}]"},
		{"bad mode", "name: x\nmode: some\nsteps: [{op: print}]"},
		{"mode op without mode", "name: x\nsteps: [{op: mode}]"},
		{"reorder without perm", "name: x\nsteps: [{op: reorder}]"},
		{"expect without checks", "name: x\nsteps: [{op: expect}]"},
		{"indices missing", "name: x\nsteps: [{op: select_indices}]"},
		{"negative undo limit", "name: x\nundo_limit: -1\nsteps: [{op: print}]"},
		{"inverted window", "name: x\nwindow: {start: 2, end: 1}\nsteps: [{op: print}]"},
		{"journal without session", "name: x\njournal: {in_memory: true}\nsteps: [{op: print}]"},
		{"journal without path", "name: x\njournal: {session_id: s}\nsteps: [{op: print}]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.ErrorIs(t, err, ErrInvalidScript)
		})
	}
}

func TestParse_EveryOpIsAccepted(t *testing.T) {
	var b strings.Builder
	b.WriteString("name: ops\nsteps:\n")
	for _, op := range Ops {
		fmt.Fprintf(&b, "  - {op: %s, indices: [0], perm: [0], mode: single, expect: {}}\n", op)
	}
	_, err := Parse([]byte(b.String()))
	assert.NoError(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: f\nsteps: [{op: print}]\n"), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "f", s.Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRunner_InsertBeforeSelection(t *testing.T) {
	r, err := run(t, `
name: insert-before-selection
initial: [a, b, c]
steps:
  - {op: select, start: 1, end: 1}
  - {op: add, index: 1, value: x}
  - op: expect
    expect:
      list: [a, x, b, c]
      selected: [b]
      deselected: [a, x, c]
      selected_indices: [2]
      anchor: 2
      lead: 2
`)
	require.NoError(t, err)
	assert.Equal(t, "multiple_interval", r.State().Mode)
}

func TestRunner_UndoRedo(t *testing.T) {
	_, err := run(t, `
name: undo
initial: [a, b, c]
steps:
  - {op: add, index: 1, value: x}
  - {op: set, index: 0, value: A}
  - {op: undo}
  - op: expect
    expect: {list: [a, x, b, c], can_undo: true, can_redo: true}
  - {op: undo}
  - op: expect
    expect: {list: [a, b, c], can_undo: false}
  - {op: redo}
  - {op: redo}
  - op: expect
    expect: {list: [A, x, b, c], can_redo: false}
`)
	require.NoError(t, err)
}

func TestRunner_Rollback(t *testing.T) {
	_, err := run(t, `
name: rollback
initial: [a, b, c]
steps:
  - {op: begin}
  - {op: add, index: 0, value: x}
  - {op: set, index: 1, value: B}
  - {op: remove, index: 2}
  - op: expect
    expect: {list: [x, B, c], depth: 1}
  - {op: rollback}
  - op: expect
    expect: {list: [a, b, c], depth: 0}
`)
	require.NoError(t, err)
}

func TestRunner_SortAndReorder(t *testing.T) {
	_, err := run(t, `
name: sort
initial: [b, c, a]
steps:
  - {op: select, start: 0, end: 0}
  - {op: sort}
  - op: expect
    expect: {list: [a, b, c], selected: [b]}
  - {op: sort, descending: true}
  - op: expect
    expect: {list: [c, b, a]}
  - {op: reorder, perm: [2, 1, 0]}
  - op: expect
    expect: {list: [a, b, c], selected_indices: [1]}
`)
	require.NoError(t, err)
}

func TestRunner_FilterAndWindow(t *testing.T) {
	_, err := run(t, `
name: views
initial: [apple, avocado, banana, cherry]
filter: a
window: {start: 1, end: 3}
steps:
  - op: expect
    expect: {filtered: [apple, avocado], window: [avocado, banana]}
  - {op: filter, value: b}
  - {op: window, start: 0, end: 1}
  - op: expect
    expect: {filtered: [banana], window: [apple]}
  - {op: append, value: blueberry}
  - {op: filter}
  - op: expect
    expect: {filtered: [apple, avocado, banana, cherry, blueberry]}
`)
	require.NoError(t, err)
}

func TestRunner_SelectionModes(t *testing.T) {
	_, err := run(t, `
name: modes
initial: [a, b, c, d, e]
steps:
  - {op: select_indices, indices: [0, 2, 4]}
  - {op: invert}
  - op: expect
    expect: {selected_indices: [1, 3]}
  - {op: mode, mode: single}
  - op: expect
    expect: {selected_indices: []}
  - {op: select, start: 1, end: 3}
  - op: expect
    expect: {selected: [d]}
  - {op: mode, mode: multiple_interval}
  - {op: set_selection_indices, indices: [1, 2]}
  - {op: deselect_indices, indices: [2]}
  - op: expect
    expect: {selected_indices: [1]}
  - {op: select_all}
  - {op: deselect, start: 0, end: 3}
  - op: expect
    expect: {selected: [e]}
  - {op: deselect_all}
  - {op: set_selection, start: 2, end: 3}
  - op: expect
    expect: {selected: [c, d], anchor: 2, lead: 3}
`)
	require.NoError(t, err)
}

func TestRunner_FailedExpectation(t *testing.T) {
	_, err := run(t, `
name: fail
initial: [a]
steps:
  - {op: print}
  - op: expect
    expect: {list: [b], can_undo: true}
`)
	require.ErrorIs(t, err, ErrExpectation)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, 1, stepErr.Index)
	assert.Equal(t, "expect", stepErr.Op)
	assert.Contains(t, err.Error(), "list: want [b], got [a]")
	assert.Contains(t, err.Error(), "can_undo: want true, got false")
}

func TestRunner_OperationError(t *testing.T) {
	_, err := run(t, `
name: bad-index
initial: [a]
steps:
  - {op: remove, index: 5}
`)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "remove", stepErr.Op)
}

func TestRunner_CheckpointNeedsJournal(t *testing.T) {
	_, err := run(t, "name: cp\nsteps: [{op: checkpoint}]")
	assert.ErrorIs(t, err, ErrInvalidScript)
}

func TestRunner_InvalidWindow(t *testing.T) {
	s, err := Parse([]byte("name: w\ninitial: [a]\nwindow: {start: 0, end: 4}\nsteps: [{op: print}]"))
	require.NoError(t, err)
	_, err = NewRunner(context.Background(), s)
	assert.Error(t, err)
}

func TestRunner_Print(t *testing.T) {
	var out bytes.Buffer
	_, err := run(t, "name: p\ninitial: [a]\nsteps: [{op: print}]", WithOutput(&out))
	require.NoError(t, err)
	assert.Contains(t, out.String(), "mode: multiple_interval")
	assert.Contains(t, out.String(), "can_undo: false")
}

func TestRunner_JournalResume(t *testing.T) {
	j, err := journal.Open[string](journal.Config{InMemory: true, SessionID: "resume"})
	require.NoError(t, err)
	defer j.Close()

	_, err = run(t, `
name: first
initial: [a]
steps:
  - {op: append, value: b}
  - {op: add, index: 0, value: z}
`, WithJournal(j))
	require.NoError(t, err)

	r, err := run(t, `
name: second
initial: [a]
steps:
  - op: expect
    expect: {list: [z, a, b]}
  - {op: remove, index: 0}
  - {op: checkpoint}
  - {op: undo}
`, WithJournal(j))
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a", "b"}, r.State().List)

	restored, err := j.Restore(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a", "b"}, restored.Snapshot())
	assert.Equal(t, uint64(1), j.Stats().LastSeq-j.Stats().CheckpointSeq)
}
