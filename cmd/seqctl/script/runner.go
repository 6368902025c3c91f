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
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/glazedlists/glazedlists-sub004/services/sequence/journal"
	"github.com/glazedlists/glazedlists-sub004/services/sequence/list"
	"github.com/glazedlists/glazedlists-sub004/services/sequence/selection"
	"github.com/glazedlists/glazedlists-sub004/services/sequence/undo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// STATE
// =============================================================================

// State is a point-in-time view of a runner, printed by print steps and by
// the CLI after a run.
type State struct {
	List            []string `yaml:"list"`
	Selected        []string `yaml:"selected"`
	Deselected      []string `yaml:"deselected"`
	SelectedIndices []int    `yaml:"selected_indices"`
	Filtered        []string `yaml:"filtered"`
	Window          []string `yaml:"window"`
	Mode            string   `yaml:"mode"`
	Anchor          int      `yaml:"anchor"`
	Lead            int      `yaml:"lead"`
	CanUndo         bool     `yaml:"can_undo"`
	CanRedo         bool     `yaml:"can_redo"`
	Depth           int      `yaml:"depth"`
}

// StepError reports the step that failed.
type StepError struct {
	Index int
	Op    string
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index, e.Op, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// =============================================================================
// RUNNER
// =============================================================================

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithOutput sets where print steps write. Defaults to io.Discard.
func WithOutput(w io.Writer) RunnerOption {
	return func(r *Runner) {
		r.out = w
	}
}

// WithJournal records every published event in j and restores the starting
// elements from it. The caller keeps ownership of j.
func WithJournal(j *journal.BadgerJournal[string]) RunnerOption {
	return func(r *Runner) {
		r.journal = j
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// Runner executes a script against a string sequence.
//
// Description:
//
//	The runner owns a BasicList wrapped in a TransactionList, a Selection
//	with its selected and deselected views, a prefix FilterList, a
//	RangeList window, and an undo Manager fed by an installed Support.
//	When a journal is attached, the list starts from the journal's
//	restored state and every published event is appended to it.
//
// Thread Safety: NOT safe for concurrent use.
type Runner struct {
	script *Script

	list       *list.BasicList[string]
	tx         *undo.TransactionList[string]
	sel        *selection.Selection[string]
	selected   *list.TransformView[string]
	deselected *list.TransformView[string]
	filtered   *list.FilterList[string]
	window     *list.RangeList[string]
	history    *undo.Manager
	support    *undo.Support[string]
	journal    *journal.BadgerJournal[string]
	journalID  string

	out    io.Writer
	logger *slog.Logger
}

// NewRunner wires the sequence, its views and the undo history for s.
//
// Inputs:
//   - ctx: Used to restore from an attached journal.
//   - s: A validated script.
//   - opts: Output, journal and logger.
//
// Outputs:
//   - *Runner: Ready to Run. Call Close when done.
//   - error: A journal restore failure or an invalid window or mode.
func NewRunner(ctx context.Context, s *Script, opts ...RunnerOption) (*Runner, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil script", ErrInvalidScript)
	}
	r := &Runner{script: s, out: io.Discard, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(slog.String("component", "script"), slog.String("script", s.Name))

	listOpts := []list.Option{list.WithName(s.Name), list.WithLogger(r.logger)}
	if r.journal != nil {
		l, err := r.journal.Restore(ctx, slices.Clone(s.Initial), listOpts...)
		if err != nil {
			return nil, fmt.Errorf("restore from journal: %w", err)
		}
		r.list = l
	} else {
		r.list = list.NewBasicList(slices.Clone(s.Initial), listOpts...)
	}

	if err := r.wire(); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func (r *Runner) wire() error {
	var err error
	if r.tx, err = undo.NewTransactionList[string](r.list, undo.WithLogger(r.logger)); err != nil {
		return err
	}

	mode := selection.MultipleInterval
	if r.script.Mode != "" {
		if mode, err = selection.ParseMode(r.script.Mode); err != nil {
			return err
		}
	}
	if r.sel, err = selection.New[string](r.list, selection.WithMode(mode), selection.WithLogger(r.logger)); err != nil {
		return err
	}
	if r.selected, err = r.sel.Selected(); err != nil {
		return err
	}
	if r.deselected, err = r.sel.Deselected(); err != nil {
		return err
	}

	if r.filtered, err = list.NewFilterList[string](r.list, prefixMatcher(r.script.Filter), list.WithLogger(r.logger)); err != nil {
		return err
	}
	start, end := 0, r.list.Size()
	if w := r.script.Window; w != nil {
		start, end = w.Start, w.End
	}
	if r.window, err = list.NewRangeList[string](r.list, start, end, list.WithLogger(r.logger)); err != nil {
		return fmt.Errorf("window: %w", err)
	}

	var historyOpts []undo.ManagerOption
	if r.script.UndoLimit > 0 {
		historyOpts = append(historyOpts, undo.WithLimit(r.script.UndoLimit))
	}
	r.history = undo.NewManager(append(historyOpts, undo.WithManagerLogger(r.logger))...)
	if r.support, err = undo.Install[string](r.history, r.list, undo.WithLogger(r.logger)); err != nil {
		return err
	}

	if r.journal != nil {
		r.journalID = r.list.AddListener(r.journal)
	}
	return nil
}

// Run executes every step in order and stops at the first failure.
//
// Outputs:
//   - error: A *StepError wrapping the cause, ErrExpectation for a failed
//     expect step, or a journal append failure.
func (r *Runner) Run(ctx context.Context) error {
	ctx, span := otel.Tracer("seqctl").Start(ctx, "script.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("script", r.script.Name),
		attribute.Int("steps", len(r.script.Steps)),
	)

	for i, step := range r.script.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.step(ctx, step); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, step.Op)
			return &StepError{Index: i, Op: step.Op, Err: err}
		}
		if r.journal != nil {
			if err := r.journal.Err(); err != nil {
				return &StepError{Index: i, Op: step.Op, Err: fmt.Errorf("journal: %w", err)}
			}
		}
		r.logger.Debug("step done", slog.Int("step", i), slog.String("op", step.Op), slog.Int("size", r.list.Size()))
	}
	r.logger.Info("script finished", slog.Int("steps", len(r.script.Steps)), slog.Int("size", r.list.Size()))
	return nil
}

func (r *Runner) step(ctx context.Context, st Step) error {
	switch st.Op {
	case "add":
		return r.list.Add(st.Index, st.Value)
	case "append":
		return r.list.Append(st.Value)
	case "set":
		_, err := r.list.Set(st.Index, st.Value)
		return err
	case "remove":
		_, err := r.list.Remove(st.Index)
		return err
	case "clear":
		return r.list.Clear()
	case "sort":
		if st.Descending {
			return r.list.Sort(func(a, b string) int { return cmp.Compare(b, a) })
		}
		return r.list.Sort(cmp.Compare[string])
	case "reorder":
		return r.list.Reorder(st.Perm)

	case "begin":
		r.tx.BeginEvent()
		return nil
	case "commit":
		return r.tx.CommitEvent()
	case "discard":
		return r.tx.DiscardEvent()
	case "rollback":
		return r.tx.RollbackEvent()

	case "select":
		return r.sel.Select(st.Start, st.End)
	case "deselect":
		return r.sel.Deselect(st.Start, st.End)
	case "set_selection":
		return r.sel.SetSelection(st.Start, st.End)
	case "select_indices":
		return r.sel.SelectIndices(st.Indices)
	case "deselect_indices":
		return r.sel.DeselectIndices(st.Indices)
	case "set_selection_indices":
		return r.sel.SetSelectionIndices(st.Indices)
	case "select_all":
		return r.sel.SelectAll()
	case "deselect_all":
		return r.sel.DeselectAll()
	case "invert":
		return r.sel.InvertSelection()
	case "mode":
		mode, err := selection.ParseMode(st.Mode)
		if err != nil {
			return err
		}
		return r.sel.SetMode(mode)
	case "anchor":
		return r.sel.SetAnchorSelectionIndex(st.Index)
	case "lead":
		return r.sel.SetLeadSelectionIndex(st.Index)

	case "filter":
		return r.filtered.SetMatcher(prefixMatcher(st.Value))
	case "window":
		return r.window.SetRange(st.Start, st.End)

	case "undo":
		return r.history.Undo()
	case "redo":
		return r.history.Redo()
	case "checkpoint":
		if r.journal == nil {
			return fmt.Errorf("%w: checkpoint without a journal", ErrInvalidScript)
		}
		return r.journal.Checkpoint(ctx, r.list.Snapshot())

	case "expect":
		return r.check(st.Expect)
	case "print":
		return r.print()
	}
	return fmt.Errorf("%w: unknown op %q", ErrInvalidScript, st.Op)
}

// State returns the current state.
func (r *Runner) State() State {
	return State{
		List:            r.list.Snapshot(),
		Selected:        list.Snapshot[string](r.selected),
		Deselected:      list.Snapshot[string](r.deselected),
		SelectedIndices: r.sel.SelectedIndices(),
		Filtered:        list.Snapshot[string](r.filtered),
		Window:          list.Snapshot[string](r.window),
		Mode:            r.sel.Mode().String(),
		Anchor:          r.sel.Anchor(),
		Lead:            r.sel.Lead(),
		CanUndo:         r.history.CanUndo(),
		CanRedo:         r.history.CanRedo(),
		Depth:           r.tx.Depth(),
	}
}

func (r *Runner) print() error {
	enc := yaml.NewEncoder(r.out)
	enc.SetIndent(2)
	if err := enc.Encode(r.State()); err != nil {
		return fmt.Errorf("print state: %w", err)
	}
	return enc.Close()
}

func (r *Runner) check(e *Expect) error {
	got := r.State()
	var mismatches []string
	compare := func(field string, want, have any, checked bool) {
		if checked && fmt.Sprint(want) != fmt.Sprint(have) {
			mismatches = append(mismatches, fmt.Sprintf("%s: want %v, got %v", field, want, have))
		}
	}
	compare("list", e.List, got.List, e.List != nil)
	compare("selected", e.Selected, got.Selected, e.Selected != nil)
	compare("deselected", e.Deselected, got.Deselected, e.Deselected != nil)
	compare("selected_indices", e.SelectedIndices, got.SelectedIndices, e.SelectedIndices != nil)
	compare("filtered", e.Filtered, got.Filtered, e.Filtered != nil)
	compare("window", e.Window, got.Window, e.Window != nil)
	if e.Anchor != nil {
		compare("anchor", *e.Anchor, got.Anchor, true)
	}
	if e.Lead != nil {
		compare("lead", *e.Lead, got.Lead, true)
	}
	if e.CanUndo != nil {
		compare("can_undo", *e.CanUndo, got.CanUndo, true)
	}
	if e.CanRedo != nil {
		compare("can_redo", *e.CanRedo, got.CanRedo, true)
	}
	if e.Depth != nil {
		compare("depth", *e.Depth, got.Depth, true)
	}
	if len(mismatches) > 0 {
		return fmt.Errorf("%w: %s", ErrExpectation, strings.Join(mismatches, "; "))
	}
	return nil
}

// Close detaches every listener the runner installed. It does not close an
// attached journal.
func (r *Runner) Close() {
	if r.journalID != "" {
		r.list.RemoveListener(r.journalID)
		r.journalID = ""
	}
	if r.support != nil {
		r.support.Uninstall()
	}
	if r.window != nil {
		r.window.Dispose()
	}
	if r.filtered != nil {
		r.filtered.Dispose()
	}
	if r.sel != nil {
		r.sel.Dispose()
	}
}

func prefixMatcher(prefix string) list.Matcher[string] {
	if prefix == "" {
		return nil
	}
	return func(v string) bool { return strings.HasPrefix(v, prefix) }
}
