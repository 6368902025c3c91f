// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package script loads and runs YAML scenarios against an observable
// sequence with a selection tracker, an undo history and an optional
// journal.
//
// A script names its initial elements and a list of steps. Each step is one
// operation (add, select, undo, ...) or an expectation checked against the
// current state:
//
//	name: insert-before-selection
//	initial: [a, b, c]
//	steps:
//	  - {op: select, start: 1, end: 1}
//	  - {op: add, index: 1, value: x}
//	  - op: expect
//	    expect: {list: [a, x, b, c], selected_indices: [2]}
package script

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/glazedlists/glazedlists-sub004/services/sequence/journal"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Ops lists every step operation a script may use.
var Ops = []string{
	"add", "append", "set", "remove", "clear", "sort", "reorder",
	"begin", "commit", "discard", "rollback",
	"select", "deselect", "set_selection",
	"select_indices", "deselect_indices", "set_selection_indices",
	"select_all", "deselect_all", "invert", "mode", "anchor", "lead",
	"filter", "window",
	"undo", "redo", "checkpoint",
	"expect", "print",
}

var (
	// ErrInvalidScript indicates a script that failed to parse or validate.
	ErrInvalidScript = errors.New("invalid script")

	// ErrExpectation indicates an expect step that did not hold.
	ErrExpectation = errors.New("expectation failed")
)

var scriptValidate *validator.Validate

func init() {
	scriptValidate = validator.New()
}

// Script is a named scenario.
type Script struct {
	// Name labels logs and the sequence. Required.
	Name string `yaml:"name" validate:"required,max=128"`

	// Initial holds the starting elements, unless a journal restores them.
	Initial []string `yaml:"initial"`

	// Mode is the starting selection mode. Empty means multiple_interval.
	Mode string `yaml:"mode" validate:"omitempty,oneof=single single_interval multiple_interval multiple_interval_defensive"`

	// UndoLimit bounds the undo history. Zero uses the default.
	UndoLimit int `yaml:"undo_limit" validate:"gte=0"`

	// Filter keeps elements with this prefix in the filtered view.
	Filter string `yaml:"filter"`

	// Window is the initial range view. Nil means the whole list.
	Window *Window `yaml:"window"`

	// Journal persists every published event when set.
	Journal *journal.Config `yaml:"journal"`

	Steps []Step `yaml:"steps" validate:"required,min=1,dive"`
}

// Window is a half-open range [Start, End).
type Window struct {
	Start int `yaml:"start" validate:"gte=0"`
	End   int `yaml:"end" validate:"gtefield=Start"`
}

// Step is one scripted operation.
type Step struct {
	Op string `yaml:"op" validate:"required,oneof=add append set remove clear sort reorder begin commit discard rollback select deselect set_selection select_indices deselect_indices set_selection_indices select_all deselect_all invert mode anchor lead filter window undo redo checkpoint expect print"`

	Index      int     `yaml:"index"`
	Start      int     `yaml:"start"`
	End        int     `yaml:"end"`
	Value      string  `yaml:"value"`
	Indices    []int   `yaml:"indices"`
	Perm       []int   `yaml:"perm" validate:"required_if=Op reorder"`
	Mode       string  `yaml:"mode" validate:"required_if=Op mode,omitempty,oneof=single single_interval multiple_interval multiple_interval_defensive"`
	Descending bool    `yaml:"descending"`
	Expect     *Expect `yaml:"expect" validate:"required_if=Op expect"`
}

// Expect lists the checks of an expect step. Nil fields are not checked.
type Expect struct {
	List            []string `yaml:"list"`
	Selected        []string `yaml:"selected"`
	Deselected      []string `yaml:"deselected"`
	SelectedIndices []int    `yaml:"selected_indices"`
	Filtered        []string `yaml:"filtered"`
	Window          []string `yaml:"window"`
	Anchor          *int     `yaml:"anchor"`
	Lead            *int     `yaml:"lead"`
	CanUndo         *bool    `yaml:"can_undo"`
	CanRedo         *bool    `yaml:"can_redo"`
	Depth           *int     `yaml:"depth"`
}

// Load reads and validates the script at path.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML script. Unknown keys are rejected.
func Parse(data []byte) (*Script, error) {
	var s Script
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidScript)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidScript, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the struct tags, including a nested journal config, and
// the per-op field rules the tags cannot express.
func (s *Script) Validate() error {
	if err := scriptValidate.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidScript, err)
	}
	for i, step := range s.Steps {
		switch step.Op {
		case "select_indices", "deselect_indices", "set_selection_indices":
			if step.Indices == nil {
				return fmt.Errorf("%w: step %d (%s) needs indices", ErrInvalidScript, i, step.Op)
			}
		}
	}
	return nil
}
