// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package barcode

import (
	"errors"
	"fmt"
	"strings"
)

// MaxColors is the largest number of colors a Barcode supports.
const MaxColors = 4

// Color labels a cell. Valid colors are 0 .. Colors()-1.
type Color int

// Sentinel errors for barcode operations.
var (
	ErrInvalidColor = errors.New("invalid color")
	ErrOutOfRange   = errors.New("position out of range")
	ErrCorrupted    = errors.New("barcode invariant violated")
)

// Run is a maximal stretch of cells with the same color.
type Run struct {
	Color  Color
	Length int
}

// Stats describes the shape of a Barcode.
type Stats struct {
	Size     int
	Runs     int
	Height   int
	Counts   [MaxColors]int
	Version  uint64
	Colors   int
	Balanced bool
}

// Barcode is a colored partition index over positions 0 .. Size()-1.
//
// Description:
//
//	Stores the sequence of runs in an AVL tree ordered by position. Every
//	node carries its subtree's cell count, run count and per-color counts,
//	so converting between an absolute position and a color-relative rank
//	is a single root-to-leaf descent.
//
// Invariants:
//   - No run has length zero
//   - Adjacent runs never share a color
//   - Sum of run lengths == Size()
//   - Sum over colors of Count(c) == Size()
//
// Algorithm:
//
//	Insert and Remove split the tree at the affected positions and join
//	the pieces back, merging equal-colored runs at every seam.
//	Time:  O(log R) per operation, R = number of runs
//	Space: O(R)
//
// Thread Safety: NOT safe for concurrent use. The owning view's lock
// protects it.
type Barcode struct {
	colors  int
	root    *node
	version uint64
}

// New creates an empty Barcode over the given number of colors.
//
// Inputs:
//   - colors: Number of colors. Must be in [1, MaxColors].
//
// Outputs:
//   - *Barcode: The empty barcode.
//   - error: ErrInvalidColor if colors is out of range.
func New(colors int) (*Barcode, error) {
	if colors < 1 || colors > MaxColors {
		return nil, fmt.Errorf("%w: %d colors, want 1..%d", ErrInvalidColor, colors, MaxColors)
	}
	return &Barcode{colors: colors}, nil
}

// NewFilled creates a Barcode holding size cells of one color.
func NewFilled(colors int, color Color, size int) (*Barcode, error) {
	b, err := New(colors)
	if err != nil {
		return nil, err
	}
	if err := b.Insert(0, color, size); err != nil {
		return nil, err
	}
	return b, nil
}

// Colors returns the number of colors.
func (b *Barcode) Colors() int {
	return b.colors
}

// Size returns the total number of cells.
func (b *Barcode) Size() int {
	return size(b.root)
}

// Count returns the number of cells of color c.
func (b *Barcode) Count(c Color) int {
	if !b.validColor(c) {
		return 0
	}
	return count(b.root, c)
}

// RunCount returns the number of runs.
func (b *Barcode) RunCount() int {
	if b.root == nil {
		return 0
	}
	return b.root.runs
}

// Version increases on every structural change.
func (b *Barcode) Version() uint64 {
	return b.version
}

// Insert adds count cells of color at pos.
//
// Description:
//
//	Cells at pos and after shift right by count. A zero count is a no-op.
//
// Inputs:
//   - pos: Insertion point in [0, Size()].
//   - color: Color of the new cells.
//   - count: Number of cells. Must be >= 0.
//
// Outputs:
//   - error: ErrOutOfRange or ErrInvalidColor.
func (b *Barcode) Insert(pos int, color Color, count int) error {
	if !b.validColor(color) {
		return fmt.Errorf("%w: %d", ErrInvalidColor, color)
	}
	if pos < 0 || pos > b.Size() || count < 0 {
		return fmt.Errorf("%w: insert %d cells at %d, size %d", ErrOutOfRange, count, pos, b.Size())
	}
	if count == 0 {
		return nil
	}
	l, r := split(b.root, pos)
	b.root = concat(concat(l, newNode(color, count)), r)
	b.version++
	return nil
}

// Remove deletes count cells starting at pos.
//
// Inputs:
//   - pos: First cell to remove.
//   - count: Number of cells. pos+count must not exceed Size().
//
// Outputs:
//   - error: ErrOutOfRange if the range does not fit.
func (b *Barcode) Remove(pos, count int) error {
	if pos < 0 || count < 0 || pos+count > b.Size() {
		return fmt.Errorf("%w: remove %d cells at %d, size %d", ErrOutOfRange, count, pos, b.Size())
	}
	if count == 0 {
		return nil
	}
	l, rest := split(b.root, pos)
	_, r := split(rest, count)
	b.root = concat(l, r)
	b.version++
	return nil
}

// Set recolors the cell at pos.
func (b *Barcode) Set(pos int, color Color) error {
	old, err := b.Get(pos)
	if err != nil {
		return err
	}
	if !b.validColor(color) {
		return fmt.Errorf("%w: %d", ErrInvalidColor, color)
	}
	if old == color {
		return nil
	}
	if err := b.Remove(pos, 1); err != nil {
		return err
	}
	return b.Insert(pos, color, 1)
}

// Get returns the color of the cell at pos.
func (b *Barcode) Get(pos int) (Color, error) {
	if pos < 0 || pos >= b.Size() {
		return 0, fmt.Errorf("%w: %d, size %d", ErrOutOfRange, pos, b.Size())
	}
	n := b.root
	for {
		ls := size(n.left)
		switch {
		case pos < ls:
			n = n.left
		case pos < ls+n.length:
			return n.color, nil
		default:
			pos -= ls + n.length
			n = n.right
		}
	}
}

// CountBefore returns the number of cells of color c in [0, pos).
// pos is clamped to [0, Size()].
func (b *Barcode) CountBefore(pos int, c Color) int {
	if !b.validColor(c) {
		return 0
	}
	acc := 0
	n := b.root
	for n != nil && pos > 0 {
		ls := size(n.left)
		if pos <= ls {
			n = n.left
			continue
		}
		acc += count(n.left, c)
		pos -= ls
		if pos <= n.length {
			if n.color == c {
				acc += pos
			}
			return acc
		}
		if n.color == c {
			acc += n.length
		}
		pos -= n.length
		n = n.right
	}
	return acc
}

// ToRelative returns the rank of pos among the cells of color c.
//
// Outputs:
//   - int: The rank, or -1 if pos is out of range or not of color c.
func (b *Barcode) ToRelative(pos int, c Color) int {
	got, err := b.Get(pos)
	if err != nil || got != c {
		return -1
	}
	return b.CountBefore(pos, c)
}

// ToAbsolute returns the position of the cell with the given rank among
// cells of color c.
//
// Outputs:
//   - int: The position, or -1 if rank is not in [0, Count(c)).
func (b *Barcode) ToAbsolute(rank int, c Color) int {
	if rank < 0 || rank >= b.Count(c) {
		return -1
	}
	base := 0
	n := b.root
	for n != nil {
		lc := count(n.left, c)
		if rank < lc {
			n = n.left
			continue
		}
		rank -= lc
		base += size(n.left)
		if n.color == c {
			if rank < n.length {
				return base + rank
			}
			rank -= n.length
		}
		base += n.length
		n = n.right
	}
	return -1
}

// Permute rearranges the cells so that the cell now at i is the one that
// was at perm[i].
//
// Complexity: O(n) time, where n = Size()
func (b *Barcode) Permute(perm []int) error {
	if len(perm) != b.Size() {
		return fmt.Errorf("%w: permutation of length %d, size %d", ErrOutOfRange, len(perm), b.Size())
	}
	colors := make([]Color, 0, len(perm))
	it := b.Iterator()
	for it.Next() {
		colors = append(colors, it.Color())
	}
	var runs []Run
	for _, from := range perm {
		if from < 0 || from >= len(colors) {
			return fmt.Errorf("%w: permutation entry %d", ErrOutOfRange, from)
		}
		c := colors[from]
		if n := len(runs); n > 0 && runs[n-1].Color == c {
			runs[n-1].Length++
			continue
		}
		runs = append(runs, Run{Color: c, Length: 1})
	}
	b.root = build(runs)
	b.version++
	return nil
}

// build returns a perfectly balanced tree over runs.
func build(runs []Run) *node {
	if len(runs) == 0 {
		return nil
	}
	mid := len(runs) / 2
	n := &node{color: runs[mid].Color, length: runs[mid].Length}
	n.left = build(runs[:mid])
	n.right = build(runs[mid+1:])
	update(n)
	return n
}

// locate returns the run containing pos as [start, end) and its color.
// pos must be in range.
func (b *Barcode) locate(pos int) (color Color, start, end int) {
	n := b.root
	base := 0
	for n != nil {
		ls := size(n.left)
		switch {
		case pos < ls:
			n = n.left
		case pos < ls+n.length:
			start = base + ls
			return n.color, start, start + n.length
		default:
			pos -= ls + n.length
			base += ls + n.length
			n = n.right
		}
	}
	return 0, 0, 0
}

// Runs returns the runs in position order.
func (b *Barcode) Runs() []Run {
	out := make([]Run, 0, b.RunCount())
	var walk func(n *node)
	walk = func(n *node) {
		if n == nil {
			return
		}
		walk(n.left)
		out = append(out, Run{Color: n.color, Length: n.length})
		walk(n.right)
	}
	walk(b.root)
	return out
}

// String renders the runs as "[color:length ...]".
func (b *Barcode) String() string {
	runs := b.Runs()
	parts := make([]string, len(runs))
	for i, r := range runs {
		parts[i] = fmt.Sprintf("%d:%d", r.Color, r.Length)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Stats returns statistics about the barcode.
func (b *Barcode) Stats() Stats {
	s := Stats{
		Size:     b.Size(),
		Runs:     b.RunCount(),
		Height:   height(b.root),
		Version:  b.version,
		Colors:   b.colors,
		Balanced: b.Validate() == nil,
	}
	if b.root != nil {
		s.Counts = b.root.counts
	}
	return s
}

// Validate checks every barcode invariant.
//
// Description:
//
//	Verifies:
//	- AVL balance and stored heights
//	- Subtree sizes, run counts and color counts
//	- No empty runs, no invalid colors
//	- No two adjacent runs share a color
//
// Complexity: O(R) time
func (b *Barcode) Validate() error {
	if _, err := b.validateNode(b.root); err != nil {
		return err
	}
	runs := b.Runs()
	total := 0
	for i, r := range runs {
		total += r.Length
		if i > 0 && runs[i-1].Color == r.Color {
			return fmt.Errorf("%w: runs %d and %d both color %d", ErrCorrupted, i-1, i, r.Color)
		}
	}
	if total != b.Size() {
		return fmt.Errorf("%w: run lengths sum to %d, size %d", ErrCorrupted, total, b.Size())
	}
	return nil
}

func (b *Barcode) validateNode(n *node) (int, error) {
	if n == nil {
		return 0, nil
	}
	if n.length <= 0 {
		return 0, fmt.Errorf("%w: run of length %d", ErrCorrupted, n.length)
	}
	if !b.validColor(n.color) {
		return 0, fmt.Errorf("%w: color %d", ErrCorrupted, n.color)
	}
	lh, err := b.validateNode(n.left)
	if err != nil {
		return 0, err
	}
	rh, err := b.validateNode(n.right)
	if err != nil {
		return 0, err
	}
	if lh-rh > 1 || rh-lh > 1 {
		return 0, fmt.Errorf("%w: unbalanced node, heights %d and %d", ErrCorrupted, lh, rh)
	}
	h := 1 + max(lh, rh)
	if n.height != h {
		return 0, fmt.Errorf("%w: stored height %d, actual %d", ErrCorrupted, n.height, h)
	}
	want := *n
	update(&want)
	if want.size != n.size || want.runs != n.runs || want.counts != n.counts {
		return 0, fmt.Errorf("%w: stale aggregates at run of color %d", ErrCorrupted, n.color)
	}
	return h, nil
}

func (b *Barcode) validColor(c Color) bool {
	return c >= 0 && int(c) < b.colors
}
