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

// Iterator is a cursor over the cells of a Barcode in position order.
//
// Description:
//
//	The cursor starts before position 0. Next advances one cell and costs
//	O(1) amortized, since the current run is cached. NextColor jumps
//	straight to the next cell of one color in O(log R).
//
//	The cursor tracks a position, not a run. If the barcode changes
//	between calls the cached run is discarded and found again by position,
//	so a caller may recolor the current cell and keep iterating.
//
// Thread Safety: NOT safe for concurrent use.
type Iterator struct {
	b *Barcode

	pos     int
	color   Color
	start   int
	end     int
	version uint64
}

// Iterator returns a cursor positioned before the first cell.
func (b *Barcode) Iterator() *Iterator {
	return &Iterator{b: b, pos: -1}
}

// Reset moves the cursor back before the first cell.
func (it *Iterator) Reset() {
	it.pos = -1
	it.start, it.end = 0, 0
}

// SkipTo moves the cursor just before pos, so that Next lands on pos and
// NextColor searches from pos.
func (it *Iterator) SkipTo(pos int) {
	it.pos = pos - 1
}

// Position returns the current position, or -1 before the first Next.
func (it *Iterator) Position() int {
	return it.pos
}

// Color returns the color of the current cell.
func (it *Iterator) Color() Color {
	return it.color
}

// Next advances to the following cell.
//
// Outputs:
//   - bool: False when no cell remains.
func (it *Iterator) Next() bool {
	next := it.pos + 1
	if next >= it.b.Size() {
		return false
	}
	it.pos = next
	if it.version != it.b.version || next >= it.end || next < it.start {
		it.relocate()
	}
	return true
}

// NextColor advances to the next cell of color c.
//
// Outputs:
//   - bool: False when no later cell has color c. The cursor does not move.
func (it *Iterator) NextColor(c Color) bool {
	next := it.pos + 1
	if next >= it.b.Size() {
		return false
	}
	pos := it.b.ToAbsolute(it.b.CountBefore(next, c), c)
	if pos < 0 {
		return false
	}
	it.pos = pos
	it.relocate()
	return true
}

// RunEnd returns the end (exclusive) of the run holding the current cell.
func (it *Iterator) RunEnd() int {
	if it.version != it.b.version {
		it.relocate()
	}
	return it.end
}

func (it *Iterator) relocate() {
	it.color, it.start, it.end = it.b.locate(it.pos)
	it.version = it.b.version
}
