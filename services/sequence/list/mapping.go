// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package list

import (
	"github.com/glazedlists/glazedlists-sub004/services/sequence/barcode"
)

// MappingKind identifies an index translation strategy.
type MappingKind int

const (
	// MappingIdentity maps every view index to the same source index.
	MappingIdentity MappingKind = iota

	// MappingBarcode maps view index i to the i-th source cell of one color.
	MappingBarcode

	// MappingWindow maps view index i to source index Start+i.
	MappingWindow
)

// String returns the string representation of the kind.
func (k MappingKind) String() string {
	switch k {
	case MappingIdentity:
		return "identity"
	case MappingBarcode:
		return "barcode"
	case MappingWindow:
		return "window"
	default:
		return "unknown"
	}
}

// Window is a contiguous range [Start, End) of source indices.
//
// The owning view moves the window as its source changes; the mapping
// reads it through the pointer.
type Window struct {
	Start int
	End   int
}

// Len returns End - Start.
func (w *Window) Len() int {
	return w.End - w.Start
}

// Mapping translates between a view's index space and its source's.
//
// Mapping is a closed tagged union. The zero value is the identity.
type Mapping struct {
	kind    MappingKind
	barcode *barcode.Barcode
	color   barcode.Color
	window  *Window
}

// IdentityMapping returns the identity translation.
func IdentityMapping() Mapping {
	return Mapping{kind: MappingIdentity}
}

// BarcodeMapping returns a translation through the cells of b that have
// the given color.
func BarcodeMapping(b *barcode.Barcode, color barcode.Color) Mapping {
	return Mapping{kind: MappingBarcode, barcode: b, color: color}
}

// WindowMapping returns a translation through an offset window.
func WindowMapping(w *Window) Mapping {
	return Mapping{kind: MappingWindow, window: w}
}

// Kind returns the strategy.
func (m Mapping) Kind() MappingKind {
	return m.kind
}

// Size returns the view size for a source of sourceSize elements.
func (m Mapping) Size(sourceSize int) int {
	switch m.kind {
	case MappingBarcode:
		return m.barcode.Count(m.color)
	case MappingWindow:
		return m.window.Len()
	default:
		return sourceSize
	}
}

// ToSource returns the source index for view index i. i must be in range.
func (m Mapping) ToSource(i int) int {
	switch m.kind {
	case MappingBarcode:
		return m.barcode.ToAbsolute(i, m.color)
	case MappingWindow:
		return m.window.Start + i
	default:
		return i
	}
}

// FromSource returns the view index of source index s, or -1 when the
// source element is not part of the view.
func (m Mapping) FromSource(s int) int {
	switch m.kind {
	case MappingBarcode:
		return m.barcode.ToRelative(s, m.color)
	case MappingWindow:
		if s < m.window.Start || s >= m.window.End {
			return -1
		}
		return s - m.window.Start
	default:
		return s
	}
}

// InsertionPoint returns the source index where an element added at view
// index i must be inserted. i must be in [0, Size(sourceSize)].
func (m Mapping) InsertionPoint(i, sourceSize int) int {
	switch m.kind {
	case MappingBarcode:
		if i < m.barcode.Count(m.color) {
			return m.barcode.ToAbsolute(i, m.color)
		}
		return sourceSize
	case MappingWindow:
		return m.window.Start + i
	default:
		return i
	}
}
