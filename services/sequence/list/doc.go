// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package list provides observable sequences and the views derived from
// them.
//
// BasicList is the root: a slice-backed Sequence that reports every
// mutation to its change.Assembler. A TransformView wraps a source Sequence
// and a Mapping, one of a closed set of index translations:
//
//	IdentityMapping()           view index == source index
//	BarcodeMapping(b, color)    view index == rank among cells of color
//	WindowMapping(w)            view index == source index - w.Start
//
// For every view, view.Get(i) == source.Get(mapping.ToSource(i)). Each
// view listens to its source, updates its own index structure in the
// view's hook and re-publishes a translated event from its own assembler,
// so views chain.
//
// FilterList, RangeList and ReadOnlyList are the concrete views of this
// package. The selection package builds four more on NewDerivedView.
//
// Thread Safety: a source and every view derived from it share the source's
// change.Lock. Nothing here acquires it.
package list
