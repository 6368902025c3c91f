// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package change provides the change-event model shared by every observable
// sequence: the Event and Block types, the listener registry, the
// transactional Assembler that builds events, and the advisory Lock a
// sequence shares with the views derived from it.
//
// # Architecture Overview
//
//	┌──────────────────────────────────────────────────────────────────┐
//	│                       MUTATION (writer)                          │
//	│        BasicList.Add / Set / Remove / Reorder, view writes       │
//	└───────────────────────────────┬──────────────────────────────────┘
//	                                │ BeginEvent / ElementXxx / CommitEvent
//	                                ▼
//	┌──────────────────────────────────────────────────────────────────┐
//	│                          Assembler                                │
//	│  context stack ── pending blocks ── coalescing ── publication     │
//	└───────────────────────────────┬──────────────────────────────────┘
//	                                │ ListChanged(*Event) in registration order
//	                                ▼
//	┌──────────────────────────────────────────────────────────────────┐
//	│  derived views (filter, range, selection)  ·  undo support  ·   │
//	│  journal                                                          │
//	└──────────────────────────────────────────────────────────────────┘
//
// # Events
//
// An Event is an ordered list of Blocks. Each block's index is expressed in
// the index space produced by applying every earlier block of the same
// event, so an event can be replayed in order against a copy of the
// pre-event contents (see Event.Replay). A reorder event carries only a
// permutation.
//
// Events are freshly allocated and never mutated after publication.
// Listeners may retain them.
//
// # Transactions
//
// BeginEvent pushes a context, CommitEvent pops it. Only the outermost
// commit publishes. Coalescing applies within a context: an update after an
// insert or update at the same index collapses, a delete after an insert at
// the same index cancels both.
//
// # Thread Safety
//
// None of the types in this package synchronize internally. A sequence and
// its views share one Lock that callers acquire around whole read or
// read-modify-write sequences. The Lock is advisory.
package change
