// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package barcode implements the colored partition index used by derived
// views to translate between their own index space and their source's.
//
// A Barcode assigns each position one of up to MaxColors colors and stores
// maximal runs of equal color in a balanced tree. Views keep one Barcode in
// lock-step with their source: a filter colors matched and unmatched
// elements, a selection colors selected and deselected ones. ToRelative and
// ToAbsolute map between a source position and the rank of that position
// among cells of one color, which is the view index.
//
// Example:
//
//	b, _ := barcode.NewFilled(2, black, 5)
//	_ = b.Set(2, white)           // [0:2 1:1 0:2]
//	b.ToRelative(3, black)        // 2
//	b.ToAbsolute(0, white)        // 2
package barcode
