// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package selection

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sequence_selection_operations_total",
		Help: "Selection operations by kind, including source reactions",
	}, []string{"op"})

	flipsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sequence_selection_flips_total",
		Help: "Cells whose selection state flipped, by new state",
	}, []string{"to"})
)
