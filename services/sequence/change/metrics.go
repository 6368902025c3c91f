// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package change

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Coalescing rules, used as the "rule" label.
const (
	coalesceInsertUpdate = "insert_update"
	coalesceUpdateUpdate = "update_update"
	coalesceInsertDelete = "insert_delete"
	coalesceUpdateDelete = "update_delete"
	coalesceReorder      = "reorder_decomposed"
)

var (
	eventsPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sequence_change_events_published_total",
		Help: "Total change events published to listeners",
	})

	blocksPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sequence_change_blocks_published_total",
		Help: "Total change blocks published, by kind",
	}, []string{"kind"})

	reordersPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sequence_change_reorders_published_total",
		Help: "Total reorder events published",
	})

	blocksCoalescedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sequence_change_blocks_coalesced_total",
		Help: "Blocks merged or cancelled by the assembler, by rule",
	}, []string{"rule"})

	dispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sequence_change_dispatch_duration_seconds",
		Help:    "Time spent invoking all listeners for one event",
		Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
	})
)

// recordPublished records metrics for one published event.
func recordPublished[T any](ev *Event[T]) {
	eventsPublishedTotal.Inc()
	if ev.Reorder != nil {
		reordersPublishedTotal.Inc()
		return
	}
	for _, b := range ev.Blocks {
		blocksPublishedTotal.WithLabelValues(b.Kind.String()).Inc()
	}
}
