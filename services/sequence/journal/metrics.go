// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package journal

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("sequence.journal")

var (
	appendTotal    metric.Int64Counter
	appendBytes    metric.Int64Histogram
	appendLatency  metric.Float64Histogram
	replayEvents   metric.Int64Histogram
	corruptedTotal metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		if appendTotal, err = meter.Int64Counter(
			"sequence_journal_append_total",
			metric.WithDescription("Total journal appends"),
		); err != nil {
			metricsErr = err
			return
		}
		if appendBytes, err = meter.Int64Histogram(
			"sequence_journal_append_bytes",
			metric.WithDescription("Encoded size of appended events"),
			metric.WithUnit("By"),
		); err != nil {
			metricsErr = err
			return
		}
		if appendLatency, err = meter.Float64Histogram(
			"sequence_journal_append_duration_seconds",
			metric.WithDescription("Time to encode and write one event"),
			metric.WithUnit("s"),
		); err != nil {
			metricsErr = err
			return
		}
		if replayEvents, err = meter.Int64Histogram(
			"sequence_journal_replay_events",
			metric.WithDescription("Events returned per replay"),
		); err != nil {
			metricsErr = err
			return
		}
		corruptedTotal, metricsErr = meter.Int64Counter(
			"sequence_journal_corrupted_total",
			metric.WithDescription("Entries that failed their checksum or decode"),
		)
	})
	return metricsErr
}

func recordAppend(ctx context.Context, bytes int, d time.Duration, success bool) {
	if initMetrics() != nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	appendTotal.Add(ctx, 1, attrs)
	appendLatency.Record(ctx, d.Seconds(), attrs)
	if success {
		appendBytes.Record(ctx, int64(bytes))
	}
}

func recordReplay(ctx context.Context, events int) {
	if initMetrics() != nil {
		return
	}
	replayEvents.Record(ctx, int64(events))
}

func recordCorrupted(ctx context.Context) {
	if initMetrics() != nil {
		return
	}
	corruptedTotal.Add(ctx, 1)
}
