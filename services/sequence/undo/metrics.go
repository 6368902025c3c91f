// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package undo

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("sequence.undo")

var (
	editsCapturedTotal metric.Int64Counter
	editBlocks         metric.Int64Histogram
	replayTotal        metric.Int64Counter
	rollbackTotal      metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics creates the instruments once.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		editsCapturedTotal, err = meter.Int64Counter(
			"sequence_undo_edits_captured_total",
			metric.WithDescription("Total edits handed to edit listeners"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		editBlocks, err = meter.Int64Histogram(
			"sequence_undo_edit_blocks",
			metric.WithDescription("Element edits per captured edit"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		replayTotal, err = meter.Int64Counter(
			"sequence_undo_replay_total",
			metric.WithDescription("Total undo and redo operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		rollbackTotal, err = meter.Int64Counter(
			"sequence_undo_rollback_total",
			metric.WithDescription("Total transaction rollbacks"),
		)
		if err != nil {
			metricsErr = err
		}
	})
	return metricsErr
}

func recordCaptured(ctx context.Context, blocks int) {
	if err := initMetrics(); err != nil {
		return
	}
	editsCapturedTotal.Add(ctx, 1)
	editBlocks.Record(ctx, int64(blocks))
}

// recordReplay records an undo or redo. op is "undo" or "redo".
func recordReplay(ctx context.Context, op string) {
	if err := initMetrics(); err != nil {
		return
	}
	replayTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

func recordRollback(ctx context.Context, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	rollbackTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
