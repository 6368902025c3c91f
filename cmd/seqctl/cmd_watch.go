// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/glazedlists/glazedlists-sub004/cmd/seqctl/script"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	watchInterval    time.Duration
	watchMetricsAddr string
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var watchCmd = &cobra.Command{
	Use:   "watch <script.yaml>",
	Short: "Re-run a script every time it changes",
	Long: `Run a script, then run it again whenever the file is written, until
interrupted. Each run starts from a fresh sequence. Bursts of writes are
coalesced and runs are spaced at least --interval apart.

With --metrics-addr the process also serves /metrics for Prometheus.

Examples:
  seqctl watch scenario.yaml
  seqctl watch scenario.yaml --interval 1s --metrics-addr :9464 --metric-exporter prometheus`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if watchMetricsAddr != "" {
			stop := serveMetrics(watchMetricsAddr)
			defer stop()
		}
		limiter := rate.NewLimiter(rate.Every(watchInterval), 1)
		return watchScript(ctx, args[0], cmd.OutOrStdout(), limiter)
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 250*time.Millisecond,
		"Minimum time between runs")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "",
		"Serve Prometheus metrics on this address")
}

// watchScript runs path once, then again after each write to it.
//
// Description:
//
//	The parent directory is watched rather than the file, so editors that
//	replace the file on save keep triggering runs. Events that arrive
//	while the limiter holds a run back are folded into that run.
//
// Outputs:
//   - error: nil when ctx ends, or a watcher setup failure.
func watchScript(ctx context.Context, path string, out io.Writer, limiter *rate.Limiter) error {
	logger := slog.Default().With(slog.String("component", "seqctl.watch"))

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	target := filepath.Clean(path)
	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	runOnce(ctx, target, out)
	for {
		select {
		case <-ctx.Done():
			return nil

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", slog.String("error", err.Error()))

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			if err := limiter.Wait(ctx); err != nil {
				return nil
			}
			drain(w.Events)
			logger.Debug("script changed", slog.String("path", target), slog.String("op", ev.Op.String()))
			runOnce(ctx, target, out)
		}
	}
}

func drain(events <-chan fsnotify.Event) {
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// runOnce runs the script at path on a fresh sequence and prints one
// status line.
func runOnce(ctx context.Context, path string, out io.Writer) {
	s, err := script.Load(path)
	if err != nil {
		fmt.Fprintf(out, "%s %s: %v\n", statusLabel(out, false), path, err)
		return
	}
	r, err := script.NewRunner(ctx, s, script.WithOutput(out))
	if err != nil {
		fmt.Fprintf(out, "%s %s: %v\n", statusLabel(out, false), path, err)
		return
	}
	defer r.Close()

	if err := r.Run(ctx); err != nil {
		fmt.Fprintf(out, "%s %s: %v\n", statusLabel(out, false), path, err)
		return
	}
	fmt.Fprintf(out, "%s %s (%s, %d steps, %d elements)\n",
		statusLabel(out, true), path, s.Name, len(s.Steps), len(r.State().List))
}

// serveMetrics serves /metrics on addr until the returned stop is called.
func serveMetrics(addr string) (stop func()) {
	var handler http.Handler
	if appTelemetry != nil {
		handler = appTelemetry.MetricsHandler()
	}
	if handler == nil {
		handler = promhttp.Handler()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	logger := slog.Default().With(slog.String("component", "seqctl.metrics"))
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()
	logger.Info("serving metrics", slog.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
