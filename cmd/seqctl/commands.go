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
	"fmt"
	"log/slog"

	"github.com/glazedlists/glazedlists-sub004/pkg/logging"
	"github.com/glazedlists/glazedlists-sub004/pkg/telemetry"
	"github.com/glazedlists/glazedlists-sub004/services/sequence/journal"
	"github.com/spf13/cobra"
)

// =============================================================================
// GLOBAL FLAGS
// =============================================================================

var (
	logLevel string
	logDir   string
	logJSON  bool
	logQuiet bool

	// Journal flags shared by run and replay.
	journalPath    string
	journalSession string
	journalSync    bool

	// Telemetry flags.
	traceExporter  string
	metricExporter string
	otlpEndpoint   string

	appLogger    *logging.Logger
	appTelemetry *telemetry.Providers
)

// =============================================================================
// ROOT COMMAND
// =============================================================================

var rootCmd = &cobra.Command{
	Use:   "seqctl",
	Short: "Drive observable sequences from YAML scripts",
	Long: `seqctl runs scripted scenarios against an observable sequence with a
selection tracker, an undo history, filter and window views, and an optional
Badger journal that records every published change event.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logging.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		appLogger = logging.New(logging.Config{
			Level:   level,
			LogDir:  logDir,
			Service: "seqctl",
			JSON:    logJSON,
			Quiet:   logQuiet,
			Console: cmd.ErrOrStderr(),
		})
		appLogger.SetDefault()
		if err := appLogger.FileErr(); err != nil {
			appLogger.Slog().Warn("log file disabled", slog.String("error", err.Error()))
		}

		cfg := telemetry.DefaultConfig("seqctl")
		if traceExporter != "" {
			cfg.TraceExporter = traceExporter
		}
		if metricExporter != "" {
			cfg.MetricExporter = metricExporter
		}
		if otlpEndpoint != "" {
			cfg.OTLPEndpoint = otlpEndpoint
		}
		cfg.Writer = cmd.ErrOrStderr()
		providers, err := telemetry.Init(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		appTelemetry = providers
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if appTelemetry != nil {
			err = appTelemetry.Shutdown(context.Background())
			appTelemetry = nil
		}
		if appLogger != nil {
			if cerr := appLogger.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Minimum log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "",
		"Also write JSON logs to a file in this directory")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false,
		"Write console logs as JSON")
	rootCmd.PersistentFlags().BoolVarP(&logQuiet, "quiet", "q", false,
		"Disable console logging")
	rootCmd.PersistentFlags().StringVar(&traceExporter, "trace-exporter", "",
		"Trace exporter: none, stdout, otlp (default $OTEL_TRACES_EXPORTER or none)")
	rootCmd.PersistentFlags().StringVar(&metricExporter, "metric-exporter", "",
		"Metric exporter: none, stdout, prometheus (default $OTEL_METRICS_EXPORTER or none)")
	rootCmd.PersistentFlags().StringVar(&otlpEndpoint, "otlp-endpoint", "",
		"OTLP gRPC endpoint for the otlp trace exporter")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(watchCmd)
}

// addJournalFlags registers the journal flags on cmd.
func addJournalFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&journalPath, "journal", "",
		"Badger journal directory")
	cmd.Flags().StringVar(&journalSession, "session", "default",
		"Journal session id")
	cmd.Flags().BoolVar(&journalSync, "sync", false,
		"fsync every journal append")
}

// journalConfig builds the journal configuration from the flags, falling
// back to fallback when --journal is not set.
func journalConfig(fallback *journal.Config) (*journal.Config, error) {
	if journalPath == "" {
		return fallback, nil
	}
	cfg := journal.DefaultConfig(journalPath, journalSession)
	cfg.SyncWrites = journalSync
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// openJournal opens cfg with the application logger.
func openJournal(cfg journal.Config) (*journal.BadgerJournal[string], error) {
	cfg.Logger = slog.Default()
	j, err := journal.Open[string](cfg)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return j, nil
}
