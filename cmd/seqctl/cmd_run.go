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
	"errors"
	"fmt"
	"log/slog"

	"github.com/glazedlists/glazedlists-sub004/cmd/seqctl/script"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	runNoState bool
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var runCmd = &cobra.Command{
	Use:   "run <script.yaml>",
	Short: "Run a YAML script",
	Long: `Run a YAML script against a fresh sequence and print the final state.

Print steps write the state as YAML to stdout. When a journal is configured,
either in the script or with --journal, the sequence starts from the state
the journal restores and every published event is appended to it.

Examples:
  seqctl run scenario.yaml
  seqctl run scenario.yaml --journal ./journal --session demo
  seqctl run scenario.yaml --log-level debug --no-state`,
	Args: cobra.ExactArgs(1),
	RunE: runScript,
}

func init() {
	runCmd.Flags().BoolVar(&runNoState, "no-state", false,
		"Do not print the final state")
	addJournalFlags(runCmd)
}

func runScript(cmd *cobra.Command, args []string) (err error) {
	ctx := cmd.Context()
	logger := slog.Default().With(slog.String("component", "seqctl.run"))

	s, err := script.Load(args[0])
	if err != nil {
		return err
	}
	cfg, err := journalConfig(s.Journal)
	if err != nil {
		return err
	}

	opts := []script.RunnerOption{
		script.WithOutput(cmd.OutOrStdout()),
		script.WithLogger(slog.Default()),
	}
	if cfg != nil {
		j, jerr := openJournal(*cfg)
		if jerr != nil {
			return jerr
		}
		defer func() {
			if cerr := j.Close(); cerr != nil {
				err = errors.Join(err, fmt.Errorf("close journal: %w", cerr))
			}
		}()
		opts = append(opts, script.WithJournal(j))
		logger.Info("journal attached", slog.String("session", cfg.SessionID), slog.Bool("in_memory", cfg.InMemory))
	}

	r, err := script.NewRunner(ctx, s, opts...)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := r.Run(ctx); err != nil {
		return fmt.Errorf("script %s: %w", s.Name, err)
	}
	if runNoState {
		return nil
	}
	out, err := yaml.Marshal(r.State())
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}
