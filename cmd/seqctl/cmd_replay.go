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
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	replayInitial string
	replayEvents  bool
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Restore a sequence from its journal",
	Long: `Restore a sequence from a Badger journal and print its elements.

The restore starts from the latest checkpoint, or from --initial when the
session has none, and applies every later event in order.

Examples:
  seqctl replay --journal ./journal --session demo
  seqctl replay --journal ./journal --session demo --initial a,b,c --events`,
	Args: cobra.NoArgs,
	RunE: replayJournal,
}

func init() {
	replayCmd.Flags().StringVar(&replayInitial, "initial", "",
		"Comma-separated elements to start from when no checkpoint exists")
	replayCmd.Flags().BoolVar(&replayEvents, "events", false,
		"Also print the events after the checkpoint")
	addJournalFlags(replayCmd)
}

type replayOutput struct {
	Session  string   `yaml:"session"`
	LastSeq  uint64   `yaml:"last_seq"`
	Events   []string `yaml:"events,omitempty"`
	Elements []string `yaml:"elements"`
}

func replayJournal(cmd *cobra.Command, args []string) (err error) {
	ctx := cmd.Context()
	cfg, err := journalConfig(nil)
	if err != nil {
		return err
	}
	if cfg == nil {
		return errors.New("replay needs --journal")
	}
	j, err := openJournal(*cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := j.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close journal: %w", cerr))
		}
	}()

	var base []string
	if replayInitial != "" {
		base = strings.Split(replayInitial, ",")
	}
	restored, err := j.Restore(ctx, base)
	if err != nil {
		return err
	}

	out := replayOutput{
		Session:  cfg.SessionID,
		LastSeq:  j.Stats().LastSeq,
		Elements: restored.Snapshot(),
	}
	if replayEvents {
		events, err := j.Replay(ctx)
		if err != nil {
			return err
		}
		for _, ev := range events {
			out.Events = append(out.Events, ev.String())
		}
	}
	data, err := yaml.Marshal(out)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
