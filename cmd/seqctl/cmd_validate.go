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
	"fmt"

	"github.com/glazedlists/glazedlists-sub004/cmd/seqctl/script"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <script.yaml>...",
	Short: "Check scripts without running them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var failed int
		for _, path := range args {
			s, err := script.Load(path)
			if err != nil {
				failed++
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %v\n", statusLabel(cmd.OutOrStdout(), false), path, err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s, %d steps)\n", statusLabel(cmd.OutOrStdout(), true), path, s.Name, len(s.Steps))
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d scripts invalid", failed, len(args))
		}
		return nil
	},
}
