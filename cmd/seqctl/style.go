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
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	colorOK   = lipgloss.Color("#2CD7C7")
	colorFail = lipgloss.Color("#E74C3C")

	styleOK   = lipgloss.NewStyle().Bold(true).Foreground(colorOK)
	styleFail = lipgloss.NewStyle().Bold(true).Foreground(colorFail)
)

// statusLabel returns a four-column "ok" or "FAIL" label, colored when w is
// a terminal.
func statusLabel(w io.Writer, ok bool) string {
	label, style := "ok  ", styleOK
	if !ok {
		label, style = "FAIL", styleFail
	}
	if !isTerminal(w) {
		return label
	}
	return style.Render(label)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
