// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dashboard

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// renderScrollbar returns a one-column scrollbar of height rows for a
// list of total rows of which visible are shown starting at offset.
// Returns "" when everything fits, so the job panel only spends a
// column on it when scrolling is possible.
func renderScrollbar(theme Theme, height, total, visible, offset int) string {
	if height <= 0 || total <= visible {
		return ""
	}

	thumb := max(height*visible/total, 1)
	travel := height - thumb
	position := 0
	if scrollable := total - visible; scrollable > 0 && travel > 0 {
		position = min(offset*travel/scrollable, travel)
	}

	track := lipgloss.NewStyle().Foreground(theme.BorderColor).Render("│")
	bar := lipgloss.NewStyle().Foreground(theme.StateRunning).Render("┃")

	rows := make([]string, height)
	for index := range rows {
		if index >= position && index < position+thumb {
			rows[index] = bar
		} else {
			rows[index] = track
		}
	}
	return strings.Join(rows, "\n")
}
