// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dashboard

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/gparallel/lib/job"
)

func TestUsageColorBands(t *testing.T) {
	theme := DefaultTheme
	tests := []struct {
		percent float64
		want    string
	}{
		{0, "low"},
		{50, "low"},
		{50.5, "medium"},
		{80, "medium"},
		{80.5, "high"},
		{100, "high"},
	}
	bands := map[string]lipgloss.Color{
		"low":    theme.UsageLow,
		"medium": theme.UsageMedium,
		"high":   theme.UsageHigh,
	}
	for _, test := range tests {
		if got := theme.UsageColor(test.percent); got != bands[test.want] {
			t.Errorf("UsageColor(%v) = %v, want %s band", test.percent, got, test.want)
		}
	}
}

func TestStateColorsAreDistinct(t *testing.T) {
	theme := DefaultTheme
	seen := map[string]job.State{}
	for _, state := range []job.State{job.Queued, job.Running, job.Done, job.Failed, job.Cancelled} {
		color := string(theme.StateColor(state))
		if previous, ok := seen[color]; ok {
			t.Errorf("%v and %v share color %s", previous, state, color)
		}
		seen[color] = state
	}
}

func TestScrollbar(t *testing.T) {
	if bar := renderScrollbar(DefaultTheme, 5, 3, 5, 0); bar != "" {
		t.Errorf("content that fits should not draw a scrollbar, got %q", bar)
	}

	rows := strings.Split(ansi.Strip(renderScrollbar(DefaultTheme, 4, 40, 4, 36)), "\n")
	if len(rows) != 4 {
		t.Fatalf("scrollbar has %d rows, want 4", len(rows))
	}
	if rows[3] != "┃" {
		t.Errorf("thumb should sit at the bottom when scrolled to the end, rows %q", rows)
	}
	if rows[0] != "│" {
		t.Errorf("track expected at the top, rows %q", rows)
	}
}
