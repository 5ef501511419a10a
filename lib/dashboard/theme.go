// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dashboard

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/gparallel/lib/job"
)

// Theme is the dashboard palette. All colors are ANSI 256-color codes.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	SelectedBackground lipgloss.Color
	SelectedForeground lipgloss.Color

	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	HelpText         lipgloss.Color

	// Job state labels.
	StateQueued    lipgloss.Color
	StateRunning   lipgloss.Color
	StateDone      lipgloss.Color
	StateFailed    lipgloss.Color
	StateCancelled lipgloss.Color

	// Device memory usage bands.
	UsageLow    lipgloss.Color
	UsageMedium lipgloss.Color
	UsageHigh   lipgloss.Color

	// Status line notices routed from the logger.
	WarnForeground  lipgloss.Color
	ErrorForeground lipgloss.Color
}

// Usage band thresholds, in percent of total memory used.
const (
	usageMediumAbove = 50
	usageHighAbove   = 80
)

// StateColor returns the label color for a job state.
func (theme Theme) StateColor(state job.State) lipgloss.Color {
	switch state {
	case job.Queued:
		return theme.StateQueued
	case job.Running:
		return theme.StateRunning
	case job.Done:
		return theme.StateDone
	case job.Failed:
		return theme.StateFailed
	case job.Cancelled:
		return theme.StateCancelled
	default:
		return theme.FaintText
	}
}

// UsageColor returns the color for a memory usage percentage: low up
// to 50%, medium above 50%, high above 80%.
func (theme Theme) UsageColor(percent float64) lipgloss.Color {
	switch {
	case percent > usageHighAbove:
		return theme.UsageHigh
	case percent > usageMediumAbove:
		return theme.UsageMedium
	default:
		return theme.UsageLow
	}
}

// DefaultTheme is the dark-terminal scheme.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	SelectedBackground: lipgloss.Color("236"),
	SelectedForeground: lipgloss.Color("255"),

	HeaderForeground: lipgloss.Color("255"),
	BorderColor:      lipgloss.Color("240"),
	HelpText:         lipgloss.Color("241"),

	StateQueued:    lipgloss.Color("245"), // gray
	StateRunning:   lipgloss.Color("75"),  // blue
	StateDone:      lipgloss.Color("114"), // green
	StateFailed:    lipgloss.Color("196"), // red
	StateCancelled: lipgloss.Color("208"), // orange

	UsageLow:    lipgloss.Color("114"),
	UsageMedium: lipgloss.Color("220"),
	UsageHigh:   lipgloss.Color("196"),

	WarnForeground:  lipgloss.Color("220"),
	ErrorForeground: lipgloss.Color("196"),
}
