// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/bureau-foundation/gparallel/lib/commandfile"
	"github.com/bureau-foundation/gparallel/lib/dashboard"
)

// terminal records which standard streams are terminals.
type terminal struct {
	stdinTTY  bool
	stdoutTTY bool
	stderrTTY bool

	// errors receives log records outside the dashboard.
	errors io.Writer
}

func detectTerminal(stderr io.Writer) terminal {
	return terminal{
		stdinTTY:  term.IsTerminal(int(os.Stdin.Fd())),
		stdoutTTY: term.IsTerminal(int(os.Stdout.Fd())),
		stderrTTY: term.IsTerminal(int(os.Stderr.Fd())),
		errors:    stderr,
	}
}

type display int

const (
	displayPlain display = iota
	displayDashboard
)

var errNoTerminal = errors.New("--tui requires a terminal on stdin and stdout")

// chooseDisplay picks the dashboard when both stdin and stdout are
// terminals, unless the commands come from stdin or --no-tui is given.
func chooseDisplay(opts *options, t terminal) (display, error) {
	switch {
	case opts.noTUI || opts.file == commandfile.StdinPath:
		return displayPlain, nil
	case opts.tui:
		if !t.stdinTTY || !t.stdoutTTY {
			return displayPlain, errNoTerminal
		}
		return displayDashboard, nil
	case t.stdinTTY && t.stdoutTTY:
		return displayDashboard, nil
	default:
		return displayPlain, nil
	}
}

// dashboardRunner hosts the dashboard program and restores the
// terminal if the process has to exit while it is running.
type dashboardRunner struct {
	handler *dashboard.LogHandler
	program atomic.Pointer[tea.Program]
}

// run shows the dashboard until it auto-exits, is detached, or is
// force-quit. Jobs keep running in every case.
func (d *dashboardRunner) run(s *session) error {
	model := dashboard.New(s.dashboardSource(), func() {
		s.coordinator.Request("force quit from dashboard")
	})
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithoutSignalHandler())
	d.program.Store(program)
	d.handler.SetProgram(program)
	final, err := program.Run()
	d.handler.SetProgram(nil)
	d.program.Store(nil)
	if err != nil {
		return err
	}

	if model, ok := final.(dashboard.Model); ok && model.Detached() {
		active := s.registry.Counts().Active()
		s.reporter.console.println(fmt.Sprintf(
			"dashboard closed; %d jobs still queued or running (Ctrl+C stops them)", active))
	}
	return nil
}

// exit is the coordinator's exit hook.
func (d *dashboardRunner) exit(code int) {
	if program := d.program.Load(); program != nil {
		_ = program.ReleaseTerminal()
	}
	os.Exit(code)
}
