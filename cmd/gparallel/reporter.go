// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/muesli/termenv"

	"github.com/bureau-foundation/gparallel/lib/job"
	"github.com/bureau-foundation/gparallel/lib/scheduler"
)

// console serializes whole lines onto stdout. The reporter and the
// output echo share it so their lines never interleave mid-line.
type console struct {
	mu     sync.Mutex
	writer io.Writer
	output *termenv.Output
}

// newConsole colors output only when w is a terminal.
func newConsole(w io.Writer, color bool) *console {
	profile := termenv.Ascii
	if color {
		profile = termenv.ANSI256
	}
	return &console{writer: w, output: termenv.NewOutput(w, termenv.WithProfile(profile))}
}

func (c *console) println(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	io.WriteString(c.writer, line+"\n")
}

func (c *console) paint(text, color string) string {
	if color == "" {
		return text
	}
	return c.output.String(text).Foreground(c.output.Color(color)).String()
}

func (c *console) faint(text string) string {
	return c.output.String(text).Faint().String()
}

// reporter prints one line per dispatch and per finish:
//
//	2026-10-19T10:00:00Z [1a2b3c4d] gpu=0 start  python train.py
//	2026-10-19T10:05:00Z [1a2b3c4d] gpu=0 done   exit=0 5m0s  python train.py
type reporter struct {
	console *console

	// enabled is off while the dashboard owns the terminal.
	enabled atomic.Bool
}

func newReporter(out *console, enabled bool) *reporter {
	r := &reporter{console: out}
	r.enabled.Store(enabled)
	return r
}

func (r *reporter) Observe(event job.Event) {
	if !r.enabled.Load() {
		return
	}
	if line, ok := formatEvent(r.console, event); ok {
		r.console.println(line)
	}
}

// formatEvent renders the line for event, or false for events that
// have none (submissions).
func formatEvent(out *console, event job.Event) (string, bool) {
	info := event.Job
	var at time.Time
	var label, color, detail string
	switch event.Kind {
	case job.Dispatched:
		at, label, color = info.StartedAt, "start", "6"
	case job.Finished, job.Withdrawn:
		at = info.FinishedAt
		switch info.State {
		case job.Done:
			label, color = "done", "2"
		case job.Failed:
			label, color = "failed", "1"
		default:
			label, color = "cancel", "3"
		}
		detail = fmt.Sprintf("exit=%s %s  ", exitText(info.ExitCode), formatRuntime(info.Runtime(at)))
	default:
		return "", false
	}

	line := fmt.Sprintf("%s %s gpu=%s %s %s%s",
		at.UTC().Format(time.RFC3339),
		out.faint("["+info.ShortID()+"]"),
		deviceText(info.Device),
		out.paint(fmt.Sprintf("%-6s", label), color),
		detail,
		info.Command,
	)
	if info.State != job.Done && info.Reason != "" && info.ExitCode == job.NoExitCode {
		line += "  (" + info.Reason + ")"
	}
	return line, true
}

func (r *reporter) summary(counts job.Counts, elapsed time.Duration) {
	r.console.println(fmt.Sprintf("%d done, %d failed, %d cancelled in %s",
		counts.Done, counts.Failed, counts.Cancelled, formatRuntime(elapsed)))
}

func exitText(code int) string {
	if code == job.NoExitCode {
		return "-"
	}
	return strconv.Itoa(code)
}

func deviceText(device int) string {
	if device == job.NoDevice {
		return "-"
	}
	return strconv.Itoa(device)
}

// formatRuntime rounds to whole seconds, or milliseconds under a
// second.
func formatRuntime(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}

// echoSink copies job output to the console as "[1a2b3c4d] line".
type echoSink struct {
	console *console
	enabled atomic.Bool
}

func (s *echoSink) Open(info job.Info) (scheduler.LineWriter, error) {
	return &echoWriter{sink: s, prefix: s.console.faint("[" + info.ShortID() + "]")}, nil
}

type echoWriter struct {
	sink   *echoSink
	prefix string
}

func (w *echoWriter) WriteLine(line string) error {
	if w.sink.enabled.Load() {
		w.sink.console.println(w.prefix + " " + line)
	}
	return nil
}

func (w *echoWriter) Close() (string, error) { return "", nil }
