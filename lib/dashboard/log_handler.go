// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dashboard

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// logRecordMsg carries one slog record into the model for display in
// the status line.
type logRecordMsg struct {
	Summary string
	Level   slog.Level
}

// logRecordFadeMsg clears the notice it was scheduled for. Generation
// guards against an older fade clearing a newer notice.
type logRecordFadeMsg struct {
	generation int
}

// logRecordFadeDelay is how long a notice replaces the help line.
const logRecordFadeDelay = 5 * time.Second

// LogHandler is a slog.Handler that delivers records into a running
// dashboard program. While no program is attached, records go to the
// fallback handler (or are dropped when there is none), which lets the
// same logger serve before the dashboard starts and after it exits.
//
// Handlers derived with WithAttrs/WithGroup share the program pointer,
// so SetProgram on the root reaches all of them.
type LogHandler struct {
	level    slog.Level
	program  *atomic.Pointer[tea.Program]
	fallback slog.Handler
	attrs    []slog.Attr
	groups   []string
}

// NewLogHandler creates a handler for records at or above level.
// fallback may be nil.
func NewLogHandler(level slog.Level, fallback slog.Handler) *LogHandler {
	return &LogHandler{
		level:    level,
		program:  &atomic.Pointer[tea.Program]{},
		fallback: fallback,
	}
}

// SetProgram attaches the dashboard program. Pass nil once the program
// has exited to route records back to the fallback.
func (handler *LogHandler) SetProgram(program *tea.Program) {
	handler.program.Store(program)
}

func (handler *LogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= handler.level
}

// Handle formats the record as "message (key=value, ...)" and sends it
// to the program. Must not be called from inside the program's Update,
// since Send blocks until the event loop receives the message.
func (handler *LogHandler) Handle(ctx context.Context, record slog.Record) error {
	program := handler.program.Load()
	if program == nil {
		if handler.fallback != nil && handler.fallback.Enabled(ctx, record.Level) {
			return handler.fallback.Handle(ctx, record)
		}
		return nil
	}

	var parts []string
	for _, attr := range handler.attrs {
		parts = append(parts, attr.Key+"="+attr.Value.String())
	}
	prefix := strings.Join(handler.groups, ".")
	record.Attrs(func(attr slog.Attr) bool {
		name := attr.Key
		if prefix != "" {
			name = prefix + "." + name
		}
		parts = append(parts, name+"="+attr.Value.String())
		return true
	})

	summary := record.Message
	if len(parts) > 0 {
		summary += " (" + strings.Join(parts, ", ") + ")"
	}
	program.Send(logRecordMsg{Summary: summary, Level: record.Level})
	return nil
}

func (handler *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	derived := handler.derive()
	prefix := strings.Join(handler.groups, ".")
	for _, attr := range attrs {
		if prefix != "" {
			attr.Key = prefix + "." + attr.Key
		}
		derived.attrs = append(derived.attrs, attr)
	}
	if handler.fallback != nil {
		derived.fallback = handler.fallback.WithAttrs(attrs)
	}
	return derived
}

func (handler *LogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return handler
	}
	derived := handler.derive()
	derived.groups = append(derived.groups, name)
	if handler.fallback != nil {
		derived.fallback = handler.fallback.WithGroup(name)
	}
	return derived
}

func (handler *LogHandler) derive() *LogHandler {
	return &LogHandler{
		level:    handler.level,
		program:  handler.program,
		fallback: handler.fallback,
		attrs:    slices.Clone(handler.attrs),
		groups:   slices.Clone(handler.groups),
	}
}
