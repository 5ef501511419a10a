// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// NewStderrHandler returns the handler for operator-facing logs: a
// text handler when stderr is a terminal, JSON when it is piped or
// redirected.
func NewStderrHandler(level slog.Level) slog.Handler {
	return NewHandler(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())), level)
}

// NewHandler returns a text handler on w when human is set, a JSON
// handler otherwise.
func NewHandler(w io.Writer, human bool, level slog.Level) slog.Handler {
	options := &slog.HandlerOptions{Level: level}
	if human {
		return slog.NewTextHandler(w, options)
	}
	return slog.NewJSONHandler(w, options)
}

// Level returns Debug when verbose is set, Info otherwise.
func Level(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// OpenFileHandler creates path and returns a JSON handler writing every
// record at Debug and above to it, plus the file for the caller to
// close.
func OpenFileHandler(path string) (slog.Handler, io.Closer, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return slog.NewJSONHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug}), file, nil
}

// FanoutHandler dispatches each record to every handler that accepts
// its level.
type FanoutHandler struct {
	handlers []slog.Handler
}

// NewFanoutHandler returns a FanoutHandler over the non-nil handlers.
// With a single handler it returns that handler unchanged.
func NewFanoutHandler(handlers ...slog.Handler) slog.Handler {
	var live []slog.Handler
	for _, handler := range handlers {
		if handler != nil {
			live = append(live, handler)
		}
	}
	if len(live) == 1 {
		return live[0]
	}
	return &FanoutHandler{handlers: live}
}

func (f *FanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range f.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *FanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, handler := range f.handlers {
		if handler.Enabled(ctx, record.Level) {
			if err := handler.Handle(ctx, record.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (f *FanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	derived := make([]slog.Handler, len(f.handlers))
	for i, handler := range f.handlers {
		derived[i] = handler.WithAttrs(attrs)
	}
	return &FanoutHandler{handlers: derived}
}

func (f *FanoutHandler) WithGroup(name string) slog.Handler {
	derived := make([]slog.Handler, len(f.handlers))
	for i, handler := range f.handlers {
		derived[i] = handler.WithGroup(name)
	}
	return &FanoutHandler{handlers: derived}
}
