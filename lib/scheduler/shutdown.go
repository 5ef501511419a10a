// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/bureau-foundation/gparallel/lib/clock"
	"github.com/bureau-foundation/gparallel/lib/job"
)

// ExitInterrupted is the process exit code after a shutdown request,
// matching the shell convention for SIGINT.
const ExitInterrupted = 130

// CoordinatorConfig wires a Coordinator.
type CoordinatorConfig struct {
	Registry *job.Registry
	Groups   *ProcessGroups

	// Cancel cancels the run context every supervisor and the
	// dispatcher observe.
	Cancel context.CancelFunc

	// Exit ends the process on a second request. The TUI wraps it to
	// restore the terminal first. Nil means os.Exit.
	Exit func(code int)

	Clock  clock.Clock
	Logger *slog.Logger
}

// Coordinator is the only place that cancels the run.
type Coordinator struct {
	config    CoordinatorConfig
	mu        sync.Mutex
	requests  int
	requested chan struct{}
}

// NewCoordinator returns an idle Coordinator.
func NewCoordinator(config CoordinatorConfig) *Coordinator {
	if config.Exit == nil {
		config.Exit = os.Exit
	}
	return &Coordinator{config: config, requested: make(chan struct{})}
}

// Request asks the run to stop. The first call cancels every queued
// job and the run context; running jobs then go through SIGTERM and
// grace period in their supervisors. A later call kills every recorded
// process group outright and exits with ExitInterrupted.
func (c *Coordinator) Request(reason string) {
	c.mu.Lock()
	c.requests++
	count := c.requests
	c.mu.Unlock()

	logger := c.config.Logger
	if count == 1 {
		cancelled := c.config.Registry.CancelPending(ReasonShutdown, c.config.Clock.Now())
		logger.Warn("shutting down",
			"reason", reason,
			"running", c.config.Registry.Counts().Running,
			"cancelled_queued", len(cancelled),
		)
		c.config.Cancel()
		close(c.requested)
		return
	}

	logger.Warn("second shutdown request, killing all jobs", "reason", reason)
	if err := c.config.Groups.KillAll(); err != nil {
		logger.Error("killing process groups failed", "error", err)
	}
	c.config.Exit(ExitInterrupted)
}

// Listen turns received signals into Requests until ctx is done. ctx
// must outlive the run context so a second signal is still heard.
func (c *Coordinator) Listen(ctx context.Context, signals <-chan os.Signal) {
	for {
		select {
		case sig := <-signals:
			c.Request("received " + sig.String())
		case <-ctx.Done():
			return
		}
	}
}

// Requested reports whether shutdown has been requested.
func (c *Coordinator) Requested() bool {
	select {
	case <-c.requested:
		return true
	default:
		return false
	}
}

// Done is closed by the first Request.
func (c *Coordinator) Done() <-chan struct{} {
	return c.requested
}
