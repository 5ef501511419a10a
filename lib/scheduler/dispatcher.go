// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/gparallel/lib/clock"
	"github.com/bureau-foundation/gparallel/lib/device"
	"github.com/bureau-foundation/gparallel/lib/job"
)

// JobRunner runs one dispatched job. It must finish the job in the
// registry before returning; Finish returns the device to the pool.
// *Supervisor is the production implementation.
type JobRunner interface {
	Supervise(ctx context.Context, info job.Info)
}

// Dispatcher pairs queued jobs with free devices.
type Dispatcher struct {
	registry *job.Registry
	pool     *device.Pool
	runner   JobRunner
	clock    clock.Clock
	logger   *slog.Logger

	running sync.WaitGroup
}

// NewDispatcher returns a Dispatcher. Call Run to start dispatching.
func NewDispatcher(registry *job.Registry, pool *device.Pool, runner JobRunner, clk clock.Clock, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		pool:     pool,
		runner:   runner,
		clock:    clk,
		logger:   logger,
	}
}

// Submit queues a command and wakes the dispatch loop.
func (d *Dispatcher) Submit(command string) job.Info {
	info := d.registry.Submit(command, d.clock.Now())
	d.logger.Debug("job queued", "job", info.ShortID(), "command", info.Command)
	return info
}

// Run dispatches until ctx is done. It never polls: it sleeps on the
// registry's wake channel while the queue is empty and on the pool's
// ready channel while every device is busy. The device is taken inside
// Registry.DispatchFrom, together with the queue head.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		if d.registry.Pending() == 0 {
			select {
			case <-d.registry.Wake():
				continue
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-d.pool.Ready():
		case <-ctx.Done():
			return
		}
		if ctx.Err() != nil {
			return
		}

		info, ok := d.registry.DispatchFrom(d.pool, d.clock.Now())
		if !ok {
			// The queue was emptied (shutdown) or the device went
			// elsewhere while we waited.
			continue
		}

		d.logger.Info("job started",
			"job", info.ShortID(),
			"device", info.Device,
			"command", info.Command,
		)
		d.running.Add(1)
		go func() {
			defer d.running.Done()
			d.runner.Supervise(ctx, info)
		}()
	}
}

// Wait blocks until every job started by Run has been supervised to
// completion.
func (d *Dispatcher) Wait() {
	d.running.Wait()
}
