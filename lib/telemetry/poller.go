// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry keeps the device inventory's memory readings fresh.
//
// A [Poller] reads every device's free/total memory through a
// hwinfo.MemoryCollector once at start and then on every tick. Failures
// are logged and leave the previous reading in place; they never stop
// the poller or affect scheduling.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/bureau-foundation/gparallel/lib/clock"
	"github.com/bureau-foundation/gparallel/lib/device"
	"github.com/bureau-foundation/gparallel/lib/hwinfo"
)

// DefaultInterval is the time between polls.
const DefaultInterval = 2 * time.Second

// Poller refreshes memory readings in an Inventory.
type Poller struct {
	inventory *device.Inventory
	collector hwinfo.MemoryCollector
	clock     clock.Clock
	logger    *slog.Logger
	interval  time.Duration

	// failing holds the ids whose last poll failed, so a persistent
	// failure warns once and its recovery is reported.
	failing map[int]bool

	// polled receives a token after each complete pass. Tests only.
	polled chan struct{}
}

// NewPoller returns a Poller. interval <= 0 means DefaultInterval.
func NewPoller(inventory *device.Inventory, collector hwinfo.MemoryCollector, clk clock.Clock, logger *slog.Logger, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		inventory: inventory,
		collector: collector,
		clock:     clk,
		logger:    logger,
		interval:  interval,
		failing:   make(map[int]bool),
	}
}

// Run polls until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	p.Poll(ctx)
	for {
		select {
		case <-ticker.C:
			p.Poll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Poll reads every device once. Not safe for concurrent use with
// itself; Run calls it from a single goroutine.
func (p *Poller) Poll(ctx context.Context) {
	for _, id := range p.inventory.IDs() {
		if ctx.Err() != nil {
			return
		}
		memory, err := p.collector.Memory(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if p.failing[id] {
				p.logger.Debug("device memory still unavailable", "device", id, "error", err)
			} else {
				p.logger.Warn("reading device memory failed", "device", id, "error", err)
				p.failing[id] = true
			}
			continue
		}
		if p.failing[id] {
			p.logger.Info("device memory readable again", "device", id)
			delete(p.failing, id)
		}
		p.inventory.UpdateMemory(id, memory, p.clock.Now())
	}
	if p.polled != nil {
		select {
		case p.polled <- struct{}{}:
		default:
		}
	}
}
