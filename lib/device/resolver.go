// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"context"
	"log/slog"

	"github.com/bureau-foundation/gparallel/lib/hwinfo"
)

// Resolver produces the run's inventory from the first probe that
// finds devices.
type Resolver struct {
	probes []Probe
	logger *slog.Logger
}

// NewResolver returns a Resolver trying probes in order. A nil logger
// discards.
func NewResolver(logger *slog.Logger, probes ...Probe) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{probes: probes, logger: logger}
}

// StandardProbes is the production chain: visibility variable (range
// checked against the driver, then the listing), kernel driver, device
// listing, single default device.
func StandardProbes(variable string, gpus hwinfo.GPUProber, tool Lister) []Probe {
	driver := DriverProbe{GPUs: gpus}
	listing := ListingProbe{Tool: tool}
	return []Probe{
		EnvProbe{Variable: variable, Physical: []Probe{driver, listing}},
		driver,
		listing,
		DefaultProbe{},
	}
}

// Resolve never fails. If no probe succeeds (including when the chain
// has no DefaultProbe) the inventory is the single device 0.
func (r *Resolver) Resolve(ctx context.Context) *Inventory {
	for _, probe := range r.probes {
		devices, ok := probe.Probe(ctx, r.logger)
		if !ok || len(devices) == 0 {
			continue
		}
		r.logger.Debug("device inventory resolved",
			"strategy", probe.Name(),
			"devices", len(devices),
		)
		return NewInventory(devices)
	}
	devices, _ := DefaultProbe{}.Probe(ctx, r.logger)
	return NewInventory(devices)
}
