// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/bureau-foundation/gparallel/lib/hwinfo"
)

// DefaultVisibilityVariable is the environment variable that restricts
// which devices CUDA programs see.
const DefaultVisibilityVariable = "CUDA_VISIBLE_DEVICES"

// Probe is one device detection strategy. Probe returns ok=false when
// the strategy does not apply or found nothing, and the resolver moves
// on to the next one.
type Probe interface {
	Name() string
	Probe(ctx context.Context, logger *slog.Logger) (devices []Device, ok bool)
}

// Lister reports device names in index order. The nvidia-smi wrapper
// (nvidia.SMI) satisfies it.
type Lister interface {
	List(ctx context.Context) ([]string, error)
}

// EnvProbe reads the visibility variable as a comma-separated list of
// device ids.
type EnvProbe struct {
	// Variable is the environment variable name. Empty means
	// [DefaultVisibilityVariable].
	Variable string

	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)

	// Physical probes are tried in order to learn the physical device
	// count and names. When none succeeds ids are not range-checked
	// and devices are named GPU<id>.
	Physical []Probe
}

func (p EnvProbe) Name() string {
	return "environment " + p.variable()
}

func (p EnvProbe) variable() string {
	if p.Variable == "" {
		return DefaultVisibilityVariable
	}
	return p.Variable
}

func (p EnvProbe) Probe(ctx context.Context, logger *slog.Logger) ([]Device, bool) {
	lookup := p.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	variable := p.variable()
	value, set := lookup(variable)
	if !set || strings.TrimSpace(value) == "" {
		return nil, false
	}

	ids := ParseVisibleDevices(value, func(entry, problem string) {
		logger.Warn("ignoring device entry", "variable", variable, "entry", entry, "problem", problem)
	})

	var physical []Device
	for _, probe := range p.Physical {
		if devices, ok := probe.Probe(ctx, logger); ok {
			physical = devices
			break
		}
	}

	var devices []Device
	for _, id := range ids {
		if physical == nil {
			devices = append(devices, Device{ID: id, Name: DefaultName(id)})
			continue
		}
		if id >= len(physical) {
			logger.Warn("ignoring device entry",
				"variable", variable,
				"entry", id,
				"problem", "beyond physical device count",
				"physical_devices", len(physical),
			)
			continue
		}
		devices = append(devices, Device{ID: id, Name: physical[id].Name})
	}

	if len(devices) == 0 {
		logger.Warn("visibility variable names no usable device, ignoring it",
			"variable", variable, "value", value)
		return nil, false
	}
	return devices, true
}

// ParseVisibleDevices parses a comma-separated list of non-negative
// device ids. Unparseable and negative entries are dropped, and
// duplicates keep their first position. Each dropped entry is reported
// through reject, which may be nil.
func ParseVisibleDevices(value string, reject func(entry, problem string)) []int {
	if reject == nil {
		reject = func(string, string) {}
	}
	var ids []int
	seen := make(map[int]bool)
	for _, field := range strings.Split(value, ",") {
		entry := strings.TrimSpace(field)
		if entry == "" {
			continue
		}
		id, err := strconv.Atoi(entry)
		if err != nil {
			reject(entry, "not an integer")
			continue
		}
		if id < 0 {
			reject(entry, "negative")
			continue
		}
		if seen[id] {
			reject(entry, "duplicate")
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// DriverProbe enumerates devices through the kernel driver (sysfs and
// /proc/driver/nvidia). Ids are 0..count-1 in PCI bus order.
type DriverProbe struct {
	GPUs hwinfo.GPUProber
}

func (DriverProbe) Name() string { return "kernel driver" }

func (p DriverProbe) Probe(_ context.Context, _ *slog.Logger) ([]Device, bool) {
	if p.GPUs == nil {
		return nil, false
	}
	gpus := p.GPUs.Enumerate()
	if len(gpus) == 0 {
		return nil, false
	}
	devices := make([]Device, len(gpus))
	for id, gpu := range gpus {
		name := gpu.ModelName
		if name == "" {
			name = DefaultName(id)
		}
		devices[id] = Device{ID: id, Name: name}
	}
	return devices, true
}

// ListingProbe asks the vendor tool (`nvidia-smi -L`) for its device
// list. Ids are 0..count-1.
type ListingProbe struct {
	Tool Lister
}

func (ListingProbe) Name() string { return "device listing" }

func (p ListingProbe) Probe(ctx context.Context, logger *slog.Logger) ([]Device, bool) {
	if p.Tool == nil {
		return nil, false
	}
	names, err := p.Tool.List(ctx)
	if err != nil {
		logger.Debug("device listing unavailable", "error", err)
		return nil, false
	}
	if len(names) == 0 {
		return nil, false
	}
	devices := make([]Device, len(names))
	for id, name := range names {
		devices[id] = Device{ID: id, Name: name}
	}
	return devices, true
}

// DefaultProbe always succeeds with the single device 0.
type DefaultProbe struct{}

func (DefaultProbe) Name() string { return "default" }

func (DefaultProbe) Probe(_ context.Context, logger *slog.Logger) ([]Device, bool) {
	logger.Warn("no accelerator detected, assuming a single device 0")
	return []Device{{ID: 0, Name: DefaultName(0)}}, true
}
