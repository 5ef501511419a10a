// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hwinfo

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// GPUInfo is the static identity of one accelerator as reported by the
// kernel driver.
type GPUInfo struct {
	// Driver is the bound kernel driver ("nvidia", "nouveau").
	Driver string

	// Vendor is the human-readable PCI vendor ("NVIDIA").
	Vendor string

	// PCIDeviceID is the PCI device id in "0x2684" form.
	PCIDeviceID string

	// PCISlot is the PCI address ("0000:01:00.0").
	PCISlot string

	// ModelName is the marketing name. Empty when the driver does not
	// expose it (nouveau).
	ModelName string

	// UniqueID is the driver-assigned UUID, when available.
	UniqueID string
}

// GPUProber enumerates GPU hardware for a specific vendor.
type GPUProber interface {
	// Enumerate returns static information for all GPUs managed by
	// this vendor's driver. Returns nil (not an error) if no GPUs are
	// detected.
	Enumerate() []GPUInfo
}

// Memory is a point-in-time reading of one device's memory, in bytes.
type Memory struct {
	Free  uint64
	Total uint64
}

// Used returns Total - Free, clamped at zero.
func (m Memory) Used() uint64 {
	if m.Free > m.Total {
		return 0
	}
	return m.Total - m.Free
}

// UsedPercent returns the used share of total memory in [0, 100].
// Returns 0 when Total is unknown.
func (m Memory) UsedPercent() float64 {
	if m.Total == 0 {
		return 0
	}
	return float64(m.Used()) * 100 / float64(m.Total)
}

// MemoryCollector reads free/total memory of one device by logical id.
type MemoryCollector interface {
	Memory(ctx context.Context, device int) (Memory, error)
}

// CommandRunner runs an external program and returns its standard
// output. Implementations must honor ctx cancellation.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// RunCommand is the production [CommandRunner]. A non-zero exit is
// reported with the first line of the program's stderr.
func RunCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	command := exec.CommandContext(ctx, name, args...)
	output, err := command.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if detail := firstLine(string(exitErr.Stderr)); detail != "" {
				return output, fmt.Errorf("%s: %w: %s", name, err, detail)
			}
		}
		return output, fmt.Errorf("%s: %w", name, err)
	}
	return output, nil
}

func firstLine(text string) string {
	text = strings.TrimSpace(text)
	if index := strings.IndexByte(text, '\n'); index >= 0 {
		return strings.TrimSpace(text[:index])
	}
	return text
}
