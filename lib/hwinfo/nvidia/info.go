// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package nvidia discovers NVIDIA GPUs and reads their memory.
//
// Static enumeration walks sysfs (/sys/class/drm/card*) for cards bound
// to the nvidia (proprietary) or nouveau (open-source) kernel driver and,
// when the proprietary driver is loaded, enriches each card from
// /proc/driver/nvidia/gpus/<slot>/information.
//
// Memory telemetry and the fallback device listing go through the
// nvidia-smi tool ([SMI]). NVML would need cgo or dlopen, and NVIDIA's
// ioctl interface changes between driver versions, so the CLI is the
// stable surface.
package nvidia

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bureau-foundation/gparallel/lib/hwinfo"
)

// Prober implements hwinfo.GPUProber for NVIDIA GPUs.
type Prober struct {
	// sysRoot is the root of the sysfs filesystem. "/sys" in
	// production; a synthetic tree in tests.
	sysRoot string

	// procRoot is the root of the proc filesystem.
	procRoot string
}

// NewProber creates a Prober that reads from the real /sys and /proc.
func NewProber() *Prober {
	return &Prober{sysRoot: "/sys", procRoot: "/proc"}
}

// NewProberFrom creates a Prober with custom filesystem roots.
func NewProberFrom(sysRoot, procRoot string) *Prober {
	return &Prober{sysRoot: sysRoot, procRoot: procRoot}
}

// Enumerate returns static information for every NVIDIA GPU bound to
// the nvidia or nouveau driver, ordered by PCI slot. PCI bus order is
// the order nvidia-smi and CUDA_DEVICE_ORDER=PCI_BUS_ID number devices,
// so the slice index is the logical device id. Returns nil when no
// NVIDIA device is present.
func (p *Prober) Enumerate() []hwinfo.GPUInfo {
	drmBase := filepath.Join(p.sysRoot, "class/drm")
	entries, err := os.ReadDir(drmBase)
	if err != nil {
		return nil
	}

	var gpus []hwinfo.GPUInfo
	for _, entry := range entries {
		name := entry.Name()
		if !hwinfo.IsDRMCard(name) {
			continue
		}

		devicePath := filepath.Join(drmBase, name, "device")
		driver := hwinfo.BoundDriver(devicePath)
		if driver != "nvidia" && driver != "nouveau" {
			continue
		}

		identity := hwinfo.ReadPCIIdentity(devicePath)
		gpu := hwinfo.GPUInfo{
			Driver:      driver,
			Vendor:      identity.Vendor,
			PCIDeviceID: identity.DeviceID,
			PCISlot:     identity.Slot,
		}
		if driver == "nvidia" && gpu.PCISlot != "" {
			p.enrichFromProc(&gpu)
		}
		gpus = append(gpus, gpu)
	}

	sort.SliceStable(gpus, func(i, j int) bool {
		return gpus[i].PCISlot < gpus[j].PCISlot
	})
	return gpus
}

// enrichFromProc reads /proc/driver/nvidia/gpus/<pci-slot>/information,
// which holds key-value lines like:
//
//	Model:           NVIDIA GeForce RTX 4090
//	GPU UUID:        GPU-xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx
func (p *Prober) enrichFromProc(gpu *hwinfo.GPUInfo) {
	infoPath := filepath.Join(p.procRoot, "driver/nvidia/gpus", gpu.PCISlot, "information")
	data, err := os.ReadFile(infoPath)
	if err != nil {
		return
	}

	for _, line := range strings.Split(string(data), "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		switch strings.TrimSpace(key) {
		case "Model":
			gpu.ModelName = strings.TrimSpace(value)
		case "GPU UUID":
			gpu.UniqueID = strings.TrimSpace(value)
		}
	}
}
