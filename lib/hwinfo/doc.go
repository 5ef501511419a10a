// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package hwinfo describes accelerator hardware as gparallel sees it:
// static identity ([GPUInfo]) from a vendor [GPUProber], and free/total
// device memory ([Memory]) from a vendor [MemoryCollector].
//
// # Sysfs helpers
//
// Vendor subpackages walk /sys/class/drm with [IsDRMCard], check the
// bound driver with [BoundDriver] and read [PCIIdentity] from uevent.
//
// # External commands
//
// Vendor tools (nvidia-smi) are invoked through a [CommandRunner] so
// tests can substitute canned output for the real binary.
//
// # Subpackages
//
//   - hwinfo/nvidia: enumeration from sysfs and /proc/driver/nvidia/,
//     the `nvidia-smi -L` device listing, and a memory collector backed
//     by `nvidia-smi --query-gpu`.
package hwinfo
