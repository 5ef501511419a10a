// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"strconv"
	"sync"
	"time"

	"github.com/bureau-foundation/gparallel/lib/hwinfo"
)

// Device is one schedulable accelerator. ID is the logical id a job
// sees through the visibility variable. Busy/idle is not stored here:
// it follows from which Running job holds the id.
type Device struct {
	ID   int
	Name string

	// TotalMemory and FreeMemory are in bytes. Both are zero until the
	// first successful telemetry poll.
	TotalMemory uint64
	FreeMemory  uint64

	// MemoryUpdated is when the memory fields were last refreshed.
	// Zero means never.
	MemoryUpdated time.Time
}

// HasTelemetry reports whether memory has been read at least once.
func (d Device) HasTelemetry() bool {
	return !d.MemoryUpdated.IsZero()
}

// Memory returns the last memory reading.
func (d Device) Memory() hwinfo.Memory {
	return hwinfo.Memory{Free: d.FreeMemory, Total: d.TotalMemory}
}

// DefaultName is the display name used when no driver or tool reports
// one.
func DefaultName(id int) string {
	return "GPU" + strconv.Itoa(id)
}

// Inventory is the fixed device list of a run. The list itself never
// changes after construction; only memory readings are updated.
type Inventory struct {
	mu      sync.RWMutex
	devices []Device
	index   map[int]int
}

// NewInventory copies devices into a new Inventory. Device order is
// preserved and is the display order.
func NewInventory(devices []Device) *Inventory {
	inventory := &Inventory{
		devices: make([]Device, len(devices)),
		index:   make(map[int]int, len(devices)),
	}
	copy(inventory.devices, devices)
	for position, device := range inventory.devices {
		inventory.index[device.ID] = position
	}
	return inventory
}

// Len returns the number of devices.
func (inv *Inventory) Len() int {
	return len(inv.devices)
}

// IDs returns the device ids in display order.
func (inv *Inventory) IDs() []int {
	ids := make([]int, len(inv.devices))
	for position, device := range inv.devices {
		ids[position] = device.ID
	}
	return ids
}

// Devices returns a copy of the device list with current readings.
func (inv *Inventory) Devices() []Device {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	devices := make([]Device, len(inv.devices))
	copy(devices, inv.devices)
	return devices
}

// Get returns the device with the given id.
func (inv *Inventory) Get(id int) (Device, bool) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	position, ok := inv.index[id]
	if !ok {
		return Device{}, false
	}
	return inv.devices[position], true
}

// UpdateMemory records a memory reading taken at the given time.
// Returns false if id is not in the inventory.
func (inv *Inventory) UpdateMemory(id int, memory hwinfo.Memory, at time.Time) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	position, ok := inv.index[id]
	if !ok {
		return false
	}
	inv.devices[position].FreeMemory = memory.Free
	inv.devices[position].TotalMemory = memory.Total
	inv.devices[position].MemoryUpdated = at
	return true
}
