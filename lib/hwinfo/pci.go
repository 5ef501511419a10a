// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hwinfo

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"
)

// PCIIdentity is what a device's sysfs uevent file says about it.
type PCIIdentity struct {
	// Vendor is a readable vendor name ("NVIDIA"), or the raw id as
	// "0x1af4" for vendors we do not name.
	Vendor string

	// DeviceID is the PCI device id as "0x2684".
	DeviceID string

	// Slot is the PCI address, "0000:01:00.0".
	Slot string
}

var vendorNames = map[string]string{
	"10de": "NVIDIA",
	"1002": "AMD",
	"8086": "Intel",
}

// IsDRMCard reports whether a /sys/class/drm entry is a card node
// ("card0") and not a connector ("card0-DP-1") or render node.
func IsDRMCard(name string) bool {
	index, ok := strings.CutPrefix(name, "card")
	return ok && index != "" && strings.Trim(index, "0123456789") == ""
}

// BoundDriver returns the kernel driver bound to the device at
// devicePath, or "" when none is.
func BoundDriver(devicePath string) string {
	target, err := os.Readlink(filepath.Join(devicePath, "driver"))
	if err != nil {
		return ""
	}
	return filepath.Base(target)
}

// ReadPCIIdentity parses <devicePath>/uevent, which carries lines like
//
//	PCI_ID=10DE:2684
//	PCI_SLOT_NAME=0000:01:00.0
//
// A missing file yields the zero identity.
func ReadPCIIdentity(devicePath string) PCIIdentity {
	data, err := os.ReadFile(filepath.Join(devicePath, "uevent"))
	if err != nil {
		return PCIIdentity{}
	}

	var identity PCIIdentity
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		switch key {
		case "PCI_ID":
			vendor, device, ok := strings.Cut(strings.ToLower(value), ":")
			if !ok {
				continue
			}
			identity.Vendor = VendorName(vendor)
			if device != "" {
				identity.DeviceID = "0x" + device
			}
		case "PCI_SLOT_NAME":
			identity.Slot = value
		}
	}
	return identity
}

// VendorName maps a lowercase PCI vendor id to a name.
func VendorName(id string) string {
	if name, ok := vendorNames[id]; ok {
		return name
	}
	if id == "" {
		return ""
	}
	return "0x" + id
}
