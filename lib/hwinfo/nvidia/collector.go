// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package nvidia

import (
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/bureau-foundation/gparallel/lib/hwinfo"
)

const mebibyte = 1 << 20

// Memory implements hwinfo.MemoryCollector by running
//
//	nvidia-smi --query-gpu=memory.free,memory.total --format=csv,noheader,nounits --id=N
//
// Values are reported in MiB and converted to bytes.
func (s *SMI) Memory(ctx context.Context, device int) (hwinfo.Memory, error) {
	output, err := s.run(ctx, s.path,
		"--query-gpu=memory.free,memory.total",
		"--format=csv,noheader,nounits",
		"--id="+strconv.Itoa(device))
	if err != nil {
		return hwinfo.Memory{}, fmt.Errorf("querying memory of device %d: %w", device, err)
	}
	memory, err := ParseMemoryQuery(string(output))
	if err != nil {
		return hwinfo.Memory{}, fmt.Errorf("device %d: %w", device, err)
	}
	return memory, nil
}

// ParseMemoryQuery parses the first record of a
// "memory.free,memory.total" CSV query in MiB without units.
func ParseMemoryQuery(output string) (hwinfo.Memory, error) {
	reader := csv.NewReader(strings.NewReader(output))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = 2
	record, err := reader.Read()
	if err != nil {
		return hwinfo.Memory{}, fmt.Errorf("parsing memory query %q: %w", strings.TrimSpace(output), err)
	}

	free, err := parseMiB(record[0])
	if err != nil {
		return hwinfo.Memory{}, fmt.Errorf("memory.free: %w", err)
	}
	total, err := parseMiB(record[1])
	if err != nil {
		return hwinfo.Memory{}, fmt.Errorf("memory.total: %w", err)
	}
	return hwinfo.Memory{Free: free * mebibyte, Total: total * mebibyte}, nil
}

// parseMiB accepts a plain unsigned integer. nvidia-smi prints
// "[N/A]" or "[Not Supported]" for fields the device lacks.
func parseMiB(field string) (uint64, error) {
	field = strings.TrimSpace(field)
	value, err := strconv.ParseUint(field, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unsupported value %q", field)
	}
	return value, nil
}
