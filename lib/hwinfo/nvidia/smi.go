// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package nvidia

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bureau-foundation/gparallel/lib/hwinfo"
)

// DefaultSMIPath is the nvidia-smi binary looked up on PATH.
const DefaultSMIPath = "nvidia-smi"

// SMI wraps the nvidia-smi command-line tool.
type SMI struct {
	path string
	run  hwinfo.CommandRunner
}

// NewSMI returns an SMI invoking the binary at path through run. An
// empty path means [DefaultSMIPath]; a nil run means [hwinfo.RunCommand].
func NewSMI(path string, run hwinfo.CommandRunner) *SMI {
	if path == "" {
		path = DefaultSMIPath
	}
	if run == nil {
		run = hwinfo.RunCommand
	}
	return &SMI{path: path, run: run}
}

// List runs `nvidia-smi -L` and returns the device names in index
// order. An error means the tool is missing or failed; an empty slice
// means it ran and reported no devices.
func (s *SMI) List(ctx context.Context) ([]string, error) {
	output, err := s.run(ctx, s.path, "-L")
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	return ParseListing(string(output)), nil
}

// ParseListing extracts device names from `nvidia-smi -L` output:
//
//	GPU 0: NVIDIA GeForce RTX 4090 (UUID: GPU-5e3c...)
//	  MIG 3g.20gb Device 0: (UUID: MIG-GPU-5e3c.../1/0)
//
// Only lines beginning with "GPU " count. MIG instance lines are
// indented and carry "GPU" inside their UUID, so matching anywhere in
// the line would overcount. The name is the text between the first ':'
// and the following '('; when that is empty the name is "GPU<index>".
func ParseListing(output string) []string {
	var names []string
	for _, line := range strings.Split(output, "\n") {
		if !strings.HasPrefix(line, "GPU ") {
			continue
		}
		index := len(names)
		name := ""
		if _, rest, found := strings.Cut(line, ":"); found {
			if before, _, found := strings.Cut(rest, "("); found {
				rest = before
			}
			name = strings.TrimSpace(rest)
		}
		if name == "" {
			name = "GPU" + strconv.Itoa(index)
		}
		names = append(names, name)
	}
	return names
}
