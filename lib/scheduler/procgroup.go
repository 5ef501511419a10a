// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"errors"
	"sort"
	"sync"

	"golang.org/x/sys/unix"
)

// signalGroup sends sig to every process in process group pgid. A group
// that no longer exists is not an error.
func signalGroup(pgid int, sig unix.Signal) error {
	if pgid <= 0 {
		return nil
	}
	err := unix.Kill(-pgid, sig)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

// ProcessGroups tracks the process groups of running jobs so a forced
// shutdown can reach all of them.
type ProcessGroups struct {
	mu     sync.Mutex
	groups map[int]struct{}
}

// NewProcessGroups returns an empty set.
func NewProcessGroups() *ProcessGroups {
	return &ProcessGroups{groups: make(map[int]struct{})}
}

// Add records a live process group.
func (p *ProcessGroups) Add(pgid int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.groups[pgid] = struct{}{}
}

// Remove forgets a process group once its leader has been reaped.
func (p *ProcessGroups) Remove(pgid int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.groups, pgid)
}

// List returns the recorded groups in ascending order.
func (p *ProcessGroups) List() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	groups := make([]int, 0, len(p.groups))
	for pgid := range p.groups {
		groups = append(groups, pgid)
	}
	sort.Ints(groups)
	return groups
}

// KillAll sends SIGKILL to every recorded group and returns the errors
// joined. Groups that already exited are skipped silently.
func (p *ProcessGroups) KillAll() error {
	var errs []error
	for _, pgid := range p.List() {
		if err := signalGroup(pgid, unix.SIGKILL); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
