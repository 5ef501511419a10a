// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrNotHeld is returned when releasing a device that is already
	// free.
	ErrNotHeld = errors.New("device is not held")

	// ErrUnknownDevice is returned when releasing an id outside the
	// pool.
	ErrUnknownDevice = errors.New("unknown device")
)

// Pool hands out device ids one holder at a time. The lowest free id
// is handed out first.
type Pool struct {
	mu    sync.Mutex
	known map[int]bool
	held  map[int]bool
	free  []int // sorted ascending

	// ready is closed when a device returns to an empty free set.
	ready chan struct{}
}

var closedReady = func() chan struct{} {
	ready := make(chan struct{})
	close(ready)
	return ready
}()

// NewPool returns a pool with every id free.
func NewPool(ids []int) *Pool {
	pool := &Pool{
		known: make(map[int]bool, len(ids)),
		held:  make(map[int]bool, len(ids)),
	}
	for _, id := range ids {
		if pool.known[id] {
			continue
		}
		pool.known[id] = true
		pool.free = append(pool.free, id)
	}
	sort.Ints(pool.free)
	return pool
}

// Size returns the number of devices in the pool.
func (p *Pool) Size() int {
	return len(p.known)
}

// Free returns the currently free ids in ascending order.
func (p *Pool) Free() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.free...)
}

// Acquire blocks until it takes a device or ctx is done. The caller
// must Release the returned id exactly once. Concurrent callers race
// for each released device.
func (p *Pool) Acquire(ctx context.Context) (int, error) {
	for {
		if id, ok := p.TryAcquire(); ok {
			return id, nil
		}
		select {
		case <-p.Ready():
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// Ready returns a channel that is closed once a device is free, or an
// already closed channel when one is free now. It takes nothing: the
// device may be gone again by the time the receiver calls TryAcquire.
func (p *Pool) Ready() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) > 0 {
		return closedReady
	}
	if p.ready == nil {
		p.ready = make(chan struct{})
	}
	return p.ready
}

// TryAcquire takes the lowest free id without blocking. The caller
// must Release it exactly once.
func (p *Pool) TryAcquire() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) == 0 {
		return 0, false
	}
	id := p.free[0]
	p.free = p.free[1:]
	p.held[id] = true
	return id, true
}

// Release returns id to the free set and wakes Ready waiters.
func (p *Pool) Release(id int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.known[id] {
		return fmt.Errorf("releasing device %d: %w", id, ErrUnknownDevice)
	}
	if !p.held[id] {
		return fmt.Errorf("releasing device %d: %w", id, ErrNotHeld)
	}
	p.releaseLocked(id)
	return nil
}

func (p *Pool) releaseLocked(id int) {
	p.held[id] = false
	position := sort.SearchInts(p.free, id)
	p.free = append(p.free, 0)
	copy(p.free[position+1:], p.free[position:])
	p.free[position] = id
	if p.ready != nil {
		close(p.ready)
		p.ready = nil
	}
}
