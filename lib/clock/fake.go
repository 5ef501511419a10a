// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"slices"
	"sync"
	"time"
)

// Fake returns a FakeClock standing still at initial. Time moves only
// when Advance is called. Safe for concurrent use.
func Fake(initial time.Time) *FakeClock {
	clock := &FakeClock{now: initial}
	clock.armed = sync.NewCond(&clock.mu)
	return clock
}

// FakeClock is a deterministic Clock for tests.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer

	// armed is broadcast whenever a timer is added.
	armed *sync.Cond
}

type fakeTimer struct {
	when time.Time
	c    chan time.Time

	// period re-arms the timer after it fires; zero for After.
	period  time.Duration
	stopped bool
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After fires once the clock reaches now+d. A non-positive d is ready
// at once and does not count as pending.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	if d <= 0 {
		ready := make(chan time.Time, 1)
		ready <- c.Now()
		return ready
	}
	return c.arm(d, 0).c
}

// NewTicker fires every d of advanced time. Panics if d <= 0.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	timer := c.arm(d, d)
	return &Ticker{
		C: timer.c,
		stopFunc: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			timer.stopped = true
		},
	}
}

func (c *FakeClock) arm(d, period time.Duration) *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	timer := &fakeTimer{when: c.now.Add(d), c: make(chan time.Time, 1), period: period}
	c.timers = append(c.timers, timer)
	c.armed.Broadcast()
	return timer
}

// Advance moves the clock forward by d and fires every due timer in
// deadline order, tickers once per elapsed period. Sends never block:
// a tick whose buffer is full is dropped.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()

	for {
		timer := c.nextDue(now)
		if timer == nil {
			return
		}
		select {
		case timer.c <- now:
		default:
		}
	}
}

// nextDue returns the earliest live timer due at now, removing it or
// re-arming it for its next period.
func (c *FakeClock) nextDue(now time.Time) *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.timers = slices.DeleteFunc(c.timers, func(timer *fakeTimer) bool { return timer.stopped })
	due := -1
	for i, timer := range c.timers {
		if timer.when.After(now) {
			continue
		}
		if due < 0 || timer.when.Before(c.timers[due].when) {
			due = i
		}
	}
	if due < 0 {
		return nil
	}

	timer := c.timers[due]
	if timer.period > 0 {
		timer.when = timer.when.Add(timer.period)
	} else {
		c.timers = slices.Delete(c.timers, due, due+1)
	}
	return timer
}

// WaitForTimers blocks until at least n timers are pending. Tests use
// it to know a goroutine has reached its sleep before calling Advance.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pendingLocked() < n {
		c.armed.Wait()
	}
}

// PendingCount returns the number of pending timers and live tickers.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingLocked()
}

func (c *FakeClock) pendingLocked() int {
	pending := 0
	for _, timer := range c.timers {
		if !timer.stopped {
			pending++
		}
	}
	return pending
}
