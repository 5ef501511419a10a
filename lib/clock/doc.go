// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the time source used by the scheduler.
//
// Job timestamps, the telemetry polling ticker, the termination grace
// period, the output drain timeout, and the per-job runtime limit all go
// through a Clock. Production wires Real(); tests wire Fake() and move
// time forward explicitly:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	poller := telemetry.NewPoller(inventory, collector, fake, logger, 2*time.Second)
//	go poller.Run(ctx)
//	fake.WaitForTimers(1)      // poller registered its ticker
//	fake.Advance(2 * time.Second)
//
// WaitForTimers closes the race between a goroutine registering a timer
// and the test advancing past it.
package clock
