// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package scheduler binds queued jobs to free devices and runs them.
//
// The [Dispatcher] is a single reactor goroutine. It sleeps until the
// registry has a queued job, sleeps on device.Pool.Ready until a device
// is free, takes the queue head and the lowest free device in one
// registry transition, and hands the job to a [Supervisor] goroutine.
// Because only the dispatcher dispatches, queue order is dispatch order.
//
// A [Supervisor] runs one job: `<shell> -c <command>` in its own process
// group with the visibility variable narrowed to the assigned device,
// combined stdout/stderr streamed line by line into the registry and any
// configured output sinks. When the run context is cancelled or the job
// exceeds its maximum runtime the group receives SIGTERM, then SIGKILL
// after the grace period. Finishing the job in the registry returns the
// device in the same transition, which wakes the dispatcher.
//
// The [Coordinator] turns the first shutdown request (signal or
// dashboard) into "cancel every queued job, cancel the run context" and
// a second request into "SIGKILL every process group, exit now".
package scheduler
