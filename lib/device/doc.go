// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package device resolves the set of accelerators a gparallel run may
// use and hands them out one job at a time.
//
// [Resolver] walks an ordered list of [Probe] strategies (visibility
// variable, kernel driver, nvidia-smi listing, single default device)
// and keeps the first that produces devices. Resolution never fails.
// The result is an [Inventory]: the fixed device list plus the latest
// memory readings written by the telemetry poller.
//
// [Pool] is the free set over an inventory's ids. TryAcquire takes the
// lowest free id and Release puts it back. Ready lets a caller sleep
// until one is free without taking it; Acquire sleeps and takes. Every
// id is at all times either free or held by exactly one caller.
package device
