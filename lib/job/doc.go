// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package job holds the authoritative state of every command submitted
// to a gparallel run.
//
// A [Registry] owns the job records, the FIFO queue of pending jobs,
// and each job's bounded output buffer ([LineBuffer]). All transitions
// go through it:
//
//	Submit        → Queued
//	DispatchFrom  Queued  → Running   (queue head plus a free device, atomically)
//	Finish        Running → Done | Failed | Cancelled (device returned)
//	CancelPending Queued  → Cancelled (every queued job)
//
// Terminal states are final and jobs are never removed. Readers get
// deep copies ([Info], [View]); nothing outside the registry holds a
// pointer into its records.
//
// Lifecycle transitions are also published to [Observer]s (journal,
// history database, plain-text reporter) after the registry lock is
// released, in commit order.
package job
