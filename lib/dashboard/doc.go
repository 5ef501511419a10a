// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dashboard is the interactive terminal view of a gparallel
// run: device occupancy and memory, the job list, and the output tail
// of the selected job.
//
// The model is read-only with respect to scheduling. Every 100ms it
// pulls one [Frame] from a [Source] and re-renders; the only state it
// owns is the selection, the scroll position, the filter query, and
// how the user left (detach or force quit). Leaving with q detaches:
// jobs keep running. Ctrl+C invokes the force-quit callback supplied
// by the caller, which in gparallel is the shutdown coordinator.
//
// [LogHandler] routes slog records into the status line so warnings
// raised while the alternate screen is active are not lost.
package dashboard
