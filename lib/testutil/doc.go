// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// safety valve so that scheduler tests waiting on a job transition or
// a pool hand-off never hang the suite. They are the only helpers that
// use real wall-clock timeouts.
//
// [Eventually] re-evaluates a condition each time a change channel
// fires, for state that is published through a broadcast channel
// rather than a value channel (the job registry's Changed).
//
// All helpers call t.Fatalf on failure.
package testutil
