// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the binary entrypoint helpers: fatal error
// reporting before the structured logger exists, and mapping a returned
// error onto the process exit status.
package process
