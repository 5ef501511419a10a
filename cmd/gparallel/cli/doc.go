// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli holds the command-line plumbing shared by the gparallel
// entrypoint: exit-code carrying errors and logger construction.
package cli
