// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool is a small SQLite connection pool over
// zombiezen.com/go/sqlite, used by the job history database.
//
// Every connection gets the same pragmas:
//
//   - journal_mode=WAL: readers (a second gparallel inspecting the
//     history) never block the writer.
//   - synchronous=NORMAL: commits survive a process crash, which is
//     the failure that matters for a scheduler interrupted mid-run.
//   - busy_timeout=5000: wait for a competing writer instead of
//     failing with SQLITE_BUSY.
//   - temp_store=MEMORY.
//
// Connections are not safe for concurrent use. Take one, use it, Put
// it back, or let [Pool.Do] do that:
//
//	err := pool.Do(ctx, func(conn *sqlite.Conn) error {
//	    return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args})
//	})
package sqlitepool
