// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package history keeps a SQLite table of every job gparallel has run.
// Each job is one row keyed by job id, upserted as the job is
// submitted, dispatched and finished, so the table always holds the
// latest known state. Rows from earlier runs stay; the run column tells
// runs apart.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/gparallel/lib/job"
	"github.com/bureau-foundation/gparallel/lib/sqlitepool"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id            TEXT PRIMARY KEY,
	run           TEXT NOT NULL,
	command       TEXT NOT NULL,
	state         TEXT NOT NULL,
	device        INTEGER NOT NULL,
	pid           INTEGER NOT NULL DEFAULT 0,
	submitted_at  TEXT NOT NULL,
	started_at    TEXT,
	finished_at   TEXT,
	exit_code     INTEGER NOT NULL,
	reason        TEXT NOT NULL DEFAULT '',
	output_lines  INTEGER NOT NULL DEFAULT 0,
	output_digest TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS jobs_by_run ON jobs (run);
`

const upsertJob = `
INSERT INTO jobs (id, run, command, state, device, pid, submitted_at, started_at,
	finished_at, exit_code, reason, output_lines, output_digest)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	state = excluded.state,
	device = excluded.device,
	pid = excluded.pid,
	started_at = excluded.started_at,
	finished_at = excluded.finished_at,
	exit_code = excluded.exit_code,
	reason = excluded.reason,
	output_lines = excluded.output_lines,
	output_digest = excluded.output_digest`

const selectJobs = `
SELECT id, run, command, state, device, pid, submitted_at, started_at, finished_at,
	exit_code, reason, output_lines, output_digest
FROM jobs`

// writeTimeout bounds one upsert, busy waiting included.
const writeTimeout = 10 * time.Second

// Record is one row of the jobs table.
type Record struct {
	Run uuid.UUID
	job.Info
}

// Store is the history database of one run. Safe for concurrent use;
// it is registered as a job.Observer.
type Store struct {
	pool   *sqlitepool.Pool
	run    uuid.UUID
	logger *slog.Logger

	mu      sync.Mutex
	failing bool
}

// Open opens (creating if needed) the database at path for a new run.
func Open(path string, logger *slog.Logger) (*Store, error) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   path,
		Logger: logger,
		Schema: schema,
	})
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	store := &Store{
		pool:   pool,
		run:    uuid.New(),
		logger: logger.With("history", path),
	}
	// Apply the schema now so a bad path or a foreign file fails at
	// startup rather than on the first job.
	if err := pool.Do(context.Background(), func(*sqlite.Conn) error { return nil }); err != nil {
		pool.Close()
		return nil, fmt.Errorf("opening history: %w", err)
	}
	return store, nil
}

// Run returns the id of this store's run.
func (s *Store) Run() uuid.UUID {
	return s.run
}

// Put upserts the row for info.
func (s *Store) Put(ctx context.Context, info job.Info) error {
	return s.pool.Do(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, upsertJob, &sqlitex.ExecOptions{
			Args: []any{
				info.ID.String(),
				s.run.String(),
				info.Command,
				info.State.String(),
				info.Device,
				info.PID,
				formatTime(info.SubmittedAt),
				nullableTime(info.StartedAt),
				nullableTime(info.FinishedAt),
				info.ExitCode,
				info.Reason,
				info.OutputLines,
				info.OutputDigest,
			},
		})
	})
}

// Observe upserts the job of every lifecycle event. Failures are
// logged, at Warn the first time and at Debug while they persist.
func (s *Store) Observe(event job.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	err := s.Put(ctx, event.Job)

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case err != nil && !s.failing:
		s.failing = true
		s.logger.Warn("history write failed", "job", event.Job.ShortID(), "event", event.Kind, "error", err)
	case err != nil:
		s.logger.Debug("history write still failing", "job", event.Job.ShortID(), "error", err)
	case s.failing:
		s.failing = false
		s.logger.Info("history writable again")
	}
}

// Jobs returns every row, in the order the jobs were first recorded.
func (s *Store) Jobs(ctx context.Context) ([]Record, error) {
	return s.query(ctx, selectJobs+" ORDER BY rowid", nil)
}

// RunJobs returns the rows of one run in submission order.
func (s *Store) RunJobs(ctx context.Context, run uuid.UUID) ([]Record, error) {
	return s.query(ctx, selectJobs+" WHERE run = ? ORDER BY rowid", []any{run.String()})
}

func (s *Store) query(ctx context.Context, query string, args []any) ([]Record, error) {
	var records []Record
	err := s.pool.Do(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				record, err := scanRecord(stmt)
				if err != nil {
					return err
				}
				records = append(records, record)
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	return records, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.pool.Close()
}

func scanRecord(stmt *sqlite.Stmt) (Record, error) {
	var record Record
	var err error
	if record.ID, err = uuid.Parse(stmt.ColumnText(0)); err != nil {
		return Record{}, fmt.Errorf("job id: %w", err)
	}
	if record.Run, err = uuid.Parse(stmt.ColumnText(1)); err != nil {
		return Record{}, fmt.Errorf("run id: %w", err)
	}
	record.Command = stmt.ColumnText(2)
	if record.State, err = job.ParseState(stmt.ColumnText(3)); err != nil {
		return Record{}, err
	}
	record.Device = stmt.ColumnInt(4)
	record.PID = stmt.ColumnInt(5)
	for column, target := range map[int]*time.Time{
		6: &record.SubmittedAt,
		7: &record.StartedAt,
		8: &record.FinishedAt,
	} {
		if stmt.ColumnType(column) == sqlite.TypeNull {
			continue
		}
		if *target, err = time.Parse(time.RFC3339Nano, stmt.ColumnText(column)); err != nil {
			return Record{}, fmt.Errorf("column %d: %w", column, err)
		}
	}
	record.ExitCode = stmt.ColumnInt(9)
	record.Reason = stmt.ColumnText(10)
	record.OutputLines = stmt.ColumnInt(11)
	record.OutputDigest = stmt.ColumnText(12)
	return record, nil
}

func formatTime(at time.Time) string {
	return at.UTC().Format(time.RFC3339Nano)
}

func nullableTime(at time.Time) any {
	if at.IsZero() {
		return nil
	}
	return formatTime(at)
}
