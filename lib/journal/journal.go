// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package journal writes the append-only job journal: a CBOR sequence
// (RFC 8742) with one record per submission, dispatch and finish,
// keyed by job id. Records that end a job are fsynced so the journal
// survives a crash up to the last completed job.
//
// The journal is a record of what happened. Nothing reads it back to
// resume a run.
package journal

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/gparallel/lib/codec"
	"github.com/bureau-foundation/gparallel/lib/job"
)

// Record is one journal entry. Kind is a job.EventKind name:
// "submitted", "dispatched", "finished" or "withdrawn".
type Record struct {
	Kind    string    `cbor:"kind"`
	Job     uuid.UUID `cbor:"job"`
	At      time.Time `cbor:"at"`
	State   string    `cbor:"state"`
	Command string    `cbor:"command,omitempty"`

	// Device is job.NoDevice until dispatch.
	Device int `cbor:"device"`
	PID    int `cbor:"pid,omitempty"`

	// Terminal records only.
	ExitCode     int    `cbor:"exit_code,omitempty"`
	Reason       string `cbor:"reason,omitempty"`
	OutputLines  int    `cbor:"output_lines,omitempty"`
	OutputDigest string `cbor:"output_digest,omitempty"`
}

// Terminal reports whether the record ends its job.
func (record Record) Terminal() bool {
	return record.Kind == job.Finished.String() || record.Kind == job.Withdrawn.String()
}

// RecordFor converts a lifecycle event into a journal record. The
// command is carried on the submission record only.
func RecordFor(event job.Event) Record {
	info := event.Job
	record := Record{
		Kind:   event.Kind.String(),
		Job:    info.ID,
		State:  info.State.String(),
		Device: info.Device,
	}
	switch event.Kind {
	case job.Submitted:
		record.At = info.SubmittedAt
		record.Command = info.Command
	case job.Dispatched:
		record.At = info.StartedAt
	case job.Finished, job.Withdrawn:
		record.At = info.FinishedAt
		record.PID = info.PID
		record.ExitCode = info.ExitCode
		record.Reason = info.Reason
		record.OutputLines = info.OutputLines
		record.OutputDigest = info.OutputDigest
	}
	return record
}

// Journal appends records to one file. Safe for concurrent use; it is
// registered as a job.Observer.
type Journal struct {
	logger *slog.Logger

	mu      sync.Mutex
	file    *os.File
	encoder *codec.Encoder
	failing bool
}

// Open opens path for appending, creating it if needed. An existing
// journal is extended, not truncated.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	return &Journal{
		logger:  logger.With("journal", path),
		file:    file,
		encoder: codec.NewEncoder(file),
	}, nil
}

// Observe appends the record for event. Write failures are logged, at
// Warn the first time and at Debug while they persist, and never
// propagate: the journal must not stop scheduling.
func (j *Journal) Observe(event job.Event) {
	err := j.Append(RecordFor(event))

	j.mu.Lock()
	defer j.mu.Unlock()
	switch {
	case err != nil && !j.failing:
		j.failing = true
		j.logger.Warn("journal write failed", "job", job.ShortID(event.Job.ID), "error", err)
	case err != nil:
		j.logger.Debug("journal write still failing", "job", job.ShortID(event.Job.ID), "error", err)
	case j.failing:
		j.failing = false
		j.logger.Info("journal writable again")
	}
}

// Append writes one record. Terminal records are synced to disk before
// Append returns.
func (j *Journal) Append(record Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return os.ErrClosed
	}
	if err := j.encoder.Encode(record); err != nil {
		return fmt.Errorf("encoding %s record: %w", record.Kind, err)
	}
	if record.Terminal() {
		if err := j.file.Sync(); err != nil {
			return fmt.Errorf("syncing journal: %w", err)
		}
	}
	return nil
}

// Close syncs and closes the file. Appends after Close fail with
// os.ErrClosed.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	syncErr := j.file.Sync()
	closeErr := j.file.Close()
	j.file = nil
	return errors.Join(syncErr, closeErr)
}

// Read decodes every record in the journal at path. A record cut short
// at the end of the file (a crash mid-write) is dropped; corruption
// anywhere else is an error.
func Read(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	defer file.Close()

	decoder := codec.NewDecoder(file)
	var records []Record
	for {
		var record Record
		err := decoder.Decode(&record)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return records, nil
		}
		if err != nil {
			return records, fmt.Errorf("journal record %d: %w", len(records)+1, err)
		}
		records = append(records, record)
	}
}

// Latest folds records into the last known record per job, in order
// of first appearance.
func Latest(records []Record) []Record {
	index := make(map[uuid.UUID]int)
	var latest []Record
	for _, record := range records {
		position, seen := index[record.Job]
		if !seen {
			index[record.Job] = len(latest)
			latest = append(latest, record)
			continue
		}
		command := latest[position].Command
		latest[position] = record
		if record.Command == "" {
			latest[position].Command = command
		}
	}
	return latest
}
