// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/gparallel/lib/job"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestJournalRecordsLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.journal")
	journal, err := Open(path, discardLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	registry := job.NewRegistry(10)
	registry.Observe(journal)

	start := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	first := registry.Submit("python train.py", start)
	second := registry.Submit("python eval.py", start)
	if _, ok := registry.Dispatch(2, start.Add(time.Second)); !ok {
		t.Fatal("Dispatch found no job")
	}
	registry.AppendOutput(first.ID, "epoch 1")
	if _, err := registry.Finish(first.ID, job.Result{
		State:        job.Done,
		ExitCode:     0,
		OutputDigest: "abc123",
	}, start.Add(time.Minute)); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	registry.CancelPending("cancelled by shutdown", start.Add(2*time.Minute))

	if err := journal.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	records, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	kinds := make([]string, len(records))
	for index, record := range records {
		kinds[index] = record.Kind
	}
	want := "submitted submitted dispatched finished withdrawn"
	if got := strings.Join(kinds, " "); got != want {
		t.Fatalf("record kinds = %q, want %q", got, want)
	}

	if records[0].Command != "python train.py" || records[0].Job != first.ID {
		t.Errorf("first submission = %+v", records[0])
	}
	if records[2].Device != 2 || !records[2].At.Equal(start.Add(time.Second)) {
		t.Errorf("dispatch record = %+v", records[2])
	}
	finished := records[3]
	if finished.State != "done" || finished.OutputLines != 1 || finished.OutputDigest != "abc123" {
		t.Errorf("finish record = %+v", finished)
	}
	withdrawn := records[4]
	if withdrawn.Job != second.ID || withdrawn.State != "cancelled" || withdrawn.Reason != "cancelled by shutdown" {
		t.Errorf("withdrawn record = %+v", withdrawn)
	}

	latest := Latest(records)
	if len(latest) != 2 {
		t.Fatalf("Latest returned %d jobs, want 2", len(latest))
	}
	if latest[0].Kind != "finished" || latest[0].Command != "python train.py" {
		t.Errorf("latest first job = %+v", latest[0])
	}
	if latest[1].Kind != "withdrawn" || latest[1].Command != "python eval.py" {
		t.Errorf("latest second job = %+v", latest[1])
	}
}

func TestOpenAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.journal")
	for range 2 {
		journal, err := Open(path, discardLogger())
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if err := journal.Append(Record{Kind: "submitted", Device: job.NoDevice}); err != nil {
			t.Fatalf("Append: %v", err)
		}
		journal.Close()
	}
	records, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("got %d records after two opens, want 2", len(records))
	}
}

func TestReadDropsTruncatedTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.journal")
	journal, err := Open(path, discardLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	journal.Append(Record{Kind: "submitted", Command: "echo one"})
	journal.Append(Record{Kind: "submitted", Command: "echo two"})
	journal.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data[:len(data)-3], 0o644); err != nil {
		t.Fatal(err)
	}

	records, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(records) != 1 || records[0].Command != "echo one" {
		t.Errorf("records = %+v, want only the complete first record", records)
	}
}

func TestObserveLogsFailureOnce(t *testing.T) {
	var buffer bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buffer, &slog.HandlerOptions{Level: slog.LevelWarn}))
	journal, err := Open(filepath.Join(t.TempDir(), "run.journal"), logger)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	journal.Close()

	info := job.Info{Command: "echo", Device: job.NoDevice}
	for range 3 {
		journal.Observe(job.Event{Kind: job.Submitted, Job: info})
	}
	if count := strings.Count(buffer.String(), "journal write failed"); count != 1 {
		t.Errorf("logged the failure %d times, want once:\n%s", count, buffer.String())
	}
}
