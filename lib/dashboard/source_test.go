// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dashboard

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/gparallel/lib/clock"
	"github.com/bureau-foundation/gparallel/lib/device"
	"github.com/bureau-foundation/gparallel/lib/job"
)

type requested bool

func (r requested) Requested() bool { return bool(r) }

func TestSchedulerSourceFrame(t *testing.T) {
	start := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	fake := clock.Fake(start)
	registry := job.NewRegistry(10)
	first := registry.Submit("python train.py", start)
	second := registry.Submit("python eval.py", start)
	if _, ok := registry.Dispatch(1, start); !ok {
		t.Fatal("Dispatch found no queued job")
	}
	registry.AppendOutput(first.ID, "line one")
	registry.AppendOutput(first.ID, "line two")
	fake.Advance(5 * time.Second)

	source := SchedulerSource{
		Registry: registry,
		Inventory: device.NewInventory([]device.Device{
			{ID: 0, Name: "GPU0"},
			{ID: 1, Name: "GPU1"},
		}),
		Shutdown: requested(true),
		Clock:    fake,
		Started:  start,
	}

	frame := source.Frame(uuid.Nil, 1)
	if frame.Focus != first.ID {
		t.Errorf("Focus = %s, want the first job", frame.Focus)
	}
	if len(frame.Tail) != 1 || frame.Tail[0] != "line two" {
		t.Errorf("Tail = %q, want the last line only", frame.Tail)
	}
	if frame.Counts.Running != 1 || frame.Counts.Queued != 1 {
		t.Errorf("Counts = %+v, want one running and one queued", frame.Counts)
	}
	if frame.Elapsed != 5*time.Second {
		t.Errorf("Elapsed = %v, want 5s", frame.Elapsed)
	}
	if !frame.ShuttingDown {
		t.Error("ShuttingDown should follow the coordinator")
	}
	if len(frame.Devices) != 2 {
		t.Fatalf("got %d devices, want 2", len(frame.Devices))
	}
	if frame.Devices[0].Busy {
		t.Error("device 0 holds no job and should be idle")
	}
	if !frame.Devices[1].Busy || frame.Devices[1].Job != first.ID {
		t.Errorf("device 1 = %+v, want busy with the first job", frame.Devices[1])
	}

	frame = source.Frame(second.ID, 10)
	if frame.Focus != second.ID || len(frame.Tail) != 0 {
		t.Errorf("selecting the queued job: focus %s tail %q", frame.Focus, frame.Tail)
	}
}
