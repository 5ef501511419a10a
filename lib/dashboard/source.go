// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dashboard

import (
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/gparallel/lib/clock"
	"github.com/bureau-foundation/gparallel/lib/device"
	"github.com/bureau-foundation/gparallel/lib/job"
)

// DeviceRow is one device as displayed: inventory data plus the job
// currently holding it, if any.
type DeviceRow struct {
	device.Device

	Busy bool

	// Job is the Running job assigned to the device, uuid.Nil when
	// idle.
	Job uuid.UUID
}

// Frame is everything one render needs, read at one instant.
type Frame struct {
	Devices []DeviceRow
	Jobs    []job.Info
	Counts  job.Counts

	// Focus is the job whose output is in Tail. uuid.Nil when there
	// are no jobs.
	Focus uuid.UUID
	Tail  []string

	// ShuttingDown is set once a shutdown has been requested.
	ShuttingDown bool

	// Elapsed is the time since the run started.
	Elapsed time.Duration
}

// Source produces frames. selected is the job the user has selected
// (uuid.Nil for the default, the first job); tail is how many output
// lines fit in the log panel.
type Source interface {
	Frame(selected uuid.UUID, tail int) Frame
}

// ShutdownState reports whether a shutdown has been requested.
type ShutdownState interface {
	Requested() bool
}

// SchedulerSource builds frames from the live registry and inventory.
type SchedulerSource struct {
	Registry  *job.Registry
	Inventory *device.Inventory

	// Shutdown may be nil.
	Shutdown ShutdownState

	Clock   clock.Clock
	Started time.Time
}

// Frame takes the job list, counts and tail in one registry read, then
// joins the device list onto the Running jobs of that read.
func (source SchedulerSource) Frame(selected uuid.UUID, tail int) Frame {
	view := source.Registry.View(selected, tail)
	frame := Frame{
		Jobs:    view.Jobs,
		Counts:  view.Counts,
		Focus:   view.Focus,
		Tail:    view.Tail,
		Elapsed: source.Clock.Now().Sub(source.Started),
	}
	if source.Shutdown != nil {
		frame.ShuttingDown = source.Shutdown.Requested()
	}

	holders := make(map[int]uuid.UUID)
	for _, info := range view.Jobs {
		if info.State == job.Running && info.Device != job.NoDevice {
			holders[info.Device] = info.ID
		}
	}
	for _, dev := range source.Inventory.Devices() {
		holder, busy := holders[dev.ID]
		frame.Devices = append(frame.Devices, DeviceRow{Device: dev, Busy: busy, Job: holder})
	}
	return frame
}
