// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package job

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NoDevice is the Device of a job that has not been dispatched.
const NoDevice = -1

// NoExitCode is the ExitCode of a job that never started or was ended
// by a signal.
const NoExitCode = -1

// State is the lifecycle state of a job.
type State int

const (
	Queued State = iota
	Running
	Done
	Failed
	Cancelled
)

// String returns the lowercase state name used in logs and records.
func (s State) String() string {
	switch s {
	case Queued:
		return "queued"
	case Running:
		return "running"
	case Done:
		return "done"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ParseState is the inverse of State.String.
func ParseState(name string) (State, error) {
	for state := Queued; state <= Cancelled; state++ {
		if state.String() == name {
			return state, nil
		}
	}
	return 0, fmt.Errorf("unknown job state %q", name)
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Done || s == Failed || s == Cancelled
}

// Info is a snapshot of one job without its output.
type Info struct {
	ID      uuid.UUID
	Command string
	State   State

	// Device is the assigned device id, or NoDevice.
	Device int

	// PID and PGID are zero until the process has been launched.
	PID  int
	PGID int

	SubmittedAt time.Time
	StartedAt   time.Time
	FinishedAt  time.Time

	// ExitCode is meaningful for terminal jobs; NoExitCode when the
	// process never started or was killed by a signal.
	ExitCode int

	// Reason explains a Failed or Cancelled state.
	Reason string

	// OutputLines counts every line the job produced, including lines
	// evicted from the buffer.
	OutputLines int

	// OutputDigest is the hex BLAKE3 digest of the archived output,
	// when an output archive is configured.
	OutputDigest string
}

// ShortID returns the first 8 characters of the id, the form shown in
// the dashboard and plain-text output.
func (info Info) ShortID() string {
	return ShortID(info.ID)
}

// ShortID returns the first 8 characters of id.
func ShortID(id uuid.UUID) string {
	return id.String()[:8]
}

// Runtime returns how long the job ran, or has been running as of now.
// Zero for jobs that never started.
func (info Info) Runtime(now time.Time) time.Duration {
	if info.StartedAt.IsZero() {
		return 0
	}
	if !info.FinishedAt.IsZero() {
		return info.FinishedAt.Sub(info.StartedAt)
	}
	return now.Sub(info.StartedAt)
}

// Result is how a supervisor ends a Running job.
type Result struct {
	// State must be Done, Failed or Cancelled.
	State    State
	ExitCode int
	Reason   string

	// OutputDigest is copied into Info.OutputDigest.
	OutputDigest string
}

// Counts tallies jobs per state.
type Counts struct {
	Queued    int
	Running   int
	Done      int
	Failed    int
	Cancelled int
}

// Total returns the number of jobs.
func (c Counts) Total() int {
	return c.Queued + c.Running + c.Done + c.Failed + c.Cancelled
}

// Active returns the number of jobs not yet terminal.
func (c Counts) Active() int {
	return c.Queued + c.Running
}

// Finished reports whether at least one job exists and none is still
// Queued or Running.
func (c Counts) Finished() bool {
	return c.Total() > 0 && c.Active() == 0
}

func (c *Counts) add(state State, delta int) {
	switch state {
	case Queued:
		c.Queued += delta
	case Running:
		c.Running += delta
	case Done:
		c.Done += delta
	case Failed:
		c.Failed += delta
	case Cancelled:
		c.Cancelled += delta
	}
}

// EventKind identifies a lifecycle transition.
type EventKind int

const (
	// Submitted: a job was created Queued.
	Submitted EventKind = iota
	// Dispatched: a Queued job became Running on a device.
	Dispatched
	// Finished: a Running job reached a terminal state.
	Finished
	// Withdrawn: a Queued job was cancelled before it ran.
	Withdrawn
)

func (k EventKind) String() string {
	switch k {
	case Submitted:
		return "submitted"
	case Dispatched:
		return "dispatched"
	case Finished:
		return "finished"
	case Withdrawn:
		return "withdrawn"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is published to observers after a transition.
type Event struct {
	Kind EventKind
	Job  Info
}

// Observer receives lifecycle events. Observe is called from whichever
// goroutine is delivering, so implementations must be safe for
// concurrent use. Calls are never concurrent with each other and events
// arrive in the order their transitions committed, across all jobs.
// Observe must not call mutating Registry methods.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(event Event) { f(event) }
