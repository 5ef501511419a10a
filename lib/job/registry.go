// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package job

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrUnknownJob is returned for ids the registry never issued.
	ErrUnknownJob = errors.New("unknown job")

	// ErrNotRunning is returned by Finish and SetProcess when the job
	// is not Running.
	ErrNotRunning = errors.New("job is not running")
)

// Devices is the free set a Running job's device comes from and
// returns to. *device.Pool implements it.
type Devices interface {
	TryAcquire() (int, bool)
	Release(id int) error
}

// heldDevice is a device the caller acquired itself; the registry
// leaves returning it to the caller.
type heldDevice int

func (d heldDevice) TryAcquire() (int, bool) { return int(d), true }
func (heldDevice) Release(int) error         { return nil }

type record struct {
	info    Info
	output  *LineBuffer
	devices Devices
}

// Registry is the single owner of job state. Safe for concurrent use.
type Registry struct {
	lineCapacity int

	mu      sync.RWMutex
	jobs    []*record // submission order
	byID    map[uuid.UUID]*record
	pending []uuid.UUID
	counts  Counts

	// changed is closed and replaced on every state transition.
	changed chan struct{}

	// wake holds a token while the queue may be non-empty.
	wake chan struct{}

	// outbox holds events of committed transitions not yet delivered.
	// Guarded by mu; drained in order under publishMu.
	outbox    []Event
	publishMu sync.Mutex

	observersMu sync.RWMutex
	observers   []Observer
}

// NewRegistry returns an empty registry keeping lineCapacity output
// lines per job (<= 0 means DefaultLineCapacity).
func NewRegistry(lineCapacity int) *Registry {
	if lineCapacity <= 0 {
		lineCapacity = DefaultLineCapacity
	}
	return &Registry{
		lineCapacity: lineCapacity,
		byID:         make(map[uuid.UUID]*record),
		changed:      make(chan struct{}),
		wake:         make(chan struct{}, 1),
	}
}

// Observe registers an observer for subsequent transitions.
func (r *Registry) Observe(observer Observer) {
	r.observersMu.Lock()
	defer r.observersMu.Unlock()
	r.observers = append(r.observers, observer)
}

// flush delivers queued events in commit order. Events queued by
// other goroutines while this one delivers are delivered here too, so
// a transition's events are delivered before its method returns.
func (r *Registry) flush() {
	r.publishMu.Lock()
	defer r.publishMu.Unlock()
	for {
		r.mu.Lock()
		events := r.outbox
		r.outbox = nil
		r.mu.Unlock()
		if len(events) == 0 {
			return
		}

		r.observersMu.RLock()
		observers := r.observers
		r.observersMu.RUnlock()
		for _, event := range events {
			for _, observer := range observers {
				observer.Observe(event)
			}
		}
	}
}

// Changed returns a channel closed at the next state transition. Output
// lines do not count as transitions.
func (r *Registry) Changed() <-chan struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.changed
}

// Wake returns the channel the dispatcher waits on. It receives a token
// after a submission; the receiver must re-check Pending.
func (r *Registry) Wake() <-chan struct{} {
	return r.wake
}

func (r *Registry) notifyLocked() {
	close(r.changed)
	r.changed = make(chan struct{})
}

// Submit creates a Queued job at the tail of the queue.
func (r *Registry) Submit(command string, now time.Time) Info {
	rec := &record{
		info: Info{
			ID:          uuid.New(),
			Command:     command,
			State:       Queued,
			Device:      NoDevice,
			SubmittedAt: now,
			ExitCode:    NoExitCode,
		},
		output: NewLineBuffer(r.lineCapacity),
	}

	r.mu.Lock()
	r.jobs = append(r.jobs, rec)
	r.byID[rec.info.ID] = rec
	r.pending = append(r.pending, rec.info.ID)
	r.counts.add(Queued, 1)
	r.notifyLocked()
	info := rec.info
	r.outbox = append(r.outbox, Event{Kind: Submitted, Job: info})
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
	r.flush()
	return info
}

// Pending returns the number of Queued jobs.
func (r *Registry) Pending() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pending)
}

// Dispatch pops the queue head and marks it Running on device, which
// the caller has already acquired and returns itself after Finish.
// Returns ok=false when the queue is empty.
func (r *Registry) Dispatch(device int, now time.Time) (Info, bool) {
	return r.DispatchFrom(heldDevice(device), now)
}

// DispatchFrom takes the lowest free device from devices and the queue
// head in one step and marks the job Running on it. Finish returns the
// device in the same step that ends the job, so no reader of the
// registry sees a device that is neither free nor held by a Running
// job. Returns ok=false, taking nothing, when the queue is empty or no
// device is free.
func (r *Registry) DispatchFrom(devices Devices, now time.Time) (Info, bool) {
	r.mu.Lock()
	if len(r.pending) == 0 {
		r.mu.Unlock()
		return Info{}, false
	}
	device, ok := devices.TryAcquire()
	if !ok {
		r.mu.Unlock()
		return Info{}, false
	}
	id := r.pending[0]
	r.pending = r.pending[1:]
	rec := r.byID[id]
	rec.info.State = Running
	rec.info.Device = device
	rec.info.StartedAt = now
	rec.devices = devices
	r.counts.add(Queued, -1)
	r.counts.add(Running, 1)
	r.notifyLocked()
	info := rec.info
	r.outbox = append(r.outbox, Event{Kind: Dispatched, Job: info})
	r.mu.Unlock()

	r.flush()
	return info, true
}

// SetProcess records the launched process of a Running job.
func (r *Registry) SetProcess(id uuid.UUID, pid, pgid int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, ErrUnknownJob)
	}
	if rec.info.State != Running {
		return fmt.Errorf("job %s is %s: %w", ShortID(id), rec.info.State, ErrNotRunning)
	}
	rec.info.PID = pid
	rec.info.PGID = pgid
	r.notifyLocked()
	return nil
}

// AppendOutput adds one output line to the job's buffer. Unknown ids
// are ignored.
func (r *Registry) AppendOutput(id uuid.UUID, line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return
	}
	rec.output.Append(line)
	rec.info.OutputLines = rec.output.Total()
}

// Finish moves a Running job to its terminal state and returns a
// device taken by DispatchFrom. A failed device release does not stop
// the transition: the finished job is returned along with the error.
func (r *Registry) Finish(id uuid.UUID, result Result, now time.Time) (Info, error) {
	if !result.State.Terminal() {
		return Info{}, fmt.Errorf("finishing job %s: %s is not a terminal state", ShortID(id), result.State)
	}

	r.mu.Lock()
	rec, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return Info{}, fmt.Errorf("finishing job %s: %w", id, ErrUnknownJob)
	}
	if rec.info.State != Running {
		state := rec.info.State
		r.mu.Unlock()
		return Info{}, fmt.Errorf("finishing job %s (%s): %w", ShortID(id), state, ErrNotRunning)
	}
	rec.info.State = result.State
	rec.info.ExitCode = result.ExitCode
	rec.info.Reason = result.Reason
	rec.info.OutputDigest = result.OutputDigest
	rec.info.FinishedAt = now
	r.counts.add(Running, -1)
	r.counts.add(result.State, 1)
	var releaseErr error
	if err := rec.devices.Release(rec.info.Device); err != nil {
		releaseErr = fmt.Errorf("finishing job %s: releasing device %d: %w", ShortID(id), rec.info.Device, err)
	}
	rec.devices = nil
	r.notifyLocked()
	info := rec.info
	r.outbox = append(r.outbox, Event{Kind: Finished, Job: info})
	r.mu.Unlock()

	r.flush()
	return info, releaseErr
}

// CancelPending marks every Queued job Cancelled with reason and
// empties the queue. Returns the cancelled jobs in queue order.
func (r *Registry) CancelPending(reason string, now time.Time) []Info {
	r.mu.Lock()
	if len(r.pending) == 0 {
		r.mu.Unlock()
		return nil
	}
	cancelled := make([]Info, 0, len(r.pending))
	for _, id := range r.pending {
		rec := r.byID[id]
		rec.info.State = Cancelled
		rec.info.Reason = reason
		rec.info.FinishedAt = now
		cancelled = append(cancelled, rec.info)
	}
	r.counts.add(Queued, -len(cancelled))
	r.counts.add(Cancelled, len(cancelled))
	r.pending = nil
	r.notifyLocked()
	for _, info := range cancelled {
		r.outbox = append(r.outbox, Event{Kind: Withdrawn, Job: info})
	}
	r.mu.Unlock()

	r.flush()
	return cancelled
}

// Get returns one job.
func (r *Registry) Get(id uuid.UUID) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byID[id]
	if !ok {
		return Info{}, false
	}
	return rec.info, true
}

// Snapshot returns every job in submission order.
func (r *Registry) Snapshot() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() []Info {
	jobs := make([]Info, len(r.jobs))
	for i, rec := range r.jobs {
		jobs[i] = rec.info
	}
	return jobs
}

// Output returns up to n of the job's most recent lines (n <= 0: all
// retained lines).
func (r *Registry) Output(id uuid.UUID, n int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byID[id]
	if !ok {
		return nil
	}
	if n <= 0 {
		return rec.output.Lines()
	}
	return rec.output.Tail(n)
}

// Counts returns the number of jobs per state.
func (r *Registry) Counts() Counts {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counts
}

// Inspect calls fn with the counts while holding the read lock.
// Devices moved by DispatchFrom and Finish stay put until fn returns,
// so fn may read their free set together with the counts. fn must not
// call Registry methods.
func (r *Registry) Inspect(fn func(Counts)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn(r.counts)
}

// Running returns the Running jobs in submission order.
func (r *Registry) Running() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var running []Info
	for _, rec := range r.jobs {
		if rec.info.State == Running {
			running = append(running, rec.info)
		}
	}
	return running
}

// View is a consistent read of the registry for display.
type View struct {
	Jobs   []Info
	Counts Counts

	// Focus is the job whose output is in Tail: the requested job, or
	// the first job when the request is uuid.Nil or unknown. uuid.Nil
	// when there are no jobs.
	Focus uuid.UUID
	Tail  []string
}

// View snapshots every job plus the last tail lines of the focused job
// under one lock.
func (r *Registry) View(focus uuid.UUID, tail int) View {
	r.mu.RLock()
	defer r.mu.RUnlock()
	view := View{Jobs: r.snapshotLocked(), Counts: r.counts}
	rec, ok := r.byID[focus]
	if !ok && len(r.jobs) > 0 {
		rec, ok = r.jobs[0], true
	}
	if ok {
		view.Focus = rec.info.ID
		view.Tail = rec.output.Tail(tail)
	}
	return view
}
