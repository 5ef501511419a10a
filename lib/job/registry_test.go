// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package job

import (
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

var epoch = time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)

func TestSubmitQueuesInOrder(t *testing.T) {
	registry := NewRegistry(10)
	first := registry.Submit("echo one", epoch)
	second := registry.Submit("echo two", epoch.Add(time.Second))

	if first.State != Queued || first.Device != NoDevice || first.ExitCode != NoExitCode {
		t.Errorf("submitted job = %+v", first)
	}
	if first.ID == second.ID {
		t.Error("two submissions share an id")
	}
	if registry.Pending() != 2 {
		t.Errorf("Pending = %d, want 2", registry.Pending())
	}

	select {
	case <-registry.Wake():
	default:
		t.Error("Submit did not leave a wake token")
	}

	snapshot := registry.Snapshot()
	if len(snapshot) != 2 || snapshot[0].ID != first.ID || snapshot[1].ID != second.ID {
		t.Errorf("Snapshot order = %+v", snapshot)
	}
}

func TestDispatchIsFIFO(t *testing.T) {
	registry := NewRegistry(10)
	var submitted []uuid.UUID
	for i := range 5 {
		submitted = append(submitted, registry.Submit("job "+strconv.Itoa(i), epoch).ID)
	}

	for i, want := range submitted {
		info, ok := registry.Dispatch(i%2, epoch.Add(time.Minute))
		if !ok {
			t.Fatalf("Dispatch %d: queue empty", i)
		}
		if info.ID != want {
			t.Errorf("Dispatch %d = %s, want %s", i, info.ShortID(), ShortID(want))
		}
		if info.State != Running || info.Device != i%2 || !info.StartedAt.Equal(epoch.Add(time.Minute)) {
			t.Errorf("dispatched job = %+v", info)
		}
	}
	if _, ok := registry.Dispatch(0, epoch); ok {
		t.Error("Dispatch on empty queue succeeded")
	}
	if counts := registry.Counts(); counts.Running != 5 || counts.Queued != 0 {
		t.Errorf("Counts = %+v", counts)
	}
}

func TestFinishTransitions(t *testing.T) {
	registry := NewRegistry(10)
	queued := registry.Submit("true", epoch)

	if _, err := registry.Finish(queued.ID, Result{State: Done}, epoch); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Finish of Queued job: err = %v, want ErrNotRunning", err)
	}
	if err := registry.SetProcess(queued.ID, 10, 10); !errors.Is(err, ErrNotRunning) {
		t.Errorf("SetProcess of Queued job: err = %v, want ErrNotRunning", err)
	}

	running, _ := registry.Dispatch(0, epoch)
	if err := registry.SetProcess(running.ID, 4242, 4242); err != nil {
		t.Fatalf("SetProcess: %v", err)
	}
	if _, err := registry.Finish(running.ID, Result{State: Running}, epoch); err == nil {
		t.Error("Finish with non-terminal state succeeded")
	}

	finished, err := registry.Finish(running.ID, Result{State: Failed, ExitCode: 3, Reason: "exit status 3"}, epoch.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if finished.State != Failed || finished.ExitCode != 3 || finished.PID != 4242 {
		t.Errorf("finished job = %+v", finished)
	}
	if finished.Runtime(epoch.Add(time.Hour)) != 5*time.Minute {
		t.Errorf("Runtime = %v, want 5m", finished.Runtime(epoch.Add(time.Hour)))
	}

	if _, err := registry.Finish(running.ID, Result{State: Done}, epoch); !errors.Is(err, ErrNotRunning) {
		t.Errorf("second Finish: err = %v, want ErrNotRunning (terminal states are final)", err)
	}
	if _, err := registry.Finish(uuid.New(), Result{State: Done}, epoch); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("Finish of unknown job: err = %v, want ErrUnknownJob", err)
	}
}

func TestCancelPending(t *testing.T) {
	registry := NewRegistry(10)
	running := registry.Submit("sleep 100", epoch)
	registry.Dispatch(0, epoch)
	registry.Submit("a", epoch)
	registry.Submit("b", epoch)

	cancelled := registry.CancelPending("cancelled by shutdown", epoch.Add(time.Second))
	if len(cancelled) != 2 {
		t.Fatalf("cancelled %d jobs, want 2", len(cancelled))
	}
	for _, info := range cancelled {
		if info.State != Cancelled || info.Reason != "cancelled by shutdown" || info.Device != NoDevice {
			t.Errorf("cancelled job = %+v", info)
		}
	}
	if registry.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", registry.Pending())
	}
	if _, ok := registry.Dispatch(1, epoch); ok {
		t.Error("Dispatch after CancelPending found a job")
	}
	if info, _ := registry.Get(running.ID); info.State != Running {
		t.Errorf("running job state = %s, want running", info.State)
	}
	if again := registry.CancelPending("again", epoch); again != nil {
		t.Errorf("second CancelPending = %+v, want nil", again)
	}

	counts := registry.Counts()
	if counts.Cancelled != 2 || counts.Running != 1 || counts.Finished() {
		t.Errorf("Counts = %+v", counts)
	}
}

func TestOutputIsBounded(t *testing.T) {
	registry := NewRegistry(1000)
	info := registry.Submit("seq 1500", epoch)
	registry.Dispatch(0, epoch)
	for i := 1; i <= 1500; i++ {
		registry.AppendOutput(info.ID, strconv.Itoa(i))
	}

	output := registry.Output(info.ID, 0)
	if len(output) != 1000 || output[0] != "501" || output[999] != "1500" {
		t.Errorf("retained %d lines [%s .. %s], want 1000 [501 .. 1500]", len(output), output[0], output[len(output)-1])
	}
	if got, _ := registry.Get(info.ID); got.OutputLines != 1500 {
		t.Errorf("OutputLines = %d, want 1500", got.OutputLines)
	}
	if tail := registry.Output(info.ID, 2); len(tail) != 2 || tail[1] != "1500" {
		t.Errorf("Output(2) = %q", tail)
	}

	registry.AppendOutput(uuid.New(), "ignored")
}

func TestViewFocus(t *testing.T) {
	registry := NewRegistry(10)
	if view := registry.View(uuid.Nil, 5); view.Focus != uuid.Nil || len(view.Jobs) != 0 {
		t.Errorf("empty View = %+v", view)
	}

	first := registry.Submit("first", epoch)
	second := registry.Submit("second", epoch)
	registry.AppendOutput(first.ID, "from first")
	registry.AppendOutput(second.ID, "from second")

	view := registry.View(uuid.Nil, 5)
	if view.Focus != first.ID || len(view.Tail) != 1 || view.Tail[0] != "from first" {
		t.Errorf("default focus View = %+v", view)
	}
	view = registry.View(second.ID, 5)
	if view.Focus != second.ID || view.Tail[0] != "from second" {
		t.Errorf("focused View = %+v", view)
	}
	if view.Counts.Queued != 2 || len(view.Jobs) != 2 {
		t.Errorf("View counts = %+v", view.Counts)
	}
}

func TestChangedClosesOnTransition(t *testing.T) {
	registry := NewRegistry(10)
	changed := registry.Changed()
	info := registry.Submit("x", epoch)
	select {
	case <-changed:
	default:
		t.Fatal("Changed not closed by Submit")
	}

	changed = registry.Changed()
	registry.AppendOutput(info.ID, "output does not signal")
	select {
	case <-changed:
		t.Fatal("Changed closed by AppendOutput")
	default:
	}
	registry.Dispatch(0, epoch)
	select {
	case <-changed:
	default:
		t.Fatal("Changed not closed by Dispatch")
	}
}

func TestObserversSeeLifecycle(t *testing.T) {
	registry := NewRegistry(10)
	var (
		mu     sync.Mutex
		events []Event
	)
	registry.Observe(ObserverFunc(func(event Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, event)
	}))

	done := registry.Submit("true", epoch)
	registry.Submit("never runs", epoch)
	registry.Dispatch(1, epoch)
	registry.Finish(done.ID, Result{State: Done, ExitCode: 0}, epoch)
	registry.CancelPending("cancelled by shutdown", epoch)

	want := []struct {
		kind  EventKind
		state State
	}{
		{Submitted, Queued},
		{Submitted, Queued},
		{Dispatched, Running},
		{Finished, Done},
		{Withdrawn, Cancelled},
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(events), len(want), events)
	}
	for i, expected := range want {
		if events[i].Kind != expected.kind || events[i].Job.State != expected.state {
			t.Errorf("event %d = %s/%s, want %s/%s", i, events[i].Kind, events[i].Job.State, expected.kind, expected.state)
		}
	}
	if events[2].Job.Device != 1 {
		t.Errorf("dispatch event device = %d, want 1", events[2].Job.Device)
	}
}

// Observers see each job's Submitted before anything else about it,
// even when Submitted is slow to deliver and a dispatcher races the
// submitter.
func TestObserversSeeCommitOrder(t *testing.T) {
	registry := NewRegistry(10)
	var (
		mu    sync.Mutex
		kinds = make(map[uuid.UUID][]EventKind)
	)
	registry.Observe(ObserverFunc(func(event Event) {
		if event.Kind == Submitted {
			time.Sleep(20 * time.Microsecond) //nolint:realclock widens the delivery window
		}
		mu.Lock()
		defer mu.Unlock()
		kinds[event.Job.ID] = append(kinds[event.Job.ID], event.Kind)
	}))

	const jobs = 300
	devices := &fakeDevices{free: []int{0}, unlimited: true}
	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		for count := 0; count < jobs; {
			<-registry.Wake()
			for {
				if _, ok := registry.DispatchFrom(devices, epoch); !ok {
					break
				}
				count++
			}
		}
	}()
	for i := range jobs {
		registry.Submit("job "+strconv.Itoa(i), epoch)
	}
	select {
	case <-dispatched:
	case <-time.After(10 * time.Second): //nolint:realclock test hang prevention
		t.Fatalf("dispatched %d of %d jobs", registry.Counts().Running, jobs)
	}

	mu.Lock()
	defer mu.Unlock()
	for id, got := range kinds {
		if len(got) != 2 || got[0] != Submitted || got[1] != Dispatched {
			t.Errorf("job %s events = %v, want [submitted dispatched]", ShortID(id), got)
		}
	}
	if len(kinds) != jobs {
		t.Errorf("observed %d jobs, want %d", len(kinds), jobs)
	}
}

// fakeDevices is a free set that records releases.
type fakeDevices struct {
	free       []int
	unlimited  bool
	released   []int
	releaseErr error
}

func (d *fakeDevices) TryAcquire() (int, bool) {
	if len(d.free) == 0 {
		return 0, false
	}
	id := d.free[0]
	if !d.unlimited {
		d.free = d.free[1:]
	}
	return id, true
}

func (d *fakeDevices) Release(id int) error {
	if d.releaseErr != nil {
		return d.releaseErr
	}
	d.released = append(d.released, id)
	if !d.unlimited {
		d.free = append(d.free, id)
	}
	return nil
}

func TestDispatchFromTakesDeviceWithJob(t *testing.T) {
	registry := NewRegistry(10)
	devices := &fakeDevices{free: []int{3}}

	if _, ok := registry.DispatchFrom(devices, epoch); ok {
		t.Fatal("DispatchFrom on empty queue succeeded")
	}
	if len(devices.free) != 1 {
		t.Fatalf("DispatchFrom on empty queue took a device: free %v", devices.free)
	}

	first := registry.Submit("first", epoch)
	second := registry.Submit("second", epoch)
	info, ok := registry.DispatchFrom(devices, epoch.Add(time.Second))
	if !ok || info.ID != first.ID || info.Device != 3 || info.State != Running {
		t.Fatalf("DispatchFrom = %+v, %v; want first job on device 3", info, ok)
	}
	if _, ok := registry.DispatchFrom(devices, epoch); ok {
		t.Fatal("DispatchFrom without a free device succeeded")
	}
	if waiting, _ := registry.Get(second.ID); waiting.State != Queued || registry.Pending() != 1 {
		t.Errorf("second job = %s with %d pending, want still queued", waiting.State, registry.Pending())
	}

	finished, err := registry.Finish(first.ID, Result{State: Done}, epoch.Add(time.Minute))
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if finished.State != Done || len(devices.released) != 1 || devices.released[0] != 3 {
		t.Errorf("Finish released %v for %s job, want [3]", devices.released, finished.State)
	}

	// The next job runs on the returned device; a failed release still
	// finishes it.
	next, ok := registry.DispatchFrom(devices, epoch)
	if !ok || next.ID != second.ID || next.Device != 3 {
		t.Fatalf("DispatchFrom after Finish = %+v, %v", next, ok)
	}
	devices.releaseErr = errors.New("device gone")
	failed, err := registry.Finish(second.ID, Result{State: Failed, ExitCode: 1}, epoch)
	if !errors.Is(err, devices.releaseErr) {
		t.Errorf("Finish err = %v, want the release error", err)
	}
	if failed.State != Failed || registry.Counts().Running != 0 {
		t.Errorf("job after failed release = %+v, want Failed and not running", failed)
	}
}

func TestStateNames(t *testing.T) {
	for state := Queued; state <= Cancelled; state++ {
		parsed, err := ParseState(state.String())
		if err != nil || parsed != state {
			t.Errorf("ParseState(%q) = %v, %v", state.String(), parsed, err)
		}
	}
	if _, err := ParseState("paused"); err == nil {
		t.Error("ParseState accepted an unknown name")
	}
	if Running.Terminal() || Queued.Terminal() || !Cancelled.Terminal() {
		t.Error("Terminal classification wrong")
	}
}
