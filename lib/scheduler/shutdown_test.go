// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/bureau-foundation/gparallel/lib/clock"
	"github.com/bureau-foundation/gparallel/lib/device"
	"github.com/bureau-foundation/gparallel/lib/job"
	"github.com/bureau-foundation/gparallel/lib/testutil"
)

type run struct {
	registry    *job.Registry
	pool        *device.Pool
	groups      *ProcessGroups
	dispatcher  *Dispatcher
	coordinator *Coordinator
	ctx         context.Context
	exitCodes   chan int
}

func startRun(t *testing.T, devices []int, config SupervisorConfig) *run {
	t.Helper()
	config.Shell = "sh"
	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		registry:  job.NewRegistry(10),
		pool:      device.NewPool(devices),
		groups:    NewProcessGroups(),
		ctx:       ctx,
		exitCodes: make(chan int, 2),
	}
	supervisor := NewSupervisor(r.registry, r.groups, clock.Real(), testLogger, config)
	r.dispatcher = NewDispatcher(r.registry, r.pool, supervisor, clock.Real(), testLogger)
	r.coordinator = NewCoordinator(CoordinatorConfig{
		Registry: r.registry,
		Groups:   r.groups,
		Cancel:   cancel,
		Exit:     func(code int) { r.exitCodes <- code },
		Clock:    clock.Real(),
		Logger:   testLogger,
	})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		r.dispatcher.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		r.groups.KillAll()
		testutil.RequireClosed(t, stopped, 5*time.Second, "dispatcher did not stop")
		r.dispatcher.Wait()
	})
	return r
}

// waitLaunched waits until n jobs are Running with a recorded process.
func (r *run) waitLaunched(t *testing.T, n int) {
	t.Helper()
	testutil.Eventually(t, r.registry.Changed, func() bool {
		launched := 0
		for _, info := range r.registry.Running() {
			if info.PGID != 0 {
				launched++
			}
		}
		return launched == n
	}, 5*time.Second, "%d jobs launched", n)
}

func TestShutdownWithNothingRunning(t *testing.T) {
	r := startRun(t, []int{0}, SupervisorConfig{})
	if r.coordinator.Requested() {
		t.Fatal("Requested before any request")
	}

	r.coordinator.Request("test")

	if !r.coordinator.Requested() {
		t.Error("Requested = false after Request")
	}
	testutil.RequireClosed(t, r.coordinator.Done(), time.Second, "Done not closed")
	testutil.RequireClosed(t, r.ctx.Done(), time.Second, "run context not cancelled")
	select {
	case code := <-r.exitCodes:
		t.Errorf("first request exited with %d", code)
	default:
	}
	if counts := r.registry.Counts(); counts.Total() != 0 {
		t.Errorf("Counts = %+v, want empty", counts)
	}
}

// Two running jobs receive SIGTERM on shutdown and end Cancelled within
// the grace period; the queued job never starts.
func TestShutdownTerminatesRunningJobs(t *testing.T) {
	const grace = time.Second
	r := startRun(t, []int{0, 1}, SupervisorConfig{GracePeriod: grace})
	r.dispatcher.Submit("sleep 30")
	r.dispatcher.Submit("sleep 30")
	queued := r.dispatcher.Submit("echo never")
	r.waitLaunched(t, 2)

	start := time.Now()
	r.coordinator.Request("test")
	testutil.Eventually(t, r.registry.Changed, func() bool {
		return r.registry.Counts().Finished()
	}, 5*time.Second, "jobs finished after shutdown")
	if elapsed := time.Since(start); elapsed > grace+500*time.Millisecond {
		t.Errorf("shutdown took %v, want within the %v grace period", elapsed, grace)
	}

	for _, info := range r.registry.Snapshot() {
		if info.State != job.Cancelled || info.Reason != ReasonShutdown {
			t.Errorf("job %q: %s (%s), want cancelled by shutdown", info.Command, info.State, info.Reason)
		}
	}
	if info, _ := r.registry.Get(queued.ID); info.PID != 0 || info.Device != job.NoDevice {
		t.Errorf("queued job was launched: %+v", info)
	}
	testutil.Eventually(t, r.registry.Changed, func() bool {
		return len(r.pool.Free()) == 2
	}, 5*time.Second, "devices released")
}

// A second request kills process groups that ignore SIGTERM and calls
// the exit hook.
func TestSecondShutdownRequestForcesExit(t *testing.T) {
	r := startRun(t, []int{0}, SupervisorConfig{GracePeriod: time.Minute})
	r.dispatcher.Submit("trap '' TERM; sleep 30")
	r.waitLaunched(t, 1)

	r.coordinator.Request("first")
	select {
	case code := <-r.exitCodes:
		t.Fatalf("exit hook called with %d on the first request", code)
	case <-time.After(100 * time.Millisecond): //nolint:realclock negative check
	}
	if counts := r.registry.Counts(); counts.Running != 1 {
		t.Fatalf("Running = %d, want 1 (SIGTERM is ignored)", counts.Running)
	}

	r.coordinator.Request("second")
	if code := testutil.RequireReceive(t, r.exitCodes, 5*time.Second, "exit hook"); code != ExitInterrupted {
		t.Errorf("exit code = %d, want %d", code, ExitInterrupted)
	}
	testutil.Eventually(t, r.registry.Changed, func() bool {
		return r.registry.Counts().Cancelled == 1
	}, 5*time.Second, "killed job finished")
}

func TestListenConvertsSignals(t *testing.T) {
	r := startRun(t, []int{0}, SupervisorConfig{})
	signals := make(chan os.Signal, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.coordinator.Listen(ctx, signals)

	signals <- syscall.SIGTERM
	testutil.RequireClosed(t, r.coordinator.Done(), 5*time.Second, "signal did not request shutdown")

	signals <- syscall.SIGINT
	if code := testutil.RequireReceive(t, r.exitCodes, 5*time.Second, "second signal"); code != ExitInterrupted {
		t.Errorf("exit code = %d, want %d", code, ExitInterrupted)
	}
}

func TestProcessGroupsTracking(t *testing.T) {
	groups := NewProcessGroups()
	groups.Add(30)
	groups.Add(10)
	groups.Add(20)
	groups.Remove(20)
	if got := groups.List(); len(got) != 2 || got[0] != 10 || got[1] != 30 {
		t.Errorf("List = %v, want [10 30]", got)
	}
	if err := signalGroup(0, syscall.SIGKILL); err != nil {
		t.Errorf("signalGroup(0) = %v, want nil", err)
	}
}
