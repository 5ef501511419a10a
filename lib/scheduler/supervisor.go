// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/gparallel/lib/clock"
	"github.com/bureau-foundation/gparallel/lib/device"
	"github.com/bureau-foundation/gparallel/lib/job"
)

// ReasonShutdown is the Reason of jobs cancelled by a shutdown request.
const ReasonShutdown = "cancelled by shutdown"

const (
	// DefaultShell runs each command line.
	DefaultShell = "bash"

	// DefaultGracePeriod is how long a terminated process group gets
	// between SIGTERM and SIGKILL.
	DefaultGracePeriod = time.Second

	// DefaultDrainTimeout bounds how long output is still read after
	// the shell exits. Background descendants can hold the pipe open
	// indefinitely.
	DefaultDrainTimeout = 2 * time.Second

	// maxLineBytes caps one output line; longer lines are cut and
	// marked with truncatedMarker.
	maxLineBytes    = 64 << 10
	truncatedMarker = " [line truncated]"
)

// OutputSink receives a copy of every job's output, for example the
// on-disk archive or the plain-mode echo.
type OutputSink interface {
	Open(info job.Info) (LineWriter, error)
}

// LineWriter receives one job's output lines.
type LineWriter interface {
	WriteLine(line string) error

	// Close flushes the writer. digest is the writer's content digest,
	// or "" if it does not compute one.
	Close() (digest string, err error)
}

// SupervisorConfig holds the per-job execution settings. Zero values
// select the defaults.
type SupervisorConfig struct {
	Shell              string
	VisibilityVariable string
	WorkDir            string
	GracePeriod        time.Duration
	DrainTimeout       time.Duration

	// MaxRuntime ends a job still running after this long. Zero means
	// no limit.
	MaxRuntime time.Duration

	// Environ is the base environment; nil means os.Environ.
	Environ func() []string
}

func (c SupervisorConfig) withDefaults() SupervisorConfig {
	if c.Shell == "" {
		c.Shell = DefaultShell
	}
	if c.VisibilityVariable == "" {
		c.VisibilityVariable = device.DefaultVisibilityVariable
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = DefaultGracePeriod
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
	if c.Environ == nil {
		c.Environ = os.Environ
	}
	return c
}

// Supervisor runs dispatched jobs to completion.
type Supervisor struct {
	registry *job.Registry
	groups   *ProcessGroups
	sinks    []OutputSink
	clock    clock.Clock
	logger   *slog.Logger
	config   SupervisorConfig
}

// NewSupervisor returns a Supervisor finishing jobs in registry.
// Launched process groups are recorded in groups.
func NewSupervisor(registry *job.Registry, groups *ProcessGroups, clk clock.Clock, logger *slog.Logger, config SupervisorConfig, sinks ...OutputSink) *Supervisor {
	return &Supervisor{
		registry: registry,
		groups:   groups,
		sinks:    sinks,
		clock:    clk,
		logger:   logger,
		config:   config.withDefaults(),
	}
}

// Supervise runs one dispatched job and records its terminal state,
// which returns its device. Cancelling ctx terminates the job.
func (s *Supervisor) Supervise(ctx context.Context, info job.Info) {
	logger := s.logger.With("job", info.ShortID(), "device", info.Device)

	result := s.run(ctx, info, logger)

	finished, err := s.registry.Finish(info.ID, result, s.clock.Now())
	if err != nil {
		logger.Error("recording job result failed", "error", err)
	}
	if finished.State.Terminal() {
		logger.Info("job finished",
			"state", finished.State.String(),
			"exit_code", finished.ExitCode,
			"reason", finished.Reason,
			"runtime", finished.Runtime(finished.FinishedAt).String(),
		)
	}
}

// termination records why the supervisor ended the process, if it did.
type termination int

const (
	notTerminated termination = iota
	terminatedByShutdown
	terminatedByDeadline
)

func (s *Supervisor) run(ctx context.Context, info job.Info, logger *slog.Logger) job.Result {
	if ctx.Err() != nil {
		return job.Result{State: job.Cancelled, ExitCode: job.NoExitCode, Reason: ReasonShutdown}
	}

	reader, writer, err := os.Pipe()
	if err != nil {
		return launchFailure(logger, err)
	}
	defer reader.Close()

	command := exec.Command(s.config.Shell, "-c", info.Command)
	command.Stdout = writer
	command.Stderr = writer
	command.Dir = s.config.WorkDir
	command.Env = withVisibleDevice(s.config.Environ(), s.config.VisibilityVariable, info.Device)
	command.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := command.Start(); err != nil {
		writer.Close()
		return launchFailure(logger, err)
	}
	// The child holds its own copy of the write end; ours must go so
	// the reader sees EOF when the child's descendants are done.
	writer.Close()

	pgid := command.Process.Pid
	s.groups.Add(pgid)
	defer s.groups.Remove(pgid)
	if err := s.registry.SetProcess(info.ID, command.Process.Pid, pgid); err != nil {
		logger.Error("recording process failed", "error", err)
	}
	logger.Debug("job launched", "pid", command.Process.Pid)

	writers := s.openSinks(info, logger)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		err := readLines(reader, func(line string) {
			s.registry.AppendOutput(info.ID, line)
			writers.writeLine(line)
		})
		if err != nil && !errors.Is(err, os.ErrClosed) {
			logger.Warn("reading job output failed", "error", err)
		}
	}()

	exited := make(chan error, 1)
	go func() { exited <- command.Wait() }()

	var deadline <-chan time.Time
	if s.config.MaxRuntime > 0 {
		deadline = s.clock.After(s.config.MaxRuntime)
	}

	var (
		waitErr error
		cause   = notTerminated
	)
	select {
	case waitErr = <-exited:
	case <-ctx.Done():
		cause = terminatedByShutdown
		waitErr = s.terminate(pgid, exited, logger)
	case <-deadline:
		cause = terminatedByDeadline
		logger.Warn("job exceeded max runtime", "max_runtime", s.config.MaxRuntime.String())
		waitErr = s.terminate(pgid, exited, logger)
	}

	select {
	case <-drained:
	case <-s.clock.After(s.config.DrainTimeout):
		// Whatever still holds the pipe is a descendant left in the
		// group. It must not outlive the job and keep using the device.
		logger.Warn("output still open after exit, killing the process group", "pgid", pgid, "drain_timeout", s.config.DrainTimeout.String())
		if err := signalGroup(pgid, unix.SIGKILL); err != nil {
			logger.Warn("sending SIGKILL failed", "pgid", pgid, "error", err)
		}
		reader.Close()
		<-drained
	}

	result := s.classify(waitErr, cause)
	result.OutputDigest = writers.close()
	return result
}

// terminate sends SIGTERM to the group, then SIGKILL once the grace
// period passes, and returns the shell's wait result.
func (s *Supervisor) terminate(pgid int, exited <-chan error, logger *slog.Logger) error {
	if err := signalGroup(pgid, unix.SIGTERM); err != nil {
		logger.Warn("sending SIGTERM failed", "pgid", pgid, "error", err)
	}
	select {
	case err := <-exited:
		return err
	case <-s.clock.After(s.config.GracePeriod):
	}
	logger.Warn("job ignored SIGTERM, sending SIGKILL", "pgid", pgid, "grace_period", s.config.GracePeriod.String())
	if err := signalGroup(pgid, unix.SIGKILL); err != nil {
		logger.Warn("sending SIGKILL failed", "pgid", pgid, "error", err)
	}
	return <-exited
}

// classify maps the shell's wait result to a job result. A job the
// supervisor terminated is Cancelled or Failed by that cause even when
// it handled SIGTERM and exited 0.
func (s *Supervisor) classify(waitErr error, cause termination) job.Result {
	exitCode := 0
	var signal syscall.Signal
	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
	case errors.As(waitErr, &exitErr):
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			exitCode = job.NoExitCode
			signal = status.Signal()
		} else {
			exitCode = exitErr.ExitCode()
		}
	default:
		exitCode = job.NoExitCode
	}

	switch {
	case cause == terminatedByShutdown:
		return job.Result{State: job.Cancelled, ExitCode: exitCode, Reason: ReasonShutdown}
	case cause == terminatedByDeadline:
		return job.Result{State: job.Failed, ExitCode: exitCode, Reason: "exceeded max runtime " + s.config.MaxRuntime.String()}
	case waitErr != nil && exitErr == nil:
		return job.Result{State: job.Failed, ExitCode: job.NoExitCode, Reason: waitErr.Error()}
	case exitCode == 0:
		return job.Result{State: job.Done, ExitCode: 0}
	case signal != 0:
		return job.Result{State: job.Failed, ExitCode: job.NoExitCode, Reason: "killed by signal: " + signal.String()}
	default:
		return job.Result{State: job.Failed, ExitCode: exitCode, Reason: "exit status " + strconv.Itoa(exitCode)}
	}
}

func launchFailure(logger *slog.Logger, err error) job.Result {
	logger.Warn("job failed to launch", "error", err)
	return job.Result{State: job.Failed, ExitCode: job.NoExitCode, Reason: fmt.Sprintf("launch failed: %v", err)}
}

// withVisibleDevice returns environ with variable set to the single
// device id, replacing any inherited value.
func withVisibleDevice(environ []string, variable string, deviceID int) []string {
	prefix := variable + "="
	result := make([]string, 0, len(environ)+1)
	for _, entry := range environ {
		if !strings.HasPrefix(entry, prefix) {
			result = append(result, entry)
		}
	}
	return append(result, prefix+strconv.Itoa(deviceID))
}

// readLines calls emit for every line of r with the line terminator
// removed. Lines over maxLineBytes are cut and marked; invalid UTF-8 is
// replaced so the dashboard can render it.
func readLines(r io.Reader, emit func(string)) error {
	reader := bufio.NewReaderSize(r, maxLineBytes)
	var (
		line      []byte
		truncated bool
	)
	flush := func() {
		text := strings.ToValidUTF8(string(line), "\uFFFD")
		if truncated {
			text += truncatedMarker
		}
		emit(text)
		line = line[:0]
		truncated = false
	}
	for {
		fragment, isPrefix, err := reader.ReadLine()
		if err != nil {
			if len(line) > 0 || truncated {
				flush()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if !truncated {
			room := maxLineBytes - len(line)
			if len(fragment) > room {
				line = append(line, fragment[:room]...)
				truncated = true
			} else {
				line = append(line, fragment...)
			}
		}
		if !isPrefix {
			flush()
		}
	}
}

// sinkWriters fans one job's output out to its open LineWriters. A
// writer that fails is dropped after one warning.
type sinkWriters struct {
	writers []LineWriter
	logger  *slog.Logger
}

func (s *Supervisor) openSinks(info job.Info, logger *slog.Logger) *sinkWriters {
	writers := &sinkWriters{logger: logger}
	for _, sink := range s.sinks {
		writer, err := sink.Open(info)
		if err != nil {
			logger.Warn("opening job output sink failed", "error", err)
			continue
		}
		writers.writers = append(writers.writers, writer)
	}
	return writers
}

func (w *sinkWriters) writeLine(line string) {
	for i, writer := range w.writers {
		if writer == nil {
			continue
		}
		if err := writer.WriteLine(line); err != nil {
			w.logger.Warn("writing job output failed, dropping the sink", "error", err)
			writer.Close()
			w.writers[i] = nil
		}
	}
}

func (w *sinkWriters) close() string {
	var digest string
	for _, writer := range w.writers {
		if writer == nil {
			continue
		}
		sum, err := writer.Close()
		if err != nil {
			w.logger.Warn("closing job output sink failed", "error", err)
			continue
		}
		if digest == "" {
			digest = sum
		}
	}
	return digest
}
