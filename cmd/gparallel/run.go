// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bureau-foundation/gparallel/cmd/gparallel/cli"
	"github.com/bureau-foundation/gparallel/lib/clock"
	"github.com/bureau-foundation/gparallel/lib/commandfile"
	"github.com/bureau-foundation/gparallel/lib/config"
	"github.com/bureau-foundation/gparallel/lib/dashboard"
	"github.com/bureau-foundation/gparallel/lib/device"
	"github.com/bureau-foundation/gparallel/lib/history"
	"github.com/bureau-foundation/gparallel/lib/hwinfo/nvidia"
	"github.com/bureau-foundation/gparallel/lib/job"
	"github.com/bureau-foundation/gparallel/lib/joblog"
	"github.com/bureau-foundation/gparallel/lib/journal"
	"github.com/bureau-foundation/gparallel/lib/scheduler"
	"github.com/bureau-foundation/gparallel/lib/telemetry"
)

// session is one gparallel run: the scheduler components and the
// optional on-disk records, wired together.
type session struct {
	config *config.Config
	logger *slog.Logger
	clock  clock.Clock

	inventory   *device.Inventory
	registry    *job.Registry
	pool        *device.Pool
	groups      *scheduler.ProcessGroups
	coordinator *scheduler.Coordinator
	dispatcher  *scheduler.Dispatcher
	poller      *telemetry.Poller

	reporter *reporter
	echo     *echoSink

	// run is derived from the context only the coordinator cancels,
	// and also ends once every job has finished.
	run        context.Context
	stopRun    context.CancelFunc
	background sync.WaitGroup
	closers    []io.Closer
	started    time.Time
}

// sessionConfig carries what newSession needs beyond the config file.
type sessionConfig struct {
	Config *config.Config
	Logger *slog.Logger
	Clock  clock.Clock

	// Console receives the plain-mode lines.
	Console *console

	// Plain enables the reporter from the start. The dashboard enables
	// it when it detaches.
	Plain bool

	// Stream echoes job output to the console while the reporter is
	// enabled.
	Stream bool

	// Exit replaces os.Exit for the second shutdown request.
	Exit func(code int)
}

func newSession(sc sessionConfig) (*session, error) {
	cfg := sc.Config
	logger := sc.Logger

	smi := nvidia.NewSMI(cfg.SMIPath, nil)
	resolver := device.NewResolver(logger, device.StandardProbes(cfg.VisibilityVariable, nvidia.NewProber(), smi)...)
	inventory := resolver.Resolve(context.Background())
	for _, dev := range inventory.Devices() {
		logger.Info("device available", "device", dev.ID, "name", dev.Name)
	}

	s := &session{
		config:    cfg,
		logger:    logger,
		clock:     sc.Clock,
		inventory: inventory,
		registry:  job.NewRegistry(cfg.LogLines),
		pool:      device.NewPool(inventory.IDs()),
		groups:    scheduler.NewProcessGroups(),
		started:   sc.Clock.Now(),
	}

	var sinks []scheduler.OutputSink
	if err := s.openRecords(&sinks); err != nil {
		s.closeRecords()
		return nil, err
	}

	s.reporter = newReporter(sc.Console, sc.Plain)
	s.registry.Observe(s.reporter)
	if sc.Stream {
		s.echo = &echoSink{console: sc.Console}
		s.echo.enabled.Store(sc.Plain)
		sinks = append(sinks, s.echo)
	}

	shutdown, cancel := context.WithCancel(context.Background())
	s.run, s.stopRun = context.WithCancel(shutdown)
	s.coordinator = scheduler.NewCoordinator(scheduler.CoordinatorConfig{
		Registry: s.registry,
		Groups:   s.groups,
		Cancel:   cancel,
		Exit:     sc.Exit,
		Clock:    s.clock,
		Logger:   logger,
	})

	supervisor := scheduler.NewSupervisor(s.registry, s.groups, s.clock, logger, scheduler.SupervisorConfig{
		Shell:              cfg.Shell,
		VisibilityVariable: cfg.VisibilityVariable,
		WorkDir:            cfg.WorkDir,
		GracePeriod:        time.Duration(cfg.GracePeriod),
		DrainTimeout:       time.Duration(cfg.DrainTimeout),
		MaxRuntime:         time.Duration(cfg.MaxRuntime),
	}, sinks...)
	s.dispatcher = scheduler.NewDispatcher(s.registry, s.pool, supervisor, s.clock, logger)

	if _, err := exec.LookPath(cfg.SMIPath); err == nil {
		s.poller = telemetry.NewPoller(inventory, smi, s.clock, logger, time.Duration(cfg.TelemetryInterval))
	} else {
		logger.Debug("device memory telemetry disabled", "smi_path", cfg.SMIPath, "error", err)
	}
	return s, nil
}

// openRecords opens the journal, history database and output archive
// the config asks for.
func (s *session) openRecords(sinks *[]scheduler.OutputSink) error {
	cfg := s.config
	if cfg.Journal != "" {
		j, err := journal.Open(cfg.Journal, s.logger)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, j)
		s.registry.Observe(j)
	}
	if cfg.History != "" {
		store, err := history.Open(cfg.History, s.logger)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, store)
		s.registry.Observe(store)
		s.logger.Debug("recording history", "path", cfg.History, "run", store.Run())
	}
	if cfg.LogDir != "" {
		compression, err := joblog.ParseCompression(cfg.CompressLogs)
		if err != nil {
			return err
		}
		archive, err := joblog.NewArchive(cfg.LogDir, compression)
		if err != nil {
			return err
		}
		*sinks = append(*sinks, archive)
	}
	return nil
}

func (s *session) closeRecords() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			s.logger.Warn("closing record failed", "error", err)
		}
	}
	s.closers = nil
}

// start submits commands in file order and starts the dispatcher and
// the telemetry poller.
func (s *session) start(commands []string) {
	for _, command := range commands {
		s.dispatcher.Submit(command)
	}
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		s.dispatcher.Run(s.run)
	}()
	if s.poller != nil {
		s.background.Add(1)
		go func() {
			defer s.background.Done()
			s.poller.Run(s.run)
		}()
	}
}

// listen feeds SIGINT and SIGTERM to the coordinator until the
// returned stop function is called.
func (s *session) listen() (stop func()) {
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.coordinator.Listen(ctx, signals)
	}()
	return func() {
		signal.Stop(signals)
		cancel()
		<-done
	}
}

// waitFinished blocks until every job is terminal.
func (s *session) waitFinished() {
	for {
		changed := s.registry.Changed()
		if s.registry.Counts().Finished() {
			return
		}
		<-changed
	}
}

// finish stops the background loops, waits for every supervisor and
// closes the records. It returns the run's exit error.
func (s *session) finish() error {
	s.stopRun()
	s.background.Wait()
	s.dispatcher.Wait()
	s.closeRecords()

	counts := s.registry.Counts()
	s.logger.Info("all jobs finished",
		"done", counts.Done,
		"failed", counts.Failed,
		"cancelled", counts.Cancelled,
		"elapsed", s.clock.Now().Sub(s.started).Round(time.Millisecond),
	)
	if s.coordinator.Requested() {
		return &cli.ExitError{Code: scheduler.ExitInterrupted}
	}
	return nil
}

// dashboardSource feeds the dashboard from the live session.
func (s *session) dashboardSource() dashboard.SchedulerSource {
	return dashboard.SchedulerSource{
		Registry:  s.registry,
		Inventory: s.inventory,
		Shutdown:  s.coordinator,
		Clock:     s.clock,
		Started:   s.started,
	}
}

// goPlain switches output to plain lines, after the dashboard exits.
func (s *session) goPlain() {
	s.reporter.enabled.Store(true)
	if s.echo != nil {
		s.echo.enabled.Store(true)
	}
}

// execute runs the loaded commands to completion.
func execute(opts *options, cfg *config.Config, stdin io.Reader, stdout io.Writer, term terminal) error {
	commands, err := commandfile.Read(opts.file, stdin)
	if err != nil {
		return err
	}

	display, err := chooseDisplay(opts, term)
	if err != nil {
		return err
	}

	level := cli.Level(opts.verbose)
	stderrHandler := cli.NewHandler(term.errors, term.stderrTTY, level)
	var fileHandler slog.Handler
	if opts.logFile != "" {
		handler, closer, err := cli.OpenFileHandler(opts.logFile)
		if err != nil {
			return err
		}
		defer closer.Close()
		fileHandler = handler
	}

	var tuiHandler *dashboard.LogHandler
	var handler slog.Handler
	if display == displayDashboard {
		tuiHandler = dashboard.NewLogHandler(slog.LevelWarn, stderrHandler)
		handler = cli.NewFanoutHandler(tuiHandler, fileHandler)
	} else {
		handler = cli.NewFanoutHandler(stderrHandler, fileHandler)
	}
	logger := slog.New(handler)

	if len(commands) == 0 {
		logger.Info("no commands to run", "file", opts.file)
		return nil
	}

	ui := &dashboardRunner{handler: tuiHandler}
	s, err := newSession(sessionConfig{
		Config:  cfg,
		Logger:  logger,
		Clock:   clock.Real(),
		Console: newConsole(stdout, term.stdoutTTY),
		Plain:   display == displayPlain,
		Stream:  opts.streamOutput,
		Exit:    ui.exit,
	})
	if err != nil {
		return err
	}

	stopListening := s.listen()
	defer stopListening()

	logger.Info("starting",
		"jobs", len(commands),
		"devices", s.inventory.Len(),
		"shell", cfg.Shell,
	)
	s.start(commandfile.Texts(commands))

	if display == displayDashboard {
		if err := ui.run(s); err != nil {
			if opts.tui {
				s.coordinator.Request("dashboard failed")
				s.waitFinished()
				s.finish()
				return fmt.Errorf("dashboard: %w", err)
			}
			logger.Warn("dashboard unavailable, falling back to plain output", "error", err)
		}
		s.goPlain()
	}

	s.waitFinished()
	exitErr := s.finish()
	s.reporter.summary(s.registry.Counts(), s.clock.Now().Sub(s.started))
	return exitErr
}
