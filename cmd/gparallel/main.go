// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// gparallel runs a file of shell commands across the GPUs of one host,
// one job per device at a time. Each job sees exactly one device
// through the visibility variable (CUDA_VISIBLE_DEVICES by default).
//
// With a terminal it shows a live dashboard of devices, jobs and the
// selected job's output; otherwise (or with --no-tui) it prints one
// line per job start and finish. Ctrl+C stops dispatching, terminates
// running jobs and waits out their grace period; a second Ctrl+C kills
// everything immediately.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/gparallel/cmd/gparallel/cli"
	"github.com/bureau-foundation/gparallel/lib/config"
	"github.com/bureau-foundation/gparallel/lib/joblog"
	"github.com/bureau-foundation/gparallel/lib/process"
	"github.com/bureau-foundation/gparallel/lib/version"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		process.Fatal(err)
	}
}

// options is the parsed command line.
type options struct {
	file string

	noTUI        bool
	tui          bool
	streamOutput bool
	verbose      bool

	configPath   string
	shell        string
	maxRuntime   time.Duration
	gracePeriod  time.Duration
	logLines     int
	journal      string
	logDir       string
	compressLogs string
	history      string
	logFile      string

	showVersion bool
	showHelp    bool

	flagSet *pflag.FlagSet
}

func newFlagSet(opts *options) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("gparallel", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.Usage = func() {}
	flagSet.SortFlags = false

	flagSet.BoolVar(&opts.noTUI, "no-tui", false, "print one line per job start and finish instead of the dashboard")
	flagSet.BoolVar(&opts.tui, "tui", false, "require the dashboard; fail if the terminal cannot host it")
	flagSet.StringVar(&opts.configPath, "config", "", "YAML or JSONC config file (default: $"+config.EnvironmentVariable+")")
	flagSet.StringVar(&opts.shell, "shell", "", "shell that runs each command with -c (default: bash)")
	flagSet.DurationVar(&opts.maxRuntime, "max-runtime", 0, "terminate jobs still running after this long (0: no limit)")
	flagSet.DurationVar(&opts.gracePeriod, "grace-period", 0, "time between SIGTERM and SIGKILL when stopping a job (default: 1s)")
	flagSet.IntVar(&opts.logLines, "log-lines", 0, "output lines kept in memory per job (default: 1000)")
	flagSet.StringVar(&opts.journal, "journal", "", "append a CBOR record of every job transition to this file")
	flagSet.StringVar(&opts.logDir, "log-dir", "", "archive each job's complete output in this directory")
	flagSet.StringVar(&opts.compressLogs, "compress-logs", "", "compress archived output: zstd or lz4 (bare flag: zstd)")
	flagSet.Lookup("compress-logs").NoOptDefVal = joblog.CompressionZstd.String()
	flagSet.StringVar(&opts.history, "history", "", "record every job in this SQLite database")
	flagSet.BoolVar(&opts.streamOutput, "stream-output", false, "plain mode: echo job output prefixed with the job id")
	flagSet.StringVar(&opts.logFile, "log-file", "", "also write JSON log records to this file")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version information and exit")
	flagSet.BoolVarP(&opts.showHelp, "help", "h", false, "show help")
	return flagSet
}

// parseArgs parses args into options. Errors are usage errors.
func parseArgs(args []string) (*options, error) {
	opts := &options{}
	flagSet := newFlagSet(opts)
	opts.flagSet = flagSet

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			opts.showHelp = true
			return opts, nil
		}
		return nil, cli.Usage("%v (see gparallel --help)", err)
	}
	if opts.showHelp || opts.showVersion {
		return opts, nil
	}

	if opts.tui && opts.noTUI {
		return nil, cli.Usage("--tui and --no-tui are mutually exclusive")
	}
	if opts.logLines < 0 {
		return nil, cli.Usage("--log-lines must not be negative")
	}

	rest := flagSet.Args()
	switch len(rest) {
	case 0:
		return nil, cli.Usage("missing command file (see gparallel --help)")
	case 1:
		opts.file = rest[0]
	default:
		return nil, cli.Usage("expected one command file, got %d arguments", len(rest))
	}
	if opts.file == "-" && opts.tui {
		return nil, cli.Usage("--tui cannot read commands from stdin: the dashboard needs the terminal")
	}
	return opts, nil
}

// applyTo overrides cfg with every flag given on the command line.
func (opts *options) applyTo(cfg *config.Config) {
	changed := opts.flagSet.Changed
	if changed("shell") {
		cfg.Shell = opts.shell
	}
	if changed("max-runtime") {
		cfg.MaxRuntime = config.Duration(opts.maxRuntime)
	}
	if changed("grace-period") {
		cfg.GracePeriod = config.Duration(opts.gracePeriod)
	}
	if changed("log-lines") {
		cfg.LogLines = opts.logLines
	}
	if changed("journal") {
		cfg.Journal = opts.journal
	}
	if changed("log-dir") {
		cfg.LogDir = opts.logDir
	}
	if changed("compress-logs") {
		cfg.CompressLogs = opts.compressLogs
	}
	if changed("history") {
		cfg.History = opts.history
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	opts, err := parseArgs(args)
	if err != nil {
		return err
	}
	if opts.showHelp {
		printHelp(stderr, opts.flagSet)
		return nil
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "gparallel %s\n", version.Full())
		return nil
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	opts.applyTo(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	return execute(opts, cfg, stdin, stdout, detectTerminal(stderr))
}
