// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"

	"github.com/spf13/pflag"
)

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `gparallel: run shell commands in parallel, one GPU per job.

FILE holds one command per line, run exactly as written. Blank lines
and lines starting with # are skipped. Use - to read commands from
stdin (implies --no-tui).

Each job runs as "bash -c COMMAND" in its own process group with
CUDA_VISIBLE_DEVICES set to its device. Devices come from
CUDA_VISIBLE_DEVICES when set, else the NVIDIA driver, else
"nvidia-smi -L", else a single device 0.

Usage:
  gparallel [flags] FILE

Examples:
  # Sweep learning rates over every visible GPU
  gparallel sweep.txt

  # Only GPUs 2 and 3, plain output, archive logs compressed
  CUDA_VISIBLE_DEVICES=2,3 gparallel --no-tui --log-dir logs --compress-logs sweep.txt

  # Generated commands on stdin, recorded in a history database
  ./make-jobs.sh | gparallel --history runs.db -

Keys (dashboard):
  up/down, pgup/pgdn, g/G  select job
  /                        filter jobs
  q                        close the dashboard; jobs keep running
  ctrl+c                   stop all jobs (twice: kill immediately)

Exit status: 0 when every job finished (even if some failed), 1 on
fatal errors, 2 on usage errors, 130 after Ctrl+C or SIGTERM.

Flags:
`)
	flagSet.SetOutput(w)
	flagSet.PrintDefaults()
}
