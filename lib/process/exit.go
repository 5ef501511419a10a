// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ExitCoder is implemented by errors that carry a specific exit status.
type ExitCoder interface {
	ExitCode() int
}

// ExitCode maps err to a process exit status: 0 for nil, the carried
// code for an ExitCoder anywhere in the chain, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var coder ExitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return 1
}

// Report writes "error: err" to w unless err only carries an exit
// status (its message is empty).
func Report(w io.Writer, err error) {
	if err == nil || err.Error() == "" {
		return
	}
	fmt.Fprintf(w, "error: %v\n", err)
}

// Fatal reports err to stderr and exits with ExitCode(err). Use it in
// main() for errors from run(), where the structured logger may not be
// initialized.
func Fatal(err error) {
	Report(os.Stderr, err)
	os.Exit(ExitCode(err))
}
