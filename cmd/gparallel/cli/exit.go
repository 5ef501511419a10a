// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitUsage is the exit status for command-line usage errors.
const ExitUsage = 2

// ExitError signals a non-zero exit code without printing an extra
// error message. The command is expected to have already reported
// what happened (for example the shutdown summary after Ctrl+C).
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return ""
}

// ExitCode returns the exit code. main checks for this interface on
// returned errors.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// UsageError is a bad invocation: unknown flag, wrong argument count,
// conflicting flags. It exits with ExitUsage.
type UsageError struct {
	Err error
}

// Usage creates a UsageError from a format string.
func Usage(format string, args ...any) *UsageError {
	return &UsageError{Err: fmt.Errorf(format, args...)}
}

func (e *UsageError) Error() string { return e.Err.Error() }

// Unwrap returns the underlying error.
func (e *UsageError) Unwrap() error { return e.Err }

// ExitCode returns ExitUsage.
func (e *UsageError) ExitCode() int { return ExitUsage }
