// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commandfile reads the gparallel input format: one shell
// command per line. Blank lines and lines whose first non-space
// character is '#' are skipped and surrounding whitespace is trimmed.
// Every other line is one command, passed to the shell as written: a
// trailing backslash belongs to that command and joins nothing.
package commandfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// StdinPath is the path that selects standard input.
const StdinPath = "-"

// maxLineSize bounds one physical line. Long generated command lines
// (many arguments, inline JSON) exceed bufio's 64KB default.
const maxLineSize = 1024 * 1024

// Command is one command with the line it was read from.
type Command struct {
	Line int
	Text string
}

// Read parses commands from path, or from stdin when path is
// [StdinPath].
func Read(path string, stdin io.Reader) ([]Command, error) {
	if path == StdinPath {
		commands, err := Parse(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return commands, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open command file: %w", err)
	}
	defer file.Close()

	commands, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("read command file %s: %w", path, err)
	}
	return commands, nil
}

// Parse reads commands from reader. An input with no commands yields
// an empty slice and no error.
func Parse(reader io.Reader) ([]Command, error) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var commands []Command
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		commands = append(commands, Command{Line: lineNumber, Text: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("line %d: %w", lineNumber+1, err)
	}
	return commands, nil
}

// Texts returns the command strings of commands.
func Texts(commands []Command) []string {
	texts := make([]string, len(commands))
	for index, command := range commands {
		texts[index] = command.Text
	}
	return texts
}
