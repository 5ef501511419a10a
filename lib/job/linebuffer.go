// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package job

// DefaultLineCapacity is the number of output lines kept per job.
const DefaultLineCapacity = 1000

// LineBuffer keeps the most recent lines of a job's output in a ring.
// Not safe for concurrent use; the registry guards it.
type LineBuffer struct {
	lines []string
	start int // index of the oldest line once the ring is full
	total int
}

// NewLineBuffer returns a buffer holding at most capacity lines.
// capacity <= 0 means DefaultLineCapacity.
func NewLineBuffer(capacity int) *LineBuffer {
	if capacity <= 0 {
		capacity = DefaultLineCapacity
	}
	return &LineBuffer{lines: make([]string, 0, capacity)}
}

// Capacity returns the maximum number of retained lines.
func (b *LineBuffer) Capacity() int {
	return cap(b.lines)
}

// Len returns the number of retained lines.
func (b *LineBuffer) Len() int {
	return len(b.lines)
}

// Total returns the number of lines ever appended.
func (b *LineBuffer) Total() int {
	return b.total
}

// Append adds a line, evicting the oldest when full.
func (b *LineBuffer) Append(line string) {
	b.total++
	if len(b.lines) < cap(b.lines) {
		b.lines = append(b.lines, line)
		return
	}
	b.lines[b.start] = line
	b.start = (b.start + 1) % len(b.lines)
}

// Lines returns a copy of every retained line, oldest first.
func (b *LineBuffer) Lines() []string {
	return b.Tail(len(b.lines))
}

// Tail returns a copy of the most recent n lines, oldest first.
func (b *LineBuffer) Tail(n int) []string {
	if n > len(b.lines) {
		n = len(b.lines)
	}
	if n <= 0 {
		return nil
	}
	result := make([]string, n)
	first := len(b.lines) - n
	for i := range n {
		result[i] = b.lines[(b.start+first+i)%len(b.lines)]
	}
	return result
}
