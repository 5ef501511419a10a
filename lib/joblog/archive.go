// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package joblog archives each job's complete output to disk, one file
// per job, optionally compressed with zstd or lz4. The in-memory line
// buffer keeps only a bounded tail; the archive keeps everything.
//
// Each archive starts with a header line naming the job, its device
// and its command. The writer computes a BLAKE3 digest of the output
// lines (header excluded, before compression), which the supervisor
// records as the job's output digest.
package joblog

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/gparallel/lib/job"
	"github.com/bureau-foundation/gparallel/lib/scheduler"
)

// Archive writes job output files into one directory. It implements
// scheduler.OutputSink.
type Archive struct {
	directory   string
	compression Compression
}

// NewArchive creates directory if needed.
func NewArchive(directory string, compression Compression) (*Archive, error) {
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	return &Archive{directory: directory, compression: compression}, nil
}

// Path returns the archive file of job id.
func (archive *Archive) Path(id uuid.UUID) string {
	return filepath.Join(archive.directory, id.String()+".log"+archive.compression.Extension())
}

// Open creates the archive file for a job that is about to start.
func (archive *Archive) Open(info job.Info) (scheduler.LineWriter, error) {
	path := archive.Path(info.ID)
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating job log: %w", err)
	}

	writer := &Writer{file: file, hasher: blake3.New()}
	var destination io.Writer = file
	compressor, err := archive.compression.compressor(file)
	if err != nil {
		file.Close()
		os.Remove(path)
		return nil, err
	}
	if compressor != nil {
		writer.compressor = compressor
		destination = compressor
	}
	writer.buffer = bufio.NewWriter(destination)

	if _, err := fmt.Fprintf(writer.buffer, "# job %s device %s: %s\n",
		info.ID, deviceName(info.Device), info.Command); err != nil {
		writer.Close()
		return nil, fmt.Errorf("writing job log header: %w", err)
	}
	return writer, nil
}

func deviceName(device int) string {
	if device == job.NoDevice {
		return "none"
	}
	return fmt.Sprintf("G%d", device)
}

// Writer is one job's archive file.
type Writer struct {
	file       *os.File
	compressor io.WriteCloser
	buffer     *bufio.Writer
	hasher     *blake3.Hasher
}

// WriteLine appends line and a newline.
func (writer *Writer) WriteLine(line string) error {
	io.WriteString(writer.hasher, line)
	io.WriteString(writer.hasher, "\n")
	if _, err := writer.buffer.WriteString(line); err != nil {
		return err
	}
	return writer.buffer.WriteByte('\n')
}

// Close flushes every layer and returns the hex BLAKE3 digest of the
// lines written.
func (writer *Writer) Close() (string, error) {
	var errs []error
	if err := writer.buffer.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("flushing job log: %w", err))
	}
	if writer.compressor != nil {
		if err := writer.compressor.Close(); err != nil {
			errs = append(errs, fmt.Errorf("finishing compressed job log: %w", err))
		}
	}
	if err := writer.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing job log: %w", err))
	}
	return Digest(writer.hasher), errors.Join(errs...)
}

// Digest formats a hasher's current sum as lowercase hex.
func Digest(hasher *blake3.Hasher) string {
	return hex.EncodeToString(hasher.Sum(nil))
}

// DigestLines returns the digest the archive reports for lines.
func DigestLines(lines []string) string {
	hasher := blake3.New()
	for _, line := range lines {
		io.WriteString(hasher, line)
		io.WriteString(hasher, "\n")
	}
	return Digest(hasher)
}
