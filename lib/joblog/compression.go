// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package joblog

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects how archived output is stored.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionLZ4
)

func (compression Compression) String() string {
	switch compression {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("compression(%d)", uint8(compression))
	}
}

// Extension is the file suffix for the compression, after ".log".
func (compression Compression) Extension() string {
	switch compression {
	case CompressionZstd:
		return ".zst"
	case CompressionLZ4:
		return ".lz4"
	default:
		return ""
	}
}

// ParseCompression accepts "", "none", "zstd" and "lz4".
func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return CompressionNone, nil
	case "zstd", "zst":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("unknown log compression %q (want zstd or lz4)", name)
	}
}

// compressionForPath infers the compression from an archive file name.
func compressionForPath(path string) Compression {
	switch {
	case strings.HasSuffix(path, CompressionZstd.Extension()):
		return CompressionZstd
	case strings.HasSuffix(path, CompressionLZ4.Extension()):
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// compressor wraps destination in a streaming encoder. Returns nil for
// CompressionNone.
func (compression Compression) compressor(destination io.Writer) (io.WriteCloser, error) {
	switch compression {
	case CompressionNone:
		return nil, nil
	case CompressionZstd:
		encoder, err := zstd.NewWriter(destination, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		return encoder, nil
	case CompressionLZ4:
		return lz4.NewWriter(destination), nil
	default:
		return nil, fmt.Errorf("unsupported compression %s", compression)
	}
}

// OpenLog opens an archived log for reading, decompressing according
// to its file extension.
func OpenLog(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	switch compressionForPath(path) {
	case CompressionZstd:
		decoder, err := zstd.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("zstd decoder: %w", err)
		}
		return &decodedLog{Reader: decoder, closeDecoder: decoder.Close, file: file}, nil
	case CompressionLZ4:
		return &decodedLog{Reader: lz4.NewReader(file), file: file}, nil
	default:
		return file, nil
	}
}

type decodedLog struct {
	io.Reader
	closeDecoder func()
	file         *os.File
}

func (log *decodedLog) Close() error {
	if log.closeDecoder != nil {
		log.closeDecoder()
	}
	return log.file.Close()
}
