// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package joblog

import (
	"io"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/bureau-foundation/gparallel/lib/job"
)

func TestArchiveRoundTrip(t *testing.T) {
	lines := []string{"epoch 1 loss 0.9", "", "epoch 2 loss 0.5 ünïcode"}
	for _, compression := range []Compression{CompressionNone, CompressionZstd, CompressionLZ4} {
		t.Run(compression.String(), func(t *testing.T) {
			archive, err := NewArchive(t.TempDir()+"/logs", compression)
			if err != nil {
				t.Fatalf("NewArchive: %v", err)
			}
			info := job.Info{ID: uuid.New(), Command: "python train.py", Device: 1}

			writer, err := archive.Open(info)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			for _, line := range lines {
				if err := writer.WriteLine(line); err != nil {
					t.Fatalf("WriteLine: %v", err)
				}
			}
			digest, err := writer.Close()
			if err != nil {
				t.Fatalf("Close: %v", err)
			}
			if digest != DigestLines(lines) {
				t.Errorf("digest = %s, want %s", digest, DigestLines(lines))
			}
			if len(digest) != 64 {
				t.Errorf("digest %q is not 32 bytes of hex", digest)
			}

			path := archive.Path(info.ID)
			if !strings.HasSuffix(path, info.ID.String()+".log"+compression.Extension()) {
				t.Errorf("Path = %s", path)
			}
			reader, err := OpenLog(path)
			if err != nil {
				t.Fatalf("OpenLog: %v", err)
			}
			defer reader.Close()
			content, err := io.ReadAll(reader)
			if err != nil {
				t.Fatalf("reading archive: %v", err)
			}
			want := "# job " + info.ID.String() + " device G1: python train.py\n" +
				strings.Join(lines, "\n") + "\n"
			if string(content) != want {
				t.Errorf("archive content = %q, want %q", content, want)
			}
		})
	}
}

func TestCompressedArchiveIsSmaller(t *testing.T) {
	archive, err := NewArchive(t.TempDir(), CompressionZstd)
	if err != nil {
		t.Fatalf("NewArchive: %v", err)
	}
	info := job.Info{ID: uuid.New(), Command: "yes", Device: job.NoDevice}
	writer, err := archive.Open(info)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for range 10000 {
		writer.WriteLine("y")
	}
	if _, err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	stat, err := os.Stat(archive.Path(info.ID))
	if err != nil {
		t.Fatal(err)
	}
	if stat.Size() >= 20000 {
		t.Errorf("compressed archive is %d bytes for 20000 bytes of output", stat.Size())
	}
}

func TestParseCompression(t *testing.T) {
	tests := []struct {
		name    string
		want    Compression
		wantErr bool
	}{
		{"", CompressionNone, false},
		{"none", CompressionNone, false},
		{"zstd", CompressionZstd, false},
		{"ZSTD", CompressionZstd, false},
		{"lz4", CompressionLZ4, false},
		{"gzip", 0, true},
	}
	for _, test := range tests {
		got, err := ParseCompression(test.name)
		if (err != nil) != test.wantErr {
			t.Errorf("ParseCompression(%q) error = %v, wantErr %v", test.name, err, test.wantErr)
			continue
		}
		if got != test.want {
			t.Errorf("ParseCompression(%q) = %v, want %v", test.name, got, test.want)
		}
	}
}

func TestOpenFailsForUnwritableDirectory(t *testing.T) {
	archive := &Archive{directory: "/nonexistent/gparallel-test", compression: CompressionNone}
	if _, err := archive.Open(job.Info{ID: uuid.New()}); err == nil {
		t.Error("Open into a missing directory should fail")
	}
}
