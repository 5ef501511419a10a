// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds gparallel's CBOR configuration, used for the
// on-disk job journal.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items, so
// the same record always produces identical bytes. Times are written
// as RFC 3339 text with nanoseconds, and types implementing
// encoding.TextMarshaler (uuid.UUID) are written as text strings, so a
// journal stays readable with any CBOR diagnostic tool.
//
// Buffer-oriented:
//
//	data, err := codec.Marshal(record)
//	err = codec.Unmarshal(data, &record)
//
// Stream-oriented, for a CBOR sequence (RFC 8742) of records:
//
//	encoder := codec.NewEncoder(file)
//	decoder := codec.NewDecoder(file)
package codec
