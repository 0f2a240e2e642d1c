// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides perfdb's export encodings.
//
// Cache contents leave the database in one of two stream formats:
//
//   - CBOR (the default): a sequence of Core Deterministic Encoded
//     items (RFC 8949 §4.2). Same logical data always produces
//     identical bytes, so two dumps of equal caches compare equal.
//   - JSON lines: one JSON object per line, for inspection with
//     ordinary text tools.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (dump and import):
//
//	writer := codec.NewWriter(file, codec.FormatCBOR)
//	reader := codec.NewReader(file, codec.FormatCBOR)
//
// # Struct Tag Rules
//
// Exported types carry `json` tags only. fxamacker/cbor v2 reads
// `json` tags as fallback when `cbor` tags are absent, so a single tag
// controls field naming for both formats. Never use both `cbor` and
// `json` tags on the same field.
package codec
