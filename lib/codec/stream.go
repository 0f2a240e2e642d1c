// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Format selects a stream encoding.
type Format int

const (
	// FormatCBOR is a CBOR sequence of deterministic items.
	FormatCBOR Format = iota
	// FormatJSON is newline-delimited JSON.
	FormatJSON
)

func (f Format) String() string {
	switch f {
	case FormatCBOR:
		return "cbor"
	case FormatJSON:
		return "json"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// ParseFormat converts a format name ("cbor", "json", or "jsonl").
func ParseFormat(name string) (Format, error) {
	switch name {
	case "cbor":
		return FormatCBOR, nil
	case "json", "jsonl":
		return FormatJSON, nil
	default:
		return 0, fmt.Errorf("codec: unknown format %q (want cbor or json)", name)
	}
}

// Writer writes a stream of values in one format.
type Writer struct {
	encode func(any) error
	count  int
}

// NewWriter returns a Writer that encodes values to w.
func NewWriter(w io.Writer, format Format) *Writer {
	if format == FormatJSON {
		return &Writer{encode: json.NewEncoder(w).Encode}
	}
	return &Writer{encode: NewEncoder(w).Encode}
}

// Write encodes one value.
func (w *Writer) Write(v any) error {
	if err := w.encode(v); err != nil {
		return fmt.Errorf("codec: writing item %d: %w", w.count, err)
	}
	w.count++
	return nil
}

// Count returns the number of values written.
func (w *Writer) Count() int { return w.count }

// Reader reads a stream of values in one format.
type Reader struct {
	decode func(any) error
	count  int
}

// NewReader returns a Reader that decodes values from r.
func NewReader(r io.Reader, format Format) *Reader {
	if format == FormatJSON {
		return &Reader{decode: json.NewDecoder(r).Decode}
	}
	return &Reader{decode: NewDecoder(r).Decode}
}

// Read decodes the next value into v. It returns io.EOF, unwrapped,
// at a clean end of stream. A stream truncated inside an item returns
// io.ErrUnexpectedEOF.
func (r *Reader) Read(v any) error {
	err := r.decode(v)
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	if err != nil {
		return fmt.Errorf("codec: reading item %d: %w", r.count, err)
	}
	r.count++
	return nil
}

// Count returns the number of values read.
func (r *Reader) Count() int { return r.count }
