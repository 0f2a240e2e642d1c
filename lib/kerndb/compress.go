// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package kerndb

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies how a kernel blob is stored. The name is
// written to the compression column, so names are format constants.
type Compression uint8

const (
	// CompressionNone stores the binary as-is.
	CompressionNone Compression = iota

	// CompressionLZ4 is LZ4 block compression: fast to decode, which
	// suits kernels loaded on every process start.
	CompressionLZ4

	// CompressionZstd is zstd at the default level: smaller rows for
	// caches that are shipped or rarely read.
	CompressionZstd
)

// String returns the stored name of the compression.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// MarshalText encodes the compression by name.
func (c Compression) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a compression name.
func (c *Compression) UnmarshalText(text []byte) error {
	parsed, err := ParseCompression(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCompression parses a stored compression name.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("kerndb: unknown compression %q", name)
	}
}

// maxExpansion bounds uncompressed_size relative to the stored blob.
// compress never writes a row beyond it, so Find treats a larger size
// as corruption instead of allocating it.
const maxExpansion = 1024

// errIncompressible reports compressed output no smaller than the
// input.
var errIncompressible = errors.New("data is incompressible")

// compress encodes data with c and returns the bytes to store and the
// compression actually used. Incompressible data falls back to
// CompressionNone.
func compress(data []byte, c Compression) ([]byte, Compression, error) {
	var (
		out []byte
		err error
	)
	switch c {
	case CompressionNone:
		return data, CompressionNone, nil
	case CompressionLZ4:
		out, err = compressLZ4(data)
	case CompressionZstd:
		out, err = compressZstd(data)
	default:
		return nil, 0, fmt.Errorf("kerndb: unsupported compression %s", c)
	}
	if errors.Is(err, errIncompressible) {
		return data, CompressionNone, nil
	}
	if err != nil {
		return nil, 0, err
	}
	if len(data) > len(out)*maxExpansion {
		return data, CompressionNone, nil
	}
	return out, c, nil
}

// decompress reverses compress. The result must be exactly size
// bytes.
func decompress(stored []byte, c Compression, size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("kerndb: negative uncompressed size %d", size)
	}
	if c != CompressionNone && size > len(stored)*maxExpansion {
		return nil, fmt.Errorf("kerndb: uncompressed size %d exceeds %d times the stored %d bytes",
			size, maxExpansion, len(stored))
	}
	switch c {
	case CompressionNone:
		if len(stored) != size {
			return nil, fmt.Errorf("kerndb: stored size %d does not match expected %d", len(stored), size)
		}
		return stored, nil
	case CompressionLZ4:
		return decompressLZ4(stored, size)
	case CompressionZstd:
		return decompressZstd(stored, size)
	default:
		return nil, fmt.Errorf("kerndb: unsupported compression %s", c)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("kerndb: lz4 compress: %w", err)
	}
	// CompressBlock returns 0 for incompressible input.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func decompressLZ4(compressed []byte, size int) ([]byte, error) {
	destination := make([]byte, size)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("kerndb: lz4 decompress: %w", err)
	}
	if read != size {
		return nil, fmt.Errorf("kerndb: lz4 decompress: got %d bytes, expected %d", read, size)
	}
	return destination, nil
}

// zstd.Encoder and zstd.Decoder are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("kerndb: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("kerndb: zstd decoder initialization failed: " + err.Error())
	}
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, size int) ([]byte, error) {
	result, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("kerndb: zstd decompress: %w", err)
	}
	if len(result) != size {
		return nil, fmt.Errorf("kerndb: zstd decompress: got %d bytes, expected %d", len(result), size)
	}
	return result, nil
}
