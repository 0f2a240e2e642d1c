// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package kerndb

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// hashKey separates kernel hashes from any other BLAKE3 use. Changing
// it invalidates the kernel_hash column of every existing cache.
var hashKey = [32]byte{
	'p', 'e', 'r', 'f', 'd', 'b', '.', 'k', 'e', 'r', 'n', 'e', 'l', '.',
	'b', 'i', 'n', 'a', 'r', 'y', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// HashBinary returns the hex BLAKE3 keyed hash of an uncompressed
// kernel binary, as stored in kernel_hash.
func HashBinary(binary []byte) string {
	hasher, err := blake3.NewKeyed(hashKey[:])
	if err != nil {
		// Only a wrong key length fails, and the key is fixed-size.
		panic("kerndb: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(binary)
	return hex.EncodeToString(hasher.Sum(nil))
}
