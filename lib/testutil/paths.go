// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
)

var uniqueCounter atomic.Uint64

// TempPath returns a path named name inside a fresh temporary directory
// that is removed when the test completes. The file itself is not
// created.
//
//	path := testutil.TempPath(t, "gfx90a_104.udb")
func TempPath(t testing.TB, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name)
}

// UniqueName returns a string of the form "prefix-N" where N is a
// monotonically increasing integer.
//
//	solver := testutil.UniqueName("ConvHipImplicitGemm") // "ConvHipImplicitGemm-1", ...
func UniqueName(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}
