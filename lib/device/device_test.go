// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

// writeSyntheticFile creates a file at the given path within root,
// creating parent directories as needed.
func writeSyntheticFile(t *testing.T, root, path, content string) {
	t.Helper()
	fullPath := filepath.Join(root, path)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(fullPath), err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", fullPath, err)
	}
}

const cpuNode = `cpu_cores_count 64
simd_count 0
mem_banks_count 1
gfx_target_version 0
`

const mi210Node = `cpu_cores_count 0
simd_count 416
mem_banks_count 1
simd_per_cu 4
max_waves_per_simd 8
gfx_target_version 90010
vendor_id 4098
device_id 29711
`

const navi31Node = `cpu_cores_count 0
simd_count 192
simd_per_cu 2
gfx_target_version 110000
`

func TestEnumerate(t *testing.T) {
	root := t.TempDir()
	nodes := "class/kfd/kfd/topology/nodes"
	writeSyntheticFile(t, root, filepath.Join(nodes, "0/properties"), cpuNode)
	writeSyntheticFile(t, root, filepath.Join(nodes, "2/properties"), navi31Node)
	writeSyntheticFile(t, root, filepath.Join(nodes, "1/properties"), mi210Node)

	devices, err := NewProberAt(root).Enumerate()
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("got %d devices, want 2: %+v", len(devices), devices)
	}

	want := []Device{
		{Node: 1, Arch: "gfx90a", NumCU: 104, TargetVersion: 90010},
		{Node: 2, Arch: "gfx1100", NumCU: 96, TargetVersion: 110000},
	}
	for i := range want {
		if devices[i] != want[i] {
			t.Errorf("device %d = %+v, want %+v", i, devices[i], want[i])
		}
	}
	if name := devices[0].CacheName(UserPerf); name != "gfx90a_104.udb" {
		t.Errorf("CacheName(UserPerf) = %q", name)
	}
}

func TestEnumerateWithoutKFD(t *testing.T) {
	_, err := NewProberAt(t.TempDir()).Enumerate()
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("err = %v, want fs.ErrNotExist", err)
	}
}

func TestArchName(t *testing.T) {
	for version, want := range map[int]string{
		90010:  "gfx90a",
		90008:  "gfx908",
		90402:  "gfx942",
		100300: "gfx1030",
		110001: "gfx1101",
		90012:  "gfx90c",
	} {
		if got := ArchName(version); got != want {
			t.Errorf("ArchName(%d) = %q, want %q", version, got, want)
		}
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		arch string
		cu   int
		kind Kind
		want string
	}{
		{"gfx90a", 104, SystemPerf, "gfx90a_104.db"},
		{"gfx90a:sramecc+:xnack-", 110, UserPerf, "gfx90a_110.udb"},
		{"gfx942", 304, SystemKernel, "gfx942_304.kdb"},
		{"gfx1100", 96, UserKernel, "gfx1100_96.ukdb"},
	}
	for _, test := range tests {
		if got := FileName(test.arch, test.cu, test.kind); got != test.want {
			t.Errorf("FileName(%q, %d, %d) = %q, want %q", test.arch, test.cu, test.kind, got, test.want)
		}
	}
	if !SystemPerf.Shared() || UserKernel.Shared() {
		t.Error("Shared() misclassifies kinds")
	}
}
