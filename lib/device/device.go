// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Device is one GPU node in the KFD topology.
type Device struct {
	// Node is the KFD topology node index.
	Node int `json:"node"`

	// Arch is the gfx architecture name, e.g. "gfx90a".
	Arch string `json:"arch"`

	// NumCU is the compute-unit count.
	NumCU int `json:"num_cu"`

	// TargetVersion is the raw gfx_target_version, e.g. 90010.
	TargetVersion int `json:"target_version"`
}

// Kind selects a cache file flavor.
type Kind int

const (
	// SystemPerf is an installed, read-only tuning cache.
	SystemPerf Kind = iota
	// UserPerf is a writable per-user tuning cache.
	UserPerf
	// SystemKernel is an installed, read-only kernel cache.
	SystemKernel
	// UserKernel is a writable per-user kernel cache.
	UserKernel
)

// Extension returns the file extension of the kind, with its dot.
func (kind Kind) Extension() string {
	switch kind {
	case SystemPerf:
		return ".db"
	case UserPerf:
		return ".udb"
	case SystemKernel:
		return ".kdb"
	case UserKernel:
		return ".ukdb"
	default:
		return ".kind" + strconv.Itoa(int(kind))
	}
}

// Shared reports whether caches of this kind are installed read-only
// files.
func (kind Kind) Shared() bool {
	return kind == SystemPerf || kind == SystemKernel
}

// FileName returns the cache file name for arch and numCU. Target
// feature suffixes such as ":sramecc+:xnack-" are dropped from arch.
func FileName(arch string, numCU int, kind Kind) string {
	return fmt.Sprintf("%s_%d%s", BaseArch(arch), numCU, kind.Extension())
}

// CacheName returns the device's cache file name of the given kind.
func (d Device) CacheName(kind Kind) string {
	return FileName(d.Arch, d.NumCU, kind)
}

// BaseArch strips target feature suffixes: "gfx90a:sramecc+:xnack-"
// becomes "gfx90a".
func BaseArch(arch string) string {
	base, _, _ := strings.Cut(arch, ":")
	return base
}

// ArchName converts a gfx_target_version to its architecture name.
// The version packs major*10000 + minor*100 + stepping; the stepping
// is written in hex, so 90010 is gfx90a and 110001 is gfx1101.
func ArchName(targetVersion int) string {
	major := targetVersion / 10000
	minor := (targetVersion / 100) % 100
	stepping := targetVersion % 100
	return fmt.Sprintf("gfx%d%d%x", major, minor, stepping)
}

// Prober enumerates GPUs from sysfs.
type Prober struct {
	// sysRoot is the root of the sysfs filesystem. Defaults to "/sys";
	// overridden in tests with synthetic trees.
	sysRoot string
}

// NewProber returns a Prober that reads the real /sys.
func NewProber() *Prober {
	return &Prober{sysRoot: "/sys"}
}

// NewProberAt returns a Prober reading the sysfs tree rooted at sysRoot.
func NewProberAt(sysRoot string) *Prober {
	return &Prober{sysRoot: sysRoot}
}

// Enumerate returns the GPU nodes of the KFD topology ordered by node
// index. A system without the KFD driver returns an error wrapping
// fs.ErrNotExist.
func (p *Prober) Enumerate() ([]Device, error) {
	nodesDir := filepath.Join(p.sysRoot, "class/kfd/kfd/topology/nodes")
	entries, err := os.ReadDir(nodesDir)
	if err != nil {
		return nil, fmt.Errorf("device: reading KFD topology: %w", err)
	}

	var devices []Device
	for _, entry := range entries {
		node, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		properties, err := readProperties(filepath.Join(nodesDir, entry.Name(), "properties"))
		if err != nil {
			return nil, fmt.Errorf("device: node %d: %w", node, err)
		}
		device, ok := deviceFromProperties(node, properties)
		if !ok {
			continue
		}
		devices = append(devices, device)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Node < devices[j].Node })
	return devices, nil
}

// deviceFromProperties builds a Device from a node's properties. CPU
// nodes and nodes missing the GPU fields are rejected.
func deviceFromProperties(node int, properties map[string]int64) (Device, bool) {
	simdCount := properties["simd_count"]
	simdPerCU := properties["simd_per_cu"]
	targetVersion := properties["gfx_target_version"]
	if simdCount <= 0 || simdPerCU <= 0 || targetVersion <= 0 {
		return Device{}, false
	}
	return Device{
		Node:          node,
		Arch:          ArchName(int(targetVersion)),
		NumCU:         int(simdCount / simdPerCU),
		TargetVersion: int(targetVersion),
	}, true
}

// readProperties parses a KFD properties file: one "name value" pair
// per line. Lines whose value is not an integer are skipped.
func readProperties(path string) (map[string]int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	properties := make(map[string]int64)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		value, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			continue
		}
		properties[fields[0]] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return properties, nil
}
