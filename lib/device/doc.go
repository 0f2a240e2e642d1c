// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package device identifies the AMD GPUs a tuning cache serves and
// names their cache files.
//
// GPUs are enumerated from the KFD topology in sysfs
// (/sys/class/kfd/kfd/topology/nodes/N/properties), the same source
// the ROCm runtime reads. Each GPU node reports gfx_target_version,
// from which the gfx architecture name is derived, and simd_count and
// simd_per_cu, from which the compute-unit count is derived. CPU nodes
// report no SIMDs and are skipped.
//
// Cache files are named "<arch>_<cu>" plus an extension by kind:
// ".db" for installed tuning caches, ".udb" for user tuning caches,
// ".kdb" and ".ukdb" for the kernel-binary equivalents.
package device
