// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package problem describes the problem shapes a tuning cache is keyed
// by. A [Descriptor] owns its own table in the cache file: it supplies
// the DDL, the column names, and the column values of one problem, and
// the cache stores each distinct problem once and refers to it by row
// id.
//
// [Conv] is the convolution descriptor. Its table is "config", with one
// column per field and a unique index over all of them.
package problem
