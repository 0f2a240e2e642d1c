// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"strings"
	"testing"

	"github.com/bureau-foundation/perfdb/lib/problem"
)

func TestParseProblem(t *testing.T) {
	conv, err := parseProblem([]byte(`{
		/* 3D backward-data problem */
		"spatial_dim": 3,
		"direction": "B",
		"data_type": "FP16",
		"layout": "NCDHW",
		"in_channels": 32, "out_channels": 64, "batchsize": 8,
		"in_d": 16, "in_h": 56, "in_w": 56,
		"fil_d": 3, "fil_h": 3, "fil_w": 3, // cube filter
	}`))
	if err != nil {
		t.Fatalf("parseProblem: %v", err)
	}
	if conv.Direction != problem.BackwardData || conv.SpatialDim != 3 || conv.FilD != 3 {
		t.Errorf("parsed = %+v", conv)
	}
	// Omitted fields keep their defaults.
	if conv.StrideH != 1 || conv.DilationW != 1 || conv.GroupCount != 1 {
		t.Errorf("defaults lost: %+v", conv)
	}
}

func TestParseProblemErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"unknown field", `{"in_channel": 64}`, "unknown field"},
		{"malformed", `{"in_channels": }`, "parsing problem"},
		{"invalid shape", `{"in_channels": 0, "out_channels": 1, "batchsize": 1, "in_h": 1, "in_w": 1, "fil_h": 1, "fil_w": 1}`, "in_channels must be positive"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := parseProblem([]byte(test.input))
			if err == nil || !strings.Contains(err.Error(), test.want) {
				t.Errorf("parseProblem error = %v, want %q", err, test.want)
			}
		})
	}
}
