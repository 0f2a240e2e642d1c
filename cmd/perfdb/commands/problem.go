// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/perfdb/lib/problem"
)

// parseProblem strips JSONC comments and trailing commas from data,
// then decodes it over the NewConv defaults. Fields a file omits keep
// their defaults; unknown fields are rejected.
func parseProblem(data []byte) (problem.Conv, error) {
	conv := problem.NewConv()
	decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&conv); err != nil {
		return problem.Conv{}, fmt.Errorf("parsing problem: %w", err)
	}
	if err := conv.Validate(); err != nil {
		return problem.Conv{}, err
	}
	return conv, nil
}

// readProblem reads a JSONC problem file; "-" reads stdin.
func readProblem(path string, stdin io.Reader) (problem.Conv, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return problem.Conv{}, fmt.Errorf("reading %s: %w", path, err)
	}
	conv, err := parseProblem(data)
	if err != nil {
		return problem.Conv{}, fmt.Errorf("%s: %w", path, err)
	}
	return conv, nil
}
