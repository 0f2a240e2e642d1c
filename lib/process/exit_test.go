// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

func TestExitCode(t *testing.T) {
	notFound := &ExitError{Code: 2}
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"plain", errors.New("boom"), 1},
		{"exit error", notFound, 2},
		{"wrapped exit error", fmt.Errorf("find: %w", notFound), 2},
	}
	for _, test := range tests {
		if got := ExitCode(test.err); got != test.want {
			t.Errorf("%s: ExitCode = %d, want %d", test.name, got, test.want)
		}
	}
}

func TestReport(t *testing.T) {
	var buffer bytes.Buffer
	report(&buffer, errors.New("database locked"))
	if buffer.String() != "error: database locked\n" {
		t.Errorf("report = %q", buffer.String())
	}

	buffer.Reset()
	report(&buffer, &ExitError{Code: 2})
	if buffer.Len() != 0 {
		t.Errorf("silent exit wrote %q", buffer.String())
	}

	buffer.Reset()
	report(&buffer, &ExitError{Code: 3, Err: errors.New("cache invalid")})
	if buffer.String() != "error: cache invalid\n" {
		t.Errorf("report = %q", buffer.String())
	}
}
