// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name string
		want slog.Level
	}{
		{"trace", LevelTrace},
		{"TRACE", LevelTrace},
		{"debug", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"info", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
	}
	for _, test := range tests {
		got, err := ParseLevel(test.name)
		if err != nil {
			t.Errorf("ParseLevel(%q): %v", test.name, err)
			continue
		}
		if got != test.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", test.name, got, test.want)
		}
	}

	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("ParseLevel(verbose) should fail")
	}
}

func TestTraceLevelName(t *testing.T) {
	var buffer bytes.Buffer
	logger := NewWriter(&buffer, LevelTrace, true)
	logger.Log(t.Context(), LevelTrace, "statement", "query", "SELECT 1")

	output := buffer.String()
	if !strings.Contains(output, "level=TRACE") {
		t.Errorf("trace record not labelled TRACE: %q", output)
	}
}

func TestTraceFilteredAtInfo(t *testing.T) {
	var buffer bytes.Buffer
	logger := NewWriter(&buffer, slog.LevelInfo, false)
	logger.Log(t.Context(), LevelTrace, "statement")
	logger.Info("visible")

	output := buffer.String()
	if strings.Contains(output, "statement") {
		t.Errorf("trace record leaked at info level: %q", output)
	}
	if !strings.Contains(output, `"msg":"visible"`) {
		t.Errorf("info record missing from JSON output: %q", output)
	}
}

func TestOrDiscard(t *testing.T) {
	if OrDiscard(nil) == nil {
		t.Fatal("OrDiscard(nil) returned nil")
	}
	logger := Discard()
	if OrDiscard(logger) != logger {
		t.Error("OrDiscard replaced a non-nil logger")
	}
}
