// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestBindFlags_BasicTypes(t *testing.T) {
	type params struct {
		Arch     string        `flag:"arch" desc:"architecture"`
		System   bool          `flag:"system,s" desc:"system cache"`
		NumCU    int           `flag:"num-cu" desc:"compute units"`
		Timeout  time.Duration `flag:"timeout" desc:"lock timeout"`
		Solvers  []string      `flag:"solvers" desc:"solver list"`
		Untagged string        // no flag tag, skipped
	}

	var p params
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := BindFlags(&p, flagSet); err != nil {
		t.Fatalf("BindFlags: %v", err)
	}

	err := flagSet.Parse([]string{
		"--arch", "gfx90a",
		"-s",
		"--num-cu", "104",
		"--timeout", "5s",
		"--solvers", "ConvAsm1x1U,ConvOclDirectFwd",
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if p.Arch != "gfx90a" {
		t.Errorf("Arch = %q, want gfx90a", p.Arch)
	}
	if !p.System {
		t.Error("System = false, want true")
	}
	if p.NumCU != 104 {
		t.Errorf("NumCU = %d, want 104", p.NumCU)
	}
	if p.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", p.Timeout)
	}
	if len(p.Solvers) != 2 || p.Solvers[1] != "ConvOclDirectFwd" {
		t.Errorf("Solvers = %v", p.Solvers)
	}
	if flagSet.Lookup("untagged") != nil || flagSet.Lookup("Untagged") != nil {
		t.Error("untagged field was bound")
	}
}

func TestBindFlags_Defaults(t *testing.T) {
	type params struct {
		Format  string        `flag:"format" default:"cbor"`
		Device  int           `flag:"device" default:"1"`
		Color   bool          `flag:"color" default:"true"`
		Timeout time.Duration `flag:"timeout" default:"60s"`
		Kinds   []string      `flag:"kinds" default:"perf,kernel"`
	}

	var p params
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := BindFlags(&p, flagSet); err != nil {
		t.Fatalf("BindFlags: %v", err)
	}
	if err := flagSet.Parse(nil); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.Format != "cbor" || p.Device != 1 || !p.Color || p.Timeout != time.Minute {
		t.Errorf("defaults not applied: %+v", p)
	}
	if strings.Join(p.Kinds, ",") != "perf,kernel" {
		t.Errorf("Kinds = %v", p.Kinds)
	}
}

func TestBindFlags_Errors(t *testing.T) {
	type badDefault struct {
		Count int `flag:"count" default:"many"`
	}
	type badType struct {
		Rate float32 `flag:"rate"`
	}

	tests := []struct {
		name   string
		params any
		want   string
	}{
		{"not a pointer", badDefault{}, "pointer to a struct"},
		{"bad default", &badDefault{}, "default for --count"},
		{"unsupported type", &badType{}, "unsupported type float32"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := BindFlags(test.params, pflag.NewFlagSet("test", pflag.ContinueOnError))
			if err == nil || !strings.Contains(err.Error(), test.want) {
				t.Errorf("BindFlags error = %v, want %q", err, test.want)
			}
		})
	}
}

func TestFlagsFromParams_PanicsOnInvalid(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("FlagsFromParams did not panic")
		}
	}()
	FlagsFromParams("bad", 42)
}
