// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the perfdb command tree.
package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/bureau-foundation/perfdb/cmd/perfdb/cli"
	"github.com/bureau-foundation/perfdb/lib/device"
	"github.com/bureau-foundation/perfdb/lib/process"
	"github.com/bureau-foundation/perfdb/lib/version"
)

// Options is the process environment the commands run in.
type Options struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Prober detects GPUs when --arch or --num-cu is not given.
	Prober *device.Prober
}

func (o Options) withDefaults() Options {
	if o.Stdin == nil {
		o.Stdin = os.Stdin
	}
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	if o.Prober == nil {
		o.Prober = device.NewProber()
	}
	return o
}

// errNotFound exits with status 1 without an error line; the command
// has already said what it did not find.
var errNotFound = &process.ExitError{Code: 1}

// Root builds and returns the complete perfdb command tree.
func Root(options Options) *cli.Command {
	env := options.withDefaults()
	return &cli.Command{
		Name: "perfdb",
		Description: `perfdb: kernel tuning cache maintenance.

Look up, store, and remove tuned solver parameters in the per-device
SQLite caches, move records between caches, and check cache health.
Caches are named <arch>_<num_cu> with .db (installed) and .udb (user)
extensions; compiled kernels live in .kdb and .ukdb files.`,
		HelpOutput: env.Stderr,
		Subcommands: []*cli.Command{
			env.findCommand(),
			env.storeCommand(),
			env.removeCommand(),
			env.dumpCommand(),
			env.importCommand(),
			env.checkCommand(),
			env.schemaCommand(),
			env.deviceCommand(),
			env.kernelCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					_, err := fmt.Fprintf(env.Stdout, "perfdb %s\n", version.Full())
					return err
				},
			},
		},
	}
}
