// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// perfdb inspects and maintains kernel tuning caches.
package main

import (
	"os"

	"github.com/bureau-foundation/perfdb/cmd/perfdb/commands"
	"github.com/bureau-foundation/perfdb/lib/process"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	return commands.Root(commands.Options{}).Execute(os.Args[1:])
}
