// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/bureau-foundation/perfdb/cmd/perfdb/cli"
	"github.com/bureau-foundation/perfdb/lib/kerndb"
)

func (env *Options) kernelCommand() *cli.Command {
	return &cli.Command{
		Name:    "kernel",
		Summary: "Manage the compiled-kernel cache",
		Description: `Store, retrieve, list, and remove compiled kernel binaries. Kernels
are keyed by name and build arguments; binaries are compressed as
configured by kernel_cache.compression and verified on retrieval.`,
		Subcommands: []*cli.Command{
			env.kernelListCommand(),
			env.kernelFindCommand(),
			env.kernelStoreCommand(),
			env.kernelRemoveCommand(),
		},
	}
}

type kernelListParams struct {
	cacheParams
	cli.JSONOutput
}

func (env *Options) kernelListCommand() *cli.Command {
	var params kernelListParams
	return &cli.Command{
		Name:    "list",
		Summary: "List cached kernels",
		Usage:   "perfdb kernel list [flags]",
		Params:  func() any { return &params },
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("list takes no positional arguments, got %q", args[0])
			}
			db, _, err := env.openKernelCache(&params.cacheParams)
			if err != nil {
				return err
			}
			defer db.Close()

			kernels, err := db.List()
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(env.Stdout, kernels); done {
				return err
			}
			writer := tabwriter.NewWriter(env.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintf(writer, "NAME\tARGS\tSIZE\tSTORED\tCOMPRESSION\tHASH\n")
			for _, kernel := range kernels {
				fmt.Fprintf(writer, "%s\t%s\t%d\t%d\t%s\t%.16s\n",
					kernel.Name, kernel.Args, kernel.Size, kernel.StoredSize, kernel.Compression, kernel.Hash)
			}
			return writer.Flush()
		},
	}
}

type kernelFindParams struct {
	cacheParams
	Output string `flag:"output,o" desc:"write the binary to this file" default:"-"`
}

func (env *Options) kernelFindCommand() *cli.Command {
	var params kernelFindParams
	return &cli.Command{
		Name:    "find",
		Summary: "Write a cached kernel binary",
		Description: `Write the binary cached for a kernel name and build arguments. The
stored hash is verified first. Exits with status 1 when no binary is
cached.`,
		Usage:  "perfdb kernel find [flags] <name> <args>",
		Params: func() any { return &params },
		Run: func(args []string) error {
			if err := cli.ExactArgs("kernel find", args, 2, "<name> <args>"); err != nil {
				return err
			}
			db, s, err := env.openKernelCache(&params.cacheParams)
			if err != nil {
				return err
			}
			defer db.Close()

			binary, found, err := db.Find(args[0], args[1])
			if err != nil {
				return err
			}
			if !found {
				s.logger.Info("kernel not cached", "name", args[0], "args", args[1])
				return errNotFound
			}
			output, closeOutput, err := env.openOutput(params.Output)
			if err != nil {
				return err
			}
			_, err = output.Write(binary)
			if closeErr := closeOutput(); err == nil {
				err = closeErr
			}
			return err
		},
	}
}

type kernelStoreParams struct {
	cacheParams
}

func (env *Options) kernelStoreCommand() *cli.Command {
	var params kernelStoreParams
	return &cli.Command{
		Name:    "store",
		Summary: "Cache a kernel binary",
		Usage:   "perfdb kernel store [flags] <name> <args> <binary-file>",
		Params:  func() any { return &params },
		Examples: []cli.Example{{
			Description: "Cache a compiled code object",
			Command:     "perfdb kernel store naive_conv.cpp '-DMIOPEN_USE_FP16=1' naive_conv.co",
		}},
		Run: func(args []string) error {
			if err := cli.ExactArgs("kernel store", args, 3, "<name> <args> <binary-file>"); err != nil {
				return err
			}
			var binary []byte
			var err error
			if args[2] == "-" {
				binary, err = io.ReadAll(env.Stdin)
			} else {
				binary, err = os.ReadFile(args[2])
			}
			if err != nil {
				return err
			}
			db, _, err := env.openKernelCache(&params.cacheParams)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Store(args[0], args[1], binary); err != nil {
				return err
			}
			_, err = fmt.Fprintf(env.Stdout, "stored %s (%d bytes, %s)\n", args[0], len(binary), kerndb.HashBinary(binary))
			return err
		},
	}
}

type kernelRemoveParams struct {
	cacheParams
}

func (env *Options) kernelRemoveCommand() *cli.Command {
	var params kernelRemoveParams
	return &cli.Command{
		Name:    "remove",
		Summary: "Remove a cached kernel",
		Usage:   "perfdb kernel remove [flags] <name> <args>",
		Params:  func() any { return &params },
		Run: func(args []string) error {
			if err := cli.ExactArgs("kernel remove", args, 2, "<name> <args>"); err != nil {
				return err
			}
			db, s, err := env.openKernelCache(&params.cacheParams)
			if err != nil {
				return err
			}
			defer db.Close()

			removed, err := db.Remove(args[0], args[1])
			if err != nil {
				return err
			}
			if !removed {
				s.logger.Info("kernel not cached", "name", args[0], "args", args[1])
				return errNotFound
			}
			_, err = fmt.Fprintf(env.Stdout, "removed %s\n", args[0])
			return err
		},
	}
}

// openKernelCache resolves the device and opens its kernel cache.
func (env *Options) openKernelCache(params *cacheParams) (*kerndb.DB, *session, error) {
	s, err := env.targetSession(&params.targetParams)
	if err != nil {
		return nil, nil, err
	}
	db, err := s.openKernel(params)
	if err != nil {
		return nil, nil, err
	}
	if db.Invalid() {
		s.logger.Warn("kernel cache unavailable", "path", db.Path())
	}
	return db, s, nil
}
