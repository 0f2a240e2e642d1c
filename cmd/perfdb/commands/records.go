// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/bureau-foundation/perfdb/cmd/perfdb/cli"
	"github.com/bureau-foundation/perfdb/lib/perfdb"
)

type findParams struct {
	cacheParams
	cli.JSONOutput
}

// findResult is the --json output of find.
type findResult struct {
	Problem string            `json:"problem"`
	Arch    string            `json:"arch"`
	NumCU   int               `json:"num_cu"`
	Record  map[string]string `json:"record"`
}

func (env *Options) findCommand() *cli.Command {
	var params findParams
	return &cli.Command{
		Name:    "find",
		Summary: "Look up tuned parameters for a problem",
		Description: `Print the tuned parameters stored for a convolution problem.

The problem is a JSON file (comments and trailing commas allowed) with
the fields of the config table; omitted fields take 2D forward FP32
NCHW defaults. "-" reads the problem from stdin. With a solver name,
only that solver's parameters are printed.

Exits with status 1 when nothing is stored.`,
		Usage:  "perfdb find [flags] <problem.jsonc> [solver]",
		Params: func() any { return &params },
		Examples: []cli.Example{
			{
				Description: "Show every solver tuned for a problem",
				Command:     "perfdb find conv.jsonc",
			},
			{
				Description: "Print one solver's parameters from the installed cache",
				Command:     "perfdb find --system conv.jsonc ConvAsm1x1U",
			},
		},
		Run: func(args []string) error {
			if err := cli.RangeArgs("find", args, 1, 2, "<problem.jsonc> [solver]"); err != nil {
				return err
			}
			conv, err := readProblem(args[0], env.Stdin)
			if err != nil {
				return err
			}
			s, err := env.targetSession(&params.targetParams)
			if err != nil {
				return err
			}
			db, err := s.openPerf(&params.cacheParams)
			if err != nil {
				return err
			}
			defer db.Close()
			if db.Invalid() {
				s.logger.Warn("cache unavailable", "path", db.Path())
			}

			record, found, err := db.FindRecord(conv)
			if err != nil {
				return err
			}
			if found && len(args) == 2 {
				solverParams, ok := record[args[1]]
				record = perfdb.Record{}
				if ok {
					record[args[1]] = solverParams
				}
				found = ok
			}
			if !found {
				s.logger.Info("no record", "problem", conv.String(), "path", db.Path())
				return errNotFound
			}

			if done, err := params.EmitJSON(env.Stdout, findResult{
				Problem: conv.String(),
				Arch:    db.Arch(),
				NumCU:   db.NumCU(),
				Record:  record,
			}); done {
				return err
			}
			if len(args) == 2 {
				_, err := fmt.Fprintln(env.Stdout, record[args[1]])
				return err
			}
			writer := tabwriter.NewWriter(env.Stdout, 2, 0, 3, ' ', 0)
			for _, solver := range record.Solvers() {
				fmt.Fprintf(writer, "%s\t%s\n", solver, record[solver])
			}
			return writer.Flush()
		},
	}
}

type storeParams struct {
	cacheParams
}

func (env *Options) storeCommand() *cli.Command {
	var params storeParams
	return &cli.Command{
		Name:    "store",
		Summary: "Store tuned parameters for a problem and solver",
		Description: `Insert or replace one solver's parameters for a problem in the
user cache. Installed caches are read-only.`,
		Usage:  "perfdb store [flags] <problem.jsonc> <solver> <params>",
		Params: func() any { return &params },
		Examples: []cli.Example{{
			Description: "Record a tuning result",
			Command:     "perfdb store conv.jsonc ConvAsm1x1U 1,16,1,64,2,1,1,4",
		}},
		Run: func(args []string) error {
			if err := cli.ExactArgs("store", args, 3, "<problem.jsonc> <solver> <params>"); err != nil {
				return err
			}
			conv, err := readProblem(args[0], env.Stdin)
			if err != nil {
				return err
			}
			s, err := env.targetSession(&params.targetParams)
			if err != nil {
				return err
			}
			db, err := s.openPerf(&params.cacheParams)
			if err != nil {
				return err
			}
			defer db.Close()

			inserted, err := db.Store(conv, args[1], args[2])
			if err != nil {
				return err
			}
			action := "updated"
			if inserted {
				action = "inserted"
			}
			_, err = fmt.Fprintf(env.Stdout, "%s %s for %s in %s\n", action, args[1], conv, db.Path())
			return err
		},
	}
}

type removeParams struct {
	cacheParams
}

func (env *Options) removeCommand() *cli.Command {
	var params removeParams
	return &cli.Command{
		Name:    "remove",
		Summary: "Remove stored parameters for a problem",
		Description: `Delete one solver's parameters for a problem, or every solver's when
no solver is named. Exits with status 1 when nothing matched.`,
		Usage:  "perfdb remove [flags] <problem.jsonc> [solver]",
		Params: func() any { return &params },
		Run: func(args []string) error {
			if err := cli.RangeArgs("remove", args, 1, 2, "<problem.jsonc> [solver]"); err != nil {
				return err
			}
			conv, err := readProblem(args[0], env.Stdin)
			if err != nil {
				return err
			}
			s, err := env.targetSession(&params.targetParams)
			if err != nil {
				return err
			}
			db, err := s.openPerf(&params.cacheParams)
			if err != nil {
				return err
			}
			defer db.Close()

			var removed int
			if len(args) == 2 {
				var ok bool
				ok, err = db.Remove(conv, args[1])
				if ok {
					removed = 1
				}
			} else {
				removed, err = db.RemoveRecord(conv)
			}
			if err != nil {
				return err
			}
			if removed == 0 {
				s.logger.Info("nothing to remove", "problem", conv.String(), "path", db.Path())
				return errNotFound
			}
			_, err = fmt.Fprintf(env.Stdout, "removed %d record(s) for %s\n", removed, conv)
			return err
		},
	}
}
