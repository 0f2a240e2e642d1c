// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bureau-foundation/perfdb/cmd/perfdb/cli"
	"github.com/bureau-foundation/perfdb/lib/codec"
	"github.com/bureau-foundation/perfdb/lib/perfdb"
	"github.com/bureau-foundation/perfdb/lib/problem"
)

type dumpParams struct {
	cacheParams
	Format string `flag:"format,f" desc:"output encoding: cbor or json" default:"cbor"`
	Output string `flag:"output,o" desc:"output file" default:"-"`
}

func (env *Options) dumpCommand() *cli.Command {
	var params dumpParams
	return &cli.Command{
		Name:    "dump",
		Summary: "Export a cache's records",
		Description: `Write every record of the device's cache as a stream of entries, each
carrying the solver, its parameters, the device, and the problem's
fields. CBOR output is deterministic: dumps of equal caches are
byte-identical. JSON output has one entry per line.`,
		Usage:  "perfdb dump [flags]",
		Params: func() any { return &params },
		Examples: []cli.Example{
			{
				Description: "Export the installed cache as JSON lines",
				Command:     "perfdb dump --system -f json",
			},
			{
				Description: "Copy user records to another machine",
				Command:     "perfdb dump -o gfx90a.cbor && scp gfx90a.cbor host: && ssh host perfdb import gfx90a.cbor",
			},
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("dump takes no positional arguments, got %q", args[0])
			}
			format, err := codec.ParseFormat(params.Format)
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
				return errInvalidCache(db.Path())
			}

			output, closeOutput, err := env.openOutput(params.Output)
			if err != nil {
				return err
			}
			writer := codec.NewWriter(output, format)
			err = db.Entries(func(entry perfdb.Entry) error {
				return writer.Write(entry)
			})
			if closeErr := closeOutput(); err == nil {
				err = closeErr
			}
			if err != nil {
				return err
			}
			s.logger.Info("cache exported", "path", db.Path(), "entries", writer.Count(), "format", format.String())
			return nil
		},
	}
}

type importParams struct {
	cacheParams
	Format   string `flag:"format,f" desc:"input encoding: cbor or json" default:"cbor"`
	Retarget bool   `flag:"retarget" desc:"store entries recorded for another device under this device"`
}

// importSummary counts the outcome of an import.
type importSummary struct {
	Inserted int
	Updated  int
	Skipped  int
}

func (env *Options) importCommand() *cli.Command {
	var params importParams
	return &cli.Command{
		Name:    "import",
		Summary: "Import records into the user cache",
		Description: `Read entries written by "perfdb dump" and store each into the user
cache, replacing parameters already stored for the same problem and
solver. Entries recorded for a different architecture or compute-unit
count are skipped unless --retarget is given. Reads stdin when no file
is named.`,
		Usage:  "perfdb import [flags] [file]",
		Params: func() any { return &params },
		Run: func(args []string) error {
			if err := cli.RangeArgs("import", args, 0, 1, "[file]"); err != nil {
				return err
			}
			format, err := codec.ParseFormat(params.Format)
			if err != nil {
				return err
			}
			input := env.Stdin
			if len(args) == 1 && args[0] != "-" {
				file, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer file.Close()
				input = file
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

			summary, err := importEntries(db, codec.NewReader(input, format), params.Retarget)
			s.logger.Info("import finished", "path", db.Path(),
				"inserted", summary.Inserted, "updated", summary.Updated, "skipped", summary.Skipped)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(env.Stdout, "imported %d new and %d updated record(s), skipped %d\n",
				summary.Inserted, summary.Updated, summary.Skipped)
			return err
		},
	}
}

// importEntries stores every entry of reader into db. Entries for
// another device are counted as skipped unless retarget is set.
func importEntries(db *perfdb.DB, reader *codec.Reader, retarget bool) (importSummary, error) {
	var summary importSummary
	for {
		var entry perfdb.Entry
		err := reader.Read(&entry)
		if errors.Is(err, io.EOF) {
			return summary, nil
		}
		if err != nil {
			return summary, err
		}
		if !retarget && (entry.Arch != db.Arch() || entry.NumCU != db.NumCU()) {
			summary.Skipped++
			continue
		}
		conv, err := problem.ConvFromFields(entry.Problem)
		if err != nil {
			return summary, fmt.Errorf("entry %d: %w", reader.Count(), err)
		}
		inserted, err := db.Store(conv, entry.Solver, entry.Params)
		if err != nil {
			return summary, fmt.Errorf("entry %d: %w", reader.Count(), err)
		}
		if inserted {
			summary.Inserted++
		} else {
			summary.Updated++
		}
	}
}

// openOutput opens path for writing; "-" is stdout, which is not
// closed.
func (env *Options) openOutput(path string) (io.Writer, func() error, error) {
	if path == "-" || path == "" {
		return env.Stdout, func() error { return nil }, nil
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return file, file.Close, nil
}
