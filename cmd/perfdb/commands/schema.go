// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"

	"github.com/bureau-foundation/perfdb/cmd/perfdb/cli"
	"github.com/bureau-foundation/perfdb/lib/kerndb"
	"github.com/bureau-foundation/perfdb/lib/perfdb"
	"github.com/bureau-foundation/perfdb/lib/problem"
	"github.com/bureau-foundation/perfdb/lib/sqlitedb"
)

type schemaParams struct {
	Kind  string `flag:"kind" desc:"tables to print: perf, kernel, or all" default:"all"`
	Color string `flag:"color" desc:"highlight SQL: auto, always, or never" default:"auto"`
}

func (env *Options) schemaCommand() *cli.Command {
	var params schemaParams
	return &cli.Command{
		Name:    "schema",
		Summary: "Print the cache table definitions",
		Description: `Print the CREATE statements perfdb runs on new caches. Opening a cache
whose tables do not have exactly these columns marks it invalid.`,
		Usage:  "perfdb schema [flags]",
		Params: func() any { return &params },
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("schema takes no positional arguments, got %q", args[0])
			}
			var tables []sqlitedb.Table
			switch params.Kind {
			case "perf":
				tables = perfdb.Tables(problem.NewConv())
			case "kernel":
				tables = kerndb.Tables
			case "all":
				tables = append(perfdb.Tables(problem.NewConv()), kerndb.Tables...)
			default:
				return fmt.Errorf("--kind must be perf, kernel, or all, got %q", params.Kind)
			}

			var color bool
			switch params.Color {
			case "auto":
				color = isTerminal(env.Stdout)
			case "always":
				color = true
			case "never":
			default:
				return fmt.Errorf("--color must be auto, always, or never, got %q", params.Color)
			}
			return writeSchema(env.Stdout, tables, color)
		},
	}
}

// formatDDL puts each statement of a Create batch on its own line.
func formatDDL(create string) string {
	var statements []string
	for _, statement := range strings.Split(create, ";") {
		if statement = strings.TrimSpace(statement); statement != "" {
			statements = append(statements, statement+";")
		}
	}
	return strings.Join(statements, "\n")
}

func writeSchema(w io.Writer, tables []sqlitedb.Table, color bool) error {
	var text strings.Builder
	for i, table := range tables {
		if i > 0 {
			text.WriteString("\n")
		}
		fmt.Fprintf(&text, "-- %s\n%s\n", table.Name, formatDDL(table.Create))
	}
	if color {
		return quick.Highlight(w, text.String(), "sql", "terminal256", "monokai")
	}
	_, err := io.WriteString(w, text.String())
	return err
}
