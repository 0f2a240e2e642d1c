// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/bureau-foundation/perfdb/cmd/perfdb/cli"
	"github.com/bureau-foundation/perfdb/lib/device"
)

// deviceInfo is one row of device output.
type deviceInfo struct {
	device.Device
	SystemCache string `json:"system_cache"`
	UserCache   string `json:"user_cache"`
}

type deviceParams struct {
	globalParams
	cli.JSONOutput
}

func (env *Options) deviceCommand() *cli.Command {
	var params deviceParams
	return &cli.Command{
		Name:    "device",
		Summary: "List detected GPUs and their cache files",
		Description: `List the GPUs in the KFD topology with the architecture name and
compute-unit count used to name their caches. The index in the first
column is the value --device takes.`,
		Usage:  "perfdb device [flags]",
		Params: func() any { return &params },
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("device takes no positional arguments, got %q", args[0])
			}
			s, err := env.globalSession(&params.globalParams)
			if err != nil {
				return err
			}
			devices, err := env.Prober.Enumerate()
			if err != nil {
				return err
			}
			infos := make([]deviceInfo, 0, len(devices))
			for _, detected := range devices {
				s.arch, s.numCU = detected.Arch, detected.NumCU
				infos = append(infos, deviceInfo{
					Device:      detected,
					SystemCache: s.cachePath(device.SystemPerf),
					UserCache:   s.cachePath(device.UserPerf),
				})
			}

			if done, err := params.EmitJSON(env.Stdout, infos); done {
				return err
			}
			writer := tabwriter.NewWriter(env.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintf(writer, "INDEX\tNODE\tARCH\tCU\tSYSTEM CACHE\tUSER CACHE\n")
			for i, info := range infos {
				fmt.Fprintf(writer, "%d\t%d\t%s\t%d\t%s\t%s\n",
					i, info.Node, info.Arch, info.NumCU, info.SystemCache, info.UserCache)
			}
			return writer.Flush()
		},
	}
}
