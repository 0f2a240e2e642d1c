// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/perfdb/cmd/perfdb/cli"
	"github.com/bureau-foundation/perfdb/lib/device"
)

// Cache states reported by check.
const (
	stateOK      = "ok"
	stateAbsent  = "absent"
	stateInvalid = "invalid"
)

// cacheStatus is one row of check output.
type cacheStatus struct {
	Kind    string `json:"kind"`
	Path    string `json:"path"`
	State   string `json:"state"`
	Entries int    `json:"entries"`
}

type checkParams struct {
	targetParams
	cli.JSONOutput
}

func (env *Options) checkCommand() *cli.Command {
	var params checkParams
	return &cli.Command{
		Name:    "check",
		Summary: "Report the health of a device's caches",
		Description: `Open the installed and user tuning and kernel caches of the device and
report whether each exists, whether its schema matches, and how many
entries it holds. Missing user caches are reported, not created.

Exits with status 1 when a cache exists but cannot be used.`,
		Usage:  "perfdb check [flags]",
		Params: func() any { return &params },
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("check takes no positional arguments, got %q", args[0])
			}
			s, err := env.targetSession(&params.targetParams)
			if err != nil {
				return err
			}

			var statuses []cacheStatus
			for _, kind := range []device.Kind{device.SystemPerf, device.UserPerf, device.SystemKernel, device.UserKernel} {
				status, err := s.checkCache(kind)
				if err != nil {
					return err
				}
				statuses = append(statuses, status)
			}

			healthy := true
			for _, status := range statuses {
				if status.State == stateInvalid {
					healthy = false
				}
			}

			if done, err := params.EmitJSON(env.Stdout, statuses); done {
				if err == nil && !healthy {
					err = errNotFound
				}
				return err
			}
			renderStatuses(env.Stdout, s.arch, s.numCU, statuses)
			if !healthy {
				return errNotFound
			}
			return nil
		},
	}
}

// checkCache opens one cache read-only-if-installed and counts its
// entries. User caches that do not exist are not created.
func (s *session) checkCache(kind device.Kind) (cacheStatus, error) {
	path := s.cachePath(kind)
	status := cacheStatus{Kind: kindLabel(kind), Path: path}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			status.State = stateAbsent
			return status, nil
		}
		return status, err
	}

	switch kind {
	case device.SystemPerf, device.UserPerf:
		db, err := s.openPerfPath(path, kind.Shared())
		if err != nil {
			return status, err
		}
		defer db.Close()
		if db.Invalid() {
			status.State = stateInvalid
			return status, nil
		}
		status.Entries, err = db.Count()
		if err != nil {
			return status, err
		}
	default:
		db, err := s.openKernelPath(path, kind.Shared())
		if err != nil {
			return status, err
		}
		defer db.Close()
		if db.Invalid() {
			status.State = stateInvalid
			return status, nil
		}
		kernels, err := db.List()
		if err != nil {
			return status, err
		}
		status.Entries = len(kernels)
	}
	status.State = stateOK
	return status, nil
}

func kindLabel(kind device.Kind) string {
	switch kind {
	case device.SystemPerf:
		return "system perf"
	case device.UserPerf:
		return "user perf"
	case device.SystemKernel:
		return "system kernel"
	default:
		return "user kernel"
	}
}

// renderStatuses writes the status table, colored when w is a
// terminal.
func renderStatuses(w io.Writer, arch string, numCU int, statuses []cacheStatus) {
	renderer := lipgloss.NewRenderer(w)
	title := renderer.NewStyle().Bold(true)
	label := renderer.NewStyle().Width(15)
	states := map[string]lipgloss.Style{
		stateOK:      renderer.NewStyle().Width(9).Foreground(lipgloss.Color("2")),
		stateAbsent:  renderer.NewStyle().Width(9).Faint(true),
		stateInvalid: renderer.NewStyle().Width(9).Bold(true).Foreground(lipgloss.Color("1")),
	}
	count := renderer.NewStyle().Width(9).Align(lipgloss.Right)

	fmt.Fprintln(w, title.Render(fmt.Sprintf("%s with %d compute units", arch, numCU)))
	for _, status := range statuses {
		entries := "-"
		if status.State == stateOK {
			entries = fmt.Sprint(status.Entries)
		}
		fmt.Fprintf(w, "  %s%s%s  %s\n",
			label.Render(status.Kind),
			states[status.State].Render(status.State),
			count.Render(entries),
			status.Path)
	}
}
