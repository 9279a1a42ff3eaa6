// Copyright (c) 2025, the cloudseed authors.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/cloudseed/cloudseed/pkg/serializer"
	"github.com/cloudseed/cloudseed/pkg/state"
	"github.com/cloudseed/cloudseed/pkg/status"
)

func statusCmd() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Query the persisted boot report",
		Description: `Reads the structured status of the current boot. The report survives
process exit, so this works during and after boot.

Exit code mirrors the boot outcome: 0 success, 1 unrecoverable
failure, 2 completed with recoverable errors.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "long",
				Usage: "show per-stage detail",
			},
			&cli.BoolFlag{
				Name:  "wait",
				Usage: "block until the boot reaches a terminal state",
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "machine-readable output: json, yaml, or table",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "output file path (default: stdout)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			mgr, err := state.NewManager(cmd.String("state-dir"))
			if err != nil {
				return cli.Exit(fmt.Sprintf("failed to open state tree: %v", err), 1)
			}

			var rep *status.Report
			if cmd.Bool("wait") {
				rep, err = status.Wait(ctx, mgr.StatusPath())
			} else {
				rep, err = status.Load(mgr.StatusPath())
			}
			if err != nil {
				return cli.Exit(fmt.Sprintf("no boot status available: %v", err), 1)
			}

			if f := cmd.String("format"); f != "" {
				format := serializer.Format(f)
				if format.IsUnknown() {
					return cli.Exit(fmt.Sprintf("unknown output format %q, supported: %v",
						f, serializer.SupportedFormats()), 1)
				}
				w := serializer.NewFileWriterOrStdout(format, cmd.String("output"))
				if c, ok := w.(serializer.Closer); ok {
					defer c.Close()
				}
				if err := w.Serialize(ctx, rep); err != nil {
					return cli.Exit(fmt.Sprintf("failed to render status: %v", err), 1)
				}
			} else if cmd.Bool("long") {
				fmt.Print(rep.RenderLong())
			} else {
				fmt.Println(rep.RenderShort())
			}

			if code := rep.ExitCode(); code != 0 {
				return cli.Exit("", code)
			}
			return nil
		},
	}
}
