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

	"github.com/cloudseed/cloudseed/pkg/state"
)

func cleanCmd() *cli.Command {
	return &cli.Command{
		Name:  "clean",
		Usage: "Reset instance state for a fresh boot",
		Description: `Removes recorded instance state, the current-instance pointer, and the
persisted boot status so the next boot behaves like a first boot on a
fresh image.

Frequency-ONCE semaphores are kept by default since they mark work done
once per image, not per instance; pass --remove-once to re-arm run-once
modules as well.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "remove-once",
				Usage: "also clear run-once module markers",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			mgr, err := state.NewManager(cmd.String("state-dir"))
			if err != nil {
				return cli.Exit(fmt.Sprintf("failed to open state tree: %v", err), 1)
			}

			opts := state.CleanOptions{
				RemoveGlobalSemaphores: cmd.Bool("remove-once"),
			}
			if err := mgr.Clean(opts); err != nil {
				return cli.Exit(fmt.Sprintf("clean failed: %v", err), 1)
			}

			fmt.Println("state cleaned")
			return nil
		},
	}
}
