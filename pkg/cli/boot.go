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

	"github.com/cloudseed/cloudseed/pkg/stages"
	"github.com/cloudseed/cloudseed/pkg/status"
)

func initCmd() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Run the boot init stages",
		Description: `Runs the blocking init stages of the boot pipeline.

With --local (invoked before networking is configured):
  - honors the cloudseed=disabled kernel command line switch
  - probes datasources that work without a network
  - pins the boot's instance identity and caches the crawled payload

Without --local (invoked once networking is up):
  - settles the datasource, probing network sources if needed
  - merges system config, vendor-data, and user-data
  - runs the cloud_init_modules list
  - signals readiness to the service manager`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "local",
				Usage: "run the pre-network stage",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, mgr, err := loadEnvironment(cmd)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			local := cmd.Bool("local")

			var rep *status.Reporter
			if local {
				// A new boot begins here; park the previous report.
				rep, err = status.NewReporter(mgr.StatusPath(), mgr.PreviousStatusPath())
			} else {
				rep, err = status.ResumeReporter(mgr.StatusPath())
			}
			if err != nil {
				return cli.Exit(fmt.Sprintf("failed to open status: %v", err), 1)
			}

			runner := stages.NewRunner(cfg, mgr, rep)

			if local {
				err = runner.RunInitLocal(ctx)
			} else {
				err = runner.RunInit(ctx)
			}
			return finishStageCommand(rep, err)
		},
	}
}

func modulesCmd() *cli.Command {
	return &cli.Command{
		Name:  "modules",
		Usage: "Run a best-effort module stage",
		Description: `Runs one of the two non-blocking module stages against the merged
configuration produced by init:

  cloudseed modules --mode config   (cloud_config_modules)
  cloudseed modules --mode final    (cloud_final_modules)

The final stage also writes the boot-finished marker, flushes boot
metrics, and finalizes the structured status for this boot.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "mode",
				Usage:    "module stage to run: config or final",
				Required: true,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			var mode stages.ModuleMode
			switch cmd.String("mode") {
			case "config":
				mode = stages.ModeConfig
			case "final":
				mode = stages.ModeFinal
			default:
				return cli.Exit(fmt.Sprintf("unknown mode %q, want config or final", cmd.String("mode")), 1)
			}

			cfg, mgr, err := loadEnvironment(cmd)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			rep, err := status.ResumeReporter(mgr.StatusPath())
			if err != nil {
				return cli.Exit(fmt.Sprintf("failed to open status: %v", err), 1)
			}

			runner := stages.NewRunner(cfg, mgr, rep)
			err = runner.RunModules(ctx, mode)

			if mode == stages.ModeFinal && err == nil {
				if cerr := rep.Complete(false); cerr != nil {
					return cli.Exit(fmt.Sprintf("failed to finalize status: %v", cerr), 1)
				}
			}
			return finishStageCommand(rep, err)
		},
	}
}

// finishStageCommand maps a stage outcome onto the tri-state exit
// contract: 1 for critical failures, 2 when recoverable errors were
// recorded, 0 otherwise.
func finishStageCommand(rep *status.Reporter, err error) error {
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if code := rep.Snapshot().ExitCode(); code != 0 {
		return cli.Exit("", code)
	}
	return nil
}
