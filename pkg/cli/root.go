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
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/cloudseed/cloudseed/pkg/config"
	"github.com/cloudseed/cloudseed/pkg/defaults"
	"github.com/cloudseed/cloudseed/pkg/logging"
	"github.com/cloudseed/cloudseed/pkg/state"
)

const (
	name           = "cloudseed"
	versionDefault = "dev"
)

var (
	// overridden during build with ldflags
	version = versionDefault
	commit  = "unknown"
	date    = "unknown"
)

var (
	stateDirFlag = &cli.StringFlag{
		Name:    "state-dir",
		Usage:   "state tree root",
		Sources: cli.EnvVars("CLOUDSEED_STATE_DIR"),
		Value:   defaults.StateDir,
	}

	configFlag = &cli.StringFlag{
		Name:    "config",
		Usage:   "base configuration file",
		Sources: cli.EnvVars("CLOUDSEED_CONFIG"),
		Value:   defaults.ConfigFile,
	}

	configDirFlag = &cli.StringFlag{
		Name:    "config-dir",
		Usage:   "configuration overlay directory",
		Sources: cli.EnvVars("CLOUDSEED_CONFIG_DIR"),
		Value:   defaults.ConfigOverlayDir,
	}

	logLevelFlag = &cli.StringFlag{
		Name:    "log-level",
		Usage:   "log level (debug, info, warn, error)",
		Sources: cli.EnvVars("CLOUDSEED_LOG_LEVEL"),
		Value:   "info",
	}
)

// Execute runs the CLI. Called by main.main; the returned process exit
// happens inside.
func Execute() {
	// Structured output from the first record on; Before re-installs the
	// logger once the --log-level flag is parsed.
	logging.SetDefaultStructuredLogger(name, version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle SIGINT/SIGTERM for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nReceived interrupt signal, shutting down gracefully...")
		cancel()
	}()

	if err := rootCmd().Run(ctx, os.Args); err != nil {
		if exitErr, ok := err.(cli.ExitCoder); ok {
			if msg := exitErr.Error(); msg != "" {
				fmt.Fprintln(os.Stderr, msg)
			}
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cli.Command {
	return &cli.Command{
		Name:    name,
		Usage:   "boot-time instance configuration",
		Version: fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		// Exit-coder errors surface to the caller; Execute maps them onto
		// the process exit code.
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
		Flags: []cli.Flag{
			stateDirFlag,
			configFlag,
			configDirFlag,
			logLevelFlag,
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			logging.SetDefaultStructuredLoggerWithLevel(name, version, cmd.String("log-level"))
			slog.Debug("starting",
				"name", name,
				"version", version,
				"commit", commit)
			return ctx, nil
		},
		Commands: []*cli.Command{
			initCmd(),
			modulesCmd(),
			statusCmd(),
			cleanCmd(),
		},
	}
}

// loadEnvironment resolves the pieces every stage command needs.
func loadEnvironment(cmd *cli.Command) (*config.Config, *state.Manager, error) {
	cfg, err := config.Load(cmd.String("config"), cmd.String("config-dir"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	mgr, err := state.NewManager(cmd.String("state-dir"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open state tree: %w", err)
	}

	return cfg, mgr, nil
}
