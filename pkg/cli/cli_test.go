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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/cloudseed/cloudseed/pkg/state"
	"github.com/cloudseed/cloudseed/pkg/status"
)

func run(t *testing.T, args ...string) error {
	t.Helper()
	return rootCmd().Run(t.Context(), append([]string{"cloudseed"}, args...))
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if ec, ok := err.(cli.ExitCoder); ok {
		return ec.ExitCode()
	}
	return 1
}

func TestStatusWithoutBoot(t *testing.T) {
	err := run(t, "--state-dir", t.TempDir(), "status")
	require.Error(t, err)

	// Exit-coder errors must come back to the caller instead of
	// terminating the process inside Run.
	_, ok := err.(cli.ExitCoder)
	assert.True(t, ok)
	assert.Equal(t, 1, exitCode(err))
}

func TestStatusAfterCleanBoot(t *testing.T) {
	stateDir := t.TempDir()
	mgr, err := state.NewManager(stateDir)
	require.NoError(t, err)

	rep, err := status.NewReporter(mgr.StatusPath(), mgr.PreviousStatusPath())
	require.NoError(t, err)
	require.NoError(t, rep.SetDatasource("nocloud"))
	require.NoError(t, rep.Complete(false))

	err = run(t, "--state-dir", stateDir, "status", "--long")
	assert.Equal(t, 0, exitCode(err))
}

func TestStatusExitCodeReflectsRecoverableErrors(t *testing.T) {
	stateDir := t.TempDir()
	mgr, err := state.NewManager(stateDir)
	require.NoError(t, err)

	rep, err := status.NewReporter(mgr.StatusPath(), mgr.PreviousStatusPath())
	require.NoError(t, err)
	require.NoError(t, rep.StartStage(status.StageModulesConfig))
	require.NoError(t, rep.RecordError(status.StageModulesConfig, "module failed"))
	require.NoError(t, rep.Complete(false))

	err = run(t, "--state-dir", stateDir, "status")
	assert.Equal(t, 2, exitCode(err))
}

func TestStatusJSONToFile(t *testing.T) {
	stateDir := t.TempDir()
	mgr, err := state.NewManager(stateDir)
	require.NoError(t, err)

	rep, err := status.NewReporter(mgr.StatusPath(), mgr.PreviousStatusPath())
	require.NoError(t, err)
	require.NoError(t, rep.SetDatasource("ec2"))
	require.NoError(t, rep.Complete(false))

	out := filepath.Join(t.TempDir(), "status-out.json")
	err = run(t, "--state-dir", stateDir, "status", "--format", "json", "--output", out)
	assert.Equal(t, 0, exitCode(err))

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"datasource"`)
	assert.Contains(t, string(b), "ec2")
}

func TestCleanResetsState(t *testing.T) {
	stateDir := t.TempDir()
	mgr, err := state.NewManager(stateDir)
	require.NoError(t, err)

	_, err = mgr.SetInstance("i-old", "nocloud")
	require.NoError(t, err)

	require.NoError(t, run(t, "--state-dir", stateDir, "clean"))

	id, err := mgr.CurrentInstanceID()
	require.NoError(t, err)
	assert.Empty(t, id, "clean removes the instance pointer")
}

func TestModulesRejectsUnknownMode(t *testing.T) {
	err := run(t, "--state-dir", t.TempDir(), "modules", "--mode", "bogus")
	assert.Equal(t, 1, exitCode(err))
}

func TestInitLocalWithFallbackOnly(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath,
		[]byte("datasource_list: [none]\n"), 0o644))

	stateDir := t.TempDir()
	err := run(t,
		"--state-dir", stateDir,
		"--config", cfgPath,
		"--config-dir", filepath.Join(dir, "config.d"),
		"init", "--local")
	assert.Equal(t, 0, exitCode(err))

	rep, err := status.Load(filepath.Join(stateDir, "data", "status.json"))
	require.NoError(t, err)
	require.NotNil(t, rep.InitLocal)
	assert.Greater(t, rep.InitLocal.Finished, 0.0)
}
