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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadBaseOnly(t *testing.T) {
	dir := t.TempDir()
	base := writeConfig(t, dir, "config.yaml", `
datasource_list: [nocloud, none]
assume_sole_datasource: true
datasource:
  nocloud:
    seed_dir: /media/seed
cloud_config_modules:
  - write-files
  - [final-message, always]
system_info:
  default_user:
    name: admin
`)

	cfg, err := Load(base, filepath.Join(dir, "config.d"))
	require.NoError(t, err)

	assert.Equal(t, []string{"nocloud", "none"}, cfg.DatasourceList)
	assert.True(t, cfg.AssumeSoleDatasource)
	assert.Equal(t, "/media/seed", cfg.Datasource["nocloud"].SeedDir)

	require.Len(t, cfg.CloudConfigModules, 2)
	assert.Equal(t, ModuleEntry{Name: "write-files"}, cfg.CloudConfigModules[0])
	assert.Equal(t, ModuleEntry{Name: "final-message", Frequency: "always"}, cfg.CloudConfigModules[1])

	user, ok := cfg.SystemInfo["default_user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "admin", user["name"])
}

func TestLoadOverlaysFoldInSortedOrder(t *testing.T) {
	dir := t.TempDir()
	base := writeConfig(t, dir, "config.yaml", `
datasource_list: [nocloud]
datasource:
  ec2:
    retries: 3
`)

	overlayDir := filepath.Join(dir, "config.d")
	require.NoError(t, os.MkdirAll(overlayDir, 0o755))
	writeConfig(t, overlayDir, "10-site.yaml", `
datasource_list: [ec2, none]
`)
	writeConfig(t, overlayDir, "90-host.yaml", `
datasource:
  ec2:
    max_wait: 30
`)
	// Non-config files in the overlay directory are ignored.
	writeConfig(t, overlayDir, "README", "not yaml")

	cfg, err := Load(base, overlayDir)
	require.NoError(t, err)

	assert.Equal(t, []string{"ec2", "none"}, cfg.DatasourceList, "later overlay wins")
	require.NotNil(t, cfg.Datasource["ec2"].Retries)
	assert.Equal(t, 3, *cfg.Datasource["ec2"].Retries, "untouched keys survive the fold")
	assert.Equal(t, 30*time.Second, cfg.Datasource["ec2"].MaxWait)
}

func TestRetriesZeroIsNotUnset(t *testing.T) {
	cfg, err := FromMap(map[string]any{
		"datasource": map[string]any{
			"ec2":     map[string]any{"retries": 0},
			"nocloud": map[string]any{"timeout": 5},
		},
	})
	require.NoError(t, err)

	require.NotNil(t, cfg.Datasource["ec2"].Retries)
	assert.Equal(t, 0, *cfg.Datasource["ec2"].Retries, "explicit zero means no retries")
	assert.Nil(t, cfg.Datasource["nocloud"].Retries, "absent key stays unset")
}

func TestLoadMissingBaseUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(filepath.Join(dir, "absent.yaml"), filepath.Join(dir, "config.d"))
	require.NoError(t, err)
	assert.Equal(t, []string{"nocloud", "ec2", "none"}, cfg.DatasourceList)
	assert.False(t, cfg.AssumeSoleDatasource)
}

func TestLoadMalformedBase(t *testing.T) {
	dir := t.TempDir()
	base := writeConfig(t, dir, "config.yaml", "datasource_list: [unclosed\n")

	_, err := Load(base, filepath.Join(dir, "config.d"))
	assert.Error(t, err)
}

func TestDurationForms(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want time.Duration
	}{
		{name: "bare seconds", yaml: "max_wait: 45", want: 45 * time.Second},
		{name: "duration string", yaml: "max_wait: 2m", want: 2 * time.Minute},
		{name: "negative sentinel", yaml: "max_wait: -1", want: -time.Second},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			base := writeConfig(t, dir, "config.yaml",
				"datasource:\n  ec2:\n    "+tc.yaml+"\n")

			cfg, err := Load(base, filepath.Join(dir, "config.d"))
			require.NoError(t, err)
			assert.Equal(t, tc.want, cfg.Datasource["ec2"].MaxWait)
		})
	}
}

func TestStripProtected(t *testing.T) {
	doc := map[string]any{
		"hostname":        "evil",
		"datasource_list": []any{"none"},
		"system_info":     map[string]any{"default_user": "root"},
	}

	removed := StripProtected(doc)
	assert.ElementsMatch(t, []string{"datasource_list", "system_info"}, removed)
	assert.Contains(t, doc, "hostname")
	assert.NotContains(t, doc, "datasource_list")
}
