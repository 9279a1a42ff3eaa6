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

package modules

import (
	"bytes"
	"context"
	"encoding/base64"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudseed/cloudseed/pkg/config"
)

func testEnv(t *testing.T, cfg map[string]any) *Env {
	t.Helper()
	return &Env{
		Config:     cfg,
		InstanceID: "i-test",
		Datasource: "nocloud",
		DataDir:    t.TempDir(),
		Root:       t.TempDir(),
		Log:        slog.Default(),
	}
}

func TestParseFrequency(t *testing.T) {
	tests := []struct {
		in      string
		want    Frequency
		wantErr bool
	}{
		{in: "always", want: FrequencyAlways},
		{in: "once", want: FrequencyOnce},
		{in: "once-per-instance", want: FrequencyPerInstance},
		{in: "instance", want: FrequencyPerInstance},
		{in: "hourly", wantErr: true},
	}

	for _, tc := range tests {
		got, err := ParseFrequency(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

type stubModule struct {
	name string
	freq Frequency
}

func (m *stubModule) Name() string                        { return m.name }
func (m *stubModule) DefaultFrequency() Frequency         { return m.freq }
func (m *stubModule) Run(_ context.Context, _ *Env) error { return nil }

func TestRegisterInstallsModule(t *testing.T) {
	Register(&stubModule{name: "test-stub", freq: FrequencyAlways})

	m, err := Lookup("test-stub")
	require.NoError(t, err)
	assert.Equal(t, FrequencyAlways, m.DefaultFrequency())

	plans, errs := Resolve([]config.ModuleEntry{{Name: "test-stub"}})
	require.Empty(t, errs)
	require.Len(t, plans, 1)
	assert.Equal(t, "test-stub", plans[0].Module.Name())
}

func TestResolveAppliesOverrides(t *testing.T) {
	plans, errs := Resolve([]config.ModuleEntry{
		{Name: "write-files"},
		{Name: "final-message", Frequency: "once"},
		{Name: "no-such-module"},
	})

	require.Len(t, errs, 1, "unknown module is reported, not fatal")
	require.Len(t, plans, 2)

	assert.Equal(t, "write-files", plans[0].Module.Name())
	assert.Equal(t, FrequencyPerInstance, plans[0].Frequency)

	assert.Equal(t, "final-message", plans[1].Module.Name())
	assert.Equal(t, FrequencyOnce, plans[1].Frequency, "entry override beats module default")
}

func TestFinalMessage(t *testing.T) {
	env := testEnv(t, map[string]any{
		"final_message": "done on $datasource as $instance_id",
	})

	m, err := Lookup("final-message")
	require.NoError(t, err)
	require.NoError(t, m.Run(t.Context(), env))

	b, err := os.ReadFile(filepath.Join(env.DataDir, "final-message"))
	require.NoError(t, err)
	assert.Equal(t, "done on nocloud as i-test\n", string(b))
}

func TestWriteFilesPlain(t *testing.T) {
	env := testEnv(t, map[string]any{
		"write_files": []any{
			map[string]any{
				"path":        "/etc/motd",
				"content":     "welcome\n",
				"permissions": "0600",
			},
		},
	})

	m, err := Lookup("write-files")
	require.NoError(t, err)
	require.NoError(t, m.Run(t.Context(), env))

	target := filepath.Join(env.Root, "etc", "motd")
	b, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "welcome\n", string(b))

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestWriteFilesEncodings(t *testing.T) {
	plain := []byte("payload-bytes")

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, err := zw.Write(plain)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	tests := []struct {
		name     string
		encoding string
		content  string
	}{
		{name: "b64", encoding: "b64", content: base64.StdEncoding.EncodeToString(plain)},
		{name: "gzip+b64", encoding: "gz+b64", content: base64.StdEncoding.EncodeToString(gz.Bytes())},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := decodeContent([]byte(tc.content), tc.encoding)
			require.NoError(t, err)
			assert.Equal(t, plain, got)
		})
	}

	_, err = decodeContent([]byte("x"), "rot13")
	assert.Error(t, err)
}

func TestWriteFilesBadEntryDoesNotStopOthers(t *testing.T) {
	env := testEnv(t, map[string]any{
		"write_files": []any{
			map[string]any{"content": "no path here"},
			map[string]any{"path": "/etc/ok", "content": "fine"},
		},
	})

	m, err := Lookup("write-files")
	require.NoError(t, err)
	assert.Error(t, m.Run(t.Context(), env), "failure is reported")

	_, err = os.Stat(filepath.Join(env.Root, "etc", "ok"))
	assert.NoError(t, err, "valid entries still land")
}

func TestRunCmdRendersScript(t *testing.T) {
	env := testEnv(t, map[string]any{
		"runcmd": []any{
			"systemctl restart nginx",
			[]any{"touch", "/var/tmp/file with space"},
		},
	})

	m, err := Lookup("runcmd")
	require.NoError(t, err)
	require.NoError(t, m.Run(t.Context(), env))

	b, err := os.ReadFile(filepath.Join(env.DataDir, "scripts", "runcmd"))
	require.NoError(t, err)
	script := string(b)
	assert.Contains(t, script, "#!/bin/sh\n")
	assert.Contains(t, script, "systemctl restart nginx\n")
	assert.Contains(t, script, "touch '/var/tmp/file with space'\n")
}

func TestUpdateHostname(t *testing.T) {
	env := testEnv(t, map[string]any{"hostname": "web-7"})

	m, err := Lookup("update-hostname")
	require.NoError(t, err)
	require.NoError(t, m.Run(t.Context(), env))

	b, err := os.ReadFile(filepath.Join(env.Root, "etc", "hostname"))
	require.NoError(t, err)
	assert.Equal(t, "web-7\n", string(b))
}

func TestUpdateHostnameNoopWithoutKey(t *testing.T) {
	env := testEnv(t, map[string]any{})

	m, err := Lookup("update-hostname")
	require.NoError(t, err)
	require.NoError(t, m.Run(t.Context(), env))

	_, err = os.Stat(filepath.Join(env.Root, "etc", "hostname"))
	assert.True(t, os.IsNotExist(err))
}
