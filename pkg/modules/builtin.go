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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/cloudseed/cloudseed/pkg/errors"
	"github.com/cloudseed/cloudseed/pkg/state"
)

func init() {
	Register(&finalMessage{})
	Register(&writeFiles{})
	Register(&runCmd{})
	Register(&updateHostname{})
}

// finalMessage logs the boot completion banner. Operators override the
// text through the "final_message" key; $-tokens expand to boot facts.
type finalMessage struct{}

const defaultFinalMessage = "cloudseed finished at $timestamp, datasource $datasource"

func (m *finalMessage) Name() string                { return "final-message" }
func (m *finalMessage) DefaultFrequency() Frequency { return FrequencyAlways }

func (m *finalMessage) Run(_ context.Context, env *Env) error {
	msg := defaultFinalMessage
	if s, ok := env.Config["final_message"].(string); ok && s != "" {
		msg = s
	}

	r := strings.NewReplacer(
		"$timestamp", time.Now().UTC().Format(time.RFC3339),
		"$datasource", env.Datasource,
		"$instance_id", env.InstanceID,
	)
	rendered := r.Replace(msg)

	env.Log.Info(rendered)

	path := filepath.Join(env.DataDir, "final-message")
	return state.WriteFileAtomic(path, []byte(rendered+"\n"), 0o644)
}

// writeFiles materializes the "write_files" entries from instance data.
type writeFiles struct{}

func (m *writeFiles) Name() string                { return "write-files" }
func (m *writeFiles) DefaultFrequency() Frequency { return FrequencyPerInstance }

func (m *writeFiles) Run(_ context.Context, env *Env) error {
	raw, ok := env.Config["write_files"]
	if !ok {
		return nil
	}
	entries, ok := raw.([]any)
	if !ok {
		return errors.New(errors.ErrCodeInvalidConfig, "write_files must be a sequence")
	}

	var failed []string
	for i, e := range entries {
		if err := m.writeOne(env, e); err != nil {
			env.Log.Error("write_files entry failed", "index", i, "error", err)
			failed = append(failed, fmt.Sprintf("#%d", i))
		}
	}
	if len(failed) > 0 {
		return errors.NewWithContext(
			errors.ErrCodeInternal,
			"some write_files entries failed",
			map[string]any{"entries": failed},
		)
	}
	return nil
}

func (m *writeFiles) writeOne(env *Env, e any) error {
	entry, ok := e.(map[string]any)
	if !ok {
		return fmt.Errorf("entry must be a mapping, got %T", e)
	}

	path, _ := entry["path"].(string)
	if path == "" {
		return fmt.Errorf("entry has no path")
	}
	if !filepath.IsAbs(path) {
		return fmt.Errorf("path %q is not absolute", path)
	}

	content, _ := entry["content"].(string)
	encoding, _ := entry["encoding"].(string)
	data, err := decodeContent([]byte(content), encoding)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	perm := os.FileMode(0o644)
	if p, ok := entry["permissions"].(string); ok {
		n, err := strconv.ParseUint(p, 8, 32)
		if err != nil {
			return fmt.Errorf("permissions %q: %w", p, err)
		}
		perm = os.FileMode(n)
	}

	target := filepath.Join(env.Root, path)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	return state.WriteFileAtomic(target, data, perm)
}

// decodeContent unwraps the write_files encodings: plain, b64, gzip, and
// gzip wrapped in b64.
func decodeContent(data []byte, encoding string) ([]byte, error) {
	switch encoding {
	case "", "text/plain", "plain":
		return data, nil

	case "b64", "base64":
		out := make([]byte, base64.StdEncoding.DecodedLen(len(data)))
		n, err := base64.StdEncoding.Decode(out, bytes.TrimSpace(data))
		if err != nil {
			return nil, err
		}
		return out[:n], nil

	case "gz", "gzip":
		return gunzip(data)

	case "gz+b64", "gzip+base64", "gz+base64", "gzip+b64":
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, err
		}
		return gunzip(decoded)

	default:
		return nil, fmt.Errorf("unknown encoding %q", encoding)
	}
}

func gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// runCmd renders the "runcmd" list into an executable shell script under
// the boot's data directory. Script execution belongs to the final stage
// runner, not to this module.
type runCmd struct{}

func (m *runCmd) Name() string                { return "runcmd" }
func (m *runCmd) DefaultFrequency() Frequency { return FrequencyPerInstance }

func (m *runCmd) Run(_ context.Context, env *Env) error {
	raw, ok := env.Config["runcmd"]
	if !ok {
		return nil
	}
	items, ok := raw.([]any)
	if !ok {
		return errors.New(errors.ErrCodeInvalidConfig, "runcmd must be a sequence")
	}

	var sb strings.Builder
	sb.WriteString("#!/bin/sh\n")
	for i, item := range items {
		line, err := commandLine(item)
		if err != nil {
			return errors.WrapWithContext(
				errors.ErrCodeInvalidConfig, "invalid runcmd entry", err,
				map[string]any{"index": i})
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}

	dir := filepath.Join(env.DataDir, "scripts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return state.WriteFileAtomic(filepath.Join(dir, "runcmd"), []byte(sb.String()), 0o700)
}

// commandLine renders one runcmd entry: a string passes through verbatim,
// a list is joined with shell quoting.
func commandLine(item any) (string, error) {
	switch v := item.(type) {
	case string:
		return v, nil
	case []any:
		parts := make([]string, 0, len(v))
		for _, p := range v {
			s, ok := p.(string)
			if !ok {
				return "", fmt.Errorf("argv elements must be strings, got %T", p)
			}
			parts = append(parts, shellQuote(s))
		}
		return strings.Join(parts, " "), nil
	default:
		return "", fmt.Errorf("entry must be a string or argv list, got %T", item)
	}
}

func shellQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\n'\"\\$`!*?[](){};&|<>~#") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// updateHostname applies the "hostname" key to the host.
type updateHostname struct{}

func (m *updateHostname) Name() string                { return "update-hostname" }
func (m *updateHostname) DefaultFrequency() Frequency { return FrequencyPerInstance }

func (m *updateHostname) Run(_ context.Context, env *Env) error {
	hostname, ok := env.Config["hostname"].(string)
	if !ok || hostname == "" {
		// Fall back to the platform's local-hostname when present.
		if meta, ok := env.Config["local-hostname"].(string); ok {
			hostname = meta
		}
	}
	if hostname == "" {
		return nil
	}

	target := filepath.Join(env.Root, "etc", "hostname")
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	return state.WriteFileAtomic(target, []byte(hostname+"\n"), 0o644)
}
