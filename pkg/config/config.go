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
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cloudseed/cloudseed/pkg/defaults"
	"github.com/cloudseed/cloudseed/pkg/errors"
	"github.com/cloudseed/cloudseed/pkg/merge"
)

// protectedKeys are the top-level configuration keys only the operator
// may set. Instance data carrying these keys has them discarded before
// the merge.
var protectedKeys = []string{
	"datasource_list",
	"datasource",
	"assume_sole_datasource",
	"system_info",
	"cloud_init_modules",
	"cloud_config_modules",
	"cloud_final_modules",
}

// ModuleEntry names a module in a stage's run list, optionally overriding
// its default run frequency.
type ModuleEntry struct {
	Name string
	// Frequency is empty when the module's own default applies.
	// Recognized values: "always", "once", "once-per-instance".
	Frequency string
}

// DatasourceSettings are the per-datasource tunables under the
// "datasource" key.
type DatasourceSettings struct {
	MetadataURLs []string      `yaml:"metadata_urls"`
	SeedDir      string        `yaml:"seed_dir"`
	MaxWait      time.Duration `yaml:"max_wait"`
	Timeout      time.Duration `yaml:"timeout"`
	// Retries is nil when unset so an explicit "retries: 0" survives as
	// "no retries" rather than falling back to the default.
	Retries *int `yaml:"retries"`
}

// Config is the resolved system configuration.
type Config struct {
	// DatasourceList is the ordered probe candidate list.
	DatasourceList []string

	// Datasource holds per-source settings keyed by datasource name.
	Datasource map[string]DatasourceSettings

	// AssumeSoleDatasource skips detection when exactly one candidate is
	// configured.
	AssumeSoleDatasource bool

	// Per-stage module run lists.
	CloudInitModules   []ModuleEntry
	CloudConfigModules []ModuleEntry
	CloudFinalModules  []ModuleEntry

	// SystemInfo carries operator-set host facts (default user, distro
	// hints) passed through to modules.
	SystemInfo map[string]any

	// Raw is the full folded document, for keys the typed view does not
	// model.
	Raw map[string]any
}

// ProtectedKeys returns the top-level keys reserved for the operator.
func ProtectedKeys() []string {
	out := make([]string, len(protectedKeys))
	copy(out, protectedKeys)
	return out
}

// StripProtected removes operator-reserved keys from an instance data
// document before it reaches the merge, returning the names removed.
func StripProtected(doc map[string]any) []string {
	var removed []string
	for _, key := range protectedKeys {
		if _, ok := doc[key]; ok {
			delete(doc, key)
			removed = append(removed, key)
		}
	}
	return removed
}

// Load reads the base configuration file and folds the sorted *.yaml and
// *.cfg overlays from overlayDir on top of it. Empty arguments select the
// package defaults. A missing base file yields built-in defaults rather
// than an error, since fresh images ship without one.
func Load(baseFile, overlayDir string) (*Config, error) {
	if baseFile == "" {
		baseFile = defaults.ConfigFile
	}
	if overlayDir == "" {
		overlayDir = defaults.ConfigOverlayDir
	}

	var docs []merge.Document

	base, err := readDocument(baseFile)
	switch {
	case err == nil:
		docs = append(docs, merge.Document{Name: baseFile, Data: base})
	case stderrors.Is(err, os.ErrNotExist):
		slog.Debug("no base configuration file", "path", baseFile)
	default:
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, "failed to read base configuration", err)
	}

	overlays, err := overlayFiles(overlayDir)
	if err != nil {
		return nil, err
	}
	for _, path := range overlays {
		doc, err := readDocument(path)
		if err != nil {
			return nil, errors.WrapWithContext(
				errors.ErrCodeInvalidConfig,
				"failed to read configuration overlay",
				err,
				map[string]any{"path": path},
			)
		}
		docs = append(docs, merge.Document{Name: path, Data: doc})
	}

	folded, mergeErrs := merge.MergeMany(docs)
	for _, e := range mergeErrs {
		slog.Warn("configuration merge problem", "error", e)
	}

	return fromRaw(folded)
}

// FromMap builds a Config from an already-decoded document. Used by tests
// and by callers that assemble configuration programmatically.
func FromMap(raw map[string]any) (*Config, error) {
	return fromRaw(raw)
}

func readDocument(path string) (map[string]any, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("malformed YAML in %s: %w", path, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

func overlayFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, "failed to read overlay directory", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" && ext != ".cfg" {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func fromRaw(raw map[string]any) (*Config, error) {
	if raw == nil {
		raw = map[string]any{}
	}

	cfg := &Config{
		DatasourceList: []string{"nocloud", "ec2", "none"},
		Datasource:     map[string]DatasourceSettings{},
		SystemInfo:     map[string]any{},
		Raw:            raw,
	}

	if v, ok := raw["datasource_list"]; ok {
		list, err := stringList(v)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidConfig, "invalid datasource_list", err)
		}
		cfg.DatasourceList = list
	}

	if v, ok := raw["assume_sole_datasource"].(bool); ok {
		cfg.AssumeSoleDatasource = v
	}

	if v, ok := raw["system_info"].(map[string]any); ok {
		cfg.SystemInfo = v
	}

	if v, ok := raw["datasource"].(map[string]any); ok {
		for name, settings := range v {
			ds, err := datasourceSettings(settings)
			if err != nil {
				return nil, errors.WrapWithContext(
					errors.ErrCodeInvalidConfig,
					"invalid datasource settings",
					err,
					map[string]any{"datasource": name},
				)
			}
			cfg.Datasource[name] = ds
		}
	}

	var err error
	if cfg.CloudInitModules, err = moduleList(raw, "cloud_init_modules"); err != nil {
		return nil, err
	}
	if cfg.CloudConfigModules, err = moduleList(raw, "cloud_config_modules"); err != nil {
		return nil, err
	}
	if cfg.CloudFinalModules, err = moduleList(raw, "cloud_final_modules"); err != nil {
		return nil, err
	}

	return cfg, nil
}

// datasourceSettings decodes one datasource's settings block. Durations
// accept either Go duration strings or bare seconds; negative max_wait is
// a meaningful sentinel (single attempt) and passes through.
func datasourceSettings(v any) (DatasourceSettings, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return DatasourceSettings{}, fmt.Errorf("settings must be a mapping, got %T", v)
	}

	var ds DatasourceSettings
	if urls, ok := m["metadata_urls"]; ok {
		list, err := stringList(urls)
		if err != nil {
			return ds, fmt.Errorf("metadata_urls: %w", err)
		}
		ds.MetadataURLs = list
	}
	if s, ok := m["seed_dir"].(string); ok {
		ds.SeedDir = s
	}

	var err error
	if ds.MaxWait, err = durationField(m, "max_wait"); err != nil {
		return ds, err
	}
	if ds.Timeout, err = durationField(m, "timeout"); err != nil {
		return ds, err
	}

	switch n := m["retries"].(type) {
	case nil:
	case int:
		retries := n
		ds.Retries = &retries
	default:
		return ds, fmt.Errorf("retries must be an integer, got %T", n)
	}

	return ds, nil
}

func durationField(m map[string]any, key string) (time.Duration, error) {
	switch v := m[key].(type) {
	case nil:
		return 0, nil
	case int:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return d, nil
	default:
		return 0, fmt.Errorf("%s must be seconds or a duration string, got %T", key, v)
	}
}

func stringList(v any) ([]string, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list, got %T", v)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("expected string entries, got %T", item)
		}
		out = append(out, s)
	}
	return out, nil
}

// moduleList decodes a stage run list. Entries are either a bare module
// name or a [name, frequency] pair overriding the module default.
func moduleList(raw map[string]any, key string) ([]ModuleEntry, error) {
	v, ok := raw[key]
	if !ok {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, errors.NewWithContext(
			errors.ErrCodeInvalidConfig,
			"stage module list must be a sequence",
			map[string]any{"key": key},
		)
	}

	entries := make([]ModuleEntry, 0, len(items))
	for _, item := range items {
		switch e := item.(type) {
		case string:
			entries = append(entries, ModuleEntry{Name: e})
		case []any:
			if len(e) == 0 {
				continue
			}
			name, ok := e[0].(string)
			if !ok {
				return nil, errors.NewWithContext(
					errors.ErrCodeInvalidConfig,
					"module entry name must be a string",
					map[string]any{"key": key},
				)
			}
			entry := ModuleEntry{Name: name}
			if len(e) > 1 {
				freq, ok := e[1].(string)
				if !ok {
					return nil, errors.NewWithContext(
						errors.ErrCodeInvalidConfig,
						"module frequency must be a string",
						map[string]any{"key": key, "module": name},
					)
				}
				entry.Frequency = freq
			}
			entries = append(entries, entry)
		default:
			return nil, errors.NewWithContext(
				errors.ErrCodeInvalidConfig,
				"module entry must be a name or [name, frequency] pair",
				map[string]any{"key": key},
			)
		}
	}
	return entries, nil
}
