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
	"context"
	"log/slog"
	"sort"

	"github.com/cloudseed/cloudseed/pkg/config"
	"github.com/cloudseed/cloudseed/pkg/errors"
	"github.com/cloudseed/cloudseed/pkg/state"
)

// Frequency is how often a module runs across boots of the same image.
type Frequency int

const (
	// FrequencyAlways runs every boot, bypassing semaphores.
	FrequencyAlways Frequency = iota

	// FrequencyOnce runs once per image lifetime.
	FrequencyOnce

	// FrequencyPerInstance runs once per instance identity; a changed
	// instance-id re-arms it.
	FrequencyPerInstance
)

func (f Frequency) String() string {
	switch f {
	case FrequencyAlways:
		return "always"
	case FrequencyOnce:
		return "once"
	case FrequencyPerInstance:
		return "once-per-instance"
	default:
		return "unknown"
	}
}

// Scope maps a frequency to its semaphore scope. FrequencyAlways has no
// semaphore and maps to the instance scope for uniformity; callers must
// not consult semaphores for it.
func (f Frequency) Scope() state.Scope {
	if f == FrequencyOnce {
		return state.ScopeGlobal
	}
	return state.ScopeInstance
}

// ParseFrequency decodes the configuration spelling of a frequency.
func ParseFrequency(s string) (Frequency, error) {
	switch s {
	case "always":
		return FrequencyAlways, nil
	case "once", "once-per-image":
		return FrequencyOnce, nil
	case "once-per-instance", "instance":
		return FrequencyPerInstance, nil
	default:
		return 0, errors.NewWithContext(
			errors.ErrCodeInvalidConfig,
			"unknown module frequency",
			map[string]any{"frequency": s},
		)
	}
}

// Env is the execution environment handed to each module run.
type Env struct {
	// Config is the merged instance configuration document.
	Config map[string]any

	// SystemInfo carries operator-set host facts from system config.
	SystemInfo map[string]any

	// InstanceID and Datasource identify the boot.
	InstanceID string
	Datasource string

	// DataDir is the writable per-boot artifact directory under the
	// state tree.
	DataDir string

	// Root is the filesystem root for host-visible writes. "/" on real
	// hosts; tests point it elsewhere.
	Root string

	// Log is scoped to the running stage.
	Log *slog.Logger
}

// Module is one unit of configuration work.
type Module interface {
	Name() string

	// DefaultFrequency is the module's own run policy, used when the
	// stage run list does not override it.
	DefaultFrequency() Frequency

	// Run applies the module. Errors mark the stage degraded but do not
	// stop later modules.
	Run(ctx context.Context, env *Env) error
}

// Plan is one resolved run-list entry: a module plus its effective
// frequency.
type Plan struct {
	Module    Module
	Frequency Frequency
}

// builtins is the closed set of modules this binary ships.
var builtins = map[string]Module{}

// Register adds a module to the registry. A later registration under the
// same name replaces the earlier one, so embedders and tests can install
// scripted modules.
func Register(m Module) {
	builtins[m.Name()] = m
}

// Names returns the registered module names in sorted order.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the named module.
func Lookup(name string) (Module, error) {
	m, ok := builtins[name]
	if !ok {
		return nil, errors.NewWithContext(
			errors.ErrCodeNotFound,
			"unknown module",
			map[string]any{"module": name, "available": Names()},
		)
	}
	return m, nil
}

// Resolve turns a stage run list into execution plans, applying per-entry
// frequency overrides. Unknown modules and bad overrides are returned as
// errors alongside the plans that did resolve, so one typo does not empty
// a stage.
func Resolve(entries []config.ModuleEntry) ([]Plan, []error) {
	var plans []Plan
	var errs []error

	for _, entry := range entries {
		m, err := Lookup(entry.Name)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		freq := m.DefaultFrequency()
		if entry.Frequency != "" {
			freq, err = ParseFrequency(entry.Frequency)
			if err != nil {
				errs = append(errs, errors.WrapWithContext(
					errors.ErrCodeInvalidConfig,
					"invalid frequency override",
					err,
					map[string]any{"module": entry.Name},
				))
				freq = m.DefaultFrequency()
			}
		}

		plans = append(plans, Plan{Module: m, Frequency: freq})
	}

	return plans, errs
}
