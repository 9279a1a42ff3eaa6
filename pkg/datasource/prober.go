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

package datasource

import (
	"context"
	"log/slog"
	"time"

	"github.com/cloudseed/cloudseed/pkg/defaults"
	"github.com/cloudseed/cloudseed/pkg/sysfs"
)

// Mode selects which candidates a probe pass may consider.
type Mode int

const (
	// ModeLocal probes only sources that work before networking is up.
	ModeLocal Mode = iota

	// ModeNetwork probes the full candidate list.
	ModeNetwork
)

// Prober walks the configured datasource candidates in order and commits
// to the first one whose detection predicate answers yes.
type Prober struct {
	candidates []Datasource
	fallback   Datasource
	cmdline    *sysfs.Cmdline
	assumeSole bool
	maxWait    time.Duration
}

// ProberOption customizes probing behavior.
type ProberOption func(*Prober)

// WithAssumeSoleDatasource skips detection when exactly one candidate is
// configured, trusting the operator's word that the platform matches.
func WithAssumeSoleDatasource(v bool) ProberOption {
	return func(p *Prober) { p.assumeSole = v }
}

// WithCmdline overrides the kernel command line reader, for tests.
func WithCmdline(c *sysfs.Cmdline) ProberOption {
	return func(p *Prober) { p.cmdline = c }
}

// WithProbeMaxWait bounds one full probe pass.
func WithProbeMaxWait(d time.Duration) ProberOption {
	return func(p *Prober) { p.maxWait = d }
}

// NewProber builds a prober over the ordered candidate list. The "none"
// fallback is appended implicitly when absent, so Probe always selects
// something.
func NewProber(candidates []Datasource, opts ...ProberOption) *Prober {
	p := &Prober{
		candidates: candidates,
		cmdline:    &sysfs.Cmdline{},
		maxWait:    defaults.ProbeMaxWait,
	}
	for _, opt := range opts {
		opt(p)
	}

	for _, c := range p.candidates {
		if c.Name() == NameNone {
			p.fallback = c
			break
		}
	}
	if p.fallback == nil {
		p.fallback = NewNone(Settings{})
	}

	return p
}

// Probe selects a datasource for this boot. Detection failures on
// individual candidates are logged and skipped; a pass that detects
// nothing returns the fallback rather than an error, so boots always
// proceed with some identity.
func (p *Prober) Probe(ctx context.Context, mode Mode) Datasource {
	ctx, cancel := context.WithTimeout(ctx, p.maxWait)
	defer cancel()

	if forced, ok := p.forcedCandidate(); ok {
		// The operator named the platform; detection has nothing to add.
		if mode == ModeLocal && forced.RequiresNetwork() {
			slog.Info("forced datasource needs networking, deferring",
				"datasource", forced.Name())
			return p.fallback
		}
		return forced
	}

	candidates := p.candidates
	if p.assumeSole && len(p.soleCandidate()) == 1 {
		sole := p.soleCandidate()[0]
		if mode == ModeNetwork || !sole.RequiresNetwork() {
			slog.Info("assuming sole configured datasource", "datasource", sole.Name())
			return sole
		}
	}

	for _, c := range candidates {
		if c.Name() == NameNone {
			continue
		}
		if mode == ModeLocal && c.RequiresNetwork() {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		found, err := c.Detect(ctx)
		if err != nil {
			slog.Warn("datasource detection failed",
				"datasource", c.Name(),
				"error", err)
			continue
		}
		if found {
			slog.Info("datasource detected", "datasource", c.Name())
			return c
		}
		slog.Debug("datasource not present", "datasource", c.Name())
	}

	slog.Info("no datasource detected, using fallback",
		"datasource", p.fallback.Name())
	return p.fallback
}

// forcedCandidate honors a ds= kernel command line override when it names
// a configured candidate.
func (p *Prober) forcedCandidate() (Datasource, bool) {
	name, ok, err := p.cmdline.DatasourceOverride()
	if err != nil || !ok {
		return nil, false
	}
	for _, c := range p.candidates {
		if c.Name() == name {
			slog.Info("datasource forced by kernel command line", "datasource", name)
			return c, true
		}
	}
	slog.Warn("kernel command line names an unconfigured datasource, ignoring",
		"datasource", name)
	return nil, false
}

// soleCandidate returns the non-fallback candidates.
func (p *Prober) soleCandidate() []Datasource {
	real := make([]Datasource, 0, len(p.candidates))
	for _, c := range p.candidates {
		if c.Name() != NameNone {
			real = append(real, c)
		}
	}
	return real
}
