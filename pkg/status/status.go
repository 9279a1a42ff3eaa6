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

package status

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"os"
	"sync"
	"time"

	"github.com/cloudseed/cloudseed/pkg/defaults"
	"github.com/cloudseed/cloudseed/pkg/errors"
	"github.com/cloudseed/cloudseed/pkg/serializer"
	"github.com/cloudseed/cloudseed/pkg/state"
)

// Severity classes for recoverable errors.
type Severity string

const (
	SeverityWarning    Severity = "WARNING"
	SeverityDeprecated Severity = "DEPRECATED"
	SeverityError      Severity = "ERROR"
	SeverityCritical   Severity = "CRITICAL"
)

// Boot state values for the top-level "status" key.
const (
	StateRunning  = "running"
	StateDone     = "done"
	StateDisabled = "disabled"
	StateError    = "error"
)

// boot_status_code values.
const (
	BootCodeEnabled        = "enabled-by-config"
	BootCodeDisabledKernel = "disabled-by-kernel-command-line"
	BootCodeDisabledConfig = "disabled-by-config"
)

// Stage names as they appear in the report.
const (
	StageInitLocal     = "init-local"
	StageInit          = "init"
	StageModulesConfig = "modules-config"
	StageModulesFinal  = "modules-final"
)

// StageNames lists the boot stages in execution order.
var StageNames = []string{StageInitLocal, StageInit, StageModulesConfig, StageModulesFinal}

// Stage is one boot stage's record. Timestamps are Unix epoch seconds;
// zero Finished means the stage has not completed.
type Stage struct {
	Start             float64               `json:"start"`
	Finished          float64               `json:"finished"`
	Errors            []string              `json:"errors"`
	RecoverableErrors map[Severity][]string `json:"recoverable_errors"`
}

// Report is the persisted structured status for one boot.
type Report struct {
	Status            string                `json:"status"`
	BootStatusCode    string                `json:"boot_status_code"`
	Datasource        string                `json:"datasource"`
	Errors            []string              `json:"errors"`
	RecoverableErrors map[Severity][]string `json:"recoverable_errors"`

	InitLocal     *Stage `json:"init-local,omitempty"`
	Init          *Stage `json:"init,omitempty"`
	ModulesConfig *Stage `json:"modules-config,omitempty"`
	ModulesFinal  *Stage `json:"modules-final,omitempty"`
}

// StageByName returns the named stage record, creating it when absent.
func (r *Report) StageByName(name string) *Stage {
	slot := r.stageSlot(name)
	if slot == nil {
		return nil
	}
	if *slot == nil {
		*slot = &Stage{
			Errors:            []string{},
			RecoverableErrors: map[Severity][]string{},
		}
	}
	return *slot
}

func (r *Report) stageSlot(name string) **Stage {
	switch name {
	case StageInitLocal:
		return &r.InitLocal
	case StageInit:
		return &r.Init
	case StageModulesConfig:
		return &r.ModulesConfig
	case StageModulesFinal:
		return &r.ModulesFinal
	default:
		return nil
	}
}

// stages returns the present stage records in execution order.
func (r *Report) stages() []*Stage {
	all := []*Stage{r.InitLocal, r.Init, r.ModulesConfig, r.ModulesFinal}
	out := make([]*Stage, 0, len(all))
	for _, s := range all {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// ExitCode maps the report onto the process exit contract: 0 success,
// 1 unrecoverable, 2 completed with recoverable errors.
func (r *Report) ExitCode() int {
	if r.Status == StateError {
		return 1
	}
	if len(r.Errors) > 0 {
		return 2
	}
	for _, list := range r.RecoverableErrors {
		if len(list) > 0 {
			return 2
		}
	}
	return 0
}

// Reporter owns the report for the running boot and persists every
// mutation atomically.
type Reporter struct {
	mu     sync.Mutex
	path   string
	prev   string
	report *Report
}

// NewReporter creates a reporter persisting to path, parking any prior
// boot's report at prevPath first.
func NewReporter(path, prevPath string) (*Reporter, error) {
	r := &Reporter{path: path, prev: prevPath}

	if _, err := os.Stat(path); err == nil && prevPath != "" {
		if err := os.Rename(path, prevPath); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, "failed to park previous status", err)
		}
	}

	r.report = &Report{
		Status:            StateRunning,
		BootStatusCode:    BootCodeEnabled,
		Errors:            []string{},
		RecoverableErrors: map[Severity][]string{},
	}
	return r, r.persistLocked()
}

// ResumeReporter reopens the running boot's report so a later stage
// process can continue it. A missing or unreadable file starts a fresh
// running report instead of failing, since losing status must never
// abort a boot.
func ResumeReporter(path string) (*Reporter, error) {
	rep, err := Load(path)
	if err != nil {
		return NewReporter(path, "")
	}
	if rep.Errors == nil {
		rep.Errors = []string{}
	}
	if rep.RecoverableErrors == nil {
		rep.RecoverableErrors = map[Severity][]string{}
	}
	return &Reporter{path: path, report: rep}, nil
}

// SetDatasource records the selected datasource.
func (r *Reporter) SetDatasource(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.Datasource = name
	return r.persistLocked()
}

// Disable marks the boot disabled and finalizes the report.
func (r *Reporter) Disable(code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.Status = StateDisabled
	r.report.BootStatusCode = code
	return r.persistLocked()
}

// StartStage stamps the stage's start time.
func (r *Reporter) StartStage(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.report.StageByName(name)
	if s == nil {
		return errors.NewWithContext(errors.ErrCodeInternal, "unknown stage", map[string]any{"stage": name})
	}
	s.Start = epochNow()
	return r.persistLocked()
}

// FinishStage stamps the stage's finish time.
func (r *Reporter) FinishStage(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.report.StageByName(name)
	if s == nil {
		return errors.NewWithContext(errors.ErrCodeInternal, "unknown stage", map[string]any{"stage": name})
	}
	s.Finished = epochNow()
	return r.persistLocked()
}

// RecordError appends a module or stage error to the stage's error list
// and the global aggregate.
func (r *Reporter) RecordError(stage, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.report.StageByName(stage)
	if s == nil {
		return errors.NewWithContext(errors.ErrCodeInternal, "unknown stage", map[string]any{"stage": stage})
	}
	s.Errors = append(s.Errors, msg)
	r.report.Errors = append(r.report.Errors, msg)
	return r.persistLocked()
}

// RecordRecoverable appends a severity-classified recoverable error.
func (r *Reporter) RecordRecoverable(stage string, sev Severity, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.report.StageByName(stage)
	if s == nil {
		return errors.NewWithContext(errors.ErrCodeInternal, "unknown stage", map[string]any{"stage": stage})
	}
	s.RecoverableErrors[sev] = append(s.RecoverableErrors[sev], msg)
	r.report.RecoverableErrors[sev] = append(r.report.RecoverableErrors[sev], msg)
	return r.persistLocked()
}

// Complete finalizes the boot. critical marks the run unrecoverable.
func (r *Reporter) Complete(critical bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if critical {
		r.report.Status = StateError
	} else {
		r.report.Status = StateDone
	}
	return r.persistLocked()
}

// Snapshot returns a deep copy of the current report for rendering.
func (r *Reporter) Snapshot() *Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, _ := json.Marshal(r.report)
	var copied Report
	_ = json.Unmarshal(b, &copied)
	return &copied
}

func (r *Reporter) persistLocked() error {
	b, err := json.MarshalIndent(r.report, "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "failed to encode status", err)
	}
	if err := state.WriteFileAtomic(r.path, b, 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "failed to persist status", err)
	}
	return nil
}

// Load reads a persisted report.
func Load(path string) (*Report, error) {
	r, err := serializer.FromFile[Report](path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, errors.NewWithContext(errors.ErrCodeNotFound, "no status recorded", map[string]any{"path": path})
		}
		return nil, errors.Wrap(errors.ErrCodeInternal, "malformed status file", err)
	}
	return r, nil
}

// Wait polls the persisted report until the boot reaches a terminal
// state or the context expires. A missing file counts as still running,
// since early boot may not have written it yet.
func Wait(ctx context.Context, path string) (*Report, error) {
	ticker := time.NewTicker(defaults.StatusWaitPollInterval)
	defer ticker.Stop()

	for {
		r, err := Load(path)
		if err == nil && r.Status != StateRunning {
			return r, nil
		}

		select {
		case <-ctx.Done():
			return nil, errors.Wrap(errors.ErrCodeTimeout, "boot did not reach a terminal state", ctx.Err())
		case <-ticker.C:
		}
	}
}

func epochNow() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
