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

package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cloudseed/cloudseed/pkg/config"
	"github.com/cloudseed/cloudseed/pkg/crawler"
	"github.com/cloudseed/cloudseed/pkg/datasource"
	"github.com/cloudseed/cloudseed/pkg/defaults"
	"github.com/cloudseed/cloudseed/pkg/errors"
	"github.com/cloudseed/cloudseed/pkg/merge"
	"github.com/cloudseed/cloudseed/pkg/modules"
	"github.com/cloudseed/cloudseed/pkg/state"
	"github.com/cloudseed/cloudseed/pkg/status"
	"github.com/cloudseed/cloudseed/pkg/sysfs"
)

// Payload file names under the instance directory.
const (
	payloadUserData    = "user-data"
	payloadVendorData  = "vendor-data"
	payloadVendorData2 = "vendor-data2"
	payloadMetadata    = "metadata.json"
)

// metricsFile is where module-stage metrics land for the node exporter's
// textfile collector.
const metricsFile = "metrics.prom"

// Runner drives the boot stages against a state tree.
type Runner struct {
	cfg     *config.Config
	mgr     *state.Manager
	rep     *status.Reporter
	cmdline *sysfs.Cmdline
	dmi     *sysfs.DMI

	// root is the filesystem root modules write host files under.
	root string

	// timeout bounds one full stage.
	timeout time.Duration

	notify NotifyFunc
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithRoot redirects module host writes, for tests.
func WithRoot(root string) RunnerOption {
	return func(r *Runner) { r.root = root }
}

// WithCmdline overrides the kernel command line reader.
func WithCmdline(c *sysfs.Cmdline) RunnerOption {
	return func(r *Runner) { r.cmdline = c }
}

// WithDMI overrides the firmware reader.
func WithDMI(d *sysfs.DMI) RunnerOption {
	return func(r *Runner) { r.dmi = d }
}

// WithStageTimeout bounds each stage invocation.
func WithStageTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) { r.timeout = d }
}

// WithNotify overrides the service manager notifier.
func WithNotify(fn NotifyFunc) RunnerOption {
	return func(r *Runner) { r.notify = fn }
}

// NewRunner wires a stage runner.
func NewRunner(cfg *config.Config, mgr *state.Manager, rep *status.Reporter, opts ...RunnerOption) *Runner {
	r := &Runner{
		cfg:     cfg,
		mgr:     mgr,
		rep:     rep,
		cmdline: &sysfs.Cmdline{},
		dmi:     &sysfs.DMI{},
		root:    "/",
		timeout: defaults.StageTimeout,
		notify:  NotifyServiceManager,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunInitLocal is the first boot stage: decide whether the tool runs at
// all this boot, then detect a pre-network datasource and pin the
// instance identity. It must finish before network bring-up so stale
// identity never leaks onto the wire.
func (r *Runner) RunInitLocal(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if disabled, err := r.cmdline.Disabled(); err == nil && disabled {
		slog.Info("disabled by kernel command line")
		return r.rep.Disable(status.BootCodeDisabledKernel)
	}
	if v, ok := r.cfg.Raw["disabled"].(bool); ok && v {
		slog.Info("disabled by configuration")
		return r.rep.Disable(status.BootCodeDisabledConfig)
	}

	if err := r.rep.StartStage(status.StageInitLocal); err != nil {
		return err
	}
	start := time.Now()
	defer func() { stageDuration.WithLabelValues(status.StageInitLocal).Observe(time.Since(start).Seconds()) }()

	ds := r.probe(ctx, datasource.ModeLocal)
	if ds.Name() != datasource.NameNone {
		if err := r.adoptDatasource(ctx, status.StageInitLocal, ds); err != nil {
			// Leave the identity unpinned; the network stage probes
			// again with the full candidate list.
			slog.Warn("local datasource unusable, deferring to network stage",
				"datasource", ds.Name(), "error", err)
			_ = r.rep.RecordRecoverable(status.StageInitLocal, status.SeverityError, err.Error())
		}
	}

	r.notify(fmt.Sprintf("STATUS=%s done", status.StageInitLocal))
	return r.rep.FinishStage(status.StageInitLocal)
}

// RunInit is the network boot stage: settle the datasource (probing
// network sources if the local pass found none), merge instance
// configuration, and run the cloud_init_modules list. Boot is blocked on
// this stage; it ends by signaling readiness to the service manager.
func (r *Runner) RunInit(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.rep.StartStage(status.StageInit); err != nil {
		return err
	}
	start := time.Now()
	defer func() { stageDuration.WithLabelValues(status.StageInit).Observe(time.Since(start).Seconds()) }()

	instanceID, dsName, err := r.settleDatasource(ctx)
	if err != nil {
		return r.critical(status.StageInit, err)
	}
	if err := r.rep.SetDatasource(dsName); err != nil {
		return r.critical(status.StageInit, err)
	}

	merged, err := r.mergeInstanceConfig(instanceID)
	if err != nil {
		return r.critical(status.StageInit, err)
	}
	if err := r.mgr.WriteMergedConfig(instanceID, merged); err != nil {
		return r.critical(status.StageInit, err)
	}

	if err := r.runModuleList(ctx, status.StageInit, r.cfg.CloudInitModules, instanceID, dsName, merged); err != nil {
		return r.critical(status.StageInit, err)
	}

	r.notify("READY=1")
	return r.rep.FinishStage(status.StageInit)
}

// ModuleMode selects which best-effort module stage runs.
type ModuleMode string

const (
	ModeConfig ModuleMode = "config"
	ModeFinal  ModuleMode = "final"
)

// RunModules runs one of the two best-effort module stages. The final
// stage additionally writes the boot-finished marker and flushes boot
// metrics for the node exporter.
func (r *Runner) RunModules(ctx context.Context, mode ModuleMode) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var stage string
	var entries []config.ModuleEntry
	switch mode {
	case ModeConfig:
		stage, entries = status.StageModulesConfig, r.cfg.CloudConfigModules
	case ModeFinal:
		stage, entries = status.StageModulesFinal, r.cfg.CloudFinalModules
	default:
		return errors.NewWithContext(errors.ErrCodeInvalidConfig, "unknown module mode",
			map[string]any{"mode": string(mode)})
	}

	if err := r.rep.StartStage(stage); err != nil {
		return err
	}
	start := time.Now()
	defer func() { stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds()) }()

	instanceID, err := r.mgr.CurrentInstanceID()
	if err != nil || instanceID == "" {
		return r.critical(stage, errors.Wrap(errors.ErrCodeInternal, "no instance recorded, init did not run", err))
	}
	dsName, err := r.mgr.CachedDatasource(instanceID)
	if err != nil || dsName == "" {
		dsName = datasource.NameNone
	}
	merged, err := r.mgr.ReadMergedConfig(instanceID)
	if err != nil {
		return r.critical(stage, errors.Wrap(errors.ErrCodeInternal, "merged configuration unreadable", err))
	}

	if err := r.runModuleList(ctx, stage, entries, instanceID, dsName, merged); err != nil {
		return r.critical(stage, err)
	}

	if mode == ModeFinal {
		r.finishBoot(instanceID)
	}

	r.notify(fmt.Sprintf("STATUS=%s done", stage))
	return r.rep.FinishStage(stage)
}

// critical records a stage-fatal error, marks the boot unrecoverable,
// and returns the error for exit-code handling.
func (r *Runner) critical(stage string, err error) error {
	slog.Error("stage failed", "stage", stage, "error", err)
	_ = r.rep.RecordRecoverable(stage, status.SeverityCritical, err.Error())
	_ = r.rep.FinishStage(stage)
	_ = r.rep.Complete(true)
	return err
}

// probe builds the configured candidates and runs one detection pass.
func (r *Runner) probe(ctx context.Context, mode datasource.Mode) datasource.Datasource {
	candidates, err := datasource.FromList(r.cfg.DatasourceList, r.lookupSettings)
	if err != nil {
		slog.Warn("invalid datasource_list, using fallback", "error", err)
		candidates = []datasource.Datasource{datasource.NewNone(r.lookupSettings(datasource.NameNone))}
	}

	prober := datasource.NewProber(candidates,
		datasource.WithAssumeSoleDatasource(r.cfg.AssumeSoleDatasource),
		datasource.WithCmdline(r.cmdline))

	ds := prober.Probe(ctx, mode)
	datasourceSelected.WithLabelValues(ds.Name()).Inc()
	return ds
}

func (r *Runner) lookupSettings(name string) datasource.Settings {
	s := r.cfg.Datasource[name]
	return datasource.Settings{
		MetadataURLs: s.MetadataURLs,
		SeedDir:      s.SeedDir,
		MaxWait:      s.MaxWait,
		Timeout:      s.Timeout,
		Retries:      s.Retries,
		DMI:          r.dmi,
		Cmdline:      r.cmdline,
	}
}

// adoptDatasource crawls a detected datasource and pins the boot's
// instance identity and payload files.
func (r *Runner) adoptDatasource(ctx context.Context, stage string, ds datasource.Datasource) error {
	payload, err := ds.Crawl(ctx)
	if err != nil {
		return errors.WrapWithContext(errors.ErrCodeUnavailable, "datasource crawl failed", err,
			map[string]any{"datasource": ds.Name()})
	}
	for _, rec := range payload.Recoverable {
		_ = r.rep.RecordRecoverable(stage, status.SeverityWarning, rec.Error())
	}

	changed, err := r.mgr.SetInstance(payload.InstanceID, ds.Name())
	if err != nil {
		return err
	}
	if changed {
		slog.Info("instance identity changed",
			"instance_id", payload.InstanceID,
			"datasource", ds.Name())
	}

	return r.persistPayload(payload)
}

// settleDatasource returns the boot's instance identity, probing network
// sources when the local stage did not pin one.
func (r *Runner) settleDatasource(ctx context.Context) (instanceID, dsName string, err error) {
	if id, err := r.mgr.CurrentInstanceID(); err == nil && id != "" {
		if name, err := r.mgr.CachedDatasource(id); err == nil && name != datasource.NameNone {
			return id, name, nil
		}
	}

	ds := r.probe(ctx, datasource.ModeNetwork)
	if err := r.adoptDatasource(ctx, status.StageInit, ds); err != nil {
		if ds.Name() != datasource.NameNone {
			// A detected network datasource that cannot be crawled is a
			// critical init failure.
			return "", "", err
		}
	}

	id, err := r.mgr.CurrentInstanceID()
	if err != nil || id == "" {
		return "", "", errors.Wrap(errors.ErrCodeInternal, "instance identity not recorded", err)
	}
	return id, ds.Name(), nil
}

func (r *Runner) persistPayload(p *datasource.Payload) error {
	dir := r.mgr.InstanceDir(p.InstanceID)

	files := map[string][]byte{
		payloadUserData:    p.UserData,
		payloadVendorData:  p.VendorData,
		payloadVendorData2: p.VendorData2,
	}
	for name, data := range files {
		if len(data) == 0 {
			continue
		}
		if err := state.WriteFileAtomic(filepath.Join(dir, name), data, 0o600); err != nil {
			return err
		}
	}

	if len(p.Metadata) > 0 {
		b, err := json.MarshalIndent(p.Metadata, "", "  ")
		if err != nil {
			return err
		}
		return state.WriteFileAtomic(filepath.Join(dir, payloadMetadata), b, 0o600)
	}
	return nil
}

// mergeInstanceConfig folds system config, vendor-data, vendor-data2,
// and user-data into the boot's merged configuration. Vendor documents
// fold in before user documents so user data always wins conflicts, and
// operator-reserved keys are stripped from instance data before the
// fold. Merge problems degrade the document, not the boot.
func (r *Runner) mergeInstanceConfig(instanceID string) (map[string]any, error) {
	dir := r.mgr.InstanceDir(instanceID)

	docs := []merge.Document{{Name: "system-config", Data: r.cfg.Raw}}

	order := []struct {
		file  string
		label string
	}{
		{payloadVendorData, "vendor-data"},
		{payloadVendorData2, "vendor-data2"},
		{payloadUserData, "user-data"},
	}

	for _, src := range order {
		raw, err := os.ReadFile(filepath.Join(dir, src.file))
		if err != nil {
			if !os.IsNotExist(err) {
				_ = r.rep.RecordRecoverable(status.StageInit, status.SeverityWarning,
					fmt.Sprintf("%s unreadable: %v", src.label, err))
			}
			continue
		}

		parts, recoverable := crawler.CloudConfigDocs(raw)
		for _, rec := range recoverable {
			_ = r.rep.RecordRecoverable(status.StageInit, status.SeverityWarning,
				fmt.Sprintf("%s: %v", src.label, rec))
		}

		for i, doc := range parts {
			if stripped := config.StripProtected(doc); len(stripped) > 0 {
				_ = r.rep.RecordRecoverable(status.StageInit, status.SeverityWarning,
					fmt.Sprintf("%s part %d sets operator-reserved keys %v, ignored", src.label, i, stripped))
			}
			docs = append(docs, merge.Document{
				Name: fmt.Sprintf("%s[%d]", src.label, i),
				Data: doc,
			})
		}
	}

	merged, mergeErrs := merge.MergeMany(docs)
	for _, e := range mergeErrs {
		_ = r.rep.RecordRecoverable(status.StageInit, status.SeverityError, e.Error())
	}
	return merged, nil
}

// runModuleList executes a stage's run list with semaphore gating.
// Module failures are recorded and the list continues; only semaphore
// bookkeeping failures return an error.
func (r *Runner) runModuleList(ctx context.Context, stage string, entries []config.ModuleEntry,
	instanceID, dsName string, merged map[string]any) error {

	plans, resolveErrs := modules.Resolve(entries)
	for _, e := range resolveErrs {
		_ = r.rep.RecordRecoverable(stage, status.SeverityError, e.Error())
	}

	sems, err := r.mgr.SemaphoreStore(instanceID)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "semaphore store unavailable", err)
	}

	env := &modules.Env{
		Config:     merged,
		SystemInfo: r.cfg.SystemInfo,
		InstanceID: instanceID,
		Datasource: dsName,
		DataDir:    r.mgr.DataDir(),
		Root:       r.root,
		Log:        slog.With("stage", stage),
	}

	for _, plan := range plans {
		if err := r.runOne(ctx, stage, plan, sems, env); err != nil {
			return err
		}
	}
	return nil
}

// runOne gates, executes, and marks a single module. The returned error
// is only ever a bookkeeping failure.
func (r *Runner) runOne(ctx context.Context, stage string, plan modules.Plan,
	sems state.SemaphoreStore, env *modules.Env) error {

	name := plan.Module.Name()
	log := env.Log.With("module", name, "frequency", plan.Frequency.String())

	if plan.Frequency != modules.FrequencyAlways {
		ran, err := sems.Check(plan.Frequency.Scope(), name)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInternal, "semaphore check failed", err)
		}
		if ran {
			log.Debug("module already ran, skipping")
			moduleRunsTotal.WithLabelValues(name, resultSkipped).Inc()
			return nil
		}
	}

	log.Info("running module")
	if err := r.invoke(ctx, plan.Module, env); err != nil {
		log.Error("module failed", "error", err)
		moduleRunsTotal.WithLabelValues(name, resultError).Inc()
		_ = r.rep.RecordError(stage, fmt.Sprintf("%s: %v", name, err))
	} else {
		moduleRunsTotal.WithLabelValues(name, resultSuccess).Inc()
	}

	// The semaphore records that the module ran, not that it succeeded.
	if plan.Frequency != modules.FrequencyAlways {
		if err := sems.Mark(plan.Frequency.Scope(), name); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, "semaphore write failed", err)
		}
	}
	return nil
}

// invoke runs a module, converting a panic into an error so one broken
// module cannot take down the stage.
func (r *Runner) invoke(ctx context.Context, m modules.Module, env *modules.Env) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return m.Run(ctx, env)
}

// finishBoot writes the boot-finished marker and flushes metrics. Both
// are best-effort.
func (r *Runner) finishBoot(instanceID string) {
	marker := fmt.Sprintf("%s\n", time.Now().UTC().Format(time.RFC3339))
	if err := state.WriteFileAtomic(r.mgr.BootFinishedPath(instanceID), []byte(marker), 0o644); err != nil {
		slog.Warn("failed to write boot-finished marker", "error", err)
	}

	if err := FlushMetrics(filepath.Join(r.mgr.DataDir(), metricsFile)); err != nil {
		slog.Warn("failed to flush metrics", "error", err)
	}
}
