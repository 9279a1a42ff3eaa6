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

package state

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// File and directory names inside the state tree.
const (
	dataDirName      = "data"
	semDirName       = "sem"
	instancesDirName = "instances"
	instanceLinkName = "instance"

	instanceIDFile     = "instance-id"
	previousIDFile     = "previous-instance-id"
	datasourceFile     = "datasource"
	mergedConfigFile   = "merged.yaml"
	bootFinishedFile   = "boot-finished"
	statusFileName     = "status.json"
	prevStatusFileName = "status.json.prev"
)

// Manager owns the state tree for one boot. It is not safe for concurrent
// use; stages run sequentially and share one Manager.
type Manager struct {
	root string
}

// NewManager creates a Manager rooted at the given directory and ensures
// the base layout exists.
func NewManager(root string) (*Manager, error) {
	m := &Manager{root: root}
	for _, dir := range []string{
		root,
		m.DataDir(),
		m.GlobalSemDir(),
		filepath.Join(root, instancesDirName),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create state dir %q: %w", dir, err)
		}
	}
	return m, nil
}

// Root returns the state tree root.
func (m *Manager) Root() string { return m.root }

// DataDir returns the cross-instance data directory.
func (m *Manager) DataDir() string { return filepath.Join(m.root, dataDirName) }

// GlobalSemDir returns the directory holding frequency-ONCE semaphores.
func (m *Manager) GlobalSemDir() string { return filepath.Join(m.root, semDirName) }

// InstanceDir returns the directory for the given instance id.
func (m *Manager) InstanceDir(instanceID string) string {
	return filepath.Join(m.root, instancesDirName, sanitizeInstanceID(instanceID))
}

// InstanceSemDir returns the per-instance semaphore directory.
func (m *Manager) InstanceSemDir(instanceID string) string {
	return filepath.Join(m.InstanceDir(instanceID), semDirName)
}

// StatusPath returns the structured status file location.
func (m *Manager) StatusPath() string {
	return filepath.Join(m.DataDir(), statusFileName)
}

// PreviousStatusPath returns where the prior boot's status is parked.
func (m *Manager) PreviousStatusPath() string {
	return filepath.Join(m.DataDir(), prevStatusFileName)
}

// BootFinishedPath returns the per-instance boot-finished marker location.
func (m *Manager) BootFinishedPath(instanceID string) string {
	return filepath.Join(m.InstanceDir(instanceID), bootFinishedFile)
}

// sanitizeInstanceID keeps cloud-supplied ids from escaping the instances
// directory. Ids are opaque strings; only path separators are rewritten.
func sanitizeInstanceID(id string) string {
	return strings.ReplaceAll(strings.TrimSpace(id), string(os.PathSeparator), "_")
}

// CurrentInstanceID returns the instance id recorded by the last
// SetInstance call, or "" when no instance has ever been established.
func (m *Manager) CurrentInstanceID() (string, error) {
	return m.readDataFile(instanceIDFile)
}

// PreviousInstanceID returns the instance id that was current before the
// most recent instance change, or "" when there was none.
func (m *Manager) PreviousInstanceID() (string, error) {
	return m.readDataFile(previousIDFile)
}

func (m *Manager) readDataFile(name string) (string, error) {
	b, err := os.ReadFile(filepath.Join(m.DataDir(), name))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read %s: %w", name, err)
	}
	return strings.TrimSpace(string(b)), nil
}

// SetInstance establishes instanceID as the current instance: the instance
// directory is created, the current-instance pointer is swung, and the
// selected datasource name is cached there. When the id differs from the
// prior boot's, the old id is preserved under previous-instance-id and the
// old instance directory is left untouched (superseded, not destroyed).
// It reports whether the instance id changed.
func (m *Manager) SetInstance(instanceID, datasourceName string) (bool, error) {
	if strings.TrimSpace(instanceID) == "" {
		return false, fmt.Errorf("instance id cannot be empty")
	}

	prior, err := m.CurrentInstanceID()
	if err != nil {
		return false, err
	}
	changed := prior != "" && prior != instanceID

	instDir := m.InstanceDir(instanceID)
	for _, dir := range []string{instDir, filepath.Join(instDir, semDirName)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("failed to create instance dir %q: %w", dir, err)
		}
	}

	if changed {
		slog.Info("instance id changed",
			"previous", prior,
			"current", instanceID)
		if err := WriteFileAtomic(
			filepath.Join(m.DataDir(), previousIDFile),
			[]byte(prior+"\n"), 0o644); err != nil {
			return false, err
		}
	}

	if err := WriteFileAtomic(
		filepath.Join(m.DataDir(), instanceIDFile),
		[]byte(instanceID+"\n"), 0o644); err != nil {
		return false, err
	}

	if err := WriteFileAtomic(
		filepath.Join(instDir, datasourceFile),
		[]byte(datasourceName+"\n"), 0o644); err != nil {
		return false, err
	}

	// Swing the convenience symlink; a failure here is cosmetic.
	link := filepath.Join(m.root, instanceLinkName)
	_ = os.Remove(link)
	if err := os.Symlink(instDir, link); err != nil {
		slog.Warn("failed to update instance symlink", "error", err)
	}

	return changed, nil
}

// CachedDatasource returns the datasource name recorded for the instance,
// or "" when none is cached.
func (m *Manager) CachedDatasource(instanceID string) (string, error) {
	b, err := os.ReadFile(filepath.Join(m.InstanceDir(instanceID), datasourceFile))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read cached datasource: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// WriteMergedConfig dumps the merged configuration into the instance
// directory for operator inspection and later stages.
func (m *Manager) WriteMergedConfig(instanceID string, cfg map[string]any) error {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal merged config: %w", err)
	}
	return WriteFileAtomic(
		filepath.Join(m.InstanceDir(instanceID), mergedConfigFile), b, 0o600)
}

// ReadMergedConfig loads the merged configuration dumped by an earlier
// stage of this boot.
func (m *Manager) ReadMergedConfig(instanceID string) (map[string]any, error) {
	b, err := os.ReadFile(filepath.Join(m.InstanceDir(instanceID), mergedConfigFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read merged config: %w", err)
	}
	var out map[string]any
	if err := yaml.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("failed to parse merged config: %w", err)
	}
	return out, nil
}

// SemaphoreStore returns the filesystem-backed store for the instance.
func (m *Manager) SemaphoreStore(instanceID string) (*FileSemaphoreStore, error) {
	return NewFileSemaphoreStore(m.GlobalSemDir(), m.InstanceSemDir(instanceID))
}

// CleanOptions selects what Clean removes beyond instance state.
type CleanOptions struct {
	// RemoveGlobalSemaphores also clears frequency-ONCE markers so
	// run-once modules run again on the next boot.
	RemoveGlobalSemaphores bool
}

// Clean removes all instance state, the current-instance pointer, and the
// persisted status, returning the machine to a first-boot posture. This is
// the only operation that destroys instance state.
func (m *Manager) Clean(opts CleanOptions) error {
	targets := []string{
		filepath.Join(m.root, instancesDirName),
		filepath.Join(m.root, instanceLinkName),
		m.DataDir(),
	}
	if opts.RemoveGlobalSemaphores {
		targets = append(targets, m.GlobalSemDir())
	}

	for _, target := range targets {
		if err := os.RemoveAll(target); err != nil {
			return fmt.Errorf("failed to remove %q: %w", target, err)
		}
	}

	// Restore the base layout so the next boot starts clean.
	for _, dir := range []string{m.DataDir(), m.GlobalSemDir(), filepath.Join(m.root, instancesDirName)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to recreate state dir %q: %w", dir, err)
		}
	}
	return nil
}
