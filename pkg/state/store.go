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
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Scope selects which semaphore namespace a marker lives in.
type Scope string

const (
	// ScopeGlobal markers survive instance changes (frequency ONCE).
	ScopeGlobal Scope = "global"
	// ScopeInstance markers are keyed to the current instance id
	// (frequency PER_INSTANCE).
	ScopeInstance Scope = "instance"
)

// SemaphoreStore records which modules have already run for a given scope.
// It is injected into the stage orchestrator so the orchestrator itself
// stays unit-testable against the in-memory implementation.
type SemaphoreStore interface {
	// Check reports whether the named marker exists in the scope.
	Check(scope Scope, name string) (bool, error)
	// Mark creates the named marker. Marking an existing marker is not
	// an error; the timestamp is refreshed.
	Mark(scope Scope, name string) error
	// Clear removes the named marker if present.
	Clear(scope Scope, name string) error
}

// FileSemaphoreStore persists semaphores as marker files, one per
// (scope, name). The file content records the mark time for operators
// inspecting the state tree; only existence carries semantics.
type FileSemaphoreStore struct {
	// GlobalDir holds ScopeGlobal markers.
	GlobalDir string
	// InstanceDir holds ScopeInstance markers; it must point inside the
	// current instance's directory.
	InstanceDir string
}

// NewFileSemaphoreStore creates a store rooted at the given directories,
// creating both if needed.
func NewFileSemaphoreStore(globalDir, instanceDir string) (*FileSemaphoreStore, error) {
	for _, dir := range []string{globalDir, instanceDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create semaphore dir %q: %w", dir, err)
		}
	}
	return &FileSemaphoreStore{
		GlobalDir:   globalDir,
		InstanceDir: instanceDir,
	}, nil
}

func (s *FileSemaphoreStore) path(scope Scope, name string) (string, error) {
	// Module names come from configuration; keep them from escaping the
	// semaphore directory.
	clean := strings.ReplaceAll(name, string(os.PathSeparator), "_")
	if clean == "" || clean == "." || clean == ".." {
		return "", fmt.Errorf("invalid semaphore name %q", name)
	}

	switch scope {
	case ScopeGlobal:
		return filepath.Join(s.GlobalDir, clean), nil
	case ScopeInstance:
		return filepath.Join(s.InstanceDir, clean), nil
	default:
		return "", fmt.Errorf("unknown semaphore scope %q", scope)
	}
}

// Check implements SemaphoreStore.
func (s *FileSemaphoreStore) Check(scope Scope, name string) (bool, error) {
	path, err := s.path(scope, name)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat semaphore %q: %w", path, err)
	}
	return true, nil
}

// Mark implements SemaphoreStore.
func (s *FileSemaphoreStore) Mark(scope Scope, name string) error {
	path, err := s.path(scope, name)
	if err != nil {
		return err
	}
	content := []byte(time.Now().UTC().Format(time.RFC3339) + "\n")
	return WriteFileAtomic(path, content, 0o644)
}

// Clear implements SemaphoreStore.
func (s *FileSemaphoreStore) Clear(scope Scope, name string) error {
	path, err := s.path(scope, name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear semaphore %q: %w", path, err)
	}
	return nil
}

// MemorySemaphoreStore is an in-memory SemaphoreStore for tests.
type MemorySemaphoreStore struct {
	mu      sync.Mutex
	markers map[string]struct{}
}

// NewMemorySemaphoreStore creates an empty in-memory store.
func NewMemorySemaphoreStore() *MemorySemaphoreStore {
	return &MemorySemaphoreStore{markers: make(map[string]struct{})}
}

func memKey(scope Scope, name string) string {
	return string(scope) + "/" + name
}

// Check implements SemaphoreStore.
func (s *MemorySemaphoreStore) Check(scope Scope, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.markers[memKey(scope, name)]
	return ok, nil
}

// Mark implements SemaphoreStore.
func (s *MemorySemaphoreStore) Mark(scope Scope, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers[memKey(scope, name)] = struct{}{}
	return nil
}

// Clear implements SemaphoreStore.
func (s *MemorySemaphoreStore) Clear(scope Scope, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.markers, memKey(scope, name))
	return nil
}
