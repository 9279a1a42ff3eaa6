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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cloudseed/cloudseed/pkg/errors"
	"github.com/cloudseed/cloudseed/pkg/sysfs"
)

// defaultSeedDir is where installers and image builders drop NoCloud seed
// material.
const defaultSeedDir = "/var/lib/cloudseed/seed/nocloud"

// Seed file names within the seed directory.
const (
	seedMetaData    = "meta-data"
	seedUserData    = "user-data"
	seedVendorData  = "vendor-data"
	seedVendorData2 = "vendor-data2"
)

// NoCloud reads instance configuration from a local seed directory.
// Detection is satisfied by a readable meta-data seed file, a DMI serial
// of the form "ds=nocloud...", or an explicit kernel command line
// override.
type NoCloud struct {
	seedDir string
	dmi     *sysfs.DMI
	cmdline *sysfs.Cmdline
}

// NewNoCloud creates the seed-directory datasource.
func NewNoCloud(s Settings) *NoCloud {
	s = s.withDefaults()
	seedDir := s.SeedDir
	if seedDir == "" {
		seedDir = defaultSeedDir
	}
	return &NoCloud{
		seedDir: seedDir,
		dmi:     s.DMI,
		cmdline: s.Cmdline,
	}
}

func (n *NoCloud) Name() string { return NameNoCloud }

func (n *NoCloud) RequiresNetwork() bool { return false }

func (n *NoCloud) Detect(_ context.Context) (bool, error) {
	if _, err := os.Stat(filepath.Join(n.seedDir, seedMetaData)); err == nil {
		return true, nil
	}

	serial, err := n.dmi.GetLower(sysfs.DMISerialNumber)
	if err == nil && strings.HasPrefix(serial, "ds=nocloud") {
		return true, nil
	}

	name, ok, err := n.cmdline.DatasourceOverride()
	if err == nil && ok && name == NameNoCloud {
		return true, nil
	}

	return false, nil
}

func (n *NoCloud) Crawl(_ context.Context) (*Payload, error) {
	raw, err := os.ReadFile(filepath.Join(n.seedDir, seedMetaData))
	if err != nil {
		return nil, errors.WrapWithContext(
			errors.ErrCodeNotFound,
			"seed meta-data not readable",
			err,
			map[string]any{"seed_dir": n.seedDir},
		)
	}

	var meta map[string]any
	if err := yaml.Unmarshal(raw, &meta); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, "malformed seed meta-data", err)
	}

	p := &Payload{
		DatasourceName: NameNoCloud,
		Metadata:       meta,
		InstanceID:     stringField(meta, "instance-id"),
	}
	if p.InstanceID == "" {
		return nil, errors.NewWithContext(
			errors.ErrCodeInvalidConfig,
			"seed meta-data missing instance-id",
			map[string]any{"seed_dir": n.seedDir},
		)
	}

	// Optional seed assets. Absence is normal; unreadability is worth
	// surfacing but must not fail the boot.
	p.UserData = n.optionalSeed(seedUserData, p)
	p.VendorData = n.optionalSeed(seedVendorData, p)
	p.VendorData2 = n.optionalSeed(seedVendorData2, p)

	return p, nil
}

func (n *NoCloud) optionalSeed(name string, p *Payload) []byte {
	data, err := os.ReadFile(filepath.Join(n.seedDir, name))
	if err != nil {
		if !os.IsNotExist(err) {
			p.Recoverable = append(p.Recoverable,
				fmt.Errorf("unreadable seed file %s: %w", name, err))
		}
		return nil
	}
	return data
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
