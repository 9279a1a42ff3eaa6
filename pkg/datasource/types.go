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
	"time"

	"github.com/cloudseed/cloudseed/pkg/defaults"
	"github.com/cloudseed/cloudseed/pkg/sysfs"
)

// Datasource is one platform-specific source of instance metadata.
type Datasource interface {
	// Name returns the stable lowercase identifier used in
	// datasource_list, status output, and semaphore scoping.
	Name() string

	// RequiresNetwork reports whether Crawl needs a configured network.
	// The local boot stage only probes sources that return false.
	RequiresNetwork() bool

	// Detect is the cheap availability predicate: firmware hints, seed
	// files, kernel command line. It must not touch the network.
	Detect(ctx context.Context) (bool, error)

	// Crawl walks the platform's metadata surface. Partial failures on
	// optional assets are recorded in Payload.Recoverable rather than
	// failing the crawl.
	Crawl(ctx context.Context) (*Payload, error)
}

// Payload is the crawled result of one datasource.
type Payload struct {
	// DatasourceName is the source that produced this payload.
	DatasourceName string `json:"datasource" yaml:"datasource"`

	// InstanceID uniquely identifies the instance within the platform.
	// It drives PER_INSTANCE semaphore scoping; a changed InstanceID
	// means a new instance booted from an old image.
	InstanceID string `json:"instance_id" yaml:"instance_id"`

	// Metadata is the platform's structured instance metadata.
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	// UserData is the raw user-supplied payload, possibly gzipped or
	// multipart. Decoding is the crawler's job, not the datasource's.
	UserData []byte `json:"-" yaml:"-"`

	// VendorData and VendorData2 are platform-supplied configuration
	// applied at lower precedence than user data.
	VendorData  []byte `json:"-" yaml:"-"`
	VendorData2 []byte `json:"-" yaml:"-"`

	// Recoverable collects non-fatal crawl problems for status reporting.
	Recoverable []error `json:"-" yaml:"-"`
}

// Settings carries the per-datasource tunables from system configuration
// plus the host interfaces detection predicates read. Zero values select
// the package defaults, so an empty Settings is usable as-is.
type Settings struct {
	// MetadataURLs lists candidate metadata service endpoints for
	// network-backed sources. Order is preference order.
	MetadataURLs []string

	// SeedDir is the filesystem seed location for local sources.
	SeedDir string

	// MaxWait bounds the total time spent fetching one asset including
	// retries. Negative means a single attempt with no retries.
	MaxWait time.Duration

	// Timeout bounds each individual request.
	Timeout time.Duration

	// Retries is the per-asset retry count after the first attempt. Nil
	// selects the default; an explicit zero disables retries.
	Retries *int

	// DMI and Cmdline default to the live host when nil.
	DMI     *sysfs.DMI
	Cmdline *sysfs.Cmdline
}

func (s Settings) withDefaults() Settings {
	if s.MaxWait == 0 {
		s.MaxWait = defaults.CrawlMaxWait
	}
	if s.Timeout == 0 {
		s.Timeout = defaults.CrawlTimeout
	}
	if s.Retries == nil {
		retries := defaults.CrawlRetries
		s.Retries = &retries
	}
	if s.DMI == nil {
		s.DMI = &sysfs.DMI{}
	}
	if s.Cmdline == nil {
		s.Cmdline = &sysfs.Cmdline{}
	}
	return s
}
