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

package defaults

import "time"

// Datasource probe budgets.
const (
	// ProbeMaxWait is the default total time budget for probing a single
	// datasource candidate, shared across all attempts.
	ProbeMaxWait = 120 * time.Second

	// ProbeTimeout is the default timeout for a single probe attempt.
	ProbeTimeout = 10 * time.Second

	// ProbeRetryInterval is the minimum interval between probe attempts
	// against the same datasource.
	ProbeRetryInterval = 1 * time.Second
)

// Metadata crawl budgets.
const (
	// CrawlMaxWait is the default total time budget for crawling the
	// selected datasource's metadata endpoints.
	CrawlMaxWait = 120 * time.Second

	// CrawlTimeout is the per-request timeout for metadata fetches.
	CrawlTimeout = 10 * time.Second

	// CrawlRetries is the default number of retries for a single URL
	// within the overall max-wait budget.
	CrawlRetries = 5
)

// HTTP client timeouts for outbound metadata requests.
const (
	// HTTPConnectTimeout is the timeout for establishing connections.
	HTTPConnectTimeout = 5 * time.Second

	// HTTPResponseHeaderTimeout is the timeout for reading response headers.
	HTTPResponseHeaderTimeout = 10 * time.Second

	// HTTPKeepAlive is the keep-alive duration for connections.
	HTTPKeepAlive = 30 * time.Second
)

// Stage execution limits.
const (
	// StageTimeout bounds a single boot stage end to end. Stages that
	// exceed this are treated as critical failures.
	StageTimeout = 15 * time.Minute

	// StatusWaitPollInterval is the poll interval used by "status --wait".
	StatusWaitPollInterval = 250 * time.Millisecond
)

// Filesystem conventions. These are defaults only; every path is
// overridable through configuration or flags.
const (
	// StateDir is the root of the persisted instance state tree.
	StateDir = "/var/lib/cloudseed"

	// ConfigFile is the primary base configuration file.
	ConfigFile = "/etc/cloudseed/config.yaml"

	// ConfigOverlayDir holds overlay configuration fragments, merged in
	// lexical order after ConfigFile.
	ConfigOverlayDir = "/etc/cloudseed/config.d"
)
