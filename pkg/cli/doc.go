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

// Package cli implements the cloudseed command-line interface.
//
// # Commands
//
// init - run the boot init stages:
//
//	cloudseed init --local    (before networking: detect, pin identity)
//	cloudseed init            (after networking: crawl, merge, init modules)
//
// modules - run a best-effort module stage:
//
//	cloudseed modules --mode config
//	cloudseed modules --mode final
//
// status - query the persisted boot report:
//
//	cloudseed status [--long] [--wait] [--format json|yaml|table]
//
// clean - reset instance state so the next boot runs fresh:
//
//	cloudseed clean [--remove-once]
//
// # Global Flags
//
//	--state-dir   State tree root (default /var/lib/cloudseed)
//	--config      Base configuration file (default /etc/cloudseed/config.yaml)
//	--config-dir  Overlay directory (default /etc/cloudseed/config.d)
//	--log-level   debug, info, warn, error
//
// # Exit Codes
//
// Stage commands exit 0 on success, 1 on unrecoverable failure, and 2
// when the stage completed but recorded recoverable errors. External
// automation depends on this tri-state contract.
package cli
