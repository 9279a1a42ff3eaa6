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

// Package stages orchestrates the boot pipeline.
//
// Four stage processes run in strict order: init-local (datasource
// detection before networking, so stale configuration cannot leak onto
// the wire), init (network detection, metadata crawl, config merge, and
// the cloud_init_modules list), modules-config, and modules-final. The
// two init stages block boot progress; the module stages are
// best-effort. Module runs are gated by persisted semaphores according
// to each module's frequency, and every failure inside a module is
// caught and recorded rather than aborting the stage. Only bookkeeping
// failures (semaphores or status unwritable, datasource unusable during
// init) escalate to a critical exit.
package stages
