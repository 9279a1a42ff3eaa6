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

// Package status persists and queries the structured boot report.
//
// The report lives at <state>/data/status.json and reflects the current
// boot only; the previous boot's report is parked at status.json.prev
// when a new boot begins. Every write is atomic so external tooling
// polling the file never observes a truncated document. Exit codes
// follow the tri-state contract automation depends on: 0 success,
// 1 unrecoverable failure, 2 completed with recoverable errors.
package status
