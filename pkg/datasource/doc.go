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

// Package datasource defines the instance metadata sources cloudseed can
// boot from and the prober that selects one.
//
// A datasource answers two questions: "am I running on this platform?"
// (Detect, a cheap local predicate over firmware and seed files) and
// "what does the platform say about this instance?" (Crawl, which walks
// the platform's metadata surface into a Payload). The prober runs the
// configured candidates in order and commits to the first one that
// detects, falling back to the synthetic "none" source so a boot always
// has an identity.
package datasource
