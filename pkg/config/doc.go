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

// Package config loads the system configuration: the base file at
// /etc/cloudseed/config.yaml folded with the sorted overlays under
// /etc/cloudseed/config.d. Overlays merge through the same engine that
// merges instance data, so operators get one set of semantics.
//
// System configuration is the operator's channel and outranks instance
// data: keys listed in ProtectedKeys never take values from user data.
package config
