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

package sysfs

import (
	"strings"
)

const defaultCmdlinePath = "/proc/cmdline"

// Kernel command line keys honored by the boot pipeline.
const (
	// cmdlineDatasourceKey forces a datasource, e.g. "ds=nocloud" or
	// "ds=nocloud;seedfrom=/media/seed/". Only the name before any ';'
	// is consulted here.
	cmdlineDatasourceKey = "ds"

	// cmdlineToolKey carries the global switch, e.g. "cloudseed=disabled".
	cmdlineToolKey = "cloudseed"

	cmdlineDisabledValue = "disabled"
)

// Cmdline inspects the kernel command line. The zero value reads
// /proc/cmdline; tests override Path.
type Cmdline struct {
	Path string
}

// Params parses the command line into a key-value map. Flags without a
// value map to an empty string.
func (c *Cmdline) Params() (map[string]string, error) {
	path := c.Path
	if path == "" {
		path = defaultCmdlinePath
	}

	parser := NewParser(
		WithDelimiter(" "),
		WithKVDelimiter("="),
		WithSkipComments(false),
	)
	return parser.GetMap(path)
}

// DatasourceOverride returns the forced datasource name when the command
// line carries a "ds=" entry, and whether one was present. Any settings
// after a ';' (e.g. seedfrom=) are discarded here; the datasource itself
// re-parses them.
func (c *Cmdline) DatasourceOverride() (string, bool, error) {
	params, err := c.Params()
	if err != nil {
		return "", false, err
	}

	raw, ok := params[cmdlineDatasourceKey]
	if !ok || raw == "" {
		return "", false, nil
	}

	name := raw
	if idx := strings.Index(raw, ";"); idx >= 0 {
		name = raw[:idx]
	}
	return strings.ToLower(strings.TrimSpace(name)), true, nil
}

// Disabled reports whether the command line disables the tool entirely
// for this boot.
func (c *Cmdline) Disabled() (bool, error) {
	params, err := c.Params()
	if err != nil {
		return false, err
	}
	return params[cmdlineToolKey] == cmdlineDisabledValue, nil
}
