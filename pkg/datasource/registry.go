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
	"sort"

	"github.com/cloudseed/cloudseed/pkg/errors"
)

// Known datasource names.
const (
	NameNoCloud = "nocloud"
	NameEC2     = "ec2"
	NameNone    = "none"
)

// constructor builds a datasource from resolved settings.
type constructor func(Settings) Datasource

// registry is the closed set of supported datasources. Unknown names in
// datasource_list are configuration errors, not extension points.
var registry = map[string]constructor{
	NameNoCloud: func(s Settings) Datasource { return NewNoCloud(s) },
	NameEC2:     func(s Settings) Datasource { return NewEC2(s) },
	NameNone:    func(s Settings) Datasource { return NewNone(s) },
}

// Names returns the supported datasource names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New constructs the named datasource.
func New(name string, settings Settings) (Datasource, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, errors.NewWithContext(
			errors.ErrCodeInvalidConfig,
			"unknown datasource",
			map[string]any{"name": name, "supported": Names()},
		)
	}
	return ctor(settings), nil
}

// FromList constructs datasources in the order given by datasource_list,
// resolving per-source settings through the lookup function. A nil lookup
// applies package defaults everywhere.
func FromList(names []string, lookup func(name string) Settings) ([]Datasource, error) {
	sources := make([]Datasource, 0, len(names))
	for _, name := range names {
		var s Settings
		if lookup != nil {
			s = lookup(name)
		}
		ds, err := New(name, s)
		if err != nil {
			return nil, err
		}
		sources = append(sources, ds)
	}
	return sources, nil
}
