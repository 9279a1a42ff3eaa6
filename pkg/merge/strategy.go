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

package merge

import (
	"fmt"
	"strings"
)

// ListMode selects how conflicting lists are combined.
type ListMode string

const (
	// ListReplace discards the existing list in favor of the incoming one.
	ListReplace ListMode = "replace"
	// ListAppend appends incoming items after existing ones.
	ListAppend ListMode = "append"
	// ListPrepend inserts incoming items before existing ones.
	ListPrepend ListMode = "prepend"
	// ListNoReplace keeps the existing list and discards the incoming one.
	ListNoReplace ListMode = "no_replace"
)

// StrMode selects how conflicting strings are combined.
type StrMode string

const (
	// StrReplace discards the existing string in favor of the incoming one.
	StrReplace StrMode = "replace"
	// StrAppend concatenates the incoming string after the existing one.
	StrAppend StrMode = "append"
	// StrNoReplace keeps the existing string and discards the incoming one.
	StrNoReplace StrMode = "no_replace"
)

// DictOpts configures the dict merger.
type DictOpts struct {
	// NoReplace keeps existing values on key conflicts instead of
	// dispatching to the per-type mergers. Nested maps still recurse.
	NoReplace bool
	// RecurseList re-enables list merger dispatch for conflicting list
	// values while NoReplace is set.
	RecurseList bool
	// RecurseStr re-enables string merger dispatch for conflicting string
	// values while NoReplace is set.
	RecurseStr bool
}

// Strategy is the complete per-type merge configuration threaded through a
// merge fold. The zero value is not valid; use DefaultStrategy.
type Strategy struct {
	Dict DictOpts
	List ListMode
	Str  StrMode
}

// DefaultStrategy returns the strategy used when a document declares none:
// nested dicts recurse, lists and strings are replaced wholesale by the
// incoming value.
func DefaultStrategy() Strategy {
	return Strategy{
		Dict: DictOpts{},
		List: ListReplace,
		Str:  StrReplace,
	}
}

// String renders the strategy in the grammar accepted by ParseStrategy.
func (s Strategy) String() string {
	dictOpts := make([]string, 0, 3)
	if s.Dict.NoReplace {
		dictOpts = append(dictOpts, "no_replace")
	}
	if s.Dict.RecurseList {
		dictOpts = append(dictOpts, "recurse_list")
	}
	if s.Dict.RecurseStr {
		dictOpts = append(dictOpts, "recurse_str")
	}
	return fmt.Sprintf("dict(%s)+list(%s)+str(%s)",
		strings.Join(dictOpts, ","), s.List, s.Str)
}

// ParseStrategy parses a merge strategy declaration such as:
//
//	list(append)+dict(no_replace,recurse_list)+str()
//
// Segments may appear in any order; omitted segments keep their defaults.
// Unknown merger names or options are errors so that a typo in user data
// surfaces as a recoverable error instead of silently changing semantics.
func ParseStrategy(spec string) (Strategy, error) {
	out := DefaultStrategy()

	spec = strings.TrimSpace(spec)
	if spec == "" {
		return out, nil
	}

	for _, segment := range strings.Split(spec, "+") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}

		name := segment
		var opts []string
		if open := strings.Index(segment, "("); open >= 0 {
			if !strings.HasSuffix(segment, ")") {
				return out, fmt.Errorf("malformed merger segment %q", segment)
			}
			name = strings.TrimSpace(segment[:open])
			inner := segment[open+1 : len(segment)-1]
			for _, opt := range strings.Split(inner, ",") {
				opt = strings.TrimSpace(opt)
				if opt != "" {
					opts = append(opts, opt)
				}
			}
		}

		switch name {
		case "dict":
			for _, opt := range opts {
				switch opt {
				case "no_replace":
					out.Dict.NoReplace = true
				case "replace":
					out.Dict.NoReplace = false
				case "recurse_list":
					out.Dict.RecurseList = true
				case "recurse_str":
					out.Dict.RecurseStr = true
				case "recurse_dict":
					// Nested dicts always recurse; accepted for
					// compatibility with legacy declarations.
				default:
					return out, fmt.Errorf("unknown dict merger option %q", opt)
				}
			}
		case "list":
			for _, opt := range opts {
				switch ListMode(opt) {
				case ListReplace, ListAppend, ListPrepend, ListNoReplace:
					out.List = ListMode(opt)
				default:
					return out, fmt.Errorf("unknown list merger option %q", opt)
				}
			}
		case "str":
			for _, opt := range opts {
				switch StrMode(opt) {
				case StrReplace, StrAppend, StrNoReplace:
					out.Str = StrMode(opt)
				default:
					return out, fmt.Errorf("unknown str merger option %q", opt)
				}
			}
		default:
			return out, fmt.Errorf("unknown merger %q", name)
		}
	}

	return out, nil
}

// StrategyFromValue extracts a strategy from a document's declaration value.
// Two forms are accepted: the compact string grammar, and the structured
// list form:
//
//	merge_how:
//	  - name: list
//	    settings: [append]
//	  - name: dict
//	    settings: [no_replace, recurse_list]
func StrategyFromValue(v *Value) (Strategy, error) {
	switch v.Kind() {
	case KindScalar:
		s, ok := v.Scalar().(string)
		if !ok {
			return DefaultStrategy(), fmt.Errorf("merge declaration must be a string, got %T", v.Scalar())
		}
		return ParseStrategy(s)

	case KindList:
		segments := make([]string, 0, v.Len())
		for _, item := range v.Items() {
			if item.Kind() != KindMap {
				return DefaultStrategy(), fmt.Errorf("structured merge declaration entries must be maps, got %s", item.Kind())
			}
			nameVal, ok := item.Field("name")
			if !ok || nameVal.Kind() != KindScalar {
				return DefaultStrategy(), fmt.Errorf("structured merge declaration entry missing name")
			}
			name, _ := nameVal.Scalar().(string)

			var settings []string
			if settingsVal, ok := item.Field("settings"); ok && settingsVal.Kind() == KindList {
				for _, sv := range settingsVal.Items() {
					if s, ok := sv.Scalar().(string); ok && sv.Kind() == KindScalar {
						settings = append(settings, s)
					}
				}
			}
			segments = append(segments, fmt.Sprintf("%s(%s)", name, strings.Join(settings, ",")))
		}
		return ParseStrategy(strings.Join(segments, "+"))

	default:
		return DefaultStrategy(), fmt.Errorf("unsupported merge declaration kind %s", v.Kind())
	}
}
