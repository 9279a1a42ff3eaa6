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
)

// Declaration keys recognized in a document. merge_how is preferred;
// merge_type is the legacy spelling. Both are stripped from the document
// before it is merged.
const (
	DeclarationKey       = "merge_how"
	LegacyDeclarationKey = "merge_type"
)

// Apply merges src into dst under the given strategy and returns the result.
// Neither input is mutated. Dispatch is on the destination's variant:
// map+map recurses, list+list and scalar+scalar go to their mergers, and a
// variant mismatch keeps the destination value.
func Apply(s Strategy, dst, src *Value) *Value {
	if dst == nil {
		if src == nil {
			return nil
		}
		return src.Copy()
	}
	if src == nil {
		return dst.Copy()
	}

	switch dst.Kind() {
	case KindMap:
		if src.Kind() != KindMap {
			return dst.Copy()
		}
		return mergeMaps(s, dst, src)
	case KindList:
		if src.Kind() != KindList {
			return dst.Copy()
		}
		return mergeLists(s.List, dst, src)
	default:
		if src.Kind() != KindScalar {
			return dst.Copy()
		}
		return mergeScalars(s.Str, dst, src)
	}
}

// mergeMaps merges two map values key by key. Keys only present in one
// side are carried over; conflicting keys are resolved per the dict
// options and the destination value's variant.
func mergeMaps(s Strategy, dst, src *Value) *Value {
	out := NewMap()
	for _, k := range dst.Keys() {
		f, _ := dst.Field(k)
		out.SetField(k, f.Copy())
	}

	for _, k := range src.Keys() {
		incoming, _ := src.Field(k)
		existing, ok := out.Field(k)
		if !ok {
			out.SetField(k, incoming.Copy())
			continue
		}
		out.SetField(k, mergeConflict(s, existing, incoming))
	}
	return out
}

// mergeConflict resolves a single key conflict inside a map merge.
func mergeConflict(s Strategy, existing, incoming *Value) *Value {
	// Nested maps recurse regardless of mode; no_replace applies at the
	// leaves, not to whole subtrees.
	if existing.Kind() == KindMap && incoming.Kind() == KindMap {
		return mergeMaps(s, existing, incoming)
	}

	if s.Dict.NoReplace {
		switch {
		case existing.Kind() == KindList && incoming.Kind() == KindList && s.Dict.RecurseList:
			return mergeLists(s.List, existing, incoming)
		case existing.Kind() == KindScalar && incoming.Kind() == KindScalar && s.Dict.RecurseStr:
			return mergeScalars(s.Str, existing, incoming)
		default:
			return existing.Copy()
		}
	}

	switch {
	case existing.Kind() == KindList && incoming.Kind() == KindList:
		return mergeLists(s.List, existing, incoming)
	case existing.Kind() == KindScalar && incoming.Kind() == KindScalar:
		return mergeScalars(s.Str, existing, incoming)
	default:
		// Variant mismatch: keep the original, discard the incoming.
		return existing.Copy()
	}
}

func mergeLists(mode ListMode, dst, src *Value) *Value {
	switch mode {
	case ListAppend:
		items := make([]*Value, 0, dst.Len()+src.Len())
		for _, item := range dst.Items() {
			items = append(items, item.Copy())
		}
		for _, item := range src.Items() {
			items = append(items, item.Copy())
		}
		return NewList(items...)
	case ListPrepend:
		items := make([]*Value, 0, dst.Len()+src.Len())
		for _, item := range src.Items() {
			items = append(items, item.Copy())
		}
		for _, item := range dst.Items() {
			items = append(items, item.Copy())
		}
		return NewList(items...)
	case ListNoReplace:
		return dst.Copy()
	default:
		return src.Copy()
	}
}

// mergeScalars applies string-like replace-or-keep rules. Append only
// applies when both sides are strings; numbers and booleans are opaque and
// can only be kept or replaced.
func mergeScalars(mode StrMode, dst, src *Value) *Value {
	switch mode {
	case StrAppend:
		ds, dok := dst.Scalar().(string)
		ss, sok := src.Scalar().(string)
		if dok && sok {
			return NewScalar(ds + ss)
		}
		return src.Copy()
	case StrNoReplace:
		return dst.Copy()
	default:
		return src.Copy()
	}
}

// Document is one ordered merge input: a decoded mapping plus the position
// label used in error messages (e.g. "base", "vendor-data", "user-data").
type Document struct {
	Name string
	Data map[string]any
}

// MergeMany folds the ordered document list into a single mapping,
// threading the current strategy alongside the accumulated result. The
// strategy declared by document N (under merge_how/merge_type) governs the
// merge of document N+1 and persists until another document re-declares it.
// An invalid declaration is reported but does not abort the fold; the
// current strategy stays in effect.
func MergeMany(docs []Document) (map[string]any, []error) {
	return MergeManyWith(DefaultStrategy(), docs)
}

// MergeManyWith is MergeMany with an explicit initial strategy, used when
// the caller has an out-of-band strategy declaration (e.g. from base
// configuration) that should govern the first merge.
func MergeManyWith(initial Strategy, docs []Document) (map[string]any, []error) {
	var errs []error

	strategy := initial
	acc := NewMap()

	for _, doc := range docs {
		if doc.Data == nil {
			continue
		}

		val, err := FromAny(doc.Data)
		if err != nil {
			errs = append(errs, fmt.Errorf("document %q: %w", doc.Name, err))
			continue
		}

		next, declErr := extractDeclaration(val)

		acc = Apply(strategy, acc, val)

		if declErr != nil {
			errs = append(errs, fmt.Errorf("document %q: %w", doc.Name, declErr))
		} else if next != nil {
			strategy = *next
		}
	}

	out, ok := acc.Interface().(map[string]any)
	if !ok {
		// acc starts as a map and map+map merges stay maps.
		return map[string]any{}, errs
	}
	return out, errs
}

// extractDeclaration removes any merge declaration from the document and
// returns the strategy it names, or nil when the document declares none.
func extractDeclaration(doc *Value) (*Strategy, error) {
	if doc.Kind() != KindMap {
		return nil, nil
	}

	// Both spellings are stripped even when only one is honored, so a
	// declaration never survives as ordinary data.
	var found *Value
	for _, key := range []string{DeclarationKey, LegacyDeclarationKey} {
		decl, ok := doc.Field(key)
		if !ok {
			continue
		}
		doc.DeleteField(key)
		if found == nil {
			found = decl
		}
	}
	if found == nil {
		return nil, nil
	}

	s, err := StrategyFromValue(found)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
