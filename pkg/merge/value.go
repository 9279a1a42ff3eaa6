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
	"sort"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	// KindScalar holds strings, numbers, booleans, and nil.
	KindScalar Kind = iota
	// KindList holds an ordered sequence of values.
	KindList
	// KindMap holds string-keyed nested values.
	KindMap
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a tagged union over decoded configuration values. Exactly one of
// the variant fields is populated, selected by kind. Values are treated as
// immutable by the merge engine; merging always produces new values.
type Value struct {
	kind   Kind
	scalar any
	list   []*Value
	fields map[string]*Value
}

// NewScalar creates a scalar Value. Numbers, booleans, and nil are all
// scalars; merging treats them as opaque.
func NewScalar(v any) *Value {
	return &Value{kind: KindScalar, scalar: v}
}

// NewList creates a list Value from the given items.
func NewList(items ...*Value) *Value {
	return &Value{kind: KindList, list: items}
}

// NewMap creates an empty map Value.
func NewMap() *Value {
	return &Value{kind: KindMap, fields: make(map[string]*Value)}
}

// FromAny lifts a decoded YAML/JSON value into the tagged union.
// Supported map key types are string and fmt.Stringer-compatible scalars;
// anything else is an error. Unrecognized leaf types are kept as scalars.
func FromAny(v any) (*Value, error) {
	switch tv := v.(type) {
	case nil:
		return NewScalar(nil), nil
	case map[string]any:
		out := NewMap()
		for k, item := range tv {
			child, err := FromAny(item)
			if err != nil {
				return nil, err
			}
			out.fields[k] = child
		}
		return out, nil
	case map[any]any:
		// yaml.v2 style decoding; normalize keys to strings.
		out := NewMap()
		for k, item := range tv {
			key, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("unsupported map key type %T", k)
			}
			child, err := FromAny(item)
			if err != nil {
				return nil, err
			}
			out.fields[key] = child
		}
		return out, nil
	case []any:
		items := make([]*Value, 0, len(tv))
		for _, item := range tv {
			child, err := FromAny(item)
			if err != nil {
				return nil, err
			}
			items = append(items, child)
		}
		return NewList(items...), nil
	default:
		return NewScalar(v), nil
	}
}

// Kind returns the variant held by the value.
func (v *Value) Kind() Kind {
	return v.kind
}

// Scalar returns the scalar payload. Valid only for KindScalar.
func (v *Value) Scalar() any {
	return v.scalar
}

// Items returns the list payload. Valid only for KindList.
func (v *Value) Items() []*Value {
	return v.list
}

// Keys returns the sorted field names. Valid only for KindMap.
// Sorting keeps every map traversal in the merge engine deterministic.
func (v *Value) Keys() []string {
	keys := make([]string, 0, len(v.fields))
	for k := range v.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Field returns the named field and whether it exists. Valid only for KindMap.
func (v *Value) Field(name string) (*Value, bool) {
	f, ok := v.fields[name]
	return f, ok
}

// SetField sets the named field. Valid only for KindMap.
func (v *Value) SetField(name string, val *Value) {
	v.fields[name] = val
}

// DeleteField removes the named field if present. Valid only for KindMap.
func (v *Value) DeleteField(name string) {
	delete(v.fields, name)
}

// Len returns the number of items or fields, or 0 for scalars.
func (v *Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.list)
	case KindMap:
		return len(v.fields)
	default:
		return 0
	}
}

// Copy returns a deep copy of the value.
func (v *Value) Copy() *Value {
	switch v.kind {
	case KindMap:
		out := NewMap()
		for k, f := range v.fields {
			out.fields[k] = f.Copy()
		}
		return out
	case KindList:
		items := make([]*Value, len(v.list))
		for i, item := range v.list {
			items[i] = item.Copy()
		}
		return NewList(items...)
	default:
		return NewScalar(v.scalar)
	}
}

// Interface materializes the value back into plain Go types
// (map[string]any, []any, scalars) suitable for YAML/JSON encoding.
func (v *Value) Interface() any {
	switch v.kind {
	case KindMap:
		out := make(map[string]any, len(v.fields))
		for k, f := range v.fields {
			out[k] = f.Interface()
		}
		return out
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Interface()
		}
		return out
	default:
		return v.scalar
	}
}
