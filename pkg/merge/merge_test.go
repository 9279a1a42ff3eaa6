package merge

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeManyDefaultReplacesLists(t *testing.T) {
	// Default strategy: incoming list replaces the existing one wholesale.
	got, errs := MergeMany([]Document{
		{Name: "base", Data: map[string]any{"runcmd": []any{"a"}}},
		{Name: "user-data", Data: map[string]any{"runcmd": []any{"c"}}},
	})
	require.Empty(t, errs)
	assert.Equal(t, []any{"c"}, got["runcmd"])
}

func TestMergeManyListAppend(t *testing.T) {
	got, errs := MergeManyWith(mustParse(t, "list(append)"), []Document{
		{Name: "base", Data: map[string]any{"runcmd": []any{"a"}}},
		{Name: "vendor-data", Data: map[string]any{"runcmd": []any{"b"}}},
	})
	require.Empty(t, errs)
	assert.Equal(t, []any{"a", "b"}, got["runcmd"])
}

func TestMergeManyDeclarationGovernsNextDocument(t *testing.T) {
	// The declaration carried by the vendor document must NOT affect how
	// the vendor document itself is merged; it applies to user-data only.
	got, errs := MergeMany([]Document{
		{Name: "base", Data: map[string]any{"runcmd": []any{"a"}}},
		{Name: "vendor-data", Data: map[string]any{
			"merge_how": "list(append)",
			"runcmd":    []any{"b"},
		}},
		{Name: "user-data", Data: map[string]any{"runcmd": []any{"c"}}},
	})
	require.Empty(t, errs)

	// vendor replaced base (default strategy), then user appended.
	assert.Equal(t, []any{"b", "c"}, got["runcmd"])
	_, declLeaked := got["merge_how"]
	assert.False(t, declLeaked, "merge declaration must be stripped")
}

func TestMergeManyDeclarationPersists(t *testing.T) {
	got, errs := MergeMany([]Document{
		{Name: "d1", Data: map[string]any{
			"merge_how": "list(append)",
			"l":         []any{"a"},
		}},
		{Name: "d2", Data: map[string]any{"l": []any{"b"}}},
		{Name: "d3", Data: map[string]any{"l": []any{"c"}}},
	})
	require.Empty(t, errs)
	assert.Equal(t, []any{"a", "b", "c"}, got["l"])
}

func TestMergeManyLegacyDeclarationKey(t *testing.T) {
	got, errs := MergeMany([]Document{
		{Name: "d1", Data: map[string]any{
			"merge_type": "str(append)",
			"motd":       "hello",
		}},
		{Name: "d2", Data: map[string]any{"motd": " world"}},
	})
	require.Empty(t, errs)
	assert.Equal(t, "hello world", got["motd"])
}

func TestMergeManyBothDeclarationKeysStripped(t *testing.T) {
	got, errs := MergeMany([]Document{
		{Name: "d1", Data: map[string]any{
			"merge_how":  "list(append)",
			"merge_type": "list(prepend)",
			"runcmd":     []any{"a"},
		}},
		{Name: "d2", Data: map[string]any{"runcmd": []any{"b"}}},
	})
	require.Empty(t, errs)

	// merge_how wins, and neither spelling survives as data.
	assert.Equal(t, []any{"a", "b"}, got["runcmd"])
	_, leaked := got["merge_how"]
	assert.False(t, leaked)
	_, leaked = got["merge_type"]
	assert.False(t, leaked, "ignored legacy declaration must still be stripped")
}

func TestMergeManyInvalidDeclarationIsRecoverable(t *testing.T) {
	got, errs := MergeMany([]Document{
		{Name: "d1", Data: map[string]any{
			"merge_how": "bogus(nope)",
			"k":         "v1",
		}},
		{Name: "d2", Data: map[string]any{"k": "v2"}},
	})
	require.Len(t, errs, 1)
	// Fold continued under the prior (default) strategy.
	assert.Equal(t, "v2", got["k"])
}

func TestMergeManyDeterministic(t *testing.T) {
	docs := []Document{
		{Name: "base", Data: map[string]any{
			"system_info": map[string]any{"distro": "debian"},
			"runcmd":      []any{"a", "b"},
			"hostname":    "node0",
		}},
		{Name: "vendor-data", Data: map[string]any{
			"merge_how": "dict(no_replace,recurse_list)+list(append)",
			"runcmd":    []any{"v"},
			"packages":  []any{"curl"},
		}},
		{Name: "user-data", Data: map[string]any{
			"runcmd":   []any{"u"},
			"hostname": "custom",
		}},
	}

	first, errs1 := MergeMany(docs)
	second, errs2 := MergeMany(docs)
	require.Empty(t, errs1)
	require.Empty(t, errs2)

	j1, err := json.Marshal(first)
	require.NoError(t, err)
	j2, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(j1), string(j2), "merge must be byte-identical across runs")
}

func TestApplyNestedDictRecursion(t *testing.T) {
	dst := fromAny(t, map[string]any{
		"system_info": map[string]any{
			"distro":       "debian",
			"default_user": map[string]any{"name": "admin"},
		},
	})
	src := fromAny(t, map[string]any{
		"system_info": map[string]any{
			"default_user": map[string]any{"shell": "/bin/bash"},
		},
	})

	got := Apply(DefaultStrategy(), dst, src).Interface().(map[string]any)
	si := got["system_info"].(map[string]any)
	assert.Equal(t, "debian", si["distro"])
	user := si["default_user"].(map[string]any)
	assert.Equal(t, "admin", user["name"])
	assert.Equal(t, "/bin/bash", user["shell"])
}

func TestApplyNoReplaceKeepsExistingLeaves(t *testing.T) {
	dst := fromAny(t, map[string]any{"hostname": "node0", "runcmd": []any{"a"}})
	src := fromAny(t, map[string]any{"hostname": "other", "runcmd": []any{"b"}})

	got := Apply(mustParse(t, "dict(no_replace)"), dst, src).Interface().(map[string]any)
	assert.Equal(t, "node0", got["hostname"])
	assert.Equal(t, []any{"a"}, got["runcmd"])
}

func TestApplyNoReplaceWithRecurseList(t *testing.T) {
	dst := fromAny(t, map[string]any{"runcmd": []any{"a"}})
	src := fromAny(t, map[string]any{"runcmd": []any{"b"}})

	got := Apply(mustParse(t, "dict(no_replace,recurse_list)+list(append)"), dst, src).
		Interface().(map[string]any)
	assert.Equal(t, []any{"a", "b"}, got["runcmd"])
}

func TestApplyVariantMismatchKeepsOriginal(t *testing.T) {
	tests := []struct {
		name string
		dst  any
		src  any
	}{
		{"map vs scalar", map[string]any{"k": "v"}, "scalar"},
		{"list vs map", []any{"a"}, map[string]any{"k": "v"}},
		{"scalar vs list", "s", []any{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := fromAny(t, map[string]any{"k": tt.dst})
			src := fromAny(t, map[string]any{"k": tt.src})
			got := Apply(DefaultStrategy(), dst, src).Interface().(map[string]any)
			assert.Equal(t, tt.dst, got["k"])
		})
	}
}

func TestApplyNumbersAreOpaqueScalars(t *testing.T) {
	dst := fromAny(t, map[string]any{"count": 1})
	src := fromAny(t, map[string]any{"count": 2})

	// Default: replace.
	got := Apply(DefaultStrategy(), dst, src).Interface().(map[string]any)
	assert.Equal(t, 2, got["count"])

	// Append degrades to replace for non-strings; no arithmetic merge.
	got = Apply(mustParse(t, "str(append)"), dst, src).Interface().(map[string]any)
	assert.Equal(t, 2, got["count"])
}

func TestApplyListPrepend(t *testing.T) {
	dst := fromAny(t, map[string]any{"l": []any{"a"}})
	src := fromAny(t, map[string]any{"l": []any{"b"}})

	got := Apply(mustParse(t, "list(prepend)"), dst, src).Interface().(map[string]any)
	assert.Equal(t, []any{"b", "a"}, got["l"])
}

func TestApplyDoesNotMutateInputs(t *testing.T) {
	dst := fromAny(t, map[string]any{"l": []any{"a"}, "m": map[string]any{"k": "v"}})
	src := fromAny(t, map[string]any{"l": []any{"b"}, "m": map[string]any{"k2": "v2"}})

	_ = Apply(mustParse(t, "list(append)"), dst, src)

	assert.Equal(t, []any{"a"}, dst.Interface().(map[string]any)["l"])
	assert.Equal(t, []any{"b"}, src.Interface().(map[string]any)["l"])
}

func fromAny(t *testing.T, v any) *Value {
	t.Helper()
	val, err := FromAny(v)
	require.NoError(t, err)
	return val
}

func mustParse(t *testing.T, spec string) Strategy {
	t.Helper()
	s, err := ParseStrategy(spec)
	require.NoError(t, err)
	return s
}
