package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		want    Strategy
		wantErr bool
	}{
		{
			name: "empty spec is default",
			spec: "",
			want: DefaultStrategy(),
		},
		{
			name: "full declaration",
			spec: "list(append)+dict(no_replace,recurse_list)+str()",
			want: Strategy{
				Dict: DictOpts{NoReplace: true, RecurseList: true},
				List: ListAppend,
				Str:  StrReplace,
			},
		},
		{
			name: "segments in any order",
			spec: "str(append)+list(prepend)",
			want: Strategy{List: ListPrepend, Str: StrAppend},
		},
		{
			name: "explicit replace resets no_replace",
			spec: "dict(no_replace,replace)",
			want: DefaultStrategy(),
		},
		{
			name: "whitespace tolerated",
			spec: " list( append ) + dict( recurse_str ) ",
			want: Strategy{Dict: DictOpts{RecurseStr: true}, List: ListAppend, Str: StrReplace},
		},
		{
			name:    "unknown merger",
			spec:    "set(union)",
			wantErr: true,
		},
		{
			name:    "unknown option",
			spec:    "list(shuffle)",
			wantErr: true,
		},
		{
			name:    "unbalanced parens",
			spec:    "list(append",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStrategy(tt.spec)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStrategyStringRoundTrip(t *testing.T) {
	specs := []string{
		"list(append)+dict(no_replace,recurse_list)+str(append)",
		"dict()+list(prepend)+str(no_replace)",
		"",
	}

	for _, spec := range specs {
		s, err := ParseStrategy(spec)
		require.NoError(t, err)

		again, err := ParseStrategy(s.String())
		require.NoError(t, err, "canonical form %q must re-parse", s.String())
		assert.Equal(t, s, again)
	}
}

func TestStrategyFromValueStructuredForm(t *testing.T) {
	decl := fromAny(t, []any{
		map[string]any{"name": "list", "settings": []any{"append"}},
		map[string]any{"name": "dict", "settings": []any{"no_replace"}},
	})

	s, err := StrategyFromValue(decl)
	require.NoError(t, err)
	assert.Equal(t, ListAppend, s.List)
	assert.True(t, s.Dict.NoReplace)
}

func TestStrategyFromValueRejectsBadKinds(t *testing.T) {
	_, err := StrategyFromValue(fromAny(t, 42))
	assert.Error(t, err)

	_, err = StrategyFromValue(fromAny(t, map[string]any{"name": "list"}))
	assert.Error(t, err)
}
