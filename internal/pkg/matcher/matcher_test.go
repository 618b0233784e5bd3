package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record map[string]interface{}

func (r record) Field(name string) (interface{}, bool) {
	v, ok := r[name]
	return v, ok
}

func TestLikeToRegex(t *testing.T) {
	tests := []struct {
		pattern string
		value   string
		want    bool
	}{
		{"I add % to cart", "I add 3 items to cart", true},
		{"I add % to cart", "I remove 3 items from cart", false},
		{"Step_1", "StepX1", true},
		{"Step_1", "Step11x", false},
		{"a.b", "axb", false},
		{"100%", "100% sure", true},
		{"Timeout%", "Timeout\nat line 2", true},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.value, func(t *testing.T) {
			ok, err := Match(record{"v": tt.value}, MatchRule{Field: "v", Operator: OpLike, Value: tt.pattern})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestCompiled_AndOr(t *testing.T) {
	rule := MatchRule{And: []MatchRule{
		{Field: "exception", Operator: OpLikePrefix, Value: "java.lang.AssertionError"},
		{Or: []MatchRule{
			{Field: "country", Operator: OpEquals, Value: "fr"},
			{Field: "country", Operator: OpEquals, Value: "be"},
		}},
	}}
	c, err := Compile(rule)
	require.NoError(t, err)

	assert.True(t, c.Match(record{"exception": "java.lang.AssertionError: expected 2", "country": "be"}))
	assert.False(t, c.Match(record{"exception": "java.lang.AssertionError: expected 2", "country": "nl"}))
	assert.False(t, c.Match(record{"exception": "NullPointerException", "country": "fr"}))
	assert.False(t, c.Match(record{"country": "fr"}), "missing field never matches")
}

func TestCompiled_StructAndMapPaths(t *testing.T) {
	type meta struct{ OS string }
	data := map[string]interface{}{"meta": meta{OS: "linux"}}

	ok, err := Match(data, MatchRule{Field: "meta.OS", Operator: OpEquals, Value: "linux"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Match(data, MatchRule{Field: "meta.Arch", Operator: OpEquals, Value: "amd64"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompile_Errors(t *testing.T) {
	_, err := Compile(MatchRule{Field: "x", Operator: "cidr", Value: "10.0.0.0/8"})
	assert.Error(t, err)

	_, err = Compile(MatchRule{Field: "x", Operator: OpRegex, Value: "("})
	assert.Error(t, err)

	_, err = Compile(MatchRule{Field: "x", Operator: OpIn, Value: "notalist"})
	assert.Error(t, err)

	c, err := Compile(MatchRule{})
	require.NoError(t, err)
	assert.True(t, c.Match(record{}), "empty rule matches everything")
}

func TestParseJSON(t *testing.T) {
	rule, err := ParseJSON(`{"and":[{"field":"platform","operator":"in","value":["euin","euin-oat"]}]}`)
	require.NoError(t, err)
	ok, err := Match(record{"platform": "euin-oat"}, rule)
	require.NoError(t, err)
	assert.True(t, ok)
}
