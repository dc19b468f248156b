package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRule(t *testing.T, ptype string, tuple ...string) Rule {
	t.Helper()
	r, err := FromTuple(ptype, tuple)
	require.NoError(t, err)
	return r
}

func TestFieldPattern(t *testing.T) {
	alice := mustRule(t, "p", "alice", "data1", "read")
	bob := mustRule(t, "p", "bob", "data2", "write")
	group := mustRule(t, "g", "alice", "admin")

	tests := []struct {
		name    string
		pattern Pattern
		want    map[string]bool
	}{
		{
			name:    "first field",
			pattern: FieldPattern("p", 0, "alice"),
			want:    map[string]bool{"alice": true, "bob": false, "group": false},
		},
		{
			name:    "second field",
			pattern: FieldPattern("p", 1, "data2"),
			want:    map[string]bool{"alice": false, "bob": true, "group": false},
		},
		{
			name:    "run of fields",
			pattern: FieldPattern("p", 1, "data1", "read"),
			want:    map[string]bool{"alice": true, "bob": false, "group": false},
		},
		{
			name:    "no values matches whole ptype",
			pattern: FieldPattern("p", 0),
			want:    map[string]bool{"alice": true, "bob": true, "group": false},
		},
		{
			name:    "empty value is a wildcard",
			pattern: FieldPattern("p", 0, "", "data2"),
			want:    map[string]bool{"alice": false, "bob": true, "group": false},
		},
		{
			name:    "negative index shifts values left",
			pattern: FieldPattern("p", -1, "ignored", "bob"),
			want:    map[string]bool{"alice": false, "bob": true, "group": false},
		},
		{
			name:    "index beyond last field constrains nothing",
			pattern: FieldPattern("p", 7, "alice"),
			want:    map[string]bool{"alice": true, "bob": true, "group": false},
		},
	}

	rules := map[string]Rule{"alice": alice, "bob": bob, "group": group}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for name, r := range rules {
				assert.Equal(t, tt.want[name], tt.pattern.Matches(r), name)
			}
		})
	}
}

func TestFieldPatternDoesNotAliasInput(t *testing.T) {
	values := []string{"alice"}
	p := FieldPattern("p", 0, values...)
	values[0] = "bob"
	require.NotNil(t, p.V[0])
	assert.Equal(t, "alice", *p.V[0])
}

func TestExample(t *testing.T) {
	short := mustRule(t, "p", "alice", "data1")
	long := mustRule(t, "p", "alice", "data1", "read")
	other := mustRule(t, "p", "alice", "data2", "read")

	p := Example(short)
	assert.True(t, p.Matches(short))
	assert.True(t, p.Matches(long), "unset fields are wildcards")
	assert.False(t, p.Matches(other))

	withBlank := mustRule(t, "p", "alice", "", "read")
	assert.True(t, Example(withBlank).Matches(withBlank))
	assert.False(t, Example(withBlank).Matches(long), "a set empty string is a real value")
}

func TestWhere(t *testing.T) {
	s := NewSchema("")

	p, ok := Where(s, map[string]string{"ptype": "p", "v0": "alice", "v2": ""})
	require.True(t, ok)
	assert.Equal(t, "p", p.Ptype)
	require.NotNil(t, p.V[0])
	assert.Equal(t, "alice", *p.V[0])
	assert.Nil(t, p.V[2])

	_, ok = Where(s, map[string]string{"subject": "alice"})
	assert.False(t, ok)
}

func TestConditions(t *testing.T) {
	s := NewSchema("")
	p := FieldPattern("p", 1, "data1", "read")

	assert.Equal(t, []Condition{
		{Column: "ptype", Value: "p"},
		{Column: "v1", Value: "data1"},
		{Column: "v2", Value: "read"},
	}, p.Conditions(s))

	assert.True(t, Pattern{}.IsEmpty())
	assert.Empty(t, Pattern{}.Conditions(s))
	assert.False(t, p.IsEmpty())
}
