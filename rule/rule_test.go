package rule

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func TestFromTuple(t *testing.T) {
	tests := []struct {
		name  string
		tuple []string
	}{
		{"empty", nil},
		{"one", []string{"alice"}},
		{"three", []string{"alice", "data1", "read"}},
		{"seven", []string{"a", "b", "c", "d", "e", "f", "g"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := FromTuple("p", tt.tuple)
			require.NoError(t, err)
			assert.Equal(t, "p", r.Ptype)
			assert.Equal(t, len(tt.tuple), r.Arity())

			for i := 0; i < MaxFields; i++ {
				if i < len(tt.tuple) {
					require.NotNil(t, r.V[i], "field %d", i)
					assert.Equal(t, tt.tuple[i], *r.V[i])
				} else {
					assert.Nil(t, r.V[i], "field %d", i)
				}
			}
		})
	}
}

func TestFromTupleTooLong(t *testing.T) {
	_, err := FromTuple("p", []string{"1", "2", "3", "4", "5", "6", "7", "8"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTooManyFields))
}

func TestFromTupleCopiesValues(t *testing.T) {
	tuple := []string{"alice", "data1"}
	r, err := FromTuple("p", tuple)
	require.NoError(t, err)

	tuple[0] = "mallory"
	assert.Equal(t, "alice", *r.V[0])
}

func TestFromTuplesStopsOnBadTuple(t *testing.T) {
	_, err := FromTuples("p", [][]string{
		{"alice"},
		{"1", "2", "3", "4", "5", "6", "7", "8"},
	})
	assert.ErrorIs(t, err, ErrTooManyFields)
}

func TestTuple(t *testing.T) {
	t.Run("drops trailing unset fields", func(t *testing.T) {
		r := Rule{Ptype: "g", V: [MaxFields]*string{strp("alice"), strp("admin")}}
		assert.Equal(t, []string{"alice", "admin"}, r.Tuple())
	})

	t.Run("keeps interior unset fields as empty", func(t *testing.T) {
		r := Rule{Ptype: "p", V: [MaxFields]*string{strp("alice"), nil, strp("read")}}
		assert.Equal(t, []string{"alice", "", "read"}, r.Tuple())
	})

	t.Run("keeps trailing empty strings that were set", func(t *testing.T) {
		r, err := FromTuple("p", []string{"alice", ""})
		require.NoError(t, err)
		assert.Equal(t, []string{"alice", ""}, r.Tuple())
	})

	t.Run("zero arity", func(t *testing.T) {
		r := Rule{Ptype: "p"}
		assert.Empty(t, r.Tuple())
		assert.Equal(t, []string{"p"}, r.Line())
	})
}

func TestLineAndString(t *testing.T) {
	r, err := FromTuple("p", []string{"alice", "data1", "read"})
	require.NoError(t, err)

	assert.Equal(t, []string{"p", "alice", "data1", "read"}, r.Line())
	assert.Equal(t, "p, alice, data1, read", r.String())
}

func TestField(t *testing.T) {
	r, err := FromTuple("p", []string{"alice"})
	require.NoError(t, err)

	v, ok := r.Field(0)
	assert.True(t, ok)
	assert.Equal(t, "alice", v)

	_, ok = r.Field(1)
	assert.False(t, ok)
	_, ok = r.Field(-1)
	assert.False(t, ok)
	_, ok = r.Field(MaxFields)
	assert.False(t, ok)
}

func TestSchema(t *testing.T) {
	s := NewSchema("")
	assert.Equal(t, DefaultTable, s.Table)
	assert.Len(t, s.Columns(), MaxFields+2)
	assert.Equal(t, "v6", s.Fields[6].Name)
	assert.True(t, s.Fields[0].Nullable)
	assert.False(t, s.Ptype.Nullable)
	assert.Equal(t, 3, s.FieldIndex("v3"))
	assert.Equal(t, -1, s.FieldIndex("ptype"))

	assert.Equal(t, "custom_rule", NewSchema("custom_rule").Table)
}
