package kcasbin

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadModel(t *testing.T) {
	m, err := LoadModel("")
	require.NoError(t, err)
	assert.Equal(t, []string{"p_sub", "p_obj", "p_act"}, m["p"]["p"].Tokens)

	path := filepath.Join(t.TempDir(), "acl.conf")
	require.NoError(t, os.WriteFile(path, []byte(`
[request_definition]
r = sub, obj

[policy_definition]
p = sub, obj

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj
`), 0o600))

	m, err = LoadModel(path)
	require.NoError(t, err)
	assert.Len(t, m["p"]["p"].Tokens, 2)
	assert.Empty(t, m["g"])

	_, err = LoadModel(filepath.Join(t.TempDir(), "missing.conf"))
	assert.Error(t, err)
}

func TestSectionOf(t *testing.T) {
	assert.Equal(t, "p", SectionOf("p"))
	assert.Equal(t, "p", SectionOf("p2"))
	assert.Equal(t, "g", SectionOf("g"))
	assert.Equal(t, "g", SectionOf("g2"))
}
