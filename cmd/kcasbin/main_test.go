package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/getkayan/kcasbin"
	"github.com/getkayan/kcasbin/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupEnv points the CLI at a fresh sqlite database.
func setupEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DB_TYPE", "sqlite")
	t.Setenv("DSN", filepath.Join(t.TempDir(), "policy.db"))
	t.Setenv("LOG_LEVEL", "error")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestImportExport(t *testing.T) {
	setupEnv(t)
	csv := writeFile(t, "policy.csv", `p, alice, data1, read
p, bob, data2, write
g, alice, admin
`)

	out, err := run(t, "import", csv)
	require.NoError(t, err)
	assert.Equal(t, "imported 3 rules\n", out)

	out, err = run(t, "export")
	require.NoError(t, err)
	assert.Equal(t, "p, alice, data1, read\np, bob, data2, write\ng, alice, admin\n", out)
}

func TestAddRemove(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "add", "p", "alice", "data1", "read")
	require.NoError(t, err)
	_, err = run(t, "add", "p", "bob", "data2", "write")
	require.NoError(t, err)
	_, err = run(t, "add", "g", "alice", "admin")
	require.NoError(t, err)

	_, err = run(t, "remove", "g", "alice", "admin")
	require.NoError(t, err)

	_, err = run(t, "remove-filtered", "p", "1", "data2")
	require.NoError(t, err)

	out, err := run(t, "export")
	require.NoError(t, err)
	assert.Equal(t, "p, alice, data1, read\n", out)
}

func TestCustomModel(t *testing.T) {
	setupEnv(t)
	conf := writeFile(t, "acl.conf", `
[request_definition]
r = sub, obj

[policy_definition]
p = sub, obj

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj
`)

	_, err := run(t, "add", "p", "alice", "data1")
	require.NoError(t, err)

	out, err := run(t, "--model", conf, "export")
	require.NoError(t, err)
	assert.Equal(t, "p, alice, data1\n", out)
}

func TestCommandErrors(t *testing.T) {
	setupEnv(t)

	tests := []struct {
		name string
		args []string
	}{
		{"import missing file", []string{"import", filepath.Join(t.TempDir(), "missing.csv")}},
		{"import without args", []string{"import"}},
		{"add without values", []string{"add", "p"}},
		{"bad field index", []string{"remove-filtered", "p", "first", "alice"}},
		{"missing model", []string{"--model", filepath.Join(t.TempDir(), "missing.conf"), "export"}},
		{"too many fields", []string{"add", "p", "1", "2", "3", "4", "5", "6", "7", "8"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestUnknownStore(t *testing.T) {
	setupEnv(t)
	t.Setenv("DB_TYPE", "cassandra")

	_, err := run(t, "export")
	assert.ErrorIs(t, err, store.ErrUnknownProvider)
}

func TestServerRoutes(t *testing.T) {
	ad := kcasbin.NewAdapterWithStore(store.NewMemoryStore())
	e := newServer(ad, (&app{}).model)

	for _, target := range []string{"/healthz", "/policies", "/metrics"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusOK, rec.Code, target)
	}
}
