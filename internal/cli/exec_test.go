package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestExec_ReportsInvalidatedTables(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "app.db")

	setup := writeScript(t, dir, "setup.sql", `
		CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT);
		CREATE TABLE posts (id INTEGER PRIMARY KEY, user_id INTEGER);
		INSERT INTO users VALUES (1, 'ada');
	`)
	out, err := execute(t, "exec", "--db", db, setup)
	require.NoError(t, err)
	assert.Contains(t, out, "Executed 3 statement(s)")
	assert.Contains(t, out, "invalidated: posts, users")

	del := writeScript(t, dir, "delete.sql", "DELETE FROM posts")
	out, err = execute(t, "exec", "--db", db, del)
	require.NoError(t, err)
	assert.Contains(t, out, "invalidated: posts\n")

	pragma := writeScript(t, dir, "pragma.sql", "PRAGMA user_version = 3;")
	out, err = execute(t, "exec", "--db", db, pragma)
	require.NoError(t, err)
	assert.Contains(t, out, "invalidated: (none)")
}

func TestExec_JSON(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "app.db")
	script := writeScript(t, dir, "s.sql", "CREATE TABLE t (id INTEGER PRIMARY KEY); INSERT INTO t VALUES (1);")

	out, err := execute(t, "--format", "json", "exec", "--db", db, script)
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   ExecResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, db, resp.Data.Database)
	assert.Equal(t, 2, resp.Data.Statements)
	assert.Equal(t, []string{"t"}, resp.Data.Invalidated)
}

func TestExec_Stdin(t *testing.T) {
	dir := t.TempDir()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader("CREATE TABLE notes (id INTEGER PRIMARY KEY);"))
	cmd.SetArgs([]string{"exec", "--db", filepath.Join(dir, "app.db"), "-"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "invalidated: notes")
}

func TestExec_Errors(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "app.db")

	_, err := execute(t, "exec", "--db", db, filepath.Join(dir, "missing.sql"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to read script")

	empty := writeScript(t, dir, "empty.sql", "-- nothing here\n")
	_, err = execute(t, "exec", "--db", db, empty)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")

	bad := writeScript(t, dir, "bad.sql", "INSERT INTO nope VALUES (1)")
	out, err := execute(t, "--format", "json", "exec", "--db", db, bad)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "script failed")

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "E_SQL", resp.Error.Code)
}

func TestExec_DefaultsToConfiguredDatabase(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "configured.db")
	cfg := writeScript(t, dir, "rxsql.toml", "[database]\npath = \""+filepath.ToSlash(db)+"\"\n")
	script := writeScript(t, dir, "s.sql", "CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)")

	out, err := execute(t, "--config", cfg, "exec", script)
	require.NoError(t, err)
	assert.Contains(t, out, filepath.ToSlash(db))
	_, statErr := os.Stat(db)
	assert.NoError(t, statErr)
}
