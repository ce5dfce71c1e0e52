package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var harnessScenarios = filepath.Join("..", "harness", "testdata", "scenarios")

const passingScenario = `
name: insert_notifies
description: an insert notifies table subscribers
schema: CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)
subscriptions:
  - {name: users, kind: table, tables: [users]}
steps:
  - run: {sql: "INSERT INTO users (name) VALUES ('ada')"}
    expect: [users]
assertions:
  - {type: notification_count, subscription: users, count: 1}
`

const failingScenario = `
name: wrong_expectation
description: expects silence from a write
schema: CREATE TABLE users (id INTEGER PRIMARY KEY)
subscriptions:
  - {name: users, kind: table, tables: [users]}
steps:
  - run: {sql: "INSERT INTO users VALUES (1)"}
    expect: []
`

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := execute(t, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg")
}

func TestTestCommandNonExistentPath(t *testing.T) {
	_, err := execute(t, "test", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenario path not found")
}

func TestTestCommandEmptyDir(t *testing.T) {
	out, err := execute(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")

	out, err = execute(t, "--format", "json", "test", t.TempDir())
	require.NoError(t, err)
	var response CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "ok", response.Status)
}

func TestTestCommandHarnessScenarios(t *testing.T) {
	out, err := execute(t, "test", harnessScenarios)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ row_level_targeting")
	assert.Contains(t, out, "✓ nested_transaction_failure")
	assert.Contains(t, out, "Test Summary: 2 passed, 0 failed, 2 total")
}

func TestTestCommandFailureExitCode(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ok.yaml"), []byte(passingScenario), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte(failingScenario), 0644))

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✓ insert_notifies")
	assert.Contains(t, out, "✗ wrong_expectation")
	assert.Contains(t, out, "expected notifications [], got [users]")
	assert.Contains(t, out, "1 passed, 1 failed, 2 total")
}

func TestTestCommandJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte(failingScenario), 0644))

	out, err := execute(t, "--format", "json", "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.False(t, resp.Data.Scenarios[0].Pass)
	assert.Equal(t, map[string]int{"users": 1}, resp.Data.Scenarios[0].Counts)
}

func TestTestCommandLoadError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: x\nbogus: 1\n"), 0644))

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestTestCommandGoldenFiles(t *testing.T) {
	dir := t.TempDir()
	scenario := filepath.Join(dir, "insert.yaml")
	require.NoError(t, os.WriteFile(scenario, []byte(passingScenario), 0644))
	golden := filepath.Join(dir, "golden", "insert.golden")

	_, err := execute(t, "test", "--update", scenario)
	require.NoError(t, err)
	data, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scenario_name": "insert_notifies"`)

	out, err := execute(t, "test", scenario)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ insert_notifies")

	require.NoError(t, os.WriteFile(golden, []byte("{}\n"), 0644))
	out, err = execute(t, "test", scenario)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file")
}

func TestFindScenarioFiles(t *testing.T) {
	tmpDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "test1.yaml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "test2.yml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "test3.cue"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "ignore.txt"), []byte(""), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, "golden"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "golden", "test1.golden"), []byte(""), 0644))

	files, err := findScenarioFiles([]string{tmpDir}, "")
	require.NoError(t, err)
	assert.Len(t, files, 3)
}

func TestFindScenarioFilesWithFilter(t *testing.T) {
	tmpDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "row-update.yaml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "row-delete.yaml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "table-insert.yaml"), []byte(""), 0644))

	files, err := findScenarioFiles([]string{tmpDir}, "row-*")
	require.NoError(t, err)
	assert.Len(t, files, 2)
	for _, f := range files {
		assert.Contains(t, filepath.Base(f), "row-")
	}

	_, err = findScenarioFiles([]string{tmpDir}, "[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter pattern")
}

func TestFindScenarioFilesMixedArgs(t *testing.T) {
	tmpDir := t.TempDir()
	subDir := filepath.Join(tmpDir, "subdir")
	require.NoError(t, os.MkdirAll(subDir, 0755))

	require.NoError(t, os.WriteFile(filepath.Join(subDir, "sub.yaml"), []byte(""), 0644))
	single := filepath.Join(tmpDir, "single.txt")
	require.NoError(t, os.WriteFile(single, []byte(""), 0644))

	// Explicit files are taken regardless of extension
	files, err := findScenarioFiles([]string{tmpDir, single}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(subDir, "sub.yaml"), single}, files)
}

func TestGoldenFilePath(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"/path/to/scenario.yaml", "/path/to/golden/scenario.golden"},
		{"/path/to/scenario.cue", "/path/to/golden/scenario.golden"},
		{"scenarios/test.yml", "scenarios/golden/test.golden"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, goldenFilePath(tc.input))
	}
}
