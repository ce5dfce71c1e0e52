package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_Scenarios(t *testing.T) {
	files := []string{
		"testdata/scenarios/row_level_targeting.yaml",
		"testdata/scenarios/nested_transaction_failure.cue",
	}
	for _, path := range files {
		t.Run(path, func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_Counts(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/row_level_targeting.yaml")
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		"user1":      3,
		"user2":      4,
		"all_users":  5,
		"user_posts": 8,
		"posts":      4,
	}, result.Counts)
}

func TestRun_ReportsUnexpectedNotifications(t *testing.T) {
	scenario := mustParse(t, `
name: mismatch
description: expectation that does not hold
schema: CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)
subscriptions:
  - {name: users, kind: table, tables: [users]}
steps:
  - run: {sql: "INSERT INTO users (name) VALUES ('a')"}
    expect: []
`)
	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "step 1 (run): expected notifications [], got [users]")
}

func TestRun_StepErrorStopsScenario(t *testing.T) {
	scenario := mustParse(t, `
name: broken
description: a failing statement aborts the remaining steps
schema: CREATE TABLE users (id INTEGER PRIMARY KEY)
steps:
  - run: {sql: "INSERT INTO missing VALUES (1)"}
  - run: {sql: "INSERT INTO users VALUES (1)"}
`)
	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Trace, 1)
	assert.Contains(t, result.Trace[0].Error, "missing")
}

func TestRun_ExpectError(t *testing.T) {
	scenario := mustParse(t, `
name: expected_failure
description: a failing write notifies nobody
schema: CREATE TABLE users (id INTEGER PRIMARY KEY)
subscriptions:
  - {name: users, kind: table, tables: [users]}
steps:
  - run: {sql: "INSERT INTO users VALUES (1)"}
  - run: {sql: "INSERT INTO users VALUES (1)"}
    expect_error: true
    expect: []
  - run: {sql: "INSERT INTO users VALUES (2)"}
    expect_error: true
assertions:
  - {type: notification_count, subscription: users, count: 2}
`)
	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Equal(t, []string{"step 3 (run): expected an error"}, result.Errors)
	assert.NotEmpty(t, result.Trace[1].Error)
}

func TestRun_NestedStepErrorReportedOnce(t *testing.T) {
	scenario := mustParse(t, `
name: nested_error
description: an error inside a transaction rolls it back
schema: CREATE TABLE users (id INTEGER PRIMARY KEY)
subscriptions:
  - {name: users, kind: table, tables: [users]}
steps:
  - transaction:
      steps:
        - run: {sql: "INSERT INTO users VALUES (1)"}
        - run: {sql: "INSERT INTO nope VALUES (1)"}
    expect: []
assertions:
  - {type: final_state, sql: "SELECT * FROM users", rows: []}
`)
	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "step 1.2 (run)")
	assert.Equal(t, "1", result.Trace[0].Step)
	assert.NotEmpty(t, result.Trace[0].Error)
}

func TestEvaluateAssertions_Failures(t *testing.T) {
	scenario := mustParse(t, `
name: assertions
description: failing assertions are reported
schema: |
  CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT);
  INSERT INTO users VALUES (1, 'ada');
subscriptions:
  - {name: users, kind: table, tables: [users]}
steps:
  - invalidate: {}
assertions:
  - {type: notification_count, subscription: users, count: 2}
  - {type: final_state, sql: "SELECT name FROM users", rows: [{name: bob}]}
  - {type: final_state, sql: "SELECT name FROM users", rows: [{nope: 1}]}
  - {type: final_state, sql: "SELECT name FROM users", rows: []}
  - {type: final_state, sql: "SELECT name FROM missing", rows: []}
  - {type: final_state, sql: "SELECT name FROM users WHERE id = ?", params: [1], rows: [{name: ada}]}
`)
	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	require.Len(t, result.Errors, 5)
	assert.Contains(t, result.Errors[0], "2 notifications of users")
	assert.Contains(t, result.Errors[1], "name = bob")
	assert.Contains(t, result.Errors[2], `has column "nope"`)
	assert.Contains(t, result.Errors[3], "0 rows")
	assert.Contains(t, result.Errors[4], "final_state query failed")
}

func TestAssertionError_Message(t *testing.T) {
	err := &AssertionError{
		Type:     AssertNotificationCount,
		Expected: "1 notifications of a",
		Actual:   "0 notifications",
		Trace:    []StepTrace{{Step: "1", Kind: "run", Notified: []string{"b"}}},
	}
	assert.Equal(t, "Assertion failed: notification_count\n"+
		"  Expected: 1 notifications of a\n"+
		"  Actual: 0 notifications\n"+
		"\nFull trace:\n"+
		"  [1] run -> [b]\n", err.Error())
}

func TestSameNames(t *testing.T) {
	assert.True(t, sameNames([]string{"a", "b", "a"}, []string{"a", "a", "b"}))
	assert.False(t, sameNames([]string{"a", "b"}, []string{"a", "a"}))
	assert.False(t, sameNames([]string{"a"}, []string{}))
	assert.True(t, sameNames([]string{}, []string{}))
}

func mustParse(t *testing.T, text string) *Scenario {
	t.Helper()
	scenario, err := ParseScenario([]byte(text))
	require.NoError(t, err)
	return scenario
}
