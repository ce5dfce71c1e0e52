package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_YAML(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/row_level_targeting.yaml")
	require.NoError(t, err)

	assert.Equal(t, "row_level_targeting", s.Name)
	require.Len(t, s.Subscriptions, 5)
	assert.Equal(t, SubscriptionSpec{
		Name:   "user1",
		Kind:   KindRow,
		SQL:    "SELECT * FROM users WHERE id = ?",
		Params: []any{1},
	}, s.Subscriptions[0])
	require.Len(t, s.Steps, 8)
	assert.Equal(t, "run", s.Steps[0].kind())
	require.NotNil(t, s.Steps[3].Transaction)
	assert.True(t, s.Steps[3].Transaction.Fail)
	require.NotNil(t, s.Steps[3].Expect)
	assert.Empty(t, *s.Steps[3].Expect)
	assert.Nil(t, s.Steps[4].Transaction.Steps[1].Expect)
}

func TestLoadScenario_CUE(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/nested_transaction_failure.cue")
	require.NoError(t, err)

	assert.Equal(t, "nested_transaction_failure", s.Name)
	assert.Contains(t, s.Schema, "CREATE TABLE posts")
	require.Len(t, s.Steps, 1)
	inner := s.Steps[0].Transaction
	require.NotNil(t, inner)
	require.Len(t, inner.Steps, 2)
	assert.True(t, inner.Steps[1].Transaction.Fail)
	require.Len(t, s.Assertions, 2)
	assert.Equal(t, []map[string]any{{"n": 0}}, s.Assertions[0].Rows)
}

func TestLoadScenario_CUENotConcrete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "open.cue")
	require.NoError(t, os.WriteFile(path, []byte(`name: string
description: "d"
steps: [{exec: "SELECT 1"}]
`), 0o644))

	_, err := LoadScenario(path)
	assert.ErrorContains(t, err, "not concrete")
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/nope.yaml")
	assert.ErrorContains(t, err, "failed to read scenario file")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown field",
			yaml: "name: a\ndescription: b\nstep: []\n",
			want: "field step not found",
		},
		{
			name: "missing name",
			yaml: "description: b\nsteps: [{exec: x}]\n",
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: "name: a\nsteps: [{exec: x}]\n",
			want: "description is required",
		},
		{
			name: "no steps",
			yaml: "name: a\ndescription: b\n",
			want: "steps list is required",
		},
		{
			name: "two operations",
			yaml: "name: a\ndescription: b\nsteps: [{exec: x, run: {sql: y}}]\n",
			want: "steps[0]: exactly one of",
		},
		{
			name: "no operation",
			yaml: "name: a\ndescription: b\nsteps: [{expect: []}]\n",
			want: "found 0",
		},
		{
			name: "empty run",
			yaml: "name: a\ndescription: b\nsteps: [{run: {params: [1]}}]\n",
			want: "steps[0].run: sql is required",
		},
		{
			name: "invalidate_rows without column",
			yaml: "name: a\ndescription: b\nsteps: [{invalidate_rows: {table: t, values: [1]}}]\n",
			want: "table and column are required",
		},
		{
			name: "nested step",
			yaml: "name: a\ndescription: b\nsteps: [{transaction: {steps: [{}]}}]\n",
			want: "steps[0].transaction.steps[0]",
		},
		{
			name: "unknown expected subscription",
			yaml: "name: a\ndescription: b\nsteps: [{exec: x, expect: [ghost]}]\n",
			want: `unknown subscription "ghost"`,
		},
		{
			name: "duplicate subscription",
			yaml: "name: a\ndescription: b\nsubscriptions: [{name: s, kind: table, tables: [t]}, {name: s, kind: table, tables: [t]}]\nsteps: [{exec: x}]\n",
			want: `duplicate name "s"`,
		},
		{
			name: "bad kind",
			yaml: "name: a\ndescription: b\nsubscriptions: [{name: s, kind: view}]\nsteps: [{exec: x}]\n",
			want: `unknown kind "view"`,
		},
		{
			name: "table kind without tables",
			yaml: "name: a\ndescription: b\nsubscriptions: [{name: s, kind: table}]\nsteps: [{exec: x}]\n",
			want: "tables is required",
		},
		{
			name: "row kind without sql",
			yaml: "name: a\ndescription: b\nsubscriptions: [{name: s, kind: row}]\nsteps: [{exec: x}]\n",
			want: "sql is required for kind row",
		},
		{
			name: "unknown assertion",
			yaml: "name: a\ndescription: b\nsteps: [{exec: x}]\nassertions: [{type: trace_order}]\n",
			want: `unknown assertion type "trace_order"`,
		},
		{
			name: "count for unknown subscription",
			yaml: "name: a\ndescription: b\nsteps: [{exec: x}]\nassertions: [{type: notification_count, subscription: s}]\n",
			want: `unknown subscription "s"`,
		},
		{
			name: "final_state without sql",
			yaml: "name: a\ndescription: b\nsteps: [{exec: x}]\nassertions: [{type: final_state}]\n",
			want: "sql is required for final_state",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
