package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rxsql/internal/testutil"
	"github.com/roach88/rxsql/reactive"
)

var fixedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newState(t *testing.T, executionID string) (*Store, *reactive.Store) {
	t.Helper()
	db, err := reactive.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := New(context.Background(), db, executionID, WithClock(func() time.Time { return fixedTime }))
	require.NoError(t, err)
	return s, db
}

func TestNew_RequiresExecutionID(t *testing.T) {
	db, err := reactive.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	_, err = New(context.Background(), db, "")
	assert.Error(t, err)
}

func TestSetIsQueuedUntilCommit(t *testing.T) {
	s, _ := newState(t, "exec-1")
	ctx := context.Background()

	s.Set("phase", "plan", "start")
	assert.True(t, s.HasPendingWrites())
	assert.Equal(t, []WriteOp{{Key: "phase", Value: "plan", Trigger: "start"}}, s.Pending())

	v, err := s.Get(ctx, "phase")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, s.Commit(ctx))
	assert.False(t, s.HasPendingWrites())

	v, err = s.Get(ctx, "phase")
	require.NoError(t, err)
	assert.Equal(t, "plan", v)
}

func TestCommit_ValuesRoundTrip(t *testing.T) {
	s, _ := newState(t, "exec-1")
	ctx := context.Background()

	s.Enqueue(
		WriteOp{Key: "count", Value: 3},
		WriteOp{Key: "done", Value: false},
		WriteOp{Key: "tags", Value: []string{"a", "b"}},
		WriteOp{Key: "meta", Value: map[string]any{"owner": "ada"}},
	)
	require.NoError(t, s.Commit(ctx))

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"count": float64(3),
		"done":  false,
		"tags":  []any{"a", "b"},
		"meta":  map[string]any{"owner": "ada"},
	}, snap)
}

func TestCommit_UpdateAndDelete(t *testing.T) {
	s, _ := newState(t, "exec-1")
	ctx := context.Background()

	s.Set("phase", "plan", "start")
	require.NoError(t, s.Commit(ctx))
	s.Set("phase", "build", "planned")
	require.NoError(t, s.Commit(ctx))

	v, err := s.Get(ctx, "phase")
	require.NoError(t, err)
	assert.Equal(t, "build", v)

	s.Delete("phase", "reset")
	require.NoError(t, s.Commit(ctx))
	v, err = s.Get(ctx, "phase")
	require.NoError(t, err)
	assert.Nil(t, v)

	got, err := s.Transitions(ctx, "phase", 0)
	require.NoError(t, err)
	assert.Equal(t, []Transition{
		{Key: "phase", OldValue: "build", NewValue: nil, Trigger: "reset", Timestamp: fixedTime},
		{Key: "phase", OldValue: "plan", NewValue: "build", Trigger: "planned", Timestamp: fixedTime},
		{Key: "phase", OldValue: nil, NewValue: "plan", Trigger: "start", Timestamp: fixedTime},
	}, got)
}

func TestTransitions_TimestampsFollowClock(t *testing.T) {
	db, err := reactive.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	clock := testutil.NewDeterministicClock(time.Second)
	s, err := New(context.Background(), db, "exec-1", WithClock(clock.Now))
	require.NoError(t, err)
	ctx := context.Background()

	s.Set("a", 1, "")
	s.Set("b", 2, "")
	require.NoError(t, s.Commit(ctx))
	s.Set("a", 3, "")
	require.NoError(t, s.Commit(ctx))
	assert.Equal(t, int64(3), clock.Calls())

	got, err := s.Transitions(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].Key)
	assert.Equal(t, testutil.Epoch.Add(2*time.Second), got[0].Timestamp)
	assert.Equal(t, "b", got[1].Key)
	assert.Equal(t, testutil.Epoch.Add(time.Second), got[1].Timestamp)
	assert.Equal(t, testutil.Epoch, got[2].Timestamp)
}

func TestTransitions_LimitAndAllKeys(t *testing.T) {
	s, _ := newState(t, "exec-1")
	ctx := context.Background()

	s.Set("a", 1, "")
	s.Set("b", 2, "")
	s.Set("a", 3, "")
	require.NoError(t, s.Commit(ctx))

	all, err := s.Transitions(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].Key)
	assert.Equal(t, float64(3), all[0].NewValue)
	assert.Empty(t, all[0].Trigger)

	latest, err := s.Transitions(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, latest, 1)
}

func TestExecutionsAreIsolated(t *testing.T) {
	db, err := reactive.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	one, err := New(ctx, db, "exec-1")
	require.NoError(t, err)
	two, err := New(ctx, db, "exec-2")
	require.NoError(t, err)

	one.Set("k", "one", "")
	require.NoError(t, one.Commit(ctx))
	two.Set("k", "two", "")
	require.NoError(t, two.Commit(ctx))

	v, err := one.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "one", v)

	snap, err := two.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"k": "two"}, snap)
}

func TestCommit_FailureKeepsQueueAndAppliesNothing(t *testing.T) {
	s, _ := newState(t, "exec-1")
	ctx := context.Background()

	s.Set("ok", "fine", "")
	s.Set("bad", func() {}, "")
	err := s.Commit(ctx)
	assert.Error(t, err)
	assert.Len(t, s.Pending(), 2)

	v, err := s.Get(ctx, "ok")
	require.NoError(t, err)
	assert.Nil(t, v)

	s.ClearQueue()
	assert.False(t, s.HasPendingWrites())
	require.NoError(t, s.Commit(ctx))
}

func TestWatch_RowGranularity(t *testing.T) {
	s, _ := newState(t, "exec-1")
	ctx := context.Background()

	s.Set("phase", "plan", "")
	s.Set("other", 1, "")
	require.NoError(t, s.Commit(ctx))

	var phase, all int
	unsub := s.Watch("phase", func() { phase++ })
	defer unsub()
	s.WatchAll(func() { all++ })

	s.Set("other", 2, "")
	require.NoError(t, s.Commit(ctx))
	assert.Equal(t, 0, phase)
	assert.Equal(t, 1, all)

	s.Set("phase", "build", "")
	require.NoError(t, s.Commit(ctx))
	assert.Equal(t, 1, phase)
	assert.Equal(t, 2, all)
}

func TestWatch_NotifiedOncePerCommit(t *testing.T) {
	s, _ := newState(t, "exec-1")
	ctx := context.Background()

	var n int
	s.Watch("phase", func() { n++ })

	s.Set("phase", "plan", "")
	s.Set("phase", "build", "")
	s.Set("phase", "ship", "")
	require.NoError(t, s.Commit(ctx))
	assert.Equal(t, 1, n)
}

func TestGet_ForeignValueFallsBackToText(t *testing.T) {
	s, db := newState(t, "exec-1")
	ctx := context.Background()

	_, err := db.Run(ctx,
		"INSERT INTO execution_state (id, execution_id, key, value, updated_at) VALUES (?, ?, ?, ?, ?)",
		"exec-1/raw", "exec-1", "raw", "not json", fixedTime.Format(time.RFC3339Nano))
	require.NoError(t, err)

	v, err := s.Get(ctx, "raw")
	require.NoError(t, err)
	assert.Equal(t, "not json", v)
}

func TestCommit_ClosedStore(t *testing.T) {
	s, db := newState(t, "exec-1")
	require.NoError(t, db.Close())

	s.Set("k", 1, "")
	err := s.Commit(context.Background())
	assert.True(t, errors.Is(err, reactive.ErrClosed))
	assert.True(t, s.HasPendingWrites())
}

func TestTransitions_BadTimestampIsAnError(t *testing.T) {
	s, db := newState(t, "exec-1")
	ctx := context.Background()

	_, err := db.Run(ctx,
		"INSERT INTO execution_transitions (execution_id, key, old_value, new_value, trigger, timestamp) VALUES (?, ?, ?, ?, ?, ?)",
		"exec-1", "phase", nil, `"plan"`, nil, "yesterday")
	require.NoError(t, err)

	_, err = s.Transitions(ctx, "phase", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `timestamp of "phase"`)
}
