// Package state is an execution-scoped key/value store with queued writes
// and an audit log, kept in the reactive store's database.
//
// Writes are queued with Set and applied atomically by Commit, so readers
// see either none or all of a batch. Every applied write appends a
// transition recording the old and new value and what triggered it.
// Watch notifies when one key changes; because state rows are addressed by
// primary key, updates and deletes are delivered at row granularity.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/roach88/rxsql/reactive"
)

const schema = `
CREATE TABLE IF NOT EXISTS execution_state (
	id TEXT PRIMARY KEY,
	execution_id TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_execution_state_exec ON execution_state(execution_id);
CREATE TABLE IF NOT EXISTS execution_transitions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	execution_id TEXT NOT NULL,
	key TEXT NOT NULL,
	old_value TEXT,
	new_value TEXT,
	trigger TEXT,
	timestamp TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_execution_transitions_exec ON execution_transitions(execution_id, id);
`

// DefaultTransitionLimit bounds Transitions when no limit is given.
const DefaultTransitionLimit = 100

// WriteOp is one queued write. A nil Value deletes the key.
type WriteOp struct {
	Key     string
	Value   any
	Trigger string
}

// Transition is one audit log entry. OldValue is nil for a new key and
// NewValue is nil for a deletion.
type Transition struct {
	Key       string    `json:"key"`
	OldValue  any       `json:"old_value"`
	NewValue  any       `json:"new_value"`
	Trigger   string    `json:"trigger,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Store is the state of one execution.
type Store struct {
	db          *reactive.Store
	executionID string
	queue       []WriteOp
	now         func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates the state tables if needed and returns the state of
// executionID.
func New(ctx context.Context, db *reactive.Store, executionID string, opts ...Option) (*Store, error) {
	if executionID == "" {
		return nil, fmt.Errorf("execution id is required")
	}
	if err := db.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("create state tables: %w", err)
	}
	s := &Store{db: db, executionID: executionID, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ExecutionID returns the execution this state belongs to.
func (s *Store) ExecutionID() string {
	return s.executionID
}

func (s *Store) rowID(key string) string {
	return s.executionID + "/" + key
}

// Get returns the committed value of key, or nil when unset.
func (s *Store) Get(ctx context.Context, key string) (any, error) {
	raw, ok, err := s.getRaw(ctx, key)
	if err != nil || !ok {
		return nil, err
	}
	return decodeValue(raw), nil
}

func (s *Store) getRaw(ctx context.Context, key string) (string, bool, error) {
	raw, ok, err := reactive.QueryValueAs[string](ctx, s.db,
		"SELECT value FROM execution_state WHERE id = ?", s.rowID(key))
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return raw, ok, nil
}

// Set queues a write. Nothing changes until Commit.
func (s *Store) Set(key string, value any, trigger string) {
	s.queue = append(s.queue, WriteOp{Key: key, Value: value, Trigger: trigger})
}

// Delete queues removal of key.
func (s *Store) Delete(key, trigger string) {
	s.Set(key, nil, trigger)
}

// Enqueue queues several writes.
func (s *Store) Enqueue(ops ...WriteOp) {
	s.queue = append(s.queue, ops...)
}

// HasPendingWrites reports whether writes are queued.
func (s *Store) HasPendingWrites() bool {
	return len(s.queue) > 0
}

// Pending returns a copy of the queued writes.
func (s *Store) Pending() []WriteOp {
	return slices.Clone(s.queue)
}

// ClearQueue drops queued writes without applying them.
func (s *Store) ClearQueue() {
	s.queue = nil
}

// Commit applies every queued write in one transaction and clears the
// queue. On error nothing is applied and the queue is kept.
func (s *Store) Commit(ctx context.Context) error {
	if len(s.queue) == 0 {
		return nil
	}
	err := s.db.Transaction(ctx, func(ctx context.Context) error {
		for _, op := range s.queue {
			if err := s.apply(ctx, op); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("commit state: %w", err)
	}
	s.queue = nil
	return nil
}

func (s *Store) apply(ctx context.Context, op WriteOp) error {
	ts := s.now().UTC().Format(time.RFC3339Nano)
	id := s.rowID(op.Key)

	oldRaw, hadOld, err := s.getRaw(ctx, op.Key)
	if err != nil {
		return err
	}
	var oldValue, newValue any
	if hadOld {
		oldValue = oldRaw
	}

	if op.Value == nil {
		if _, err := s.db.Run(ctx, "DELETE FROM execution_state WHERE id = ?", id); err != nil {
			return fmt.Errorf("delete %q: %w", op.Key, err)
		}
	} else {
		encoded, err := encodeValue(op.Value)
		if err != nil {
			return fmt.Errorf("encode %q: %w", op.Key, err)
		}
		newValue = encoded

		res, err := s.db.Run(ctx,
			"UPDATE execution_state SET value = ?, updated_at = ? WHERE id = ?",
			encoded, ts, id)
		if err != nil {
			return fmt.Errorf("update %q: %w", op.Key, err)
		}
		if res.ChangesAffected == 0 {
			_, err := s.db.Run(ctx,
				"INSERT INTO execution_state (id, execution_id, key, value, updated_at) VALUES (?, ?, ?, ?, ?)",
				id, s.executionID, op.Key, encoded, ts)
			if err != nil {
				return fmt.Errorf("insert %q: %w", op.Key, err)
			}
		}
	}

	var trigger any
	if op.Trigger != "" {
		trigger = op.Trigger
	}
	_, err = s.db.Run(ctx,
		"INSERT INTO execution_transitions (execution_id, key, old_value, new_value, trigger, timestamp) VALUES (?, ?, ?, ?, ?, ?)",
		s.executionID, op.Key, oldValue, newValue, trigger, ts)
	if err != nil {
		return fmt.Errorf("log transition %q: %w", op.Key, err)
	}
	return nil
}

// Snapshot returns every committed key and value.
func (s *Store) Snapshot(ctx context.Context) (map[string]any, error) {
	rows, err := s.db.Query(ctx,
		"SELECT key, value FROM execution_state WHERE execution_id = ? ORDER BY key",
		s.executionID)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	out := make(map[string]any, len(rows))
	for _, row := range rows {
		key, _ := row["key"].(string)
		raw, _ := row["value"].(string)
		out[key] = decodeValue(raw)
	}
	return out, nil
}

// Transitions returns the audit log, newest first. An empty key returns
// transitions of every key; limit <= 0 means DefaultTransitionLimit.
func (s *Store) Transitions(ctx context.Context, key string, limit int) ([]Transition, error) {
	if limit <= 0 {
		limit = DefaultTransitionLimit
	}
	query := `SELECT key, old_value, new_value, trigger, timestamp
		FROM execution_transitions WHERE execution_id = ?`
	args := []any{s.executionID}
	if key != "" {
		query += " AND key = ?"
		args = append(args, key)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("transitions: %w", err)
	}
	out := make([]Transition, 0, len(rows))
	for _, row := range rows {
		t := Transition{}
		t.Key, _ = row["key"].(string)
		t.Trigger, _ = row["trigger"].(string)
		if raw, ok := row["old_value"].(string); ok {
			t.OldValue = decodeValue(raw)
		}
		if raw, ok := row["new_value"].(string); ok {
			t.NewValue = decodeValue(raw)
		}
		if ts, ok := row["timestamp"].(string); ok {
			parsed, err := time.Parse(time.RFC3339Nano, ts)
			if err != nil {
				return nil, fmt.Errorf("transitions: timestamp of %q: %w", t.Key, err)
			}
			t.Timestamp = parsed
		}
		out = append(out, t)
	}
	return out, nil
}

// Watch calls fn when key may have changed.
func (s *Store) Watch(key string, fn reactive.Listener) reactive.Unsubscribe {
	return s.db.SubscribeWithRowFilter(
		"SELECT value FROM execution_state WHERE id = ?", []any{s.rowID(key)}, fn)
}

// WatchAll calls fn whenever any state may have changed.
func (s *Store) WatchAll(fn reactive.Listener) reactive.Unsubscribe {
	return s.db.SubscribeQuery("SELECT key, value FROM execution_state", fn)
}

func encodeValue(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decodeValue parses stored JSON, falling back to the raw text for values
// written by other tools.
func decodeValue(raw string) any {
	if raw == "null" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}
