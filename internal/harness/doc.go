// Package harness runs notification scenarios against a reactive store.
//
// A scenario creates a schema, registers named subscriptions and drives a
// sequence of writes. After each step the harness records which
// subscriptions were notified and compares that with the step's expect
// list. The recorded trace can also be compared with a golden file.
//
// # Scenario Format
//
// Scenarios are YAML files, or CUE files whose top level (or a
// `scenario` field) has the same shape:
//
//	name: row_level_update
//	description: "An update by id notifies only that row's subscribers"
//	schema: |
//	  CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT);
//	  INSERT INTO users VALUES (1, 'ada'), (2, 'bob');
//	subscriptions:
//	  - name: user1
//	    kind: row
//	    sql: SELECT * FROM users WHERE id = ?
//	    params: [1]
//	  - name: all_users
//	    kind: table
//	    tables: [users]
//	steps:
//	  - run:
//	      sql: UPDATE users SET name = ? WHERE id = ?
//	      params: [ada2, 1]
//	    expect: [user1, all_users]
//	  - transaction:
//	      fail: true
//	      steps:
//	        - run: {sql: "DELETE FROM users"}
//	    expect: []
//	assertions:
//	  - type: notification_count
//	    subscription: user1
//	    count: 1
//	  - type: final_state
//	    sql: SELECT name FROM users WHERE id = 1
//	    rows: [{name: ada2}]
//
// # Step Kinds
//
//   - run: one parametrized write through Store.Run
//   - exec: script text through Store.Exec
//   - invalidate: manual table invalidation (no tables means everybody)
//   - invalidate_rows: manual row invalidation
//   - transaction: nested steps inside Store.Transaction; fail makes the
//     body return an error after its steps
//
// A step without expect is not checked. `expect: []` asserts that nobody
// was notified.
//
// # Deterministic Testing
//
// Every scenario runs in a fresh in-memory database with sequential
// subscription IDs, so traces are stable across runs and can be compared
// with golden files under testdata/golden.
package harness
