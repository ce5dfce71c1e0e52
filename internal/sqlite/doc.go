// Package sqlite is the SQL engine underneath the reactive store: a single
// go-sqlite3 connection with prepared parametrized execution, affected-row
// and last-insert-id reporting, and nestable transactions.
//
// # Database Configuration
//
//   - WAL mode: concurrent readers from other processes during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout: wait for locks (default 5000ms)
//   - foreign_keys=ON: enforce referential integrity
//
// # Transactions
//
// The outermost Transaction call opens a database/sql transaction and every
// Query and Exec issued until it finishes runs on it. Nested calls open
// SAVEPOINTs, so a failed inner scope is rolled back while the outer scope
// carries on.
//
// A DB is owned by one caller at a time. It does not lock.
package sqlite
