// Package reactive is an embedded SQL store that tells subscribers when
// their data may have changed.
//
// Callers issue ordinary parametrized SQL. After every write the store
// works out which tables (and, when it can prove it, which single row) the
// statement touched and notifies the matching subscriptions. Nobody
// declares cache keys by hand.
//
//	st, err := reactive.Open("app.db")
//	...
//	unsub := st.SubscribeWithRowFilter("SELECT * FROM users WHERE id = ?", []any{2}, refresh)
//	defer unsub()
//	st.Run(ctx, "UPDATE users SET name = ? WHERE id = ?", "ada", 2) // refresh runs
//	st.Run(ctx, "UPDATE users SET name = ? WHERE id = ?", "bob", 1) // it does not
//
// The store errs on the side of notifying too much. Writes whose target
// cannot be identified notify every subscriber; inserts and writes with
// complex WHERE clauses notify every subscriber of the table.
//
// Writes inside Transaction are batched and announced once, after the
// outermost scope commits. A failed scope announces nothing.
//
// # Concurrency
//
// A Store is synchronous and does no locking. Drive it from one goroutine
// at a time. Listeners run on the calling goroutine, in registration
// order, before the triggering call returns; a listener that writes to the
// store re-enters the invalidation path.
//
// # Closing
//
// Close is terminal. Afterwards reads return empty results, writes are
// ignored and nothing is notified; no call returns an error except
// Transaction, which reports ErrClosed.
package reactive
