// Package subscription holds live subscriptions and decides which of them
// a write must notify.
//
// A subscription depends on a set of tables and, optionally, on single
// rows of those tables (row filters). Table-level invalidation notifies
// every subscription that depends on a touched table. Row-level
// invalidation notifies a subscription only if it has no row filter for
// the touched table, or one of its filters names the touched row.
//
// Listeners run synchronously, in registration order, on the goroutine
// that triggered the invalidation. A panicking listener is recovered and
// logged; the remaining listeners still run and the panic never reaches
// the caller.
//
// The Registry performs no locking. It is meant to be driven by one owner
// at a time, like the store that embeds it. Listeners may subscribe,
// unsubscribe or trigger further invalidations; nothing guards against
// unbounded recursion.
package subscription
