package subscription

import (
	"fmt"
	"runtime/debug"

	"github.com/roach88/rxsql/sqldeps"
)

// InvalidateAll notifies every subscription.
func (r *Registry) InvalidateAll() {
	r.metrics.invalidated(GranularityAll)
	r.notify(func(*Subscription) bool { return true })
}

// InvalidateTables notifies every subscription depending on any of tables,
// row-filtered or not.
func (r *Registry) InvalidateTables(tables sqldeps.TableSet) {
	if len(tables) == 0 {
		return
	}
	r.metrics.invalidated(GranularityTable)
	r.notify(func(s *Subscription) bool { return s.Wildcard || s.Tables.Intersects(tables) })
}

// InvalidateWithRowFilter notifies subscriptions affected by a write to
// tables that is known to touch only the row described by row.
//
// For each table a subscription shares with tables: without row filters
// for that table it is notified; with filters it is notified only if one
// names row. Tables other than row.Table are treated as touched at table
// level.
func (r *Registry) InvalidateWithRowFilter(tables sqldeps.TableSet, row sqldeps.RowFilter) {
	if len(tables) == 0 {
		return
	}
	mutated := sqldeps.Canonical(row.Table)
	r.metrics.invalidated(GranularityRow)
	r.notify(func(s *Subscription) bool {
		if s.Wildcard {
			return true
		}
		for t := range tables {
			if _, ok := s.Tables[t]; !ok {
				continue
			}
			filters := s.filtersFor(t)
			if len(filters) == 0 || t != mutated {
				return true
			}
			for _, f := range filters {
				if f.Matches(row) {
					return true
				}
			}
		}
		return false
	})
}

// InvalidateRows notifies subscriptions affected by changes to the rows of
// table whose column holds one of values. Each subscription is notified at
// most once.
func (r *Registry) InvalidateRows(table, column string, values []any) {
	t := sqldeps.Canonical(table)
	if t == "" || len(values) == 0 {
		return
	}
	rows := make([]sqldeps.RowFilter, len(values))
	for i, v := range values {
		rows[i] = sqldeps.RowFilter{Table: t, Column: column, Value: v}
	}
	r.metrics.invalidated(GranularityRow)
	r.notify(func(s *Subscription) bool {
		if s.Wildcard {
			return true
		}
		if _, ok := s.Tables[t]; !ok {
			return false
		}
		filters := s.filtersFor(t)
		if len(filters) == 0 {
			return true
		}
		for _, f := range filters {
			for _, row := range rows {
				if f.Matches(row) {
					return true
				}
			}
		}
		return false
	})
}

// notify calls the listener of every active subscription selected by
// match. The subscription list is copied first so listeners may subscribe
// or unsubscribe while notifications are in flight; a subscription removed
// mid-pass is skipped.
func (r *Registry) notify(match func(*Subscription) bool) {
	pending := make([]*Subscription, 0, len(r.subs))
	for _, s := range r.subs {
		if match(s) {
			pending = append(pending, s)
		}
	}
	for _, s := range pending {
		if !s.active {
			continue
		}
		r.deliver(s)
	}
}

func (r *Registry) deliver(s *Subscription) {
	defer func() {
		if rec := recover(); rec != nil {
			r.metrics.panicked()
			r.logger.Error("subscription listener panicked",
				"subscription", s.ID,
				"tables", s.Tables.Sorted(),
				"panic", fmt.Sprint(rec),
				"stack", string(debug.Stack()),
			)
		}
	}()
	r.metrics.notified()
	if s.listener != nil {
		s.listener()
	}
}
