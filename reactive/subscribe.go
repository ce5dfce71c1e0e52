package reactive

import "github.com/roach88/rxsql/sqldeps"

func noop() {}

// Subscribe calls fn whenever any of tables is written.
func (s *Store) Subscribe(tables []string, fn Listener) Unsubscribe {
	if s.closed {
		return noop
	}
	return s.registry.Subscribe(tables, fn)
}

// SubscribeQuery calls fn whenever any table read by query is written.
func (s *Store) SubscribeQuery(query string, fn Listener) Unsubscribe {
	if s.closed {
		return noop
	}
	return s.registry.SubscribeQuery(query, fn)
}

// SubscribeWithRowFilter subscribes like SubscribeQuery, but when query
// reads a single table and pins one row by id or rowid, fn only runs for
// writes that may touch that row.
func (s *Store) SubscribeWithRowFilter(query string, params []any, fn Listener) Unsubscribe {
	if s.closed {
		return noop
	}
	return s.registry.SubscribeWithRowFilter(query, params, fn)
}

// SubscribeRows subscribes to explicit rows, for callers that know their
// dependencies better than the analyzer.
func (s *Store) SubscribeRows(filters []RowFilter, fn Listener) Unsubscribe {
	if s.closed {
		return noop
	}
	return s.registry.SubscribeRows(nil, filters, fn)
}

// Invalidate notifies subscribers of tables, or every subscriber when no
// table is given. Inside a transaction the notification waits for commit.
func (s *Store) Invalidate(tables ...string) {
	if s.closed {
		return
	}
	if len(tables) == 0 {
		s.batches.InvalidateAll()
		return
	}
	s.batches.InvalidateTables(sqldeps.NewTableSet(tables...))
}

// InvalidateRows notifies subscribers of the rows of table whose column
// equals one of values, plus table-level subscribers of table.
func (s *Store) InvalidateRows(table, column string, values ...any) {
	if s.closed || len(values) == 0 {
		return
	}
	s.batches.InvalidateRows(table, column, values)
}
