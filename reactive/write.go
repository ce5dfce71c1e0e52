package reactive

import (
	"context"

	"github.com/roach88/rxsql/sqldeps"
)

// Run executes a single write and notifies the subscribers it affects.
//
// Targeting, from finest to broadest:
//   - a provable single-row UPDATE/DELETE notifies row subscribers of that
//     row plus every table-level subscriber of the table;
//   - any other write notifies every subscriber of the written tables;
//   - a statement whose target cannot be identified notifies everybody.
//
// Engine errors are returned unchanged and notify nobody. On a closed
// store Run does nothing.
func (s *Store) Run(ctx context.Context, query string, args ...any) (Result, error) {
	if s.closed {
		return Result{}, nil
	}
	res, err := s.engine.Exec(ctx, query, args...)
	if err != nil {
		return Result{}, err
	}
	s.invalidateStatement(query, args)
	return res, nil
}

func (s *Store) invalidateStatement(query string, args []any) {
	a := s.analyzer.Analyze(query, args)
	if len(a.WriteTables) == 0 {
		s.logger.Debug("write target not identified, invalidating all subscriptions", "sql", query)
		s.batches.InvalidateAll()
		return
	}
	if rf := a.RowFilter; rf != nil && len(a.WriteTables) == 1 && a.WriteTables.Has(rf.Table) {
		s.batches.InvalidateWithRowFilter(a.WriteTables, *rf)
		return
	}
	s.batches.InvalidateTables(a.WriteTables)
}

// Exec runs schema, pragma or multi-statement text. Statements it can
// attribute to tables notify those tables' subscribers; text that names no
// table but still contains a write keyword notifies everybody. Pure reads
// and pragmas notify nobody.
func (s *Store) Exec(ctx context.Context, script string) error {
	if s.closed {
		return nil
	}
	if err := s.engine.ExecScript(ctx, script); err != nil {
		return err
	}

	if stmts := sqldeps.SplitStatements(script); len(stmts) == 1 {
		a := s.analyzer.Analyze(stmts[0], nil)
		if len(a.WriteTables) > 0 {
			s.invalidateStatement(stmts[0], nil)
			return nil
		}
	}

	targets := sqldeps.ScriptWriteTables(script)
	switch {
	case len(targets) > 0:
		s.batches.InvalidateTables(targets)
	case sqldeps.ContainsWriteKeyword(script):
		s.logger.Debug("script write target not identified, invalidating all subscriptions")
		s.batches.InvalidateAll()
	}
	return nil
}
