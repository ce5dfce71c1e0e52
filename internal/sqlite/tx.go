package sqlite

import (
	"context"
	"errors"
	"fmt"
)

// InTransaction reports whether a Transaction scope is open.
func (d *DB) InTransaction() bool {
	return d.depth > 0
}

// Transaction runs fn atomically. fn's error, or a panic, rolls the scope
// back and is returned (or re-panicked) unchanged. Inside fn, Query and
// Exec on d run on the transaction.
func (d *DB) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if d.db == nil {
		return fmt.Errorf("database is closed")
	}
	if d.tx == nil {
		return d.outer(ctx, fn)
	}
	return d.savepoint(ctx, fn)
}

func (d *DB) outer(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	d.tx, d.depth = tx, 1

	done := false
	defer func() {
		if !done {
			_ = tx.Rollback()
		}
		if d.tx == tx {
			d.tx, d.depth = nil, 0
		}
	}()

	if err := fn(ctx); err != nil {
		done = true
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	done = true
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (d *DB) savepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	tx := d.tx
	d.depth++
	name := fmt.Sprintf("rxsql_sp_%d", d.depth)
	defer func() { d.depth-- }()

	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}

	rollback := func() error {
		if _, err := tx.ExecContext(ctx, "ROLLBACK TO "+name); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "RELEASE "+name)
		return err
	}

	done := false
	defer func() {
		if !done {
			_ = rollback()
		}
	}()

	if err := fn(ctx); err != nil {
		done = true
		if rbErr := rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback to savepoint: %w", rbErr))
		}
		return err
	}
	done = true
	if _, err := tx.ExecContext(ctx, "RELEASE "+name); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}
