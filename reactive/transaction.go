package reactive

import "context"

// Transaction runs fn atomically. Writes made inside fn notify nobody
// until the outermost Transaction commits; then every affected subscriber
// is notified once per distinct invalidation. When fn returns an error or
// panics, the scope is rolled back, its pending notifications are dropped
// and the error or panic is passed on unchanged.
//
// Nested calls are allowed. A failed inner scope is rolled back to its
// savepoint and contributes nothing to the outer scope's notifications.
func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.closed {
		return ErrClosed
	}
	return s.batches.Run(func() error {
		return s.engine.Transaction(ctx, fn)
	})
}

// Transact is Transaction for bodies that produce a value.
func Transact[T any](ctx context.Context, s *Store, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := s.Transaction(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
