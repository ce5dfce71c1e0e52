package reactive

import (
	"context"
	"fmt"
)

// Query runs a read and returns every row. A closed store returns an
// empty slice.
func (s *Store) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	if s.closed {
		return []Row{}, nil
	}
	rows, err := s.engine.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows.Maps(), nil
}

// QueryOne returns the first row, or nil when there is none.
func (s *Store) QueryOne(ctx context.Context, query string, args ...any) (Row, error) {
	if s.closed {
		return nil, nil
	}
	rows, err := s.engine.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if rows.Len() == 0 {
		return nil, nil
	}
	return rows.Maps()[0], nil
}

// QueryValue returns the first column of the first row. It returns nil
// when there is no row or the value is NULL; zero and empty-string values
// are returned as they are.
func (s *Store) QueryValue(ctx context.Context, query string, args ...any) (any, error) {
	if s.closed {
		return nil, nil
	}
	rows, err := s.engine.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	v, _ := rows.First()
	return v, nil
}

// QueryValueAs is QueryValue with a type assertion. ok is false when the
// value is absent or NULL.
func QueryValueAs[T any](ctx context.Context, s *Store, query string, args ...any) (value T, ok bool, err error) {
	v, err := s.QueryValue(ctx, query, args...)
	if err != nil || v == nil {
		return value, false, err
	}
	t, isT := v.(T)
	if !isT {
		return value, false, fmt.Errorf("query value is %T, not %T", v, value)
	}
	return t, true, nil
}
