package sqlite

import (
	"database/sql"
	"fmt"
)

// Row is one result row keyed by column name. When a result has duplicate
// column names the rightmost wins.
type Row map[string]any

// Rows is a fully read result set.
type Rows struct {
	Columns []string
	Values  [][]any
}

// Len returns the number of rows.
func (r *Rows) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Values)
}

// Maps returns the rows keyed by column name.
func (r *Rows) Maps() []Row {
	if r == nil {
		return []Row{}
	}
	out := make([]Row, len(r.Values))
	for i, vals := range r.Values {
		row := make(Row, len(r.Columns))
		for j, col := range r.Columns {
			row[col] = vals[j]
		}
		out[i] = row
	}
	return out
}

// First returns the first column of the first row. ok is false when there
// is no row or no column.
func (r *Rows) First() (v any, ok bool) {
	if r.Len() == 0 || len(r.Values[0]) == 0 {
		return nil, false
	}
	return r.Values[0][0], true
}

// Result reports the effect of a write.
type Result struct {
	ChangesAffected int64 `json:"changes"`
	LastInsertID    int64 `json:"last_insert_id"`
}

func newResult(res sql.Result) (Result, error) {
	changes, err := res.RowsAffected()
	if err != nil {
		return Result{}, fmt.Errorf("rows affected: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Result{}, fmt.Errorf("last insert id: %w", err)
	}
	return Result{ChangesAffected: changes, LastInsertID: id}, nil
}

func readRows(rows *sql.Rows) (*Rows, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	out := &Rows{Columns: cols, Values: [][]any{}}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out.Values = append(out.Values, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
