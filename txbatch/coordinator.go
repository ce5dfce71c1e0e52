// Package txbatch defers invalidations raised inside transaction scopes
// until the outermost scope commits.
//
// Each scope pushes a pending frame. Invalidations raised while any frame
// is open accumulate in the top frame instead of notifying subscribers.
// When a nested scope succeeds its frame is merged into its parent; when
// the outermost scope succeeds its frame is flushed to the Applier. A
// failed scope's frame is dropped without merging, so work that was
// rolled back is never announced and never leaks into the parent's flush.
//
// Nesting here is a batching concept. Whether the database undoes a failed
// inner scope's writes is up to the engine (the bundled SQLite engine uses
// savepoints).
package txbatch

import (
	"github.com/roach88/rxsql/sqldeps"
)

// Applier delivers invalidations to subscribers. *subscription.Registry
// implements it.
type Applier interface {
	InvalidateAll()
	InvalidateTables(tables sqldeps.TableSet)
	InvalidateWithRowFilter(tables sqldeps.TableSet, row sqldeps.RowFilter)
	InvalidateRows(table, column string, values []any)
}

// Frame is the pending invalidation state of one transaction scope.
type Frame struct {
	Tables sqldeps.TableSet
	Rows   []sqldeps.RowFilter
	All    bool
}

func newFrame() *Frame {
	return &Frame{Tables: make(sqldeps.TableSet)}
}

// merge folds child into f: union of tables, concatenation of rows, OR of
// the all flag.
func (f *Frame) merge(child *Frame) {
	f.Tables.Union(child.Tables)
	f.Rows = append(f.Rows, child.Rows...)
	f.All = f.All || child.All
}

// Empty reports whether the frame would notify nobody.
func (f *Frame) Empty() bool {
	return !f.All && len(f.Tables) == 0 && len(f.Rows) == 0
}

// Coordinator routes invalidations either straight to the Applier or into
// the current pending frame.
//
// Not safe for concurrent use.
type Coordinator struct {
	target Applier
	frames []*Frame
}

// New creates a coordinator delivering to target.
func New(target Applier) *Coordinator {
	return &Coordinator{target: target}
}

// Depth returns the number of open scopes.
func (c *Coordinator) Depth() int {
	return len(c.frames)
}

// Begin opens a scope.
func (c *Coordinator) Begin() {
	c.frames = append(c.frames, newFrame())
}

// Commit closes the innermost scope successfully. A nested frame is merged
// into its parent; the outermost frame is flushed.
func (c *Coordinator) Commit() {
	f, ok := c.pop()
	if !ok {
		return
	}
	if parent := c.top(); parent != nil {
		parent.merge(f)
		return
	}
	c.flush(f)
}

// Discard closes the innermost scope after a failure and drops its frame.
func (c *Coordinator) Discard() {
	c.pop()
}

// Run executes fn inside a scope. The scope commits when fn returns nil
// and is discarded when fn returns an error or panics; the error or panic
// is passed through unchanged.
func (c *Coordinator) Run(fn func() error) (err error) {
	c.Begin()
	committed := false
	defer func() {
		if !committed {
			c.Discard()
		}
	}()

	if err := fn(); err != nil {
		return err
	}
	committed = true
	c.Commit()
	return nil
}

// Reset drops every open frame without flushing. Used when the owner is
// closed mid-transaction.
func (c *Coordinator) Reset() {
	c.frames = nil
}

// InvalidateAll notifies everybody, now or at commit.
func (c *Coordinator) InvalidateAll() {
	if f := c.top(); f != nil {
		f.All = true
		return
	}
	c.target.InvalidateAll()
}

// InvalidateTables notifies subscribers of tables, now or at commit.
func (c *Coordinator) InvalidateTables(tables sqldeps.TableSet) {
	if f := c.top(); f != nil {
		f.Tables.Union(tables)
		return
	}
	c.target.InvalidateTables(tables)
}

// InvalidateWithRowFilter records a single-row write, now or at commit.
// Tables other than row.Table are recorded at table level.
func (c *Coordinator) InvalidateWithRowFilter(tables sqldeps.TableSet, row sqldeps.RowFilter) {
	f := c.top()
	if f == nil {
		c.target.InvalidateWithRowFilter(tables, row)
		return
	}
	mutated := sqldeps.Canonical(row.Table)
	for t := range tables {
		if t != mutated {
			f.Tables[t] = struct{}{}
		}
	}
	if tables.Has(mutated) {
		f.Rows = append(f.Rows, row)
	}
}

// InvalidateRows records manual row invalidations, now or at commit.
func (c *Coordinator) InvalidateRows(table, column string, values []any) {
	f := c.top()
	if f == nil {
		c.target.InvalidateRows(table, column, values)
		return
	}
	for _, v := range values {
		f.Rows = append(f.Rows, sqldeps.RowFilter{Table: sqldeps.Canonical(table), Column: column, Value: v})
	}
}

// flush turns a committed frame into notifications: everybody if the all
// flag is set, otherwise the table set once, then each distinct row whose
// table was not already covered.
func (c *Coordinator) flush(f *Frame) {
	if f.All {
		c.target.InvalidateAll()
		return
	}
	if len(f.Tables) > 0 {
		c.target.InvalidateTables(f.Tables)
	}
	seen := make(map[string]bool, len(f.Rows))
	for _, row := range f.Rows {
		if f.Tables.Has(row.Table) {
			continue
		}
		key := row.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		c.target.InvalidateWithRowFilter(sqldeps.NewTableSet(row.Table), row)
	}
}

func (c *Coordinator) top() *Frame {
	if len(c.frames) == 0 {
		return nil
	}
	return c.frames[len(c.frames)-1]
}

func (c *Coordinator) pop() (*Frame, bool) {
	n := len(c.frames)
	if n == 0 {
		return nil, false
	}
	f := c.frames[n-1]
	c.frames[n-1] = nil
	c.frames = c.frames[:n-1]
	return f, true
}
