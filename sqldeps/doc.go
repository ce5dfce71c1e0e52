// Package sqldeps infers table dependencies from SQL text.
//
// The analyzer is deliberately shallow: it scans statement text for the
// keywords that introduce table names (FROM, JOIN, INSERT INTO, UPDATE,
// DELETE FROM and table DDL) instead of building a syntax tree. It never
// fails. Unparseable input degrades to an empty table set or a nil row
// filter, and callers treat both as "invalidate broadly".
//
// Over-approximation is acceptable, under-approximation is not. A table
// that is named but not actually touched costs a spurious refresh; a table
// that is touched but not named leaves a subscriber reading stale data.
//
// # Known limitations
//
//   - CREATE/DROP INDEX, TRIGGER and VIEW statements do not resolve to a
//     table in ExtractWriteTables.
//   - IsWriteOperation looks only at the leading keyword, so CTE-prefixed
//     writes (WITH ... INSERT) and maintenance statements (VACUUM, PRAGMA,
//     BEGIN) classify as non-writes.
//   - Aliases are never resolved; only the rightmost segment of a
//     schema-qualified name is kept.
//
// Row filters are only produced for a single-table UPDATE, DELETE or SELECT
// whose WHERE clause is a conjunction of plain equalities and pins the
// id or rowid column.
package sqldeps
