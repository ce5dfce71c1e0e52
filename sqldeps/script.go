package sqldeps

import (
	"strings"

	rqlitesql "github.com/rqlite/sql"
)

// ScriptWriteTables returns the write targets of a multi-statement script.
// The textual scan runs over the whole script and each statement is also
// parsed with the SQLite grammar; the results are unioned, so the parser
// can only add targets the scan missed.
func ScriptWriteTables(script string) TableSet {
	tables := ExtractWriteTables(script)
	for _, stmt := range SplitStatements(script) {
		if name := parsedWriteTable(stmt); name != "" {
			tables.Add(name)
		}
	}
	return tables
}

// parsedWriteTable returns the DML or CREATE TABLE target of a single
// statement, or "" when the parser rejects it or it has no such target.
func parsedWriteTable(stmt string) (name string) {
	defer func() {
		if recover() != nil {
			name = ""
		}
	}()

	parser := rqlitesql.NewParser(strings.NewReader(stmt))
	ast, err := parser.ParseStatement()
	if err != nil {
		return ""
	}
	switch s := ast.(type) {
	case *rqlitesql.InsertStatement:
		return rqlitesql.IdentName(s.Table)
	case *rqlitesql.UpdateStatement:
		if s.Table != nil {
			return s.Table.TableName()
		}
	case *rqlitesql.DeleteStatement:
		if s.Table != nil {
			return s.Table.TableName()
		}
	case *rqlitesql.CreateTableStatement:
		return rqlitesql.IdentName(s.Name)
	}
	return ""
}
