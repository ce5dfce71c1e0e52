package sqldeps

import (
	"regexp"
	"strconv"
	"strings"
)

// RowFilter identifies a single row: the row of Table whose Column equals
// Value. Values compare by their ValueKey string form.
type RowFilter struct {
	Table  string `json:"table" yaml:"table"`
	Column string `json:"column" yaml:"column"`
	Value  any    `json:"value" yaml:"value"`
}

// Matches reports whether both filters name the same row.
func (f RowFilter) Matches(other RowFilter) bool {
	return Canonical(f.Table) == Canonical(other.Table) &&
		Canonical(f.Column) == Canonical(other.Column) &&
		ValueKey(f.Value) == ValueKey(other.Value)
}

// Key returns a string usable for de-duplicating filters.
func (f RowFilter) Key() string {
	return Canonical(f.Table) + "\x00" + Canonical(f.Column) + "\x00" + ValueKey(f.Value)
}

// rowTarget is the parameter-independent part of a row filter: either a
// literal value or the index of the ? parameter that supplies it.
type rowTarget struct {
	table      string
	column     string
	literal    any
	paramIndex int // -1 when literal is used
}

func (t rowTarget) resolve(params []any) (*RowFilter, bool) {
	v := t.literal
	if t.paramIndex >= 0 {
		if t.paramIndex >= len(params) {
			return nil, false
		}
		v = params[t.paramIndex]
	}
	return &RowFilter{Table: t.table, Column: t.column, Value: v}, true
}

// Anything in a WHERE clause beyond plain equalities joined by AND.
var disqualifiers = regexp.MustCompile(`(?i)\b(?:OR|IN|EXISTS|LIKE|GLOB|MATCH|REGEXP|BETWEEN|IS|NOT|CASE|COLLATE|ESCAPE|SELECT|UNION|INTERSECT|EXCEPT)\b|[<>!()|&+*/%;]`)

// Several statements or compound SELECT branches can each pin a different
// row, so neither yields a filter.
var multiStatement = regexp.MustCompile(`(?i);|\b(?:UNION|INTERSECT|EXCEPT)\b`)

var andSplitter = regexp.MustCompile(`(?i)\s+AND\s+`)

var equality = regexp.MustCompile(`^\s*(` + qualifiedIdent + `)\s*==?\s*(\?|'(?:[^']|'')*'|[-+]?[0-9]+(?:\.[0-9]+)?(?:[eE][-+]?[0-9]+)?)\s*$`)

// identity columns trusted to pin a single row, most preferred first.
var identityColumns = []string{"id", "rowid"}

// ExtractRowFilter determines the single row a statement touches, if it
// can prove one. It returns nil for INSERT/REPLACE statements, CTEs,
// multi-table forms, multi-statement text, compound SELECTs and any WHERE clause that is not a conjunction of
// column = value tests including one on id or rowid. A ? value is resolved
// from params by its position among all ? placeholders in the statement.
func ExtractRowFilter(sql string, params []any) *RowFilter {
	t, ok := parseRowTarget(sql)
	if !ok {
		return nil
	}
	f, ok := t.resolve(params)
	if !ok {
		return nil
	}
	return f
}

func parseRowTarget(sql string) (rowTarget, bool) {
	text := strings.TrimSpace(StripComments(sql))
	text = strings.TrimRight(text, "; \t\r\n")
	masked := maskLiterals(text)
	if multiStatement.MatchString(masked) {
		return rowTarget{}, false
	}

	table, ok := rowTargetTable(masked)
	if !ok {
		return rowTarget{}, false
	}

	where := topLevelKeyword(masked, "WHERE")
	if where < 0 {
		return rowTarget{}, false
	}
	clauseStart := where + len("WHERE")
	clauseEnd := len(masked)
	for _, kw := range []string{"ORDER", "GROUP", "LIMIT", "HAVING", "RETURNING", "WINDOW"} {
		if i := topLevelKeyword(masked[clauseStart:], kw); i >= 0 && clauseStart+i < clauseEnd {
			clauseEnd = clauseStart + i
		}
	}
	maskedClause := masked[clauseStart:clauseEnd]
	if disqualifiers.MatchString(maskedClause) {
		return rowTarget{}, false
	}

	placeholders := countPlaceholders(text[:clauseStart])
	var found []rowTarget
	clause := text[clauseStart:clauseEnd]
	for _, conj := range splitConjuncts(clause, maskedClause) {
		m := equality.FindStringSubmatch(conj)
		if m == nil {
			placeholders += countPlaceholders(conj)
			continue
		}
		t := rowTarget{table: table, column: Canonical(m[1]), paramIndex: -1}
		switch raw := m[2]; {
		case raw == "?":
			t.paramIndex = placeholders
			placeholders++
		case strings.HasPrefix(raw, "'"):
			t.literal = strings.ReplaceAll(raw[1:len(raw)-1], "''", "'")
		default:
			t.literal = parseNumber(raw)
		}
		found = append(found, t)
	}

	for _, col := range identityColumns {
		for _, t := range found {
			if t.column == col {
				return t, true
			}
		}
	}
	return rowTarget{}, false
}

// rowTargetTable locates the single table a row filter can refer to.
func rowTargetTable(masked string) (string, bool) {
	if ContainsWriteKeyword(masked) {
		switch leadingKeyword(masked) {
		case "update", "delete":
		default:
			return "", false
		}
		if hasInsert.MatchString(masked) {
			return "", false
		}
	}
	switch leadingKeyword(masked) {
	case "update":
		if topLevelKeyword(masked, "FROM") >= 0 {
			// UPDATE ... FROM joins other tables into the statement.
			return "", false
		}
		m := updateTable.FindStringSubmatch(masked)
		if m == nil {
			return "", false
		}
		return Canonical(m[1]), true
	case "delete":
		m := deleteTable.FindStringSubmatch(masked)
		if m == nil {
			return "", false
		}
		return Canonical(m[1]), true
	case "select":
		tables := ExtractReadTables(masked)
		if len(tables) != 1 || hasJoin.MatchString(masked) {
			return "", false
		}
		from, where := topLevelKeyword(masked, "FROM"), topLevelKeyword(masked, "WHERE")
		if from < 0 || where < from || strings.ContainsRune(masked[from:where], ',') {
			// comma join, possibly a self-join
			return "", false
		}
		m := selectTable.FindStringSubmatch(masked)
		if m == nil {
			return "", false
		}
		return Canonical(m[1]), true
	}
	return "", false
}

var (
	hasInsert   = regexp.MustCompile(`(?i)\b(?:INSERT|REPLACE)\b`)
	hasJoin     = regexp.MustCompile(`(?i)\bJOIN\b`)
	updateTable = regexp.MustCompile(`(?i)^\s*UPDATE\s+(?:OR\s+[A-Za-z]+\s+)?(` + qualifiedIdent + `)`)
	deleteTable = regexp.MustCompile(`(?i)^\s*DELETE\s+FROM\s+(` + qualifiedIdent + `)`)
	selectTable = regexp.MustCompile(`(?i)\bFROM\s+(` + qualifiedIdent + `)`)
)

// splitConjuncts splits the WHERE clause on AND, using the masked copy to
// find separators so that AND inside a string literal does not split.
func splitConjuncts(clause, masked string) []string {
	locs := andSplitter.FindAllStringIndex(masked, -1)
	out := make([]string, 0, len(locs)+1)
	start := 0
	for _, loc := range locs {
		out = append(out, clause[start:loc[0]])
		start = loc[1]
	}
	return append(out, clause[start:])
}

func parseNumber(raw string) any {
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}
