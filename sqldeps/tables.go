package sqldeps

import (
	"regexp"
	"strings"
)

const identSegment = `(?:"[^"]*"|` + "`[^`]*`" + `|\[[^\]]*\]|[A-Za-z_\x{80}-\x{10FFFF}][A-Za-z0-9_$\x{80}-\x{10FFFF}]*)`

const qualifiedIdent = identSegment + `(?:\s*\.\s*` + identSegment + `)*`

var writePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bINSERT\s+(?:OR\s+[A-Za-z]+\s+)?INTO\s+(` + qualifiedIdent + `)`),
	regexp.MustCompile(`(?i)\bREPLACE\s+INTO\s+(` + qualifiedIdent + `)`),
	regexp.MustCompile(`(?i)\bUPDATE\s+(?:OR\s+[A-Za-z]+\s+)?(` + qualifiedIdent + `)`),
	regexp.MustCompile(`(?i)\bDELETE\s+FROM\s+(` + qualifiedIdent + `)`),
	regexp.MustCompile(`(?i)\bCREATE\s+(?:(?:TEMP|TEMPORARY)\s+)?TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?(` + qualifiedIdent + `)`),
	regexp.MustCompile(`(?i)\bDROP\s+TABLE\s+(?:IF\s+EXISTS\s+)?(` + qualifiedIdent + `)`),
	regexp.MustCompile(`(?i)\bALTER\s+TABLE\s+(` + qualifiedIdent + `)`),
}

// Words that can follow UPDATE without naming a table: the upsert clause
// (DO UPDATE SET) and trigger events (UPDATE ON t, UPDATE OF col ON t).
var notTargets = map[string]bool{"set": true, "on": true, "of": true}

// Words that end a FROM item instead of aliasing it.
var clauseWords = map[string]bool{
	"where": true, "group": true, "order": true, "limit": true, "having": true,
	"join": true, "inner": true, "left": true, "right": true, "full": true,
	"cross": true, "natural": true, "outer": true, "on": true, "using": true,
	"union": true, "intersect": true, "except": true, "window": true,
	"returning": true, "set": true, "values": true, "indexed": true,
	"not": true, "select": true, "offset": true, "do": true, "from": true,
}

// ExtractReadTables returns the tables named after FROM or JOIN anywhere in
// the statement, including subqueries, CTE bodies and compound SELECT
// branches. Comma-separated FROM lists are followed. Table-valued function
// calls such as json_each(...) are not tables and are skipped.
func ExtractReadTables(sql string) TableSet {
	text := maskLiterals(StripComments(sql))
	tables := make(TableSet)
	for i := 0; i < len(text); {
		c := text[i]
		if c == '"' || c == '`' || c == '[' {
			i = skipQuoted(text, i)
			continue
		}
		if isWordStart(text, i) && (hasKeywordAt(text, i, "FROM") || hasKeywordAt(text, i, "JOIN")) {
			i += 4
			readFromList(text, i, tables)
			continue
		}
		i++
	}
	return tables
}

// readFromList consumes "item [alias] {, item [alias]}" starting at i.
func readFromList(text string, i int, tables TableSet) {
	for {
		i = skipSpace(text, i)
		if i >= len(text) {
			return
		}
		if text[i] == '(' {
			end := skipParens(text, i)
			if !startsSubquery(text, i+1) {
				// parenthesized table or join: (a), (a JOIN b ON ...)
				inner := text[i+1 : end]
				if n := len(inner); n > 0 && inner[n-1] == ')' {
					inner = inner[:n-1]
				}
				readFromList(inner, 0, tables)
			}
			// A subquery's own FROM clauses are found by the outer scan.
			i = end
		} else {
			end, ok := scanQualified(text, i)
			if !ok {
				return
			}
			name := text[i:end]
			next := skipSpace(text, end)
			if next < len(text) && text[next] == '(' {
				// table-valued function
				i = skipParens(text, next)
			} else {
				if clauseWords[strings.ToLower(name)] {
					return
				}
				tables.Add(name)
				i = end
			}
		}
		i = skipAlias(text, i)
		i = skipSpace(text, i)
		if i >= len(text) || text[i] != ',' {
			return
		}
		i++
	}
}

// startsSubquery reports whether the text at i begins a SELECT, WITH or
// VALUES body.
func startsSubquery(text string, i int) bool {
	i = skipSpace(text, i)
	for i < len(text) && text[i] == '(' {
		i = skipSpace(text, i+1)
	}
	return hasKeywordAt(text, i, "SELECT") || hasKeywordAt(text, i, "WITH") || hasKeywordAt(text, i, "VALUES")
}

// skipAlias steps over "[AS] alias" when present.
func skipAlias(text string, i int) int {
	j := skipSpace(text, i)
	if hasKeywordAt(text, j, "AS") {
		j = skipSpace(text, j+2)
	}
	end, ok := scanSegment(text, j)
	if !ok || clauseWords[strings.ToLower(text[j:end])] {
		return i
	}
	return end
}

// scanQualified scans a possibly schema-qualified identifier at i.
func scanQualified(text string, i int) (int, bool) {
	end, ok := scanSegment(text, i)
	if !ok {
		return i, false
	}
	for {
		dot := skipSpace(text, end)
		if dot >= len(text) || text[dot] != '.' {
			return end, true
		}
		next, ok := scanSegment(text, skipSpace(text, dot+1))
		if !ok {
			return end, true
		}
		end = next
	}
}

func scanSegment(text string, i int) (int, bool) {
	if i >= len(text) {
		return i, false
	}
	switch c := text[i]; {
	case c == '"' || c == '`' || c == '[':
		return skipQuoted(text, i), true
	case c == '_' || c >= 0x80 || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z'):
		j := i + 1
		for j < len(text) && isIdentByte(text[j]) {
			j++
		}
		return j, true
	}
	return i, false
}

func skipSpace(text string, i int) int {
	for i < len(text) && (text[i] == ' ' || text[i] == '\t' || text[i] == '\n' || text[i] == '\r' || text[i] == '\f') {
		i++
	}
	return i
}

// skipParens returns the offset after the parenthesis group opening at i.
func skipParens(text string, i int) int {
	depth := 0
	for i < len(text) {
		switch c := text[i]; c {
		case '\'', '"', '`', '[':
			i = skipQuoted(text, i)
			continue
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
		i++
	}
	return i
}

// ExtractWriteTables returns the tables targeted by INSERT, REPLACE,
// UPDATE, DELETE and table DDL. Index, trigger and view DDL resolve to no
// table.
func ExtractWriteTables(sql string) TableSet {
	text := maskLiterals(StripComments(sql))
	tables := make(TableSet)
	for _, re := range writePatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			name := m[1]
			if notTargets[strings.ToLower(name)] {
				continue
			}
			tables.Add(name)
		}
	}
	return tables
}

var writeKeywords = map[string]bool{
	"insert": true, "update": true, "delete": true, "replace": true,
	"create": true, "drop": true, "alter": true,
}

// IsWriteOperation classifies a statement by its leading keyword only.
// WITH-prefixed statements and maintenance or transaction-control
// statements report false.
func IsWriteOperation(sql string) bool {
	return writeKeywords[leadingKeyword(sql)]
}

func leadingKeyword(sql string) string {
	text := strings.TrimSpace(StripComments(sql))
	end, ok := scanSegment(text, 0)
	if !ok {
		return ""
	}
	return strings.ToLower(text[:end])
}

var writeKeywordPattern = regexp.MustCompile(`(?i)\b(?:INSERT|UPDATE|DELETE|REPLACE|CREATE|DROP|ALTER)\b`)

// ContainsWriteKeyword reports whether a write keyword appears anywhere in
// the comment-stripped text. Keywords inside string literals still count;
// a false positive only costs an extra refresh.
func ContainsWriteKeyword(sql string) bool {
	return writeKeywordPattern.MatchString(StripComments(sql))
}
