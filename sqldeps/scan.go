package sqldeps

import "strings"

// StripComments removes -- line comments and /* */ block comments.
// Comment markers inside quoted strings or identifiers are left alone.
// An unterminated block comment swallows the rest of the text.
func StripComments(sql string) string {
	if !strings.Contains(sql, "--") && !strings.Contains(sql, "/*") {
		return sql
	}
	var b strings.Builder
	b.Grow(len(sql))
	for i := 0; i < len(sql); {
		c := sql[i]
		switch {
		case c == '\'' || c == '"' || c == '`' || c == '[':
			end := skipQuoted(sql, i)
			b.WriteString(sql[i:end])
			i = end
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			nl := strings.IndexByte(sql[i:], '\n')
			if nl < 0 {
				return b.String()
			}
			i += nl
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				return b.String()
			}
			// keep tokens on either side of the comment apart
			b.WriteByte(' ')
			i += end + 4
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

// skipQuoted returns the offset just past the quoted run starting at i.
// Doubled quote characters are treated as escapes. Unterminated quotes run
// to the end of the text.
func skipQuoted(s string, i int) int {
	closer := s[i]
	if closer == '[' {
		closer = ']'
	}
	for j := i + 1; j < len(s); j++ {
		if s[j] != closer {
			continue
		}
		if closer != ']' && j+1 < len(s) && s[j+1] == closer {
			j++
			continue
		}
		return j + 1
	}
	return len(s)
}

// maskLiterals returns a copy of sql with the contents of string literals
// replaced by spaces, so that keyword and punctuation scans cannot match
// inside them. Offsets are preserved.
func maskLiterals(sql string) string {
	if !strings.ContainsRune(sql, '\'') {
		return sql
	}
	buf := []byte(sql)
	for i := 0; i < len(buf); {
		c := buf[i]
		if c == '"' || c == '`' || c == '[' {
			i = skipQuoted(sql, i)
			continue
		}
		if c != '\'' {
			i++
			continue
		}
		end := skipQuoted(sql, i)
		for j := i + 1; j < end-1; j++ {
			buf[j] = ' '
		}
		i = end
	}
	return string(buf)
}

// countPlaceholders counts anonymous ? parameters outside quotes.
func countPlaceholders(sql string) int {
	n := 0
	for i := 0; i < len(sql); {
		switch c := sql[i]; c {
		case '\'', '"', '`', '[':
			i = skipQuoted(sql, i)
		case '?':
			n++
			i++
		default:
			i++
		}
	}
	return n
}

// topLevelKeyword finds the first occurrence of keyword (upper case) at
// parenthesis depth zero, outside quotes and on word boundaries. It returns
// -1 when absent.
func topLevelKeyword(sql, keyword string) int {
	depth := 0
	for i := 0; i < len(sql); {
		c := sql[i]
		switch {
		case c == '\'' || c == '"' || c == '`' || c == '[':
			i = skipQuoted(sql, i)
			continue
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
		case depth == 0 && isWordStart(sql, i) && hasKeywordAt(sql, i, keyword):
			return i
		}
		i++
	}
	return -1
}

func hasKeywordAt(s string, i int, keyword string) bool {
	end := i + len(keyword)
	if end > len(s) || !strings.EqualFold(s[i:end], keyword) {
		return false
	}
	return end == len(s) || !isIdentByte(s[end])
}

func isWordStart(s string, i int) bool {
	return i == 0 || !isIdentByte(s[i-1])
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c >= 0x80 ||
		('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

// SplitStatements splits a script on top-level semicolons. Semicolons in
// quotes, comments or BEGIN...END trigger bodies do not split. Empty
// statements are dropped.
func SplitStatements(script string) []string {
	text := StripComments(script)
	var out []string
	start, blocks := 0, 0
	emit := func(end int) {
		if s := strings.TrimSpace(text[start:end]); s != "" {
			out = append(out, s)
		}
		start = end + 1
	}
	for i := 0; i < len(text); {
		c := text[i]
		switch {
		case c == '\'' || c == '"' || c == '`' || c == '[':
			i = skipQuoted(text, i)
			continue
		case c == ';' && blocks == 0:
			emit(i)
		case isWordStart(text, i) && hasKeywordAt(text, i, "BEGIN") && startsTrigger(text[start:i]):
			blocks++
		case blocks > 0 && isWordStart(text, i) && hasKeywordAt(text, i, "END"):
			blocks--
		}
		i++
	}
	if start < len(text) {
		emit(len(text))
	}
	return out
}

// startsTrigger reports whether the statement prefix is a CREATE TRIGGER.
func startsTrigger(prefix string) bool {
	up := strings.ToUpper(strings.Join(strings.Fields(prefix), " "))
	return strings.HasPrefix(up, "CREATE TRIGGER") ||
		strings.HasPrefix(up, "CREATE TEMP TRIGGER") ||
		strings.HasPrefix(up, "CREATE TEMPORARY TRIGGER")
}
