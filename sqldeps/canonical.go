package sqldeps

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Canonical returns the comparison form of a table or column name:
// quoting removed, NFC-normalized and lowercased.
func Canonical(name string) string {
	name = strings.TrimSpace(name)
	if i := lastSegment(name); i > 0 {
		name = name[i:]
	}
	name = unquoteIdent(name)
	return strings.ToLower(norm.NFC.String(name))
}

// lastSegment returns the offset of the rightmost dot-separated segment of
// a possibly schema-qualified identifier. Dots inside quotes are ignored.
func lastSegment(name string) int {
	var quote byte
	last := 0
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '`':
			quote = c
		case c == '[':
			quote = ']'
		case c == '.':
			last = i + 1
		}
	}
	for last < len(name) && name[last] == ' ' {
		last++
	}
	return last
}

func unquoteIdent(name string) string {
	if len(name) < 2 {
		return name
	}
	switch first, last := name[0], name[len(name)-1]; {
	case first == '"' && last == '"', first == '`' && last == '`', first == '[' && last == ']':
		return name[1 : len(name)-1]
	}
	return name
}

// ValueKey converts a row value to the string form used for row filter
// equality. 1, int64(1), "1" and []byte("1") all compare equal.
func ValueKey(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case []byte:
		return string(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case bool:
		if x {
			return "1"
		}
		return "0"
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// TableSet is a set of canonical table names.
type TableSet map[string]struct{}

// NewTableSet builds a set from raw names, canonicalizing each one.
// Empty names are dropped.
func NewTableSet(names ...string) TableSet {
	s := make(TableSet, len(names))
	for _, n := range names {
		s.Add(n)
	}
	return s
}

// Add inserts the canonical form of name.
func (s TableSet) Add(name string) {
	if c := Canonical(name); c != "" {
		s[c] = struct{}{}
	}
}

// Has reports whether name (in any case) is in the set.
func (s TableSet) Has(name string) bool {
	_, ok := s[Canonical(name)]
	return ok
}

// Union adds every member of other to s.
func (s TableSet) Union(other TableSet) {
	for t := range other {
		s[t] = struct{}{}
	}
}

// Intersects reports whether the sets share at least one table.
func (s TableSet) Intersects(other TableSet) bool {
	small, large := s, other
	if len(small) > len(large) {
		small, large = large, small
	}
	for t := range small {
		if _, ok := large[t]; ok {
			return true
		}
	}
	return false
}

// Sorted returns the members in lexical order.
func (s TableSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy.
func (s TableSet) Clone() TableSet {
	c := make(TableSet, len(s))
	c.Union(s)
	return c
}
