package sqldeps

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Analysis bundles everything the invalidation path needs to know about
// one statement.
type Analysis struct {
	ReadTables  TableSet
	WriteTables TableSet
	IsWrite     bool
	// RowFilter is nil unless the statement provably touches one row.
	RowFilter *RowFilter
}

// Analyze runs every extractor over sql.
func Analyze(sql string, params []any) Analysis {
	return analyzeShape(sql).analysis(params)
}

// shape is the parameter-independent analysis of a statement.
type shape struct {
	read      TableSet
	write     TableSet
	isWrite   bool
	target    rowTarget
	hasTarget bool
}

func analyzeShape(sql string) *shape {
	s := &shape{
		read:    ExtractReadTables(sql),
		write:   ExtractWriteTables(sql),
		isWrite: IsWriteOperation(sql),
	}
	s.target, s.hasTarget = parseRowTarget(sql)
	return s
}

func (s *shape) analysis(params []any) Analysis {
	a := Analysis{
		ReadTables:  s.read.Clone(),
		WriteTables: s.write.Clone(),
		IsWrite:     s.isWrite,
	}
	if s.hasTarget {
		if f, ok := s.target.resolve(params); ok {
			a.RowFilter = f
		}
	}
	return a
}

// Cache memoizes statement analysis by SQL text. Applications issue the
// same parametrized statements over and over, so the text is a good key;
// parameters are applied after the lookup.
//
// A nil *Cache is valid and analyzes every call from scratch.
type Cache struct {
	shapes *lru.Cache[string, *shape]
}

// NewCache returns a cache holding up to size statements. A size of zero
// or less returns nil, which disables caching.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		return nil, nil
	}
	shapes, err := lru.New[string, *shape](size)
	if err != nil {
		return nil, err
	}
	return &Cache{shapes: shapes}, nil
}

// Analyze returns the analysis of sql with params applied.
func (c *Cache) Analyze(sql string, params []any) Analysis {
	if c == nil {
		return Analyze(sql, params)
	}
	s, ok := c.shapes.Get(sql)
	if !ok {
		s = analyzeShape(sql)
		c.shapes.Add(sql, s)
	}
	return s.analysis(params)
}

// Len returns the number of cached statements.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.shapes.Len()
}

// Purge drops every cached statement.
func (c *Cache) Purge() {
	if c != nil {
		c.shapes.Purge()
	}
}
