package subscription

import (
	"log/slog"
	"slices"

	"github.com/roach88/rxsql/sqldeps"
)

// Listener is called when a subscription may have become stale.
type Listener func()

// Unsubscribe removes a subscription. Calling it more than once is a no-op.
type Unsubscribe func()

// Subscription is one registered listener and its dependencies.
type Subscription struct {
	// ID identifies the subscription in logs.
	ID string

	// Tables are the canonical table names the subscription depends on.
	Tables sqldeps.TableSet

	// Filters restrict relevance to single rows. A table with no filter
	// entries is depended on at table level.
	Filters []sqldeps.RowFilter

	// Wildcard is set when the analyzer found no table in the
	// subscription's query. Every invalidation notifies it.
	Wildcard bool

	listener Listener
	active   bool
}

// filtersFor returns the row filters that apply to table.
func (s *Subscription) filtersFor(table string) []sqldeps.RowFilter {
	var out []sqldeps.RowFilter
	for _, f := range s.Filters {
		if sqldeps.Canonical(f.Table) == table {
			out = append(out, f)
		}
	}
	return out
}

// Registry holds the active subscriptions of one store.
type Registry struct {
	logger   *slog.Logger
	metrics  *Metrics
	ids      IDGenerator
	analyzer *sqldeps.Cache
	subs     []*Subscription
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used to report listener panics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics attaches prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithIDGenerator overrides the UUIDv7 subscription identifiers.
func WithIDGenerator(g IDGenerator) Option {
	return func(r *Registry) {
		if g != nil {
			r.ids = g
		}
	}
}

// WithAnalyzer shares a statement analysis cache with the registry.
func WithAnalyzer(c *sqldeps.Cache) Option {
	return func(r *Registry) {
		r.analyzer = c
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		logger: slog.Default(),
		ids:    UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribe registers a table-level subscription on tables.
func (r *Registry) Subscribe(tables []string, fn Listener) Unsubscribe {
	return r.add(sqldeps.NewTableSet(tables...), nil, fn)
}

// SubscribeQuery registers a table-level subscription on every table the
// query reads.
func (r *Registry) SubscribeQuery(sql string, fn Listener) Unsubscribe {
	a := r.analyzer.Analyze(sql, nil)
	if len(a.ReadTables) == 0 {
		return r.addWildcard(sql, fn)
	}
	return r.add(a.ReadTables, nil, fn)
}

// SubscribeWithRowFilter registers a subscription on the tables the query
// reads. When the query reads exactly one table and pins a single row, the
// subscription is restricted to that row; otherwise it is table-level.
func (r *Registry) SubscribeWithRowFilter(sql string, params []any, fn Listener) Unsubscribe {
	a := r.analyzer.Analyze(sql, params)
	if len(a.ReadTables) == 0 {
		return r.addWildcard(sql, fn)
	}
	var filters []sqldeps.RowFilter
	if a.RowFilter != nil && len(a.ReadTables) == 1 && a.ReadTables.Has(a.RowFilter.Table) {
		filters = []sqldeps.RowFilter{*a.RowFilter}
	}
	return r.add(a.ReadTables, filters, fn)
}

// SubscribeRows registers a subscription on tables with explicit row
// filters.
func (r *Registry) SubscribeRows(tables []string, filters []sqldeps.RowFilter, fn Listener) Unsubscribe {
	set := sqldeps.NewTableSet(tables...)
	for _, f := range filters {
		set.Add(f.Table)
	}
	return r.add(set, slices.Clone(filters), fn)
}

// addWildcard registers a subscription whose dependencies are unknown.
func (r *Registry) addWildcard(sql string, fn Listener) Unsubscribe {
	sub := r.newSubscription(make(sqldeps.TableSet), nil, fn)
	sub.Wildcard = true
	r.logger.Debug("query tables not identified, subscription notified on every invalidation",
		"subscription", sub.ID,
		"sql", sql,
	)
	return r.register(sub)
}

func (r *Registry) add(tables sqldeps.TableSet, filters []sqldeps.RowFilter, fn Listener) Unsubscribe {
	return r.register(r.newSubscription(tables, filters, fn))
}

func (r *Registry) newSubscription(tables sqldeps.TableSet, filters []sqldeps.RowFilter, fn Listener) *Subscription {
	return &Subscription{
		ID:       r.ids.Generate(),
		Tables:   tables,
		Filters:  filters,
		listener: fn,
		active:   true,
	}
}

func (r *Registry) register(sub *Subscription) Unsubscribe {
	r.subs = append(r.subs, sub)
	r.metrics.setSubscriptions(len(r.subs))

	r.logger.Debug("subscription added",
		"subscription", sub.ID,
		"tables", sub.Tables.Sorted(),
		"row_filters", len(sub.Filters),
	)

	return func() { r.remove(sub) }
}

func (r *Registry) remove(sub *Subscription) {
	if !sub.active {
		return
	}
	sub.active = false
	r.subs = slices.DeleteFunc(r.subs, func(s *Subscription) bool { return s == sub })
	r.metrics.setSubscriptions(len(r.subs))
}

// Len returns the number of active subscriptions.
func (r *Registry) Len() int {
	return len(r.subs)
}

// Snapshot returns copies of the active subscriptions in registration
// order.
func (r *Registry) Snapshot() []Subscription {
	out := make([]Subscription, 0, len(r.subs))
	for _, s := range r.subs {
		c := *s
		c.Tables = s.Tables.Clone()
		c.Filters = slices.Clone(s.Filters)
		c.listener = nil
		out = append(out, c)
	}
	return out
}

// Clear removes every subscription. Outstanding Unsubscribe functions
// become no-ops.
func (r *Registry) Clear() {
	for _, s := range r.subs {
		s.active = false
	}
	r.subs = nil
	r.metrics.setSubscriptions(0)
}
