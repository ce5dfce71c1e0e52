package reactive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/rxsql/internal/sqlite"
	"github.com/roach88/rxsql/sqldeps"
	"github.com/roach88/rxsql/subscription"
	"github.com/roach88/rxsql/txbatch"
)

// ErrClosed is returned by Transaction on a closed store.
var ErrClosed = errors.New("reactive: store is closed")

// DefaultAnalysisCacheSize is the number of distinct statements whose
// analysis is memoized.
const DefaultAnalysisCacheSize = 512

type (
	// Row is one result row keyed by column name.
	Row = sqlite.Row
	// Rows is a fully read result set.
	Rows = sqlite.Rows
	// Result reports the effect of a write.
	Result = sqlite.Result
	// Listener is called when subscribed data may have changed.
	Listener = subscription.Listener
	// Unsubscribe removes a subscription; repeated calls are no-ops.
	Unsubscribe = subscription.Unsubscribe
	// RowFilter names a single row of a table.
	RowFilter = sqldeps.RowFilter
)

// Engine is the SQL database underneath a Store. *sqlite.DB implements it.
type Engine interface {
	Query(ctx context.Context, query string, args ...any) (*Rows, error)
	Exec(ctx context.Context, query string, args ...any) (Result, error)
	ExecScript(ctx context.Context, script string) error
	// Transaction runs fn atomically; calls may nest.
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
	Close() error
}

// Store is the reactive façade over an Engine.
type Store struct {
	engine   Engine
	registry *subscription.Registry
	batches  *txbatch.Coordinator
	analyzer *sqldeps.Cache
	logger   *slog.Logger
	closed   bool
}

// Option configures a Store.
type Option func(*options)

type options struct {
	logger        *slog.Logger
	registerer    prometheus.Registerer
	cacheSize     int
	busyTimeoutMS int
	ids           subscription.IDGenerator
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegisterer registers the store's prometheus collectors with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithAnalysisCacheSize sets how many statements' analysis is memoized.
// Zero disables the cache.
func WithAnalysisCacheSize(n int) Option {
	return func(o *options) { o.cacheSize = n }
}

// WithBusyTimeout sets the SQLite busy timeout used by Open.
func WithBusyTimeout(ms int) Option {
	return func(o *options) { o.busyTimeoutMS = ms }
}

// WithIDGenerator overrides subscription identifiers (useful in tests).
func WithIDGenerator(g subscription.IDGenerator) Option {
	return func(o *options) { o.ids = g }
}

func buildOptions(opts []Option) options {
	o := options{
		logger:    slog.Default(),
		cacheSize: DefaultAnalysisCacheSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// Open opens (or creates) a SQLite database at path and wraps it in a
// Store. Closing the store closes the database.
func Open(path string, opts ...Option) (*Store, error) {
	o := buildOptions(opts)
	db, err := sqlite.Open(path, sqlite.WithBusyTimeout(o.busyTimeoutMS))
	if err != nil {
		return nil, err
	}
	s, err := newStore(db, o)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing engine. The store takes ownership and closes the
// engine on Close.
func New(engine Engine, opts ...Option) (*Store, error) {
	if engine == nil {
		return nil, fmt.Errorf("reactive: nil engine")
	}
	return newStore(engine, buildOptions(opts))
}

func newStore(engine Engine, o options) (*Store, error) {
	analyzer, err := sqldeps.NewCache(o.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("analysis cache: %w", err)
	}
	metrics, err := subscription.NewMetrics(o.registerer)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	regOpts := []subscription.Option{
		subscription.WithLogger(o.logger),
		subscription.WithMetrics(metrics),
		subscription.WithAnalyzer(analyzer),
	}
	if o.ids != nil {
		regOpts = append(regOpts, subscription.WithIDGenerator(o.ids))
	}
	registry := subscription.NewRegistry(regOpts...)

	return &Store{
		engine:   engine,
		registry: registry,
		batches:  txbatch.New(registry),
		analyzer: analyzer,
		logger:   o.logger,
	}, nil
}

// Close clears every subscription, drops pending transaction batches and
// closes the engine. The store cannot be reopened. Calling Close again is
// a no-op.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.registry.Clear()
	s.batches.Reset()
	s.analyzer.Purge()
	if err := s.engine.Close(); err != nil {
		return fmt.Errorf("close engine: %w", err)
	}
	s.logger.Debug("store closed")
	return nil
}

// IsClosed reports whether Close has been called.
func (s *Store) IsClosed() bool {
	return s.closed
}

// Subscriptions returns the number of live subscriptions.
func (s *Store) Subscriptions() int {
	return s.registry.Len()
}

// InTransaction reports whether a Transaction scope is open.
func (s *Store) InTransaction() bool {
	return s.batches.Depth() > 0
}
