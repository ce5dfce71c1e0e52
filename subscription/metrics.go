package subscription

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Granularity labels for the invalidations counter.
const (
	GranularityAll   = "all"
	GranularityTable = "table"
	GranularityRow   = "row"
)

// Metrics are the prometheus collectors updated by a Registry.
// A nil *Metrics records nothing.
type Metrics struct {
	subscriptions  prometheus.Gauge
	invalidations  *prometheus.CounterVec
	notifications  prometheus.Counter
	listenerPanics prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered. Collectors already registered by another
// registry user are reused, so several stores can share one registerer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rxsql_subscriptions",
			Help: "Number of live subscriptions.",
		}),
		invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rxsql_invalidations_total",
			Help: "Invalidations applied to the registry, by granularity.",
		}, []string{"granularity"}),
		notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rxsql_notifications_total",
			Help: "Listener invocations.",
		}),
		listenerPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rxsql_listener_panics_total",
			Help: "Listener invocations that panicked.",
		}),
	}
	if reg == nil {
		return m, nil
	}

	var err error
	if m.subscriptions, err = register(reg, m.subscriptions); err != nil {
		return nil, err
	}
	if m.invalidations, err = register(reg, m.invalidations); err != nil {
		return nil, err
	}
	if m.notifications, err = register(reg, m.notifications); err != nil {
		return nil, err
	}
	if m.listenerPanics, err = register(reg, m.listenerPanics); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) setSubscriptions(n int) {
	if m != nil {
		m.subscriptions.Set(float64(n))
	}
}

func (m *Metrics) invalidated(granularity string) {
	if m != nil {
		m.invalidations.WithLabelValues(granularity).Inc()
	}
}

func (m *Metrics) notified() {
	if m != nil {
		m.notifications.Inc()
	}
}

func (m *Metrics) panicked() {
	if m != nil {
		m.listenerPanics.Inc()
	}
}
