// Package scopemetrics exports scope.Manager activity as Prometheus metrics.
//
// Install it on every manager through its hooks:
//
//	met := scopemetrics.New(prometheus.DefaultRegisterer)
//	m := scope.NewManager(met.Options()...)
package scopemetrics

import (
	"github.com/evan-idocoding/lifekit/rt/scope"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors. All methods are nil-safe: calls on a nil *Metrics are no-ops.
type Metrics struct {
	created   *prometheus.CounterVec
	cancelled *prometheus.CounterVec
	active    prometheus.Gauge
	ticks     prometheus.Counter
	panics    prometheus.Counter
	teardowns prometheus.Counter
}

// New creates the collectors and registers them with reg. If reg is nil, metrics are created
// but not registered. Collectors already registered by a previous call are reused.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lifekit",
			Subsystem: "scope",
			Name:      "tasks_created_total",
			Help:      "Total number of tasks registered with a scope, by kind",
		}, []string{"kind"}),
		cancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lifekit",
			Subsystem: "scope",
			Name:      "tasks_cancelled_total",
			Help:      "Total number of cancelled tasks, by kind and reason",
		}, []string{"kind", "reason"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lifekit",
			Subsystem: "scope",
			Name:      "tasks_active",
			Help:      "Number of registered tasks not yet cancelled",
		}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lifekit",
			Subsystem: "scope",
			Name:      "ticks_total",
			Help:      "Total number of dispatched tick callbacks",
		}),
		panics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lifekit",
			Subsystem: "scope",
			Name:      "tick_panics_total",
			Help:      "Total number of tick callbacks that panicked",
		}),
		teardowns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lifekit",
			Subsystem: "scope",
			Name:      "teardowns_total",
			Help:      "Total number of scope teardowns",
		}),
	}

	if reg != nil {
		m.created = registerOrReuse(reg, m.created).(*prometheus.CounterVec)
		m.cancelled = registerOrReuse(reg, m.cancelled).(*prometheus.CounterVec)
		m.active = registerOrReuse(reg, m.active).(prometheus.Gauge)
		m.ticks = registerOrReuse(reg, m.ticks).(prometheus.Counter)
		m.panics = registerOrReuse(reg, m.panics).(prometheus.Counter)
		m.teardowns = registerOrReuse(reg, m.teardowns).(prometheus.Counter)
	}
	return m
}

// Options returns the manager hooks that feed these metrics.
func (m *Metrics) Options() []scope.ManagerOption {
	if m == nil {
		return nil
	}
	return []scope.ManagerOption{
		scope.WithOnRegister(m.RecordRegister),
		scope.WithOnTick(m.RecordTick),
		scope.WithOnCancel(m.RecordCancel),
		scope.WithOnTeardown(m.RecordTeardown),
	}
}

// RecordRegister counts a registered task.
func (m *Metrics) RecordRegister(info scope.RegisterInfo) {
	if m == nil {
		return
	}
	m.created.WithLabelValues(info.Kind.String()).Inc()
	m.active.Inc()
}

// RecordTick counts a tick, and a panic if the callback panicked.
func (m *Metrics) RecordTick(info scope.TickInfo) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	if info.Panicked {
		m.panics.Inc()
	}
}

// RecordCancel counts a cancellation. Rejected tasks were never active.
func (m *Metrics) RecordCancel(info scope.CancelInfo) {
	if m == nil {
		return
	}
	m.cancelled.WithLabelValues(info.Kind.String(), info.Reason.String()).Inc()
	if info.Reason != scope.ReasonRejected {
		m.active.Dec()
	}
}

// RecordTeardown counts a teardown.
func (m *Metrics) RecordTeardown(scope.TeardownInfo) {
	if m == nil {
		return
	}
	m.teardowns.Inc()
}

// registerOrReuse registers c, or returns the already registered equivalent collector.
// Panics on any other registration failure.
func registerOrReuse(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}
