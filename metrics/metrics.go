// Package metrics exposes Prometheus collectors for state machines and
// delay schedulers. All vectors live on the default registry; callers
// get label-bound recorders from NewMachine and NewScheduler. A nil
// recorder is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "statemachine"

	KindOnce   = "once"
	KindSeries = "series"
)

var (
	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Transitions taken, by source state, event and target state",
		},
		[]string{"machine", "from", "event", "to"},
	)

	staleEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_events_total",
			Help:      "Timer events discarded because their state activation had already ended",
		},
		[]string{"machine"},
	)

	undefinedEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "undefined_events_total",
			Help:      "Events with no transition from the active state",
		},
		[]string{"machine", "state", "event"},
	)

	asyncFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "async_failures_total",
			Help:      "Errors returned while processing queued events",
		},
		[]string{"machine"},
	)

	asyncQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "async_queue_depth",
			Help:      "Events waiting in the async queue",
		},
		[]string{"machine"},
	)

	schedulerFiredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "fired_total",
			Help:      "Scheduled actions dispatched, by kind (once or series)",
		},
		[]string{"scheduler", "kind"},
	)

	schedulerCancelledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "cancelled_total",
			Help:      "Scheduled actions cancelled before dispatch",
		},
		[]string{"scheduler"},
	)

	schedulerPending = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "pending",
			Help:      "Actions waiting for their deadline",
		},
		[]string{"scheduler"},
	)

	schedulerLateness = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "lateness_seconds",
			Help:      "Delay between an action's deadline and its dispatch",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"scheduler"},
	)
)

// Machine records metrics for one named state machine.
type Machine struct {
	name       string
	stale      prometheus.Counter
	failures   prometheus.Counter
	queueDepth prometheus.Gauge
}

// NewMachine returns a recorder labelled with the machine name.
func NewMachine(name string) *Machine {
	return &Machine{
		name:       name,
		stale:      staleEventsTotal.WithLabelValues(name),
		failures:   asyncFailuresTotal.WithLabelValues(name),
		queueDepth: asyncQueueDepth.WithLabelValues(name),
	}
}

// Transition counts one transition.
func (m *Machine) Transition(from, event, to string) {
	if m == nil {
		return
	}
	transitionsTotal.WithLabelValues(m.name, from, event, to).Inc()
}

// StaleEvent counts one discarded timer event.
func (m *Machine) StaleEvent() {
	if m == nil {
		return
	}
	m.stale.Inc()
}

// UndefinedEvent counts one event without a matching transition.
func (m *Machine) UndefinedEvent(state, event string) {
	if m == nil {
		return
	}
	undefinedEventsTotal.WithLabelValues(m.name, state, event).Inc()
}

// AsyncFailure counts one error from the async worker.
func (m *Machine) AsyncFailure() {
	if m == nil {
		return
	}
	m.failures.Inc()
}

// QueueDepth sets the current async queue length.
func (m *Machine) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// Scheduler records metrics for one named delay scheduler.
type Scheduler struct {
	once      prometheus.Counter
	series    prometheus.Counter
	cancelled prometheus.Counter
	pending   prometheus.Gauge
	lateness  prometheus.Observer
}

// NewScheduler returns a recorder labelled with the scheduler name.
func NewScheduler(name string) *Scheduler {
	return &Scheduler{
		once:      schedulerFiredTotal.WithLabelValues(name, KindOnce),
		series:    schedulerFiredTotal.WithLabelValues(name, KindSeries),
		cancelled: schedulerCancelledTotal.WithLabelValues(name),
		pending:   schedulerPending.WithLabelValues(name),
		lateness:  schedulerLateness.WithLabelValues(name),
	}
}

// Fired counts one dispatched action and records how late it ran.
func (s *Scheduler) Fired(series bool, late time.Duration) {
	if s == nil {
		return
	}
	if series {
		s.series.Inc()
	} else {
		s.once.Inc()
	}
	if late < 0 {
		late = 0
	}
	s.lateness.Observe(late.Seconds())
}

// Cancelled counts cancelled actions.
func (s *Scheduler) Cancelled(n int) {
	if s == nil || n <= 0 {
		return
	}
	s.cancelled.Add(float64(n))
}

// Pending sets the number of queued actions.
func (s *Scheduler) Pending(n int) {
	if s == nil {
		return
	}
	s.pending.Set(float64(n))
}
