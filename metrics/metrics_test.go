package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMachineRecorder(t *testing.T) {
	m := NewMachine("metrics-test-machine")

	m.Transition("a", "go", "b")
	m.Transition("a", "go", "b")
	m.StaleEvent()
	m.UndefinedEvent("b", "nope")
	m.AsyncFailure()
	m.QueueDepth(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(transitionsTotal.WithLabelValues("metrics-test-machine", "a", "go", "b")))
	assert.Equal(t, 1.0, testutil.ToFloat64(staleEventsTotal.WithLabelValues("metrics-test-machine")))
	assert.Equal(t, 1.0, testutil.ToFloat64(undefinedEventsTotal.WithLabelValues("metrics-test-machine", "b", "nope")))
	assert.Equal(t, 1.0, testutil.ToFloat64(asyncFailuresTotal.WithLabelValues("metrics-test-machine")))
	assert.Equal(t, 7.0, testutil.ToFloat64(asyncQueueDepth.WithLabelValues("metrics-test-machine")))
}

func TestSchedulerRecorder(t *testing.T) {
	s := NewScheduler("metrics-test-scheduler")

	s.Fired(false, time.Millisecond)
	s.Fired(true, -time.Second)
	s.Fired(true, 0)
	s.Cancelled(3)
	s.Cancelled(0)
	s.Pending(4)

	assert.Equal(t, 1.0, testutil.ToFloat64(schedulerFiredTotal.WithLabelValues("metrics-test-scheduler", KindOnce)))
	assert.Equal(t, 2.0, testutil.ToFloat64(schedulerFiredTotal.WithLabelValues("metrics-test-scheduler", KindSeries)))
	assert.Equal(t, 3.0, testutil.ToFloat64(schedulerCancelledTotal.WithLabelValues("metrics-test-scheduler")))
	assert.Equal(t, 4.0, testutil.ToFloat64(schedulerPending.WithLabelValues("metrics-test-scheduler")))
}

func TestNilRecordersAreNoops(t *testing.T) {
	var m *Machine
	var s *Scheduler

	assert.NotPanics(t, func() {
		m.Transition("a", "b", "c")
		m.StaleEvent()
		m.UndefinedEvent("a", "b")
		m.AsyncFailure()
		m.QueueDepth(1)
		s.Fired(true, time.Second)
		s.Cancelled(1)
		s.Pending(1)
	})
}
