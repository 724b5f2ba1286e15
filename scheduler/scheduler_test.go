package scheduler

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newMock() *clock.Mock {
	c := clock.NewMock()
	c.Set(epoch)
	return c
}

func startMocked(t *testing.T) (*Scheduler, *clock.Mock) {
	t.Helper()
	c := newMock()
	s := New(WithClock(c))
	require.NoError(t, s.Start())
	t.Cleanup(func() { s.Stop(false) })
	return s, c
}

func isStopping(s *Scheduler) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateStopping || s.state == stateStopped
}

// receive waits for a value on ch. The mock clock is nudged while
// waiting so that a timer armed in the middle of an Add still fires.
func receive[T any](t *testing.T, c *clock.Mock, ch <-chan T) T {
	t.Helper()
	timeout := time.After(2 * time.Second)
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case v := <-ch:
			return v
		case <-tick.C:
			c.Add(0)
		case <-timeout:
			t.Fatal("action did not run")
			var zero T
			return zero
		}
	}
}

func eventually(t *testing.T, c *clock.Mock, cond func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		c.Add(0)
		return cond()
	}, 2*time.Second, 5*time.Millisecond)
}

func assertQuiet[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	select {
	case <-ch:
		t.Fatal("action ran unexpectedly")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestScheduleAfterFiresAtDeadline(t *testing.T) {
	s, c := startMocked(t)
	fired := make(chan time.Time, 1)

	_, err := s.ScheduleAfter(5*time.Second, 0, func() { fired <- c.Now() })
	require.NoError(t, err)

	c.Add(4 * time.Second)
	assertQuiet(t, fired)

	c.Add(time.Second)
	assert.Equal(t, epoch.Add(5*time.Second), receive(t, c, fired))
	assert.Zero(t, s.Len())
}

func TestPriorityBreaksTiesAtSameDeadline(t *testing.T) {
	c := newMock()
	s := New(WithClock(c))

	var mu sync.Mutex
	var order []string
	record := func(name string) Action {
		return func() {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}

	at := epoch.Add(time.Second)
	_, err := s.ScheduleAt(at, 2, record("p2"))
	require.NoError(t, err)
	_, err = s.ScheduleAt(at, 0, record("p0"))
	require.NoError(t, err)
	_, err = s.ScheduleAt(at, 1, record("p1"))
	require.NoError(t, err)
	_, err = s.ScheduleAt(epoch.Add(500*time.Millisecond), 9, record("early"))
	require.NoError(t, err)

	require.NoError(t, s.Start())
	defer s.Stop(false)

	c.Add(time.Second)

	eventually(t, c, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 4
	})
	assert.Equal(t, []string{"early", "p0", "p1", "p2"}, order)
}

func TestEarlierInsertionWakesWorker(t *testing.T) {
	s, c := startMocked(t)
	late := make(chan time.Time, 1)
	early := make(chan time.Time, 1)

	_, err := s.ScheduleAfter(10*time.Second, 0, func() { late <- c.Now() })
	require.NoError(t, err)

	_, err = s.ScheduleAfter(time.Second, 0, func() { early <- c.Now() })
	require.NoError(t, err)
	c.Add(time.Second)

	receive(t, c, early)
	assertQuiet(t, late)
	assert.Equal(t, 1, s.Len())
}

func TestRepeatCadenceFollowsScheduledTime(t *testing.T) {
	s, c := startMocked(t)
	fired := make(chan time.Time, 4)
	release := make(chan struct{})
	var calls atomic.Int32

	_, err := s.RepeatEvery(10*time.Second, 0, func() {
		fired <- c.Now()
		if calls.Add(1) == 1 {
			<-release
		}
	})
	require.NoError(t, err)

	c.Add(10 * time.Second)
	assert.Equal(t, epoch.Add(10*time.Second), receive(t, c, fired))

	// A slow first callback must not push the next deadline.
	c.Add(4 * time.Second)
	close(release)

	c.Add(6 * time.Second)
	assert.Equal(t, epoch.Add(20*time.Second), receive(t, c, fired))

	c.Add(10 * time.Second)
	assert.Equal(t, epoch.Add(30*time.Second), receive(t, c, fired))
}

func TestCancelOneShot(t *testing.T) {
	s, c := startMocked(t)
	fired := make(chan time.Time, 1)

	h, err := s.ScheduleAfter(time.Second, 0, func() { fired <- c.Now() })
	require.NoError(t, err)
	assert.False(t, h.IsZero())

	require.NoError(t, s.Cancel(h))
	assert.ErrorIs(t, s.Cancel(h), ErrUnknownHandle)
	assert.Zero(t, s.Len())

	c.Add(time.Minute)
	assertQuiet(t, fired)
}

func TestCancelSeriesUsesStableHandle(t *testing.T) {
	s, c := startMocked(t)
	fired := make(chan time.Time, 4)

	h, err := s.RepeatEvery(time.Second, 0, func() { fired <- c.Now() })
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		c.Add(time.Second)
		assert.Equal(t, epoch.Add(time.Duration(i)*time.Second), receive(t, c, fired))
	}

	require.Eventually(t, func() bool { return s.Len() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, s.Cancel(h))
	assert.Zero(t, s.Len())

	c.Add(10 * time.Second)
	assertQuiet(t, fired)
	assert.ErrorIs(t, s.Cancel(h), ErrUnknownHandle)
}

func TestCancelUnknownHandle(t *testing.T) {
	s := New()
	assert.ErrorIs(t, s.Cancel(Handle{}), ErrUnknownHandle)
	assert.ErrorIs(t, s.Cancel(newHandle()), ErrUnknownHandle)
}

func TestClear(t *testing.T) {
	s := New()
	for i := 0; i < 3; i++ {
		_, err := s.ScheduleAfter(time.Hour, 0, func() {})
		require.NoError(t, err)
	}
	_, err := s.RepeatEvery(time.Hour, 0, func() {})
	require.NoError(t, err)
	require.Equal(t, 4, s.Len())

	s.Clear()
	assert.Zero(t, s.Len())
}

func TestStopWaitingLetsSeriesFireOnceMore(t *testing.T) {
	s, c := startMocked(t)
	var series, once atomic.Int32
	fired := make(chan time.Time, 1)

	_, err := s.RepeatEvery(10*time.Second, 0, func() {
		series.Add(1)
		select {
		case fired <- c.Now():
		default:
		}
	})
	require.NoError(t, err)
	_, err = s.ScheduleAfter(25*time.Second, 0, func() { once.Add(1) })
	require.NoError(t, err)

	c.Add(10 * time.Second)
	receive(t, c, fired)

	stopped := make(chan struct{})
	go func() {
		s.Stop(true)
		close(stopped)
	}()
	require.Eventually(t, func() bool { return isStopping(s) }, time.Second, time.Millisecond)

	c.Add(15 * time.Second)
	receive(t, c, stopped)

	assert.EqualValues(t, 2, series.Load())
	assert.EqualValues(t, 1, once.Load())
	assert.Zero(t, s.Len())
}

func TestStopWithoutWaitingDropsPending(t *testing.T) {
	s, c := startMocked(t)
	var series, once atomic.Int32
	fired := make(chan time.Time, 1)

	_, err := s.RepeatEvery(10*time.Second, 0, func() {
		series.Add(1)
		fired <- c.Now()
	})
	require.NoError(t, err)
	_, err = s.ScheduleAfter(25*time.Second, 0, func() { once.Add(1) })
	require.NoError(t, err)

	c.Add(10 * time.Second)
	receive(t, c, fired)

	s.Stop(false)
	c.Add(time.Minute)

	assert.EqualValues(t, 1, series.Load())
	assert.Zero(t, once.Load())
	assert.Zero(t, s.Len())
}

func TestLifecycleErrors(t *testing.T) {
	s := New()
	require.NoError(t, s.Start())
	assert.ErrorIs(t, s.Start(), ErrAlreadyStarted)

	s.Stop(false)
	s.Stop(true)
	assert.ErrorIs(t, s.Start(), ErrStopped)

	_, err := s.ScheduleAfter(time.Second, 0, func() {})
	assert.ErrorIs(t, err, ErrStopped)
}

func TestStopBeforeStart(t *testing.T) {
	s := New()
	_, err := s.ScheduleAfter(time.Second, 0, func() {})
	require.NoError(t, err)

	s.Stop(true)
	assert.Zero(t, s.Len())
	assert.ErrorIs(t, s.Start(), ErrStopped)
}

func TestInvalidRegistrations(t *testing.T) {
	s := New()

	_, err := s.RepeatEvery(0, 0, func() {})
	assert.ErrorIs(t, err, ErrInvalidPeriod)

	_, err = s.RepeatAt(epoch, -time.Second, 0, func() {})
	assert.ErrorIs(t, err, ErrInvalidPeriod)

	_, err = s.ScheduleAfter(time.Second, 0, nil)
	assert.ErrorIs(t, err, ErrNilAction)
}

func TestPanickingActionDoesNotKillWorker(t *testing.T) {
	s := New()
	require.NoError(t, s.Start())
	defer s.Stop(false)

	done := make(chan time.Time, 1)
	_, err := s.ScheduleAfter(0, 0, func() { panic("boom") })
	require.NoError(t, err)
	_, err = s.ScheduleAfter(time.Millisecond, 0, func() { done <- time.Now() })
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive the panic")
	}
}

func TestRealClockRepeat(t *testing.T) {
	s := New()
	require.NoError(t, s.Start())

	var count atomic.Int32
	_, err := s.RepeatEvery(10*time.Millisecond, 0, func() { count.Add(1) })
	require.NoError(t, err)

	require.Eventually(t, func() bool { return count.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	s.Stop(false)

	after := count.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, count.Load())
}
