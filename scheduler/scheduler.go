package scheduler

import (
	"container/heap"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/librescoot/statemachine/metrics"
)

type runState int

const (
	stateIdle runState = iota
	stateRunning
	stateStopping
	stateStopped
)

// Scheduler dispatches actions at their deadlines from one goroutine.
type Scheduler struct {
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Scheduler

	mu      sync.Mutex
	queue   actionHeap
	pending map[uuid.UUID]*item // one-shot id or series id -> queued occurrence
	seq     uint64
	state   runState
	drain   bool

	wake chan struct{}
	done chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the real clock, mostly with a *clock.Mock in tests.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithMetrics records dispatches under the given recorder.
func WithMetrics(m *metrics.Scheduler) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// New creates a stopped scheduler. Actions may be registered before
// Start; they run once the worker is up.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:   clock.New(),
		logger:  slog.Default(),
		pending: make(map[uuid.UUID]*item),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the worker goroutine.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateRunning:
		return ErrAlreadyStarted
	case stateStopping, stateStopped:
		return ErrStopped
	}
	s.state = stateRunning
	go s.run()
	return nil
}

// Stop shuts the worker down and blocks until it has exited.
//
// With waitForPending, every queued one-shot still runs at its deadline
// and each repeating series fires its queued occurrence once more
// without re-arming. Otherwise all queued work is dropped; an action
// that is already running is allowed to finish.
func (s *Scheduler) Stop(waitForPending bool) {
	s.mu.Lock()
	switch s.state {
	case stateIdle:
		s.state = stateStopped
		s.dropLocked()
		close(s.done)
		s.mu.Unlock()
		return
	case stateStopping, stateStopped:
		s.mu.Unlock()
		<-s.done
		return
	}

	s.state = stateStopping
	s.drain = waitForPending
	if !waitForPending {
		s.dropLocked()
	}
	s.mu.Unlock()

	s.signal()
	<-s.done
	s.logger.Debug("scheduler stopped", "waited", waitForPending)
}

// ScheduleAfter runs action once after delay.
func (s *Scheduler) ScheduleAfter(delay time.Duration, priority int, action Action) (Handle, error) {
	return s.schedule(s.clock.Now().Add(delay), priority, 0, action)
}

// ScheduleAt runs action once at t.
func (s *Scheduler) ScheduleAt(t time.Time, priority int, action Action) (Handle, error) {
	return s.schedule(t, priority, 0, action)
}

// RepeatEvery runs action every period, starting one period from now.
func (s *Scheduler) RepeatEvery(period time.Duration, priority int, action Action) (Handle, error) {
	return s.RepeatAt(s.clock.Now().Add(period), period, priority, action)
}

// RepeatAt runs action at first and then every period after it.
func (s *Scheduler) RepeatAt(first time.Time, period time.Duration, priority int, action Action) (Handle, error) {
	if period <= 0 {
		return Handle{}, fmt.Errorf("%w: %v", ErrInvalidPeriod, period)
	}
	return s.schedule(first, priority, period, action)
}

func (s *Scheduler) schedule(deadline time.Time, priority int, period time.Duration, action Action) (Handle, error) {
	if action == nil {
		return Handle{}, ErrNilAction
	}

	s.mu.Lock()
	if s.state == stateStopping || s.state == stateStopped {
		s.mu.Unlock()
		return Handle{}, ErrStopped
	}
	it := &item{
		handle:   newHandle(),
		deadline: deadline,
		priority: priority,
		period:   period,
		action:   action,
	}
	s.pushLocked(it)
	s.mu.Unlock()

	s.signal()
	return it.handle, nil
}

// Cancel removes a pending one-shot, or ends a repeating series. An
// occurrence that is already running is not interrupted.
func (s *Scheduler) Cancel(h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.pending[h.id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHandle, h)
	}
	delete(s.pending, h.id)
	if it.index >= 0 {
		heap.Remove(&s.queue, it.index)
	}
	s.metrics.Cancelled(1)
	s.metrics.Pending(len(s.queue))
	return nil
}

// Clear cancels everything that is pending.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked()
}

// Len returns the number of queued occurrences.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Scheduler) pushLocked(it *item) {
	s.seq++
	it.seq = s.seq
	heap.Push(&s.queue, it)
	s.pending[it.handle.id] = it
	s.metrics.Pending(len(s.queue))
}

func (s *Scheduler) dropLocked() {
	s.metrics.Cancelled(len(s.queue))
	for _, it := range s.queue {
		it.index = -1
	}
	s.queue = nil
	s.pending = make(map[uuid.UUID]*item)
	s.metrics.Pending(0)
}

// signal wakes the worker without blocking.
func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) run() {
	defer close(s.done)
	for {
		it, ok := s.next()
		if !ok {
			return
		}
		s.dispatch(it)
	}
}

// next blocks until an occurrence is due and pops it. For a series the
// following occurrence is queued before returning. It reports false
// when the worker should exit.
func (s *Scheduler) next() (*item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.state == stateStopping && (!s.drain || len(s.queue) == 0) {
			s.state = stateStopped
			s.dropLocked()
			return nil, false
		}
		if len(s.queue) == 0 {
			s.waitLocked(time.Time{})
			continue
		}

		head := s.queue[0]
		if s.clock.Now().Before(head.deadline) {
			s.waitLocked(head.deadline)
			continue
		}

		heap.Pop(&s.queue)
		if head.period > 0 && s.state == stateRunning {
			s.pushLocked(&item{
				handle:   head.handle,
				deadline: head.deadline.Add(head.period),
				priority: head.priority,
				period:   head.period,
				action:   head.action,
			})
		} else {
			delete(s.pending, head.handle.id)
			s.metrics.Pending(len(s.queue))
		}
		return head, true
	}
}

// waitLocked releases the lock until signalled, or until deadline
// when it is set.
func (s *Scheduler) waitLocked(deadline time.Time) {
	var timer *clock.Timer
	if !deadline.IsZero() {
		timer = s.clock.AfterFunc(deadline.Sub(s.clock.Now()), s.signal)
		// A mock clock may have jumped past deadline while arming.
		if !s.clock.Now().Before(deadline) {
			s.signal()
		}
	}
	s.mu.Unlock()
	<-s.wake
	if timer != nil {
		timer.Stop()
	}
	s.mu.Lock()
}

func (s *Scheduler) dispatch(it *item) {
	s.metrics.Fired(it.period > 0, s.clock.Now().Sub(it.deadline))

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled action panicked", "handle", it.handle.String(), "panic", r)
		}
	}()
	it.action()
}
