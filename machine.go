package statemachine

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"

	"github.com/librescoot/statemachine/metrics"
	"github.com/librescoot/statemachine/scheduler"
)

// Engine lifecycle: idle -> started -> stopped. Stopped is terminal.
const (
	phaseIdle int32 = iota
	phaseStarted
	phaseStopped
)

// Machine is the runtime FSM instance.
//
// Exactly one state is active at a time. All transitions, whether
// raised by Operate, by the async queue or by a state timeout, are
// serialized by one non-reentrant lock that is held while exit hooks,
// actions, transition hooks and entry hooks run. A slow hook therefore
// stalls every other transition of the machine.
type Machine struct {
	name    string
	strict  bool
	data    any
	logger  *slog.Logger
	clock   clock.Clock
	metrics *metrics.Machine

	onAsyncError func(EventID, error)

	// Tables. Written during setup, read-only afterwards except for
	// timeout durations.
	tableMu     sync.RWMutex
	states      map[StateID]*state
	stateOrder  []StateID
	transitions map[transitionKey]*Transition
	transOrder  []transitionKey
	timeouts    map[StateID]*timeout
	startState  *state
	started     bool

	// Transition lock and the run-state it guards. stopping is set
	// outside mu so that Stop can cut a running chain short.
	mu       sync.Mutex
	phase    atomic.Int32 // written under mu
	stopping atomic.Bool
	armed    scheduler.Handle
	arming   uint64
	active   atomic.Pointer[state]

	hookMu   sync.RWMutex
	hooks    []registeredHook
	nextHook HookID

	sched      *scheduler.Scheduler
	queue      *eventQueue
	workerDone chan struct{}
	stopOnce   sync.Once
}

type registeredHook struct {
	id HookID
	fn TransitionHook
}

// MachineOption is a functional option for configuring a Machine
type MachineOption func(*Machine)

// WithStrictEvents makes Operate return ErrUndefinedTransition for
// events the active state has no transition for. By default such
// events are ignored.
func WithStrictEvents(strict bool) MachineOption {
	return func(m *Machine) {
		m.strict = strict
	}
}

// WithLogger sets the logger for the machine
func WithLogger(logger *slog.Logger) MachineOption {
	return func(m *Machine) {
		m.logger = logger
	}
}

// WithName names the machine in logs and metrics
func WithName(name string) MachineOption {
	return func(m *Machine) {
		m.name = name
	}
}

// WithData sets the application data accessible via Context
func WithData(data any) MachineOption {
	return func(m *Machine) {
		m.data = data
	}
}

// WithClock sets the time source of the machine's scheduler. Tests
// pass a *clock.Mock.
func WithClock(c clock.Clock) MachineOption {
	return func(m *Machine) {
		m.clock = c
	}
}

// WithMetrics records machine metrics on rec instead of a recorder
// derived from WithName.
func WithMetrics(rec *metrics.Machine) MachineOption {
	return func(m *Machine) {
		m.metrics = rec
	}
}

// WithTransitionHook registers a transition hook at construction
func WithTransitionHook(fn TransitionHook) MachineOption {
	return func(m *Machine) {
		m.RegisterTransitionHook(fn)
	}
}

// WithAsyncErrorHandler receives errors from events processed by the
// async worker, which has no caller to return them to.
func WithAsyncErrorHandler(fn func(EventID, error)) MachineOption {
	return func(m *Machine) {
		m.onAsyncError = fn
	}
}

// New creates a machine with no states.
func New(opts ...MachineOption) *Machine {
	m := &Machine{
		logger:      Logger,
		clock:       clock.New(),
		states:      make(map[StateID]*state),
		transitions: make(map[transitionKey]*Transition),
		timeouts:    make(map[StateID]*timeout),
		queue:       newEventQueue(),
		workerDone:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	schedOpts := []scheduler.Option{scheduler.WithClock(m.clock)}
	if m.name != "" {
		m.logger = m.logger.With("machine", m.name)
		if m.metrics == nil {
			m.metrics = metrics.NewMachine(m.name)
		}
		schedOpts = append(schedOpts, scheduler.WithMetrics(metrics.NewScheduler(m.name)))
	}
	schedOpts = append(schedOpts, scheduler.WithLogger(m.logger))
	m.sched = scheduler.New(schedOpts...)
	return m
}

// AddState registers a state.
func (m *Machine) AddState(id StateID, opts ...StateOption) error {
	m.tableMu.Lock()
	defer m.tableMu.Unlock()

	if err := m.checkSetupLocked(); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("state: %w", ErrEmptyID)
	}
	if _, ok := m.states[id]; ok {
		return fmt.Errorf("state %q: %w", id, ErrDuplicateState)
	}

	s := newState(id)
	for _, opt := range opts {
		opt(s)
	}
	m.states[id] = s
	m.stateOrder = append(m.stateOrder, id)
	return nil
}

// SetStartState selects the state entered by Start.
func (m *Machine) SetStartState(id StateID) error {
	m.tableMu.Lock()
	defer m.tableMu.Unlock()

	if err := m.checkSetupLocked(); err != nil {
		return err
	}
	s, ok := m.states[id]
	if !ok {
		return fmt.Errorf("start state %q: %w", id, ErrUnknownState)
	}
	m.startState = s
	return nil
}

// AddTransition registers from --event--> to. Each (from, event) pair
// may be registered once.
func (m *Machine) AddTransition(from StateID, event EventID, to StateID, opts ...TransitionOption) error {
	m.tableMu.Lock()
	defer m.tableMu.Unlock()

	if err := m.checkSetupLocked(); err != nil {
		return err
	}
	if event == NoEvent {
		return fmt.Errorf("transition from %q: %w", from, ErrEmptyID)
	}
	if _, ok := m.states[from]; !ok {
		return fmt.Errorf("transition from %q: %w", from, ErrUnknownState)
	}
	if _, ok := m.states[to]; !ok {
		return fmt.Errorf("transition to %q: %w", to, ErrUnknownState)
	}
	key := transitionKey{from, event}
	if _, ok := m.transitions[key]; ok {
		return fmt.Errorf("transition from %q on %q: %w", from, event, ErrDuplicateTransition)
	}

	t := &Transition{From: from, Event: event, To: to}
	for _, opt := range opts {
		opt(t)
	}
	m.transitions[key] = t
	m.transOrder = append(m.transOrder, key)
	return nil
}

func (m *Machine) checkSetupLocked() error {
	if m.started {
		return ErrAlreadyStarted
	}
	return nil
}

// RegisterTransitionHook adds an observer called for every transition,
// in registration order.
func (m *Machine) RegisterTransitionHook(fn TransitionHook) HookID {
	m.hookMu.Lock()
	defer m.hookMu.Unlock()
	m.nextHook++
	m.hooks = append(m.hooks, registeredHook{id: m.nextHook, fn: fn})
	return m.nextHook
}

// ClearTransitionHook removes one observer. It reports whether the id
// was registered.
func (m *Machine) ClearTransitionHook(id HookID) bool {
	m.hookMu.Lock()
	defer m.hookMu.Unlock()
	for i, h := range m.hooks {
		if h.id == id {
			m.hooks = slices.Delete(m.hooks, i, i+1)
			return true
		}
	}
	return false
}

// ClearTransitionHooks removes all observers.
func (m *Machine) ClearTransitionHooks() {
	m.hookMu.Lock()
	defer m.hookMu.Unlock()
	m.hooks = nil
}

func (m *Machine) notify(from StateID, event EventID, to StateID) {
	m.hookMu.RLock()
	hooks := slices.Clone(m.hooks)
	m.hookMu.RUnlock()

	for _, h := range hooks {
		h.fn(from, event, to)
	}
}

// Start enters the start state. An event returned by its entry hook is
// processed before Start returns.
func (m *Machine) Start() error {
	return m.start(false)
}

// AsyncStart is Start, except that an event returned by the start
// state's entry hook goes through the async queue.
func (m *Machine) AsyncStart() error {
	return m.start(true)
}

func (m *Machine) start(async bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase.Load() != phaseIdle {
		return ErrAlreadyStarted
	}

	m.tableMu.Lock()
	initial := m.startState
	if initial == nil {
		m.tableMu.Unlock()
		return ErrNoStartState
	}
	m.started = true
	m.tableMu.Unlock()

	if err := m.sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	m.phase.Store(phaseStarted)
	go m.worker()

	m.logger.Debug("starting", "state", initial.id)
	m.active.Store(initial)
	m.armLocked(initial)

	next := initial.enter(m.makeContext(NoEvent, "", initial.id))
	if next == NoEvent {
		return nil
	}
	if async {
		m.enqueue(queuedEvent{id: next})
		return nil
	}
	return m.runLocked(next)
}

// Stop shuts the machine down for good. Events still in the async
// queue are dropped and pending timers are cancelled. A chain of entry
// events in progress ends after its current transition. Operate and
// its async forms do nothing afterwards. Stop blocks until the worker
// and the scheduler have exited; calling it again is a no-op.
//
// Stop must not be called from a hook.
func (m *Machine) Stop() {
	m.stopOnce.Do(func() {
		m.stopping.Store(true)
		if n := m.queue.close(); n > 0 {
			m.logger.Debug("dropping queued events", "count", n)
		}

		m.mu.Lock()
		m.disarmLocked()
		wasStarted := m.phase.Load() == phaseStarted
		m.phase.Store(phaseStopped)
		m.mu.Unlock()

		if wasStarted {
			<-m.workerDone
		}
		m.sched.Stop(false)
		m.metrics.QueueDepth(0)
		m.logger.Debug("stopped")
	})
}

// Operate processes event synchronously and returns once the machine
// has settled, including any events chained by entry hooks. After Stop
// it is a no-op.
func (m *Machine) Operate(event EventID) error {
	return m.operate(event, nil)
}

// OperateFrom is Operate for an event raised on behalf of a specific
// activation. If that activation has ended, the event is silently
// dropped.
func (m *Machine) OperateFrom(event EventID, origin Origin) error {
	return m.operate(event, &origin)
}

// AsyncOperate queues event for the async worker and returns at once.
// Events queued through AsyncOperate are processed in order.
func (m *Machine) AsyncOperate(event EventID) {
	m.enqueue(queuedEvent{id: event})
}

// AsyncOperateFrom is the queued form of OperateFrom.
func (m *Machine) AsyncOperateFrom(event EventID, origin Origin) {
	m.enqueue(queuedEvent{id: event, origin: &origin})
}

func (m *Machine) enqueue(e queuedEvent) {
	n, ok := m.queue.push(e)
	if !ok {
		m.logger.Debug("machine stopped, dropping event", "event", e.id)
		return
	}
	m.metrics.QueueDepth(n)
}

// worker processes the async queue until Stop closes it.
func (m *Machine) worker() {
	defer close(m.workerDone)
	for {
		e, ok := m.queue.pop()
		if !ok || m.stopping.Load() {
			return
		}
		m.metrics.QueueDepth(m.queue.len())

		if err := m.operate(e.id, e.origin); err != nil {
			m.logger.Error("async event failed", "event", e.id, "error", err)
			m.metrics.AsyncFailure()
			if m.onAsyncError != nil {
				m.onAsyncError(e.id, err)
			}
		}
	}
}

func (m *Machine) operate(event EventID, origin *Origin) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active.Load() == nil {
		return ErrNotStarted
	}
	if m.stopping.Load() {
		m.logger.Debug("machine stopped, ignoring event", "event", event)
		return nil
	}
	if origin != nil && m.isStale(origin) {
		m.logger.Debug("discarding stale event", "event", event, "origin", origin.State, "activation", origin.Activation)
		m.metrics.StaleEvent()
		return nil
	}
	return m.runLocked(event)
}

func (m *Machine) isStale(origin *Origin) bool {
	active := m.active.Load()
	if origin.State != active.id || origin.Activation != active.activations.Load() {
		return true
	}
	return origin.arming != 0 && origin.arming != m.arming
}

// runLocked takes transitions until an entry hook returns NoEvent or
// the machine is stopping.
func (m *Machine) runLocked(event EventID) error {
	for event != NoEvent && !m.stopping.Load() {
		next, err := m.stepLocked(event)
		if err != nil {
			return err
		}
		event = next
	}
	return nil
}

func (m *Machine) stepLocked(event EventID) (EventID, error) {
	from := m.active.Load()

	m.tableMu.RLock()
	t, ok := m.transitions[transitionKey{from.id, event}]
	var to *state
	if ok {
		to = m.states[t.To]
	}
	m.tableMu.RUnlock()

	if !ok {
		m.metrics.UndefinedEvent(string(from.id), string(event))
		if m.strict {
			return NoEvent, fmt.Errorf("state %q event %q: %w", from.id, event, ErrUndefinedTransition)
		}
		m.logger.Warn("no transition for event", "state", from.id, "event", event)
		return NoEvent, nil
	}

	m.logger.Debug("executing transition", "from", from.id, "to", to.id, "event", event)

	m.disarmLocked()
	ctx := m.makeContext(event, from.id, to.id)
	from.exit(ctx)

	if t.Action != nil {
		actx := m.makeContext(event, from.id, to.id)
		actx.Args = slices.Clone(t.Args)
		t.Action(actx)
	}

	m.notify(from.id, event, to.id)
	m.metrics.Transition(string(from.id), string(event), string(to.id))

	m.active.Store(to)
	m.armLocked(to)
	return to.enter(ctx), nil
}

// makeContext creates a context for callbacks
func (m *Machine) makeContext(event EventID, from, to StateID) *Context {
	return &Context{
		FSM:       m,
		Event:     event,
		FromState: from,
		ToState:   to,
		Data:      m.data,
		Logger:    m.logger,
	}
}

// ActiveState returns the active state, or "" before Start.
func (m *Machine) ActiveState() StateID {
	if s := m.active.Load(); s != nil {
		return s.id
	}
	return ""
}

// Activation returns the activation counter of a state: -1 until the
// state is first exited, then the number of exits minus one.
func (m *Machine) Activation(id StateID) (int64, bool) {
	m.tableMu.RLock()
	s, ok := m.states[id]
	m.tableMu.RUnlock()
	if !ok {
		return 0, false
	}
	return s.activations.Load(), true
}

// Started reports whether Start has been called.
func (m *Machine) Started() bool {
	return m.phase.Load() != phaseIdle
}

// Stopped reports whether Stop has been called.
func (m *Machine) Stopped() bool {
	return m.phase.Load() == phaseStopped
}

// QueueLen returns the number of events waiting for the async worker.
func (m *Machine) QueueLen() int {
	return m.queue.len()
}
