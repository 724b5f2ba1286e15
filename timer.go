package statemachine

import (
	"fmt"
	"time"

	"github.com/librescoot/statemachine/scheduler"
)

// timeout is the per-state timeout configuration.
type timeout struct {
	event EventID
	after time.Duration
}

// AddTimeout makes the machine raise event once state id has been
// active for d. The transition (id, event) must already be registered,
// and each state has at most one timeout.
func (m *Machine) AddTimeout(id StateID, event EventID, d time.Duration) error {
	m.tableMu.Lock()
	defer m.tableMu.Unlock()

	if err := m.checkSetupLocked(); err != nil {
		return err
	}
	if _, ok := m.states[id]; !ok {
		return fmt.Errorf("timeout on %q: %w", id, ErrUnknownState)
	}
	if d < 0 {
		return fmt.Errorf("timeout on %q: %w: %v", id, ErrNegativeDuration, d)
	}
	if _, ok := m.transitions[transitionKey{id, event}]; !ok {
		return fmt.Errorf("timeout on %q with event %q: %w", id, event, ErrUnknownTransition)
	}
	if _, ok := m.timeouts[id]; ok {
		return fmt.Errorf("timeout on %q: %w", id, ErrDuplicateTimeout)
	}
	m.timeouts[id] = &timeout{event: event, after: d}
	return nil
}

// UpdateTimeout changes the duration of an existing timeout. The event
// must match the registered one. It may be called while the machine
// runs; the new duration applies the next time the timer is armed,
// see RestartTimeoutEvent.
func (m *Machine) UpdateTimeout(id StateID, event EventID, d time.Duration) error {
	m.tableMu.Lock()
	defer m.tableMu.Unlock()

	to, ok := m.timeouts[id]
	if !ok {
		return fmt.Errorf("update timeout on %q: %w", id, ErrUnknownTimeout)
	}
	if to.event != event {
		return fmt.Errorf("update timeout on %q: %w: have %q, got %q", id, ErrTimeoutEventMismatch, to.event, event)
	}
	if d < 0 {
		return fmt.Errorf("update timeout on %q: %w: %v", id, ErrNegativeDuration, d)
	}
	to.after = d
	return nil
}

// RestartTimeoutEvent re-arms the active state's timer with its
// configured duration, discarding the time already elapsed.
func (m *Machine) RestartTimeoutEvent() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active.Load() == nil {
		return ErrNotStarted
	}
	m.disarmLocked()
	m.armLocked(m.active.Load())
	return nil
}

// armLocked schedules the timeout of st, if it has one. The callback
// carries the activation it was armed for, so a late firing after st
// was left is dropped by operate.
func (m *Machine) armLocked(st *state) {
	if m.stopping.Load() || st == nil {
		return
	}

	m.tableMu.RLock()
	to, ok := m.timeouts[st.id]
	var cfg timeout
	if ok {
		cfg = *to
	}
	m.tableMu.RUnlock()
	if !ok {
		return
	}

	m.arming++
	origin := Origin{State: st.id, Activation: st.activations.Load(), arming: m.arming}
	h, err := m.sched.ScheduleAfter(cfg.after, 0, func() {
		m.AsyncOperateFrom(cfg.event, origin)
	})
	if err != nil {
		m.logger.Error("failed to arm timeout", "state", st.id, "event", cfg.event, "error", err)
		return
	}
	m.armed = h
	m.logger.Debug("timeout armed", "state", st.id, "event", cfg.event, "after", cfg.after)
}

// disarmLocked cancels the active timer. A timer that already fired is
// not an error: its event is discarded as stale.
func (m *Machine) disarmLocked() {
	if m.armed.IsZero() {
		return
	}
	if err := m.sched.Cancel(m.armed); err != nil {
		m.logger.Debug("timeout already fired", "handle", m.armed.String())
	}
	m.armed = scheduler.Handle{}
}
