package statemachine

import "time"

// StateInfo describes a registered state.
type StateInfo struct {
	ID         StateID
	Group      string
	Activation int64
}

// TransitionInfo describes a registered transition.
type TransitionInfo struct {
	From      StateID
	Event     EventID
	To        StateID
	HasAction bool
}

// TimeoutInfo describes a state timeout.
type TimeoutInfo struct {
	State StateID
	Event EventID
	After time.Duration
}

// States returns the registered states in registration order.
func (m *Machine) States() []StateInfo {
	m.tableMu.RLock()
	defer m.tableMu.RUnlock()

	out := make([]StateInfo, 0, len(m.stateOrder))
	for _, id := range m.stateOrder {
		s := m.states[id]
		out = append(out, StateInfo{ID: id, Group: s.group, Activation: s.activations.Load()})
	}
	return out
}

// Transitions returns the registered transitions in registration order.
func (m *Machine) Transitions() []TransitionInfo {
	m.tableMu.RLock()
	defer m.tableMu.RUnlock()

	out := make([]TransitionInfo, 0, len(m.transOrder))
	for _, key := range m.transOrder {
		t := m.transitions[key]
		out = append(out, TransitionInfo{From: t.From, Event: t.Event, To: t.To, HasAction: t.Action != nil})
	}
	return out
}

// Timeouts returns the configured timeouts in state registration order.
func (m *Machine) Timeouts() []TimeoutInfo {
	m.tableMu.RLock()
	defer m.tableMu.RUnlock()

	var out []TimeoutInfo
	for _, id := range m.stateOrder {
		if to, ok := m.timeouts[id]; ok {
			out = append(out, TimeoutInfo{State: id, Event: to.event, After: to.after})
		}
	}
	return out
}

// StartState returns the configured start state, or "".
func (m *Machine) StartState() StateID {
	m.tableMu.RLock()
	defer m.tableMu.RUnlock()
	if m.startState == nil {
		return ""
	}
	return m.startState.id
}
