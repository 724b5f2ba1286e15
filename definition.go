package statemachine

import (
	"errors"
	"time"
)

// Definition collects the structure of a machine so it can be declared
// in one expression and validated as a whole. Build applies it in a
// fixed order (states, transitions, timeouts, initial state), so
// declaration order does not matter.
type Definition struct {
	states      []stateDecl
	transitions []transitionDecl
	timeouts    []timeoutDecl
	initial     StateID
}

type stateDecl struct {
	id   StateID
	opts []StateOption
}

type transitionDecl struct {
	from  StateID
	event EventID
	to    StateID
	opts  []TransitionOption
}

type timeoutDecl struct {
	state StateID
	event EventID
	after time.Duration
}

// NewDefinition creates a new FSM definition builder
func NewDefinition() *Definition {
	return &Definition{}
}

// State adds a state to the definition
func (d *Definition) State(id StateID, opts ...StateOption) *Definition {
	d.states = append(d.states, stateDecl{id: id, opts: opts})
	return d
}

// Transition adds a transition rule
func (d *Definition) Transition(from StateID, event EventID, to StateID, opts ...TransitionOption) *Definition {
	d.transitions = append(d.transitions, transitionDecl{from: from, event: event, to: to, opts: opts})
	return d
}

// Timeout raises event after the state has been active for after
func (d *Definition) Timeout(id StateID, event EventID, after time.Duration) *Definition {
	d.timeouts = append(d.timeouts, timeoutDecl{state: id, event: event, after: after})
	return d
}

// Initial sets the initial state
func (d *Definition) Initial(id StateID) *Definition {
	d.initial = id
	return d
}

// Validate checks the definition for errors
func (d *Definition) Validate() error {
	return d.apply(New())
}

// Build creates a Machine from the definition. All setup errors are
// reported together.
func (d *Definition) Build(opts ...MachineOption) (*Machine, error) {
	m := New(opts...)
	if err := d.apply(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (d *Definition) apply(m *Machine) error {
	var errs []error
	for _, s := range d.states {
		errs = append(errs, m.AddState(s.id, s.opts...))
	}
	for _, t := range d.transitions {
		errs = append(errs, m.AddTransition(t.from, t.event, t.to, t.opts...))
	}
	for _, to := range d.timeouts {
		errs = append(errs, m.AddTimeout(to.state, to.event, to.after))
	}
	if d.initial == "" {
		errs = append(errs, ErrNoStartState)
	} else {
		errs = append(errs, m.SetStartState(d.initial))
	}
	return errors.Join(errs...)
}
