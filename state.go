package statemachine

import "sync/atomic"

// Hooks is the capability a state implementation provides. OnEntry may
// return an event to process immediately after entering, or NoEvent.
//
// Hooks run with the transition lock held. They must not call Operate,
// RestartTimeoutEvent or Stop on their own machine; use Context.Send.
type Hooks interface {
	OnEntry(ctx *Context) EventID
	OnExit(ctx *Context)
}

// HookFuncs adapts plain functions to Hooks. Nil fields are skipped.
type HookFuncs struct {
	Entry func(ctx *Context) EventID
	Exit  func(ctx *Context)
}

func (h HookFuncs) OnEntry(ctx *Context) EventID {
	if h.Entry == nil {
		return NoEvent
	}
	return h.Entry(ctx)
}

func (h HookFuncs) OnExit(ctx *Context) {
	if h.Exit != nil {
		h.Exit(ctx)
	}
}

// state is a registered state and its activation counter.
type state struct {
	id    StateID
	group string
	hooks Hooks

	// activations starts at -1 and is bumped on every exit. Timer
	// events carry the value seen when they were armed.
	activations atomic.Int64
}

func newState(id StateID) *state {
	s := &state{id: id, group: DefaultGroup, hooks: HookFuncs{}}
	s.activations.Store(-1)
	return s
}

func (s *state) enter(ctx *Context) EventID {
	return s.hooks.OnEntry(ctx)
}

func (s *state) exit(ctx *Context) {
	s.hooks.OnExit(ctx)
	s.activations.Add(1)
}

// StateOption is a functional option for configuring a state
type StateOption func(*state)

// WithGroup sets the visualization group
func WithGroup(group string) StateOption {
	return func(s *state) {
		if group != "" {
			s.group = group
		}
	}
}

// WithHooks sets the state implementation
func WithHooks(h Hooks) StateOption {
	return func(s *state) {
		if h != nil {
			s.hooks = h
		}
	}
}

// WithOnEnter sets the entry hook, keeping any exit hook
func WithOnEnter(fn func(*Context) EventID) StateOption {
	return func(s *state) {
		f := s.funcs()
		f.Entry = fn
		s.hooks = f
	}
}

// WithOnExit sets the exit hook, keeping any entry hook
func WithOnExit(fn func(*Context)) StateOption {
	return func(s *state) {
		f := s.funcs()
		f.Exit = fn
		s.hooks = f
	}
}

func (s *state) funcs() HookFuncs {
	if f, ok := s.hooks.(HookFuncs); ok {
		return f
	}
	return HookFuncs{Entry: s.hooks.OnEntry, Exit: s.hooks.OnExit}
}
