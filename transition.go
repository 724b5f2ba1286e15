package statemachine

import "slices"

// Action runs during a transition, after the source state's exit hook.
// Context.Args holds the arguments given to WithAction.
type Action func(ctx *Context)

// Transition defines a state change rule
type Transition struct {
	From   StateID
	Event  EventID
	To     StateID
	Action Action
	Args   []any
}

type transitionKey struct {
	from  StateID
	event EventID
}

// TransitionOption is a functional option for configuring a Transition
type TransitionOption func(*Transition)

// WithAction sets an action to execute during the transition. args are
// copied, so later changes to the caller's slice are not seen.
func WithAction(fn Action, args ...any) TransitionOption {
	return func(t *Transition) {
		t.Action = fn
		t.Args = slices.Clone(args)
	}
}
