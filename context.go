package statemachine

import "log/slog"

// Context is passed to all state hooks and actions
type Context struct {
	FSM       *Machine
	Event     EventID // NoEvent when entering the start state
	FromState StateID
	ToState   StateID
	Args      []any // Action arguments, nil in hooks
	Data      any   // User-provided application data
	Logger    *slog.Logger
}

// CurrentState returns the active state
func (c *Context) CurrentState() StateID {
	return c.FSM.ActiveState()
}

// Send queues an event for asynchronous processing. This is the way to
// raise events from inside hooks.
func (c *Context) Send(event EventID) {
	c.FSM.AsyncOperate(event)
}
