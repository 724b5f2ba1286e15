package statemachine

import "log/slog"

// StateID is a unique identifier for a state
type StateID string

// EventID is a unique identifier for an event type
type EventID string

// NoEvent is returned by entry hooks that do not chain another event.
const NoEvent EventID = ""

// DefaultGroup is the group of states added without WithGroup.
// Groups only matter to visualizers.
const DefaultGroup = "_"

// Logger is the default logger used when none is provided
var Logger = slog.Default()

// TransitionHook observes every transition after the exit hook and
// action ran and before the target state is entered.
type TransitionHook func(from StateID, event EventID, to StateID)

// HookID identifies a registered TransitionHook.
type HookID uint64
