package statemachine

import "errors"

// Setup errors.
var (
	ErrEmptyID              = errors.New("empty id")
	ErrUnknownState         = errors.New("unknown state")
	ErrDuplicateState       = errors.New("duplicate state")
	ErrDuplicateTransition  = errors.New("duplicate transition")
	ErrUnknownTransition    = errors.New("unknown transition")
	ErrDuplicateTimeout     = errors.New("duplicate timeout")
	ErrUnknownTimeout       = errors.New("unknown timeout")
	ErrTimeoutEventMismatch = errors.New("timeout event mismatch")
	ErrNegativeDuration     = errors.New("negative duration")
	ErrNoStartState         = errors.New("no start state")
)

// Lifecycle and runtime errors.
var (
	ErrAlreadyStarted = errors.New("machine already started")
	ErrNotStarted     = errors.New("machine not started")

	// ErrUndefinedTransition is returned by Operate on machines built
	// WithStrictEvents(true) when the active state has no transition
	// for the event.
	ErrUndefinedTransition = errors.New("undefined transition")
)
