package scheduler

import "errors"

var (
	// ErrUnknownHandle is returned by Cancel for a handle that is not
	// pending. One-shots that already ran are not remembered, so they
	// report this error as well.
	ErrUnknownHandle = errors.New("scheduler: unknown handle")

	ErrInvalidPeriod  = errors.New("scheduler: period must be positive")
	ErrNilAction      = errors.New("scheduler: nil action")
	ErrStopped        = errors.New("scheduler: stopped")
	ErrAlreadyStarted = errors.New("scheduler: already started")
)
