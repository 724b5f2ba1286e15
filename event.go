package statemachine

// Origin identifies the state activation an event was raised for.
// Events carrying an Origin are discarded unless that activation is
// still the current one.
type Origin struct {
	State      StateID
	Activation int64

	// arming is set on timer events only: the arm sequence number at
	// the time the timer was armed.
	arming uint64
}

// queuedEvent is an entry of the async queue.
type queuedEvent struct {
	id     EventID
	origin *Origin
}
