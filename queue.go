package statemachine

import "sync"

// eventQueue is an unbounded FIFO. push never blocks; pop blocks until
// an item is available or the queue is closed.
type eventQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []queuedEvent
	closed bool
}

func newEventQueue() *eventQueue {
	q := &eventQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push appends e and returns the new length. It reports false if the
// queue was closed.
func (q *eventQueue) push(e queuedEvent) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return len(q.items), false
	}
	q.items = append(q.items, e)
	q.cond.Signal()
	return len(q.items), true
}

func (q *eventQueue) pop() (queuedEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		if q.closed {
			return queuedEvent{}, false
		}
		q.cond.Wait()
	}
	e := q.items[0]
	q.items[0] = queuedEvent{}
	q.items = q.items[1:]
	return e, true
}

// close stops accepting items and discards the ones still queued. It
// returns how many were discarded.
func (q *eventQueue) close() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	q.closed = true
	q.cond.Broadcast()
	return n
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
