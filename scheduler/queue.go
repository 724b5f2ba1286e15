package scheduler

import (
	"time"

	"github.com/google/uuid"
)

// Action is a scheduled callback. Arguments are bound by closure.
type Action func()

// Handle identifies a pending one-shot or a whole repeating series.
// The zero Handle never matches anything.
type Handle struct {
	id uuid.UUID
}

func newHandle() Handle { return Handle{id: uuid.New()} }

// String returns the handle's id.
func (h Handle) String() string { return h.id.String() }

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool { return h.id == uuid.Nil }

// item is one queued occurrence.
type item struct {
	handle   Handle
	deadline time.Time
	priority int
	seq      uint64
	period   time.Duration // zero for one-shots
	action   Action
	index    int // position in the heap, -1 once popped
}

// actionHeap orders occurrences by deadline, then priority (lower
// first), then insertion order.
type actionHeap []*item

func (h actionHeap) Len() int { return len(h) }

func (h actionHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if !a.deadline.Equal(b.deadline) {
		return a.deadline.Before(b.deadline)
	}
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	return a.seq < b.seq
}

func (h actionHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *actionHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *actionHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}
