package clock

import (
	"container/heap"
	"log"
	"sync"
)

// An Event is something going to happen at a host-time deadline, expressed in
// nanoseconds since the owning loop's epoch.
type Event interface {
	// Deadline returns the time the event should fire.
	Deadline() uint64

	// Handler returns the handler that should handle the event.
	Handler() Handler
}

// A Handler handles events scheduled by itself.
type Handler interface {
	Handle(e Event) error
}

// EventBase provides the basic fields and getters for other events.
type EventBase struct {
	ID       string
	deadline uint64
	handler  Handler
}

// NewEventBase creates a new EventBase.
func NewEventBase(deadline uint64, handler Handler) EventBase {
	return EventBase{
		ID:       GetIDGenerator().Generate(),
		deadline: deadline,
		handler:  handler,
	}
}

// Deadline returns the time the event is going to happen.
func (e EventBase) Deadline() uint64 {
	return e.deadline
}

// Handler returns the handler to handle the event.
func (e EventBase) Handler() Handler {
	return e.handler
}

// An EventLoop runs events ordered by deadline. It does not own a goroutine:
// the caller drives it by calling RunUntil with the current host time, which
// is how the single-core compositor clock shares the emulation thread.
type EventLoop struct {
	mu    sync.Mutex
	queue eventHeap
	now   uint64
}

// NewEventLoop creates an EventLoop.
func NewEventLoop() *EventLoop {
	l := new(EventLoop)
	heap.Init(&l.queue)
	return l
}

// Schedule registers an event to fire in the future.
func (l *EventLoop) Schedule(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.Deadline() < l.now {
		log.Panic("scheduling an event earlier than current time")
	}

	heap.Push(&l.queue, e)
}

// RunUntil fires, in deadline order, every event whose deadline is not after
// now. Handlers may schedule new events; a new event that is already due
// fires in the same call.
func (l *EventLoop) RunUntil(now uint64) {
	for {
		l.mu.Lock()
		if l.queue.Len() == 0 || l.queue[0].Deadline() > now {
			l.now = now
			l.mu.Unlock()
			return
		}

		evt := heap.Pop(&l.queue).(Event)
		l.now = evt.Deadline()
		l.mu.Unlock()

		_ = evt.Handler().Handle(evt)
	}
}

// Pending returns the number of events that have not fired yet.
func (l *EventLoop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.queue.Len()
}

// NextDeadline returns the deadline of the earliest pending event. The bool
// return is false when no event is pending.
func (l *EventLoop) NextDeadline() (uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.queue.Len() == 0 {
		return 0, false
	}

	return l.queue[0].Deadline(), true
}

type eventHeap []Event

func (h eventHeap) Len() int {
	return len(h)
}

func (h eventHeap) Less(i, j int) bool {
	return h[i].Deadline() < h[j].Deadline()
}

func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *eventHeap) Push(x interface{}) {
	*h = append(*h, x.(Event))
}

func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	evt := old[n-1]
	*h = old[0 : n-1]
	return evt
}
