package sim

import "sync"

// Event kinds the scheduler consumes itself.
const (
	EventPause  = "pause"
	EventResume = "resume"
	EventToggle = "toggle_pause"
)

// Event is an input event pumped at render cadence.
type Event struct {
	Type string
	Data map[string]any
}

// EventQueue is a thread-safe FIFO of input events. Any goroutine may push;
// the scheduler drains at render cadence.
type EventQueue struct {
	mu     sync.Mutex
	events []Event
}

// NewEventQueue creates an empty queue.
func NewEventQueue() *EventQueue {
	return &EventQueue{}
}

// Push appends an event.
func (q *EventQueue) Push(ev Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, ev)
}

// Drain returns and clears all queued events.
func (q *EventQueue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	events := q.events
	q.events = nil
	return events
}
