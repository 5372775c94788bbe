package ipc

import (
	"sort"
	"sync"
	"time"

	"github.com/ev3sim/ev3sim/sim"
)

// Hub owns the mailboxes of a run and implements sim.Publisher.
type Hub struct {
	mu    sync.RWMutex
	boxes map[string]*Mailbox
	relay *Relay
	clock func() time.Time
}

// NewHub creates a hub. relay may be nil.
func NewHub(relay *Relay) *Hub {
	return &Hub{boxes: make(map[string]*Mailbox), relay: relay, clock: time.Now}
}

// SetClock replaces the clock stamping published updates.
func (h *Hub) SetClock(clock func() time.Time) { h.clock = clock }

// Register creates the mailbox for a robot, or returns the existing one.
func (h *Hub) Register(robotID string) *Mailbox {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := h.boxes[robotID]; ok {
		return m
	}
	m := NewMailbox()
	h.boxes[robotID] = m
	return m
}

// Mailbox returns a robot's mailbox.
func (h *Hub) Mailbox(robotID string) (*Mailbox, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	m, ok := h.boxes[robotID]
	return m, ok
}

// Publish delivers an update to a registered robot.
func (h *Hub) Publish(robotID string, u sim.TickUpdate) {
	if m, ok := h.Mailbox(robotID); ok {
		m.Put(u, h.clock())
	}
}

// Stalled lists robots holding an update older than timeout, sorted.
func (h *Hub) Stalled(now time.Time, timeout time.Duration) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []string
	for id, m := range h.boxes {
		if m.Stalled(now, timeout) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Retire closes a robot's mailbox and its relay endpoints.
func (h *Hub) Retire(robotID string) {
	h.mu.Lock()
	m, ok := h.boxes[robotID]
	delete(h.boxes, robotID)
	h.mu.Unlock()
	if ok {
		m.Close()
	}
	if h.relay != nil {
		h.relay.CloseOwner(robotID)
	}
}

// Close retires every robot.
func (h *Hub) Close() {
	h.mu.RLock()
	ids := make([]string, 0, len(h.boxes))
	for id := range h.boxes {
		ids = append(ids, id)
	}
	h.mu.RUnlock()
	for _, id := range ids {
		h.Retire(id)
	}
}
