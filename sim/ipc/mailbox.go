// Package ipc connects robot programs to the scheduler: per-robot tick
// mailboxes, the in-process bridge, program supervision and the comm relay
// that lets robots talk to each other.
package ipc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ev3sim/ev3sim/sim"
)

// ErrMailboxClosed is returned to waiters once their robot is retired.
var ErrMailboxClosed = errors.New("mailbox closed")

// Mailbox holds the latest tick update of one robot. Events from updates
// the robot never read are carried into the next one.
type Mailbox struct {
	mu   sync.Mutex
	cond *sync.Cond

	latest      sim.TickUpdate
	has         bool
	consumed    bool
	pending     []sim.RobotEvent
	publishedAt time.Time // when the oldest unconsumed update arrived
	busy        int
	closed      bool
}

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	m := &Mailbox{consumed: true}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Put replaces the latest update and wakes waiters.
func (m *Mailbox) Put(u sim.TickUpdate, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.pending = append(m.pending, u.Events...)
	u.Events = append([]sim.RobotEvent(nil), m.pending...)
	if m.consumed {
		m.publishedAt = now
	}
	m.latest = u
	m.has = true
	m.consumed = false
	m.cond.Broadcast()
}

// Wait blocks until an update newer than after is available, then consumes
// it.
func (m *Mailbox) Wait(ctx context.Context, after int64) (sim.TickUpdate, error) {
	return m.waitNewer(ctx, after, true)
}

// Latest blocks until an update newer than after is available and returns
// it without consuming it.
func (m *Mailbox) Latest(ctx context.Context, after int64) (sim.TickUpdate, error) {
	return m.waitNewer(ctx, after, false)
}

func (m *Mailbox) waitNewer(ctx context.Context, after int64, consume bool) (sim.TickUpdate, error) {
	stop := m.wakeOn(ctx)
	defer stop()

	m.mu.Lock()
	defer m.mu.Unlock()
	for !m.closed && (!m.has || m.latest.Tick <= after) {
		if err := ctx.Err(); err != nil {
			return sim.TickUpdate{}, err
		}
		m.cond.Wait()
	}
	if m.closed {
		return sim.TickUpdate{}, ErrMailboxClosed
	}
	if consume {
		m.consumed = true
		m.pending = nil
	}
	return m.latest, nil
}

// WaitGeneration blocks until an update reflecting write generation gen has
// been published. The update is not consumed.
func (m *Mailbox) WaitGeneration(ctx context.Context, gen uint64) (sim.TickUpdate, error) {
	stop := m.wakeOn(ctx)
	defer stop()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy++
	defer func() { m.busy-- }()
	for !m.closed && (!m.has || m.latest.WriteGeneration < gen) {
		if err := ctx.Err(); err != nil {
			return sim.TickUpdate{}, err
		}
		m.cond.Wait()
	}
	if m.closed {
		return sim.TickUpdate{}, ErrMailboxClosed
	}
	return m.latest, nil
}

// Enter marks the robot as blocked in a bridge call; Leave undoes it.
// A busy robot is never reported as stalled.
func (m *Mailbox) Enter() {
	m.mu.Lock()
	m.busy++
	m.mu.Unlock()
}

// Leave ends a blocking bridge call.
func (m *Mailbox) Leave() {
	m.mu.Lock()
	m.busy--
	m.mu.Unlock()
}

// Stalled reports an unconsumed update older than timeout while the robot
// is not blocked in a bridge call.
func (m *Mailbox) Stalled(now time.Time, timeout time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed && m.has && !m.consumed && m.busy == 0 && now.Sub(m.publishedAt) > timeout
}

// Close wakes every waiter with ErrMailboxClosed.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cond.Broadcast()
}

func (m *Mailbox) wakeOn(ctx context.Context) func() bool {
	return context.AfterFunc(ctx, func() {
		m.mu.Lock()
		m.cond.Broadcast()
		m.mu.Unlock()
	})
}
