package sim

import (
	"fmt"
	"sync"
	"time"
)

// fakeWorld counts physics steps.
type fakeWorld struct {
	steps  int
	paused bool
}

func (w *fakeWorld) Step(float64) {
	if w.paused {
		return
	}
	w.steps++
}

func (w *fakeWorld) SetPaused(p bool) { w.paused = p }

// fakePublisher records every update per robot.
type fakePublisher struct {
	mu      sync.Mutex
	updates map[string][]TickUpdate
	stalled []string
	retired []string
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{updates: make(map[string][]TickUpdate)}
}

func (p *fakePublisher) Publish(id string, u TickUpdate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates[id] = append(p.updates[id], u)
}

func (p *fakePublisher) Stalled(time.Time, time.Duration) []string { return p.stalled }

func (p *fakePublisher) Retire(id string) { p.retired = append(p.retired, id) }

func (p *fakePublisher) last(id string) TickUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()
	list := p.updates[id]
	return list[len(list)-1]
}

// fakeRobot is a RobotHost with one writable "value" attribute per object.
type fakeRobot struct {
	BaseInteractor
	id        string
	attrs     map[string]string
	tickFn    func(tick int64) (bool, error)
	ticks     []int64
	afters    int
	torn      bool
	events    []Event
	snapErr   error
	sortKey   int
	traceName string
	trace     *[]string
}

func newFakeRobot(id string) *fakeRobot {
	return &fakeRobot{id: id, attrs: make(map[string]string), sortKey: SortOrderRobot}
}

func (r *fakeRobot) RobotID() string { return r.id }

func (r *fakeRobot) ApplyWrite(p AttributePath, v string) error {
	if p.DeviceType != "fake" || p.Attribute != "value" {
		return &DeviceWriteError{Device: p.Object, Attribute: p.Attribute, Value: v, Reason: "unknown attribute"}
	}
	r.attrs[p.Object] = v
	return nil
}

func (r *fakeRobot) Snapshot() (Snapshot, error) {
	if r.snapErr != nil {
		return nil, r.snapErr
	}
	snap := Snapshot{}
	for obj, v := range r.attrs {
		snap.Put("fake", obj, map[string]any{"value": v})
	}
	return snap, nil
}

func (r *fakeRobot) Tick(tick int64) (bool, error) {
	r.ticks = append(r.ticks, tick)
	if r.trace != nil {
		*r.trace = append(*r.trace, fmt.Sprintf("%s:tick", r.traceName))
	}
	if r.tickFn != nil {
		return r.tickFn(tick)
	}
	return false, nil
}

func (r *fakeRobot) AfterPhysics() error {
	r.afters++
	return nil
}

func (r *fakeRobot) HandleEvent(ev Event) error {
	r.events = append(r.events, ev)
	return nil
}

func (r *fakeRobot) TearDown() error {
	r.torn = true
	return nil
}

func (r *fakeRobot) SortKey() int { return r.sortKey }

// fakeClock advances by step on every Now call.
type fakeClock struct {
	now  time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.now = c.now.Add(c.step)
	return c.now
}
