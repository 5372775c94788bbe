package sim

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// SchedulerConfig tunes the two cadences and the watchdogs of the loop.
type SchedulerConfig struct {
	TickRate         int           // game ticks per simulated second (default 60)
	TimeScale        float64       // wall-clock speed multiplier (default 1)
	RenderRate       int           // event/render cadence in Hz (default 30)
	MaxTicks         int64         // stop after this many ticks (0 = unbounded)
	LagWindow        int           // cycles in the lag detection window (default 60)
	LagFactor        float64       // a cycle is slow above LagFactor*period (default 2)
	HeartbeatTimeout time.Duration // unconsumed-update age that marks a robot stalled (0 = off)
	EndOnRobotDeath  bool          // robot failures and stalls end the run
}

// DefaultSchedulerConfig returns the stock 60 Hz / 30 Hz configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		TickRate:         60,
		TimeScale:        1,
		RenderRate:       30,
		LagWindow:        60,
		LagFactor:        2,
		HeartbeatTimeout: time.Second,
	}
}

// RobotHost is the scheduler's view of a live robot: it accepts writes and
// produces the per-tick snapshot.
type RobotHost interface {
	RobotID() string
	ApplyWrite(path AttributePath, value string) error
	Snapshot() (Snapshot, error)
}

// Publisher delivers tick updates to robot programs and reports robots that
// stopped consuming them.
type Publisher interface {
	Publish(robotID string, update TickUpdate)
	Stalled(now time.Time, timeout time.Duration) []string
	Retire(robotID string)
}

// Clock abstracts wall time for cycle measurement.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// CycleResult describes one completed game-tick cycle.
type CycleResult struct {
	Tick      int64
	Writes    int
	Published int
	Duration  time.Duration
	Budget    time.Duration
}

// Hooks observe the loop without taking part in it.
type Hooks struct {
	AfterCycle func(CycleResult)
	Render     func(tick int64)
	// RobotFault sees rejected writes and stalled heartbeats.
	RobotFault func(tick int64, robotID string, err error)
}

// Scheduler is the authoritative heartbeat of a run. Cycle, Render and Run
// must be called from a single goroutine; Pause, Resume, QueueEvent,
// ReportFatal and Tick are safe from any goroutine.
type Scheduler struct {
	config    SchedulerConfig
	world     World
	writes    *WriteQueue
	events    *EventQueue
	publisher Publisher
	clock     Clock
	hooks     Hooks

	interactors []Interactor
	robots      map[string]RobotHost
	robotOrder  []string
	started     bool
	halted      bool
	lag         *LagDetector
	stalled     map[string]bool

	tick   atomic.Int64
	paused atomic.Bool
	fatal  chan error

	pendingMu sync.Mutex
	pending   map[string][]RobotEvent
}

// NewScheduler creates a scheduler stepping world and draining writes.
// Zero config fields take their defaults. Panics if world or writes is nil.
func NewScheduler(cfg SchedulerConfig, world World, writes *WriteQueue, publisher Publisher) *Scheduler {
	if world == nil {
		panic("Scheduler: world must not be nil")
	}
	if writes == nil {
		panic("Scheduler: write queue must not be nil")
	}
	def := DefaultSchedulerConfig()
	if cfg.TickRate <= 0 {
		cfg.TickRate = def.TickRate
	}
	if cfg.TimeScale <= 0 {
		cfg.TimeScale = def.TimeScale
	}
	if cfg.RenderRate <= 0 {
		cfg.RenderRate = def.RenderRate
	}
	if cfg.LagWindow <= 0 {
		cfg.LagWindow = def.LagWindow
	}
	if cfg.LagFactor <= 0 {
		cfg.LagFactor = def.LagFactor
	}
	return &Scheduler{
		config:    cfg,
		world:     world,
		writes:    writes,
		events:    NewEventQueue(),
		publisher: publisher,
		clock:     SystemClock{},
		robots:    make(map[string]RobotHost),
		lag:       NewLagDetector(cfg.period(), cfg.LagWindow, cfg.LagFactor),
		stalled:   make(map[string]bool),
		fatal:     make(chan error, 1),
		pending:   make(map[string][]RobotEvent),
	}
}

// period is the wall-clock budget of one game tick.
func (c SchedulerConfig) period() time.Duration {
	return time.Duration(float64(time.Second) / (float64(c.TickRate) * c.TimeScale))
}

// Config returns the effective configuration.
func (s *Scheduler) Config() SchedulerConfig { return s.config }

// SetClock replaces the wall clock used for cycle measurement.
func (s *Scheduler) SetClock(c Clock) { s.clock = c }

// SetHooks installs loop observers.
func (s *Scheduler) SetHooks(h Hooks) { s.hooks = h }

// Writes returns the shared write queue.
func (s *Scheduler) Writes() *WriteQueue { return s.writes }

// Events returns the input event queue pumped at render cadence.
func (s *Scheduler) Events() *EventQueue { return s.events }

// Add registers an interactor. Interactors that are also RobotHosts take
// part in write application and snapshot publication. Must be called
// before the first cycle.
func (s *Scheduler) Add(it Interactor) {
	if s.started {
		panic("Scheduler: Add called after start")
	}
	s.interactors = append(s.interactors, it)
	if host, ok := it.(RobotHost); ok {
		id := host.RobotID()
		s.robots[id] = host
		s.robotOrder = append(s.robotOrder, id)
	}
}

// Interactors returns the active set in tick order.
func (s *Scheduler) Interactors() []Interactor {
	out := make([]Interactor, len(s.interactors))
	copy(out, s.interactors)
	return out
}

// Tick returns the current tick counter.
func (s *Scheduler) Tick() int64 { return s.tick.Load() }

// Pause freezes tick advancement and physics integration.
func (s *Scheduler) Pause() {
	s.paused.Store(true)
	s.world.SetPaused(true)
}

// Resume continues from the paused state.
func (s *Scheduler) Resume() {
	s.paused.Store(false)
	s.world.SetPaused(false)
}

// Paused reports the pause state.
func (s *Scheduler) Paused() bool { return s.paused.Load() }

// Halt tears down every interactor at the end of the current cycle.
func (s *Scheduler) Halt() { s.halted = true }

// Shutdown tears down and retires every remaining interactor. Run leaves
// the active set intact when it stops on the tick limit, a fatal error or
// cancellation; callers finish with Shutdown.
func (s *Scheduler) Shutdown() error {
	finished := make(map[int]bool, len(s.interactors))
	for i := range s.interactors {
		finished[i] = true
	}
	return s.removeFinished(finished)
}

// Done reports whether the active set is empty.
func (s *Scheduler) Done() bool { return s.started && len(s.interactors) == 0 }

// QueueEvent delivers an event to a robot with its next tick update.
func (s *Scheduler) QueueEvent(robotID, name string, data map[string]any) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	s.pending[robotID] = append(s.pending[robotID], RobotEvent{Name: name, Data: data})
}

// ReportFatal ends Run with err. Only the first report is kept.
func (s *Scheduler) ReportFatal(err error) {
	select {
	case s.fatal <- err:
	default:
	}
}

// Start sorts interactors and runs StartUp once.
func (s *Scheduler) Start() error {
	if s.started {
		return nil
	}
	s.started = true
	sortInteractors(s.interactors)
	for _, it := range s.interactors {
		if err := it.StartUp(); err != nil {
			return &SchedulerFatalError{Phase: "startup", Tick: s.Tick(), Err: err}
		}
	}
	logrus.WithField("source", "sim").Infof("[tick %07d] started with %d interactors, %d robots",
		s.Tick(), len(s.interactors), len(s.robots))
	return nil
}

// Cycle runs one game tick: apply writes, publish snapshots, tick
// interactors, step physics, run after-physics, advance the counter.
// A paused scheduler skips every phase.
func (s *Scheduler) Cycle() (err error) {
	if err := s.Start(); err != nil {
		return err
	}
	if s.paused.Load() {
		return nil
	}
	start := s.clock.Now()
	tick := s.tick.Load()
	phase := "writes"
	defer func() {
		if r := recover(); r != nil {
			err = &SchedulerFatalError{Phase: phase, Tick: tick, Err: fmt.Errorf("panic: %v", r), Stack: debug.Stack()}
		}
	}()

	// 1. Writes strictly precede this tick's snapshot.
	writes, generation := s.writes.Drain()
	writeErrs := s.applyWrites(writes)

	// 2. Snapshots.
	phase = "snapshot"
	published := s.publish(tick, generation, writeErrs)

	// 3. Interactor ticks; removal is deferred to keep indices stable.
	phase = "tick"
	finished := make(map[int]bool)
	for i, it := range s.interactors {
		done, err := it.Tick(tick)
		if err != nil {
			return &SchedulerFatalError{Phase: phase, Tick: tick, Err: err}
		}
		if done {
			finished[i] = true
		}
	}

	// 4. Physics.
	phase = "physics"
	s.world.Step(1 / float64(s.config.TickRate))

	// 5. After physics, still-active interactors only.
	phase = "after_physics"
	for i, it := range s.interactors {
		if finished[i] {
			continue
		}
		if err := it.AfterPhysics(); err != nil {
			return &SchedulerFatalError{Phase: phase, Tick: tick, Err: err}
		}
	}

	// 6. Advance.
	s.tick.Add(1)

	phase = "teardown"
	if s.halted {
		for i := range s.interactors {
			finished[i] = true
		}
	}
	if err := s.removeFinished(finished); err != nil {
		return &SchedulerFatalError{Phase: phase, Tick: tick, Err: err}
	}

	phase = "heartbeat"
	now := s.clock.Now()
	if err := s.checkHeartbeats(now); err != nil {
		return err
	}

	// 7. Lag advisory.
	duration := now.Sub(start)
	if s.lag.Observe(duration) {
		logrus.WithField("source", "sim").Warnf("[tick %07d] simulation is lagging: cycles regularly exceed %.0fx the %v budget; consider lowering the time scale",
			tick, s.config.LagFactor, s.config.period())
	}
	if s.hooks.AfterCycle != nil {
		s.hooks.AfterCycle(CycleResult{
			Tick:      tick,
			Writes:    len(writes),
			Published: published,
			Duration:  duration,
			Budget:    s.config.period(),
		})
	}
	return nil
}

// Render pumps input events at render cadence. Runs while paused.
func (s *Scheduler) Render() (err error) {
	if err := s.Start(); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = &SchedulerFatalError{Phase: "render", Tick: s.Tick(), Err: fmt.Errorf("panic: %v", r), Stack: debug.Stack()}
		}
	}()
	for _, ev := range s.events.Drain() {
		switch ev.Type {
		case EventPause:
			s.Pause()
			continue
		case EventResume:
			s.Resume()
			continue
		case EventToggle:
			if s.Paused() {
				s.Resume()
			} else {
				s.Pause()
			}
			continue
		}
		for _, it := range s.interactors {
			if err := it.HandleEvent(ev); err != nil {
				return &SchedulerFatalError{Phase: "render", Tick: s.Tick(), Err: err}
			}
		}
	}
	if s.hooks.Render != nil {
		s.hooks.Render(s.Tick())
	}
	return nil
}

// Run drives both cadences against the scheduler's clock until the active set empties,
// MaxTicks is reached, ctx is cancelled or a fatal error occurs.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	gamePeriod := s.config.period()
	renderPeriod := time.Second / time.Duration(s.config.RenderRate)
	nextGame := s.clock.Now()
	nextRender := nextGame

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		if s.Done() {
			logrus.WithField("source", "sim").Infof("[tick %07d] all interactors finished", s.Tick())
			return nil
		}
		if s.config.MaxTicks > 0 && s.Tick() >= s.config.MaxTicks {
			logrus.WithField("source", "sim").Infof("[tick %07d] tick limit reached", s.Tick())
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-s.fatal:
			return err
		case <-timer.C:
		}

		now := s.clock.Now()
		if !now.Before(nextGame) {
			if !s.Paused() {
				if err := s.Cycle(); err != nil {
					return err
				}
			}
			nextGame = nextGame.Add(gamePeriod)
			if now.Sub(nextGame) > 4*gamePeriod {
				nextGame = now
			}
		}
		if !now.Before(nextRender) {
			if err := s.Render(); err != nil {
				return err
			}
			nextRender = nextRender.Add(renderPeriod)
			if now.Sub(nextRender) > 4*renderPeriod {
				nextRender = now
			}
		}
		next := nextGame
		if nextRender.Before(next) {
			next = nextRender
		}
		timer.Reset(max(next.Sub(s.clock.Now()), 0))
	}
}

func (s *Scheduler) applyWrites(writes []WriteRequest) map[string]error {
	errs := make(map[string]error)
	for _, w := range writes {
		host, ok := s.robots[w.RobotID]
		if !ok {
			logrus.WithFields(logrus.Fields{"source": "sim", "robot": w.RobotID}).
				Debugf("dropping write %q for retired robot", w.Path)
			continue
		}
		path, err := ParseAttributePath(w.Path)
		if err == nil {
			err = host.ApplyWrite(path, w.Value)
		}
		if err != nil {
			logrus.WithFields(logrus.Fields{"source": "sim", "robot": w.RobotID}).Debugf("write %q failed: %v", w.Path, err)
			if _, seen := errs[w.RobotID]; !seen {
				errs[w.RobotID] = err
			}
			s.fault(w.RobotID, err)
		}
	}
	return errs
}

func (s *Scheduler) publish(tick int64, generation uint64, writeErrs map[string]error) int {
	if s.publisher == nil {
		return 0
	}
	for _, id := range s.robotOrder {
		update := TickUpdate{
			Tick:            tick,
			TickRate:        s.config.TickRate,
			WriteGeneration: generation,
			Events:          s.takeEvents(id),
		}
		if err := writeErrs[id]; err != nil {
			update.Error = err.Error()
		} else if snap, err := s.robots[id].Snapshot(); err != nil {
			update.Error = err.Error()
		} else {
			update.Snapshot = snap
		}
		s.publisher.Publish(id, update)
	}
	return len(s.robotOrder)
}

func (s *Scheduler) takeEvents(robotID string) []RobotEvent {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	events := s.pending[robotID]
	delete(s.pending, robotID)
	return events
}

func (s *Scheduler) removeFinished(finished map[int]bool) error {
	if len(finished) == 0 {
		return nil
	}
	kept := s.interactors[:0]
	var firstErr error
	for i, it := range s.interactors {
		if !finished[i] {
			kept = append(kept, it)
			continue
		}
		if err := it.TearDown(); err != nil && firstErr == nil {
			firstErr = err
		}
		if host, ok := it.(RobotHost); ok {
			s.retire(host.RobotID())
		}
	}
	for i := len(kept); i < len(s.interactors); i++ {
		s.interactors[i] = nil
	}
	s.interactors = kept
	return firstErr
}

func (s *Scheduler) retire(robotID string) {
	delete(s.robots, robotID)
	for i, id := range s.robotOrder {
		if id == robotID {
			s.robotOrder = append(s.robotOrder[:i], s.robotOrder[i+1:]...)
			break
		}
	}
	if s.publisher != nil {
		s.publisher.Retire(robotID)
	}
	logrus.WithFields(logrus.Fields{"source": "sim", "robot": robotID}).Infof("[tick %07d] robot retired", s.Tick())
}

func (s *Scheduler) fault(robotID string, err error) {
	if s.hooks.RobotFault != nil {
		s.hooks.RobotFault(s.Tick(), robotID, err)
	}
}

func (s *Scheduler) checkHeartbeats(now time.Time) error {
	if s.publisher == nil || s.config.HeartbeatTimeout <= 0 {
		return nil
	}
	for _, id := range s.publisher.Stalled(now, s.config.HeartbeatTimeout) {
		if s.stalled[id] {
			continue
		}
		s.stalled[id] = true
		err := &CommunicationsError{
			Robot: id,
			Op:    "heartbeat",
			Err:   fmt.Errorf("no tick consumed within %v", s.config.HeartbeatTimeout),
		}
		logrus.WithFields(logrus.Fields{"source": "sim", "robot": id}).Error(err)
		s.fault(id, err)
		if s.config.EndOnRobotDeath {
			return err
		}
	}
	return nil
}
