// Package runner assembles a run from a preset: it owns the randomiser,
// physics world, canvas, mailboxes, relay and scheduler, starts every robot
// program and tears everything down when the run ends.
package runner

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/sirupsen/logrus"

	"github.com/ev3sim/ev3sim/ev3"
	"github.com/ev3sim/ev3sim/ev3/programs"
	"github.com/ev3sim/ev3sim/sim"
	"github.com/ev3sim/ev3sim/sim/ipc"
	"github.com/ev3sim/ev3sim/sim/modes"
	"github.com/ev3sim/ev3sim/sim/physics"
	"github.com/ev3sim/ev3sim/sim/preset"
	"github.com/ev3sim/ev3sim/sim/relay"
	"github.com/ev3sim/ev3sim/sim/robot"
	"github.com/ev3sim/ev3sim/sim/screen"
	"github.com/ev3sim/ev3sim/sim/trace"
)

// EventGoal is the robot event queued to every robot when a goal is scored.
// Data: "side", "score".
const EventGoal = "goal"

const writeQueueCapacity = 256

var floorColour = color.RGBA{R: 0xf0, G: 0xf0, B: 0xf0, A: 0xff}

// Config describes one run.
type Config struct {
	Preset    *preset.Preset
	Scheduler sim.SchedulerConfig // usually Preset.SchedulerConfig() with flag overrides
	Trace     trace.TraceConfig
	CSVDir    string // export the trace here after the run, empty = no export
	Listen    string // relay websocket address, empty = no relay server
}

// Result summarises a finished run.
type Result struct {
	Ticks   int64
	Robots  []string
	Score   map[string]int // nil without an arena
	Faults  []error
	Summary *trace.TraceSummary
}

// Runner is an assembled run.
type Runner struct {
	cfg Config

	randomiser *sim.Randomiser
	world      *physics.World
	canvas     *screen.Canvas
	bus        *ipc.Relay
	hub        *ipc.Hub
	writes     *sim.WriteQueue
	sched      *sim.Scheduler
	arena      *modes.Arena
	recorder   *trace.Recorder

	robots []*robot.Interactor
	starts []func(ctx context.Context) // program launchers, by spawn index

	server   *relay.Server
	listener net.Listener
	http     *http.Server

	mu        sync.Mutex
	faults    []error
	processes []*ipc.Process
}

// New builds every component of the run. Nothing ticks until Run.
func New(ctx context.Context, cfg Config) (*Runner, error) {
	if cfg.Preset == nil {
		return nil, errors.New("runner: preset required")
	}
	if !trace.IsValidTraceLevel(string(cfg.Trace.Level)) {
		return nil, fmt.Errorf("unknown trace level %q; valid: none, events, cycles", cfg.Trace.Level)
	}
	p := cfg.Preset
	recorder, err := trace.NewRecorder(ctx, cfg.Trace)
	if err != nil {
		return nil, fmt.Errorf("opening trace store: %w", err)
	}

	r := &Runner{
		cfg:        cfg,
		randomiser: sim.NewRandomiser(p.Seed),
		world:      physics.NewWorld(),
		canvas:     screen.NewCanvas(floorColour),
		bus:        ipc.NewRelay(),
		writes:     sim.NewWriteQueue(writeQueueCapacity),
		recorder:   recorder,
	}
	r.hub = ipc.NewHub(r.bus)
	r.sched = sim.NewScheduler(cfg.Scheduler, r.world, r.writes, r.hub)
	r.cfg.Scheduler = r.sched.Config()
	r.sched.SetHooks(sim.Hooks{
		AfterCycle: r.recordCycle,
		RobotFault: r.robotFault,
	})

	var beacons func() []mgl64.Vec2
	if p.Arena != nil {
		r.arena = modes.NewArena(p.Arena.ArenaConfig(), r.world, r.canvas)
		r.arena.OnGoal = r.goal
		r.sched.Add(r.arena)
		beacons = r.arena.Beacons
	}
	if p.TimeLimit > 0 {
		r.sched.Add(modes.NewTimeLimit(p.TimeLimit, r.cfg.Scheduler.TickRate, r.sched.Halt))
	}

	needsRelay := cfg.Listen != ""
	progs := make([]programs.Program, len(p.Robots))
	for i, spec := range p.Robots {
		if spec.Program == programs.Remote {
			if cfg.Listen == "" {
				r.recorder.Close()
				return nil, fmt.Errorf("robot[%d] is remote but no listen address is set", i)
			}
			continue
		}
		program, ok := programs.Lookup(spec.Program)
		if !ok {
			r.recorder.Close()
			return nil, fmt.Errorf("robot[%d]: unknown program %q; valid: %s, %s", i, spec.Program, strings.Join(programs.Names(), ", "), programs.Remote)
		}
		progs[i] = program
	}
	if needsRelay {
		r.server = relay.NewServer(relay.ServerConfig{Hub: r.hub, Writes: r.writes, Relay: r.bus, Sink: r.recordLog})
	}

	for i := range p.Robots {
		p.ApplyPortSeeds(r.randomiser, i, i)
		rb, err := robot.Build(p.RobotSpec(i), i, robot.Deps{
			World:      r.world,
			Screen:     r.canvas,
			Randomiser: r.randomiser,
			Randomise:  p.RandomiseDevices(),
			Beacons:    beacons,
		})
		if err != nil {
			r.recorder.Close()
			return nil, fmt.Errorf("spawning robot[%d]: %w", i, err)
		}
		it := robot.NewInteractor(rb, r.cfg.Scheduler.TickRate)
		box := r.hub.Register(rb.ID)
		r.sched.Add(it)
		r.robots = append(r.robots, it)
		r.starts = append(r.starts, r.launcher(it, box, p.Robots[i], progs[i]))
	}

	if needsRelay {
		ln, err := net.Listen("tcp", cfg.Listen)
		if err != nil {
			r.recorder.Close()
			return nil, fmt.Errorf("relay listen: %w", err)
		}
		r.listener = ln
		r.http = &http.Server{Handler: r.server.Handler(), ReadHeaderTimeout: 10 * time.Second}
	}

	logrus.WithField("source", "sim").Infof("preset %q: %d robots, seed %d, %d Hz", p.Name, len(r.robots), p.Seed, r.cfg.Scheduler.TickRate)
	return r, nil
}

// launcher returns the function that starts robot it's program. Remote
// robots are reserved on the relay server immediately.
func (r *Runner) launcher(it *robot.Interactor, box *ipc.Mailbox, spec preset.RobotSpec, program programs.Program) func(ctx context.Context) {
	rb := it.Robot()
	if spec.Program == programs.Remote {
		// reserved before the listener serves so an early client is not refused
		it.Attach(r.server.Expect(rb.ID, rb.Address))
		return func(context.Context) {
			logrus.WithFields(logrus.Fields{"source": "sim", "robot": rb.ID}).Info("waiting for remote program")
		}
	}
	args := programs.Args(spec.Args)
	return func(ctx context.Context) {
		bridge := ipc.NewLocalBridge(rb.ID, rb.Address, box, r.writes, r.bus, r.recordLog)
		proc := ipc.Launch(ctx, rb.ID, func(ctx context.Context) error {
			b, err := ev3.Connect(ctx, bridge)
			if err != nil {
				return retired(err)
			}
			return retired(program(ctx, b, args))
		}, r.programFault(rb.ID))
		it.Attach(proc)
		r.mu.Lock()
		r.processes = append(r.processes, proc)
		r.mu.Unlock()
	}
}

// retired drops the errors a program sees when its robot is retired
// underneath it.
func retired(err error) error {
	if errors.Is(err, ipc.ErrMailboxClosed) || errors.Is(err, sim.ErrQueueClosed) {
		return nil
	}
	return err
}

// Scheduler exposes the scheduler, e.g. for pause events.
func (r *Runner) Scheduler() *sim.Scheduler { return r.sched }

// Arena is the soccer arena, nil when the preset has none.
func (r *Runner) Arena() *modes.Arena { return r.arena }

// Robots lists the robot interactors in spawn order.
func (r *Runner) Robots() []*robot.Interactor { return r.robots }

// Addr is the relay listen address, empty without a relay server.
func (r *Runner) Addr() string {
	if r.listener == nil {
		return ""
	}
	return r.listener.Addr().String()
}

// Run starts every program and ticks until the run ends. Cancelling ctx
// is a clean stop.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if r.http != nil {
		go func() {
			if err := r.http.Serve(r.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logrus.WithField("source", "sim").Errorf("relay server: %v", err)
			}
		}()
		logrus.WithField("source", "sim").Infof("relay listening on ws://%s/robot", r.Addr())
	}
	for _, start := range r.starts {
		start(runCtx)
	}

	runErr := r.sched.Run(runCtx)
	if ctx.Err() != nil && errors.Is(runErr, ctx.Err()) {
		logrus.WithField("source", "sim").Infof("[tick %07d] run interrupted", r.sched.Tick())
		runErr = nil
	}
	var fatal *sim.SchedulerFatalError
	if errors.As(runErr, &fatal) && len(fatal.Stack) > 0 {
		logrus.WithFields(logrus.Fields{"source": "sim", "stack": string(fatal.Stack)}).Error(fatal)
	}
	if err := r.sched.Shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	r.stop(cancel)

	result := &Result{Ticks: r.sched.Tick()}
	for _, it := range r.robots {
		result.Robots = append(result.Robots, it.RobotID())
	}
	if r.arena != nil {
		result.Score = r.arena.Score()
	}
	r.mu.Lock()
	result.Faults = append(result.Faults, r.faults...)
	r.mu.Unlock()

	summary, err := trace.Summarize(context.WithoutCancel(ctx), r.recorder.Store())
	if err != nil {
		logrus.WithField("source", "sim").Warnf("trace summary: %v", err)
	}
	result.Summary = summary
	if r.cfg.CSVDir != "" && r.recorder.Store() != nil {
		if err := trace.ExportCSV(context.WithoutCancel(ctx), r.recorder.Store(), r.cfg.CSVDir); err != nil && runErr == nil {
			runErr = fmt.Errorf("exporting trace: %w", err)
		}
	}
	if err := r.recorder.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return result, runErr
}

// stop cancels programs, releases every blocked robot and waits for the
// programs to return.
func (r *Runner) stop(cancel context.CancelFunc) {
	cancel()
	r.hub.Close()
	r.writes.Close()
	if r.server != nil {
		r.server.Close()
	}
	if r.http != nil {
		ctx, done := context.WithTimeout(context.Background(), time.Second)
		defer done()
		r.http.Shutdown(ctx)
	}
	r.mu.Lock()
	procs := append([]*ipc.Process(nil), r.processes...)
	r.mu.Unlock()
	for _, p := range procs {
		<-p.Done()
	}
}

func (r *Runner) recordCycle(c sim.CycleResult) {
	r.recorder.RecordCycle(trace.CycleRecord{
		Tick:           c.Tick,
		Writes:         c.Writes,
		Published:      c.Published,
		DurationMicros: c.Duration.Microseconds(),
		BudgetMicros:   c.Budget.Microseconds(),
	})
}

func (r *Runner) recordLog(robotID string, tick int64, msg string) {
	r.recorder.RecordLog(trace.LogRecord{Tick: tick, Robot: robotID, Message: msg})
}

func (r *Runner) robotFault(tick int64, robotID string, err error) {
	kind := trace.FaultWrite
	var comm *sim.CommunicationsError
	if errors.As(err, &comm) && comm.Op == "heartbeat" {
		kind = trace.FaultHeartbeat
	}
	r.recorder.RecordFault(trace.FaultRecord{Tick: tick, Robot: robotID, Kind: kind, Message: err.Error()})
}

// programFault records a failed program and ends the run when robot
// deaths are fatal.
func (r *Runner) programFault(robotID string) func(error) {
	return func(err error) {
		r.recorder.RecordFault(trace.FaultRecord{Tick: r.sched.Tick(), Robot: robotID, Kind: trace.FaultProgram, Message: err.Error()})
		r.mu.Lock()
		r.faults = append(r.faults, err)
		r.mu.Unlock()
		if r.cfg.Scheduler.EndOnRobotDeath {
			r.sched.ReportFatal(err)
		}
	}
}

// goal tells every robot about a goal with its next tick update.
func (r *Runner) goal(side string, score map[string]int) {
	for _, it := range r.robots {
		r.sched.QueueEvent(it.RobotID(), EventGoal, map[string]any{"side": side, "score": score})
	}
}

// Run assembles and runs cfg in one call.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	r, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx)
}
