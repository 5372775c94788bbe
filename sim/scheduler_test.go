package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T, robots ...*fakeRobot) (*Scheduler, *fakeWorld, *fakePublisher) {
	t.Helper()
	world := &fakeWorld{}
	pub := newFakePublisher()
	s := NewScheduler(SchedulerConfig{TickRate: 60}, world, NewWriteQueue(64), pub)
	for _, r := range robots {
		s.Add(r)
	}
	return s, world, pub
}

func push(t *testing.T, q *WriteQueue, robot, path, value string) uint64 {
	t.Helper()
	gen, err := q.Push(context.Background(), WriteRequest{RobotID: robot, Path: path, Value: value})
	require.NoError(t, err)
	return gen
}

func TestNewScheduler_NilWorld_Panics(t *testing.T) {
	assert.PanicsWithValue(t, "Scheduler: world must not be nil", func() {
		NewScheduler(SchedulerConfig{}, nil, NewWriteQueue(1), nil)
	})
}

func TestNewScheduler_AppliesDefaults(t *testing.T) {
	s := NewScheduler(SchedulerConfig{}, &fakeWorld{}, NewWriteQueue(1), nil)
	cfg := s.Config()
	assert.Equal(t, 60, cfg.TickRate)
	assert.Equal(t, 30, cfg.RenderRate)
	assert.Equal(t, 1.0, cfg.TimeScale)
}

func TestScheduler_WriteBeforeRead_SameTick(t *testing.T) {
	// GIVEN a write enqueued before the cycle
	robot := newFakeRobot("Robot-0")
	s, _, pub := newTestScheduler(t, robot)
	gen := push(t, s.Writes(), "Robot-0", "fake obj0 value", "42")

	// WHEN the cycle runs
	require.NoError(t, s.Cycle())

	// THEN the tick-0 snapshot reflects it and carries its generation
	u := pub.last("Robot-0")
	assert.Equal(t, int64(0), u.Tick)
	assert.Equal(t, gen, u.WriteGeneration)
	attrs, ok := u.Snapshot.Get("fake", "obj0")
	require.True(t, ok)
	assert.Equal(t, "42", attrs["value"])
}

func TestScheduler_WriteAfterDrain_AppliesNextTick(t *testing.T) {
	// GIVEN an interactor that writes during its tick (after the drain)
	robot := newFakeRobot("Robot-0")
	robot.attrs["obj0"] = "initial"
	s, _, pub := newTestScheduler(t, robot)
	var lateGen uint64
	robot.tickFn = func(tick int64) (bool, error) {
		if tick == 0 {
			lateGen = push(t, s.Writes(), "Robot-0", "fake obj0 value", "late")
		}
		return false, nil
	}

	// WHEN two cycles run
	require.NoError(t, s.Cycle())
	first := pub.last("Robot-0")
	require.NoError(t, s.Cycle())
	second := pub.last("Robot-0")

	// THEN tick 0 does not see the late write and tick 1 does
	attrs, _ := first.Snapshot.Get("fake", "obj0")
	assert.Equal(t, "initial", attrs["value"])
	assert.Less(t, first.WriteGeneration, lateGen)

	attrs, _ = second.Snapshot.Get("fake", "obj0")
	assert.Equal(t, "late", attrs["value"])
	assert.Equal(t, lateGen, second.WriteGeneration)
}

func TestScheduler_WritesAppliedInFIFOOrder(t *testing.T) {
	robot := newFakeRobot("Robot-0")
	s, _, pub := newTestScheduler(t, robot)
	for _, v := range []string{"1", "2", "3"} {
		push(t, s.Writes(), "Robot-0", "fake obj0 value", v)
	}
	require.NoError(t, s.Cycle())
	attrs, _ := pub.last("Robot-0").Snapshot.Get("fake", "obj0")
	assert.Equal(t, "3", attrs["value"])
}

func TestScheduler_DeviceWriteError_BecomesRobotPayload(t *testing.T) {
	// GIVEN two robots, one issuing a bad write
	bad := newFakeRobot("Robot-0")
	good := newFakeRobot("Robot-1")
	s, _, pub := newTestScheduler(t, bad, good)
	push(t, s.Writes(), "Robot-0", "fake obj0 nonsense", "1")
	push(t, s.Writes(), "Robot-1", "fake obj0 value", "ok")

	// WHEN the cycle runs
	require.NoError(t, s.Cycle())

	// THEN only the offending robot's payload is an error
	badUpdate := pub.last("Robot-0")
	assert.Nil(t, badUpdate.Snapshot)
	assert.Contains(t, badUpdate.Error, "nonsense")
	assert.ErrorIs(t, badUpdate.Err(), ErrSnapshotFailed)

	goodUpdate := pub.last("Robot-1")
	assert.Empty(t, goodUpdate.Error)
	assert.NoError(t, goodUpdate.Err())
}

func TestScheduler_SnapshotError_FailsWholePayload(t *testing.T) {
	robot := newFakeRobot("Robot-0")
	robot.snapErr = errors.New("sensor0: unknown mode \"BOGUS\"")
	s, _, pub := newTestScheduler(t, robot)
	require.NoError(t, s.Cycle())
	u := pub.last("Robot-0")
	assert.Nil(t, u.Snapshot)
	assert.Equal(t, "sensor0: unknown mode \"BOGUS\"", u.Error)
}

func TestScheduler_MalformedPath_BecomesPayload(t *testing.T) {
	robot := newFakeRobot("Robot-0")
	s, _, pub := newTestScheduler(t, robot)
	push(t, s.Writes(), "Robot-0", "not-a-path", "1")
	require.NoError(t, s.Cycle())
	assert.Contains(t, pub.last("Robot-0").Error, "attribute path")
}

func TestScheduler_PhaseOrder(t *testing.T) {
	// Physics runs after every Tick and before every AfterPhysics
	robot := newFakeRobot("Robot-0")
	s, world, _ := newTestScheduler(t, robot)
	var stepsAtTick int
	robot.tickFn = func(int64) (bool, error) {
		stepsAtTick = world.steps
		return false, nil
	}
	require.NoError(t, s.Cycle())
	assert.Equal(t, 0, stepsAtTick)
	assert.Equal(t, 1, world.steps)
	assert.Equal(t, 1, robot.afters)
	assert.Equal(t, int64(1), s.Tick())
}

func TestScheduler_SortOrder_StableTotalOrder(t *testing.T) {
	var trace []string
	mode := newFakeRobot("mode")
	mode.sortKey, mode.traceName, mode.trace = SortOrderGameMode, "mode", &trace
	robotA := newFakeRobot("a")
	robotA.traceName, robotA.trace = "a", &trace
	robotB := newFakeRobot("b")
	robotB.traceName, robotB.trace = "b", &trace
	device := newFakeRobot("dev")
	device.sortKey, device.traceName, device.trace = SortOrderDevice, "dev", &trace

	s, _, _ := newTestScheduler(t, mode, robotA, robotB, device)
	require.NoError(t, s.Cycle())
	assert.Equal(t, []string{"dev:tick", "a:tick", "b:tick", "mode:tick"}, trace)
}

func TestScheduler_Pause_FreezesEverything(t *testing.T) {
	// GIVEN a running scheduler advanced two ticks
	robot := newFakeRobot("Robot-0")
	s, world, pub := newTestScheduler(t, robot)
	require.NoError(t, s.Cycle())
	require.NoError(t, s.Cycle())
	published := len(pub.updates["Robot-0"])

	// WHEN paused and cycled repeatedly, with a pending write
	s.Pause()
	push(t, s.Writes(), "Robot-0", "fake obj0 value", "x")
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Cycle())
	}

	// THEN nothing advanced and nothing was published
	assert.Equal(t, int64(2), s.Tick())
	assert.Equal(t, 2, world.steps)
	assert.Len(t, robot.ticks, 2)
	assert.Len(t, pub.updates["Robot-0"], published)
	assert.Equal(t, 1, s.Writes().Len())
	assert.True(t, world.paused)

	// AND resuming continues exactly from that state
	s.Resume()
	require.NoError(t, s.Cycle())
	assert.Equal(t, int64(3), s.Tick())
	assert.Equal(t, []int64{0, 1, 2}, robot.ticks)
	assert.Equal(t, int64(2), pub.last("Robot-0").Tick)
	assert.False(t, world.paused)
}

func TestScheduler_DoneInteractor_RemovedAtEndOfCycle(t *testing.T) {
	// GIVEN an interactor that finishes on tick 1
	quitter := newFakeRobot("Robot-0")
	quitter.tickFn = func(tick int64) (bool, error) { return tick == 1, nil }
	stayer := newFakeRobot("Robot-1")
	s, _, pub := newTestScheduler(t, quitter, stayer)

	require.NoError(t, s.Cycle())
	require.NoError(t, s.Cycle())

	// THEN it skipped after-physics on its final cycle, was torn down and retired
	assert.Equal(t, 1, quitter.afters)
	assert.True(t, quitter.torn)
	assert.Equal(t, []string{"Robot-0"}, pub.retired)
	assert.Len(t, s.Interactors(), 1)
	assert.Equal(t, 2, stayer.afters)

	// AND it no longer receives updates
	before := len(pub.updates["Robot-0"])
	require.NoError(t, s.Cycle())
	assert.Len(t, pub.updates["Robot-0"], before)
}

func TestScheduler_Halt_TearsDownAll(t *testing.T) {
	a := newFakeRobot("Robot-0")
	b := newFakeRobot("Robot-1")
	s, _, _ := newTestScheduler(t, a, b)
	a.tickFn = func(int64) (bool, error) {
		s.Halt()
		return false, nil
	}
	require.NoError(t, s.Cycle())
	assert.True(t, s.Done())
	assert.True(t, a.torn)
	assert.True(t, b.torn)
}

func TestScheduler_PanicInTick_IsFatal(t *testing.T) {
	robot := newFakeRobot("Robot-0")
	robot.tickFn = func(int64) (bool, error) { panic("boom") }
	s, _, _ := newTestScheduler(t, robot)

	err := s.Cycle()
	var fatal *SchedulerFatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, "tick", fatal.Phase)
	assert.Equal(t, int64(0), fatal.Tick)
	assert.NotEmpty(t, fatal.Stack)
	assert.Contains(t, fatal.Error(), "boom")
}

func TestScheduler_TickError_IsFatal(t *testing.T) {
	robot := newFakeRobot("Robot-0")
	robot.tickFn = func(int64) (bool, error) { return false, errors.New("rule violated") }
	s, _, _ := newTestScheduler(t, robot)
	var fatal *SchedulerFatalError
	require.ErrorAs(t, s.Cycle(), &fatal)
	assert.Equal(t, "tick", fatal.Phase)
}

func TestScheduler_QueueEvent_DeliveredOnce(t *testing.T) {
	robot := newFakeRobot("Robot-0")
	s, _, pub := newTestScheduler(t, robot)
	s.QueueEvent("Robot-0", "goal", map[string]any{"team": 1})

	require.NoError(t, s.Cycle())
	assert.Equal(t, []RobotEvent{{Name: "goal", Data: map[string]any{"team": 1}}}, pub.last("Robot-0").Events)

	require.NoError(t, s.Cycle())
	assert.Empty(t, pub.last("Robot-0").Events)
}

func TestScheduler_Render_HandlesPauseAndDispatches(t *testing.T) {
	robot := newFakeRobot("Robot-0")
	s, _, _ := newTestScheduler(t, robot)
	s.Events().Push(Event{Type: EventPause})
	s.Events().Push(Event{Type: "button", Data: map[string]any{"pressed": true}})

	require.NoError(t, s.Render())
	assert.True(t, s.Paused())
	require.Len(t, robot.events, 1)
	assert.Equal(t, "button", robot.events[0].Type)

	// render still runs while paused
	s.Events().Push(Event{Type: EventToggle})
	require.NoError(t, s.Render())
	assert.False(t, s.Paused())
}

func TestScheduler_Heartbeat_ReportsOnce(t *testing.T) {
	robot := newFakeRobot("Robot-0")
	pub := newFakePublisher()
	pub.stalled = []string{"Robot-0"}
	s := NewScheduler(SchedulerConfig{HeartbeatTimeout: time.Second}, &fakeWorld{}, NewWriteQueue(4), pub)
	s.Add(robot)

	require.NoError(t, s.Cycle())
	require.NoError(t, s.Cycle())
	assert.True(t, s.stalled["Robot-0"])
}

func TestScheduler_Heartbeat_FatalWhenConfigured(t *testing.T) {
	robot := newFakeRobot("Robot-0")
	pub := newFakePublisher()
	pub.stalled = []string{"Robot-0"}
	s := NewScheduler(SchedulerConfig{HeartbeatTimeout: time.Second, EndOnRobotDeath: true}, &fakeWorld{}, NewWriteQueue(4), pub)
	s.Add(robot)

	var comms *CommunicationsError
	require.ErrorAs(t, s.Cycle(), &comms)
	assert.Equal(t, "Robot-0", comms.Robot)
	assert.Equal(t, "heartbeat", comms.Op)
}

func TestScheduler_AfterCycleHook(t *testing.T) {
	robot := newFakeRobot("Robot-0")
	s, _, _ := newTestScheduler(t, robot)
	s.SetClock(&fakeClock{now: time.Unix(0, 0), step: time.Millisecond})
	var results []CycleResult
	s.SetHooks(Hooks{AfterCycle: func(r CycleResult) { results = append(results, r) }})
	push(t, s.Writes(), "Robot-0", "fake obj0 value", "1")

	require.NoError(t, s.Cycle())
	require.Len(t, results, 1)
	assert.Equal(t, int64(0), results[0].Tick)
	assert.Equal(t, 1, results[0].Writes)
	assert.Equal(t, 1, results[0].Published)
	assert.Equal(t, time.Millisecond, results[0].Duration)
}

func TestScheduler_Run_StopsWhenInteractorsFinish(t *testing.T) {
	robot := newFakeRobot("Robot-0")
	robot.tickFn = func(tick int64) (bool, error) { return tick >= 4, nil }
	world := &fakeWorld{}
	s := NewScheduler(SchedulerConfig{TickRate: 1000, RenderRate: 100}, world, NewWriteQueue(4), newFakePublisher())
	s.Add(robot)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Run(ctx))
	assert.Equal(t, int64(5), s.Tick())
	assert.True(t, robot.torn)
}

func TestScheduler_Run_MaxTicks(t *testing.T) {
	robot := newFakeRobot("Robot-0")
	s := NewScheduler(SchedulerConfig{TickRate: 1000, MaxTicks: 3}, &fakeWorld{}, NewWriteQueue(4), newFakePublisher())
	s.Add(robot)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Run(ctx))
	assert.Equal(t, int64(3), s.Tick())
}

func TestScheduler_Run_PacedByInjectedClock(t *testing.T) {
	// GIVEN a 1 Hz scheduler whose clock jumps a second on every read
	s := NewScheduler(SchedulerConfig{TickRate: 1, RenderRate: 1, MaxTicks: 3}, &fakeWorld{}, NewWriteQueue(4), newFakePublisher())
	s.Add(newFakeRobot("Robot-0"))
	s.SetClock(&fakeClock{now: time.Unix(0, 0), step: time.Second})

	// WHEN it runs with far less wall time than three real seconds
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// THEN the ticks follow the injected clock
	require.NoError(t, s.Run(ctx))
	assert.Equal(t, int64(3), s.Tick())
}

func TestScheduler_Run_ReportFatal(t *testing.T) {
	s := NewScheduler(SchedulerConfig{TickRate: 100}, &fakeWorld{}, NewWriteQueue(4), newFakePublisher())
	s.Add(newFakeRobot("Robot-0"))
	want := &RobotProcessError{Robot: "Robot-0", Err: errors.New("crashed")}
	s.ReportFatal(want)

	err := s.Run(context.Background())
	assert.Same(t, want, err)
}

func TestScheduler_Run_ContextCancel(t *testing.T) {
	s := NewScheduler(SchedulerConfig{TickRate: 100}, &fakeWorld{}, NewWriteQueue(4), newFakePublisher())
	s.Add(newFakeRobot("Robot-0"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Run(ctx), context.Canceled)
}

func TestScheduler_RobotFaultHook(t *testing.T) {
	// GIVEN a stalled robot that also sends a bad write
	robot := newFakeRobot("Robot-0")
	pub := newFakePublisher()
	pub.stalled = []string{"Robot-0"}
	s := NewScheduler(SchedulerConfig{HeartbeatTimeout: time.Second}, &fakeWorld{}, NewWriteQueue(4), pub)
	s.Add(robot)
	var faults []error
	s.SetHooks(Hooks{RobotFault: func(_ int64, id string, err error) {
		assert.Equal(t, "Robot-0", id)
		faults = append(faults, err)
	}})
	push(t, s.Writes(), "Robot-0", "fake obj0 colour", "red")

	// WHEN one cycle runs
	require.NoError(t, s.Cycle())

	// THEN both the write and the heartbeat are reported
	require.Len(t, faults, 2)
	var dwe *DeviceWriteError
	assert.ErrorAs(t, faults[0], &dwe)
	var comm *CommunicationsError
	assert.ErrorAs(t, faults[1], &comm)
}

func TestScheduler_Shutdown_RetiresRemaining(t *testing.T) {
	// GIVEN a run stopped by its tick limit
	robot := newFakeRobot("Robot-0")
	pub := newFakePublisher()
	s := NewScheduler(SchedulerConfig{TickRate: 1000, MaxTicks: 2}, &fakeWorld{}, NewWriteQueue(4), pub)
	s.Add(robot)
	require.NoError(t, s.Run(context.Background()))
	assert.False(t, robot.torn)

	// WHEN the scheduler is shut down
	require.NoError(t, s.Shutdown())

	// THEN the robot is torn down and retired
	assert.True(t, robot.torn)
	assert.Equal(t, []string{"Robot-0"}, pub.retired)
	assert.True(t, s.Done())
}
