// Package sim provides the simulation kernel for ev3sim.
//
// # Reading Guide
//
// Start with these files to understand the kernel:
//   - scheduler.go: the fixed-tick cycle (writes, snapshots, interactor ticks, physics, after-physics)
//   - write_queue.go: the bounded FIFO between robot programs and the scheduler
//   - interactor.go: the lifecycle every simulated participant implements
//   - snapshot.go: attribute paths and the per-tick update robots receive
//
// # Architecture
//
// The sim package defines interfaces and shared types; implementations live in
// sub-packages:
//   - sim/numeric/: snapping helpers used by device models
//   - sim/physics/: rigid-body world (circles, segments, queries, contact handlers)
//   - sim/screen/: headless colour compositor sampled by colour sensors
//   - sim/devices/: motor and sensor models plus the kind registry
//   - sim/robot/: robots, their devices and the robot interactor
//   - sim/ipc/: tick mailboxes, the in-process bridge and the comm relay
//   - sim/relay/: websocket transport for out-of-process robot programs
//   - sim/modes/: game modes (time limit, arena)
//   - sim/trace/: run recording
//   - sim/preset/: YAML run descriptions
//   - sim/runner/: wires one run together
//
// Robot programs are written against ev3/ (Brick, motors, sensors, comm)
// and the built-ins live in ev3/programs/.
//
// Sub-packages register device kinds via init() functions (see sim/devices).
//
// # Key Interfaces
//
//   - Interactor: one participant ticked by the scheduler
//   - RobotHost: an interactor that accepts writes and produces snapshots
//   - Publisher: delivers tick updates to robot programs
//   - Device, Ticker, Sensor: emulated peripherals
//   - World, ScreenObjectManager: physics and colour collaborators
package sim
