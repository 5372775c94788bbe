package robot

import (
	"github.com/sirupsen/logrus"

	"github.com/ev3sim/ev3sim/sim"
	"github.com/ev3sim/ev3sim/sim/devices"
)

// EventButton is the input event that presses or releases a touch sensor.
// Data: "robot" (id), "port", "pressed" (bool).
const EventButton = "button"

// Program is the handle of a running robot program.
type Program interface {
	Done() <-chan struct{}
}

// driver is a device pushing its robot's body.
type driver interface {
	Force() float64
	Mount() devices.Mount
}

// Interactor binds a robot to the scheduler: motors push the body each tick,
// sensors recompute after physics, and the robot accepts writes and produces
// snapshots.
type Interactor struct {
	sim.BaseInteractor
	robot   *Robot
	dt      float64
	program Program
}

// NewInteractor creates the interactor for r at the given tick rate.
func NewInteractor(r *Robot, tickRate int) *Interactor {
	if tickRate <= 0 {
		panic("robot.NewInteractor: tickRate must be > 0")
	}
	return &Interactor{robot: r, dt: 1 / float64(tickRate)}
}

// Attach records the program driving this robot. The interactor finishes
// when the program does.
func (it *Interactor) Attach(p Program) { it.program = p }

// Robot returns the robot.
func (it *Interactor) Robot() *Robot { return it.robot }

func (it *Interactor) RobotID() string { return it.robot.ID }

func (it *Interactor) SortKey() int { return sim.SortOrderRobot }

func (it *Interactor) ApplyWrite(path sim.AttributePath, value string) error {
	d, err := it.robot.Resolve(path.DeviceType, path.Object)
	if err != nil {
		return err
	}
	return d.ApplyWrite(path.Attribute, value)
}

func (it *Interactor) Snapshot() (sim.Snapshot, error) {
	return it.robot.Snapshot()
}

// Tick applies motor forces and advances device countdowns.
func (it *Interactor) Tick(int64) (bool, error) {
	if it.program != nil {
		select {
		case <-it.program.Done():
			logrus.WithFields(logrus.Fields{"source": "sim", "robot": it.robot.ID}).Info("program exited")
			return true, nil
		default:
		}
	}
	body := it.robot.Body
	forward := body.Forward()
	// wheels do not slide sideways
	body.Velocity = forward.Mul(body.Velocity.Dot(forward))
	for _, port := range it.robot.ports {
		d := it.robot.devices[port]
		if m, ok := d.(driver); ok {
			if f := m.Force(); f != 0 {
				mount := m.Mount()
				body.ApplyForceAtWorldPoint(mount.Forward().Mul(f), mount.WorldPosition())
			}
		}
		if t, ok := d.(sim.Ticker); ok {
			t.Tick(it.dt)
		}
	}
	return false, nil
}

// AfterPhysics recomputes sensor readings against the stepped world.
func (it *Interactor) AfterPhysics() error {
	for _, port := range it.robot.ports {
		if s, ok := it.robot.devices[port].(sim.Sensor); ok {
			s.Calculate()
		}
	}
	if it.robot.chassis != nil {
		it.robot.chassis.Centre = it.robot.Body.Position
	}
	return nil
}

// HandleEvent routes button events addressed to this robot.
func (it *Interactor) HandleEvent(ev sim.Event) error {
	if ev.Type != EventButton || ev.Data["robot"] != it.robot.ID {
		return nil
	}
	port, _ := ev.Data["port"].(string)
	b, ok := it.robot.devices[port].(*devices.Button)
	if !ok {
		logrus.WithFields(logrus.Fields{"source": "sim", "robot": it.robot.ID}).Warnf("button event for %q: no touch sensor there", port)
		return nil
	}
	pressed, _ := ev.Data["pressed"].(bool)
	b.Press(pressed)
	return nil
}

func (it *Interactor) TearDown() error {
	it.robot.Remove()
	return nil
}
