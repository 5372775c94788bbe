package ev3

import (
	"context"
	"math"
	"strconv"

	"github.com/ev3sim/ev3sim/sim"
)

// Motor states.
const (
	MotorRunning = "running"
	MotorHolding = "holding"
)

// Motor drives one tacho-motor.
type Motor struct {
	brick *Brick
	port  string
}

// LargeMotor finds a large motor on port ("" for the first one).
func (b *Brick) LargeMotor(port string) (*Motor, error) {
	return b.motor("lego-ev3-l-motor", port)
}

// MediumMotor finds a medium motor on port ("" for the first one).
func (b *Brick) MediumMotor(port string) (*Motor, error) {
	return b.motor("lego-ev3-m-motor", port)
}

func (b *Brick) motor(driver, port string) (*Motor, error) {
	p, err := b.find(sim.DeviceTypeMotor, driver, port)
	if err != nil {
		return nil, err
	}
	return &Motor{brick: b, port: p}, nil
}

func (m *Motor) Port() string { return m.port }

func (m *Motor) set(ctx context.Context, attr string, v int) error {
	return m.brick.write(ctx, sim.DeviceTypeMotor, m.port, attr, strconv.Itoa(v))
}

func (m *Motor) command(ctx context.Context, cmd string) error {
	return m.brick.write(ctx, sim.DeviceTypeMotor, m.port, "command", cmd)
}

func (m *Motor) SetSpeedSP(ctx context.Context, v int) error { return m.set(ctx, "speed_sp", v) }
func (m *Motor) SetTimeSP(ctx context.Context, ms int) error { return m.set(ctx, "time_sp", ms) }
func (m *Motor) SetPositionSP(ctx context.Context, v int) error { return m.set(ctx, "position_sp", v) }

func (m *Motor) SetStopAction(ctx context.Context, action string) error {
	return m.brick.write(ctx, sim.DeviceTypeMotor, m.port, "stop_action", action)
}

// SetInversed flips the motor's polarity.
func (m *Motor) SetInversed(ctx context.Context, inversed bool) error {
	polarity := "normal"
	if inversed {
		polarity = "inversed"
	}
	return m.brick.write(ctx, sim.DeviceTypeMotor, m.port, "polarity", polarity)
}

func (m *Motor) RunForever(ctx context.Context) error { return m.command(ctx, "run-forever") }
func (m *Motor) RunTimed(ctx context.Context) error { return m.command(ctx, "run-timed") }
func (m *Motor) RunToRelPos(ctx context.Context) error { return m.command(ctx, "run-to-rel-pos") }
func (m *Motor) RunToAbsPos(ctx context.Context) error { return m.command(ctx, "run-to-abs-pos") }
func (m *Motor) Stop(ctx context.Context) error { return m.command(ctx, "stop") }
func (m *Motor) Reset(ctx context.Context) error { return m.command(ctx, "reset") }

// On runs the motor at pct percent of its maximum speed until stopped.
func (m *Motor) On(ctx context.Context, pct float64) error {
	maxSpeed, err := m.MaxSpeed()
	if err != nil {
		return err
	}
	if err := m.SetSpeedSP(ctx, int(math.Round(pct/100*float64(maxSpeed)))); err != nil {
		return err
	}
	return m.RunForever(ctx)
}

// OnForSeconds runs the motor at pct for seconds of simulated time, then
// waits for the run to end.
func (m *Motor) OnForSeconds(ctx context.Context, pct, seconds float64) error {
	maxSpeed, err := m.MaxSpeed()
	if err != nil {
		return err
	}
	if err := m.SetSpeedSP(ctx, int(math.Round(pct/100*float64(maxSpeed)))); err != nil {
		return err
	}
	if err := m.SetTimeSP(ctx, int(math.Round(seconds*1000))); err != nil {
		return err
	}
	if err := m.RunTimed(ctx); err != nil {
		return err
	}
	return m.brick.Sleep(ctx, seconds)
}

// State is the motor state at the latest tick: "running", "holding" or "".
func (m *Motor) State() (string, error) {
	return m.brick.readString(sim.DeviceTypeMotor, m.port, "state")
}

// IsRunning reports the running state at the latest tick.
func (m *Motor) IsRunning() bool {
	s, err := m.State()
	return err == nil && s == MotorRunning
}

// Position is the tacho count in degrees.
func (m *Motor) Position() (int, error) {
	return m.brick.readInt(sim.DeviceTypeMotor, m.port, "position")
}

// Speed is the current speed in degrees per second.
func (m *Motor) Speed() (int, error) {
	return m.brick.readInt(sim.DeviceTypeMotor, m.port, "speed")
}

func (m *Motor) MaxSpeed() (int, error) {
	return m.brick.readInt(sim.DeviceTypeMotor, m.port, "max_speed")
}
