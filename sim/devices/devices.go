// Package devices emulates EV3 motors and sensors. Each device is mounted on
// its robot's physics body, keeps its own state, reports it as an attribute
// map and accepts attribute writes.
package devices

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strconv"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/ev3sim/ev3sim/sim"
	"github.com/ev3sim/ev3sim/sim/physics"
)

// Mount fixes a device to a body.
type Mount struct {
	Body   *physics.Body
	Offset mgl64.Vec2 // body-local position
	Angle  float64    // heading relative to the body, radians
}

// WorldPosition is the mount point in world coordinates.
func (m Mount) WorldPosition() mgl64.Vec2 {
	if m.Body == nil {
		return m.Offset
	}
	return m.Body.LocalToWorld(m.Offset)
}

// WorldAngle is the device heading in world coordinates.
func (m Mount) WorldAngle() float64 {
	if m.Body == nil {
		return m.Angle
	}
	return m.Body.Angle + m.Angle
}

// Forward is the unit vector the device faces.
func (m Mount) Forward() mgl64.Vec2 {
	a := m.WorldAngle()
	return mgl64.Vec2{math.Cos(a), math.Sin(a)}
}

// Env carries the collaborators a device may use. Any field may be nil for
// devices that do not need it.
type Env struct {
	RobotID   string
	Body      *physics.Body
	World     *physics.World
	Screen    sim.ScreenObjectManager
	RNG       *rand.Rand // the port's RNG
	Randomise bool
	// Beacons lists infrared emitter positions.
	Beacons func() []mgl64.Vec2
}

// Detacher is implemented by devices holding resources (visuals) that must be
// released when their robot leaves the run.
type Detacher interface {
	Detach()
}

type base struct {
	typ     string
	port    string
	objName string
	mount   Mount
	env     Env
}

func (b *base) Type() string    { return b.typ }
func (b *base) Port() string    { return b.port }
func (b *base) ObjName() string { return b.objName }

// Mount returns where the device sits on its body.
func (b *base) Mount() Mount { return b.mount }

func (b *base) writeErr(attr, value, reason string) error {
	return &sim.DeviceWriteError{Device: b.objName, Attribute: attr, Value: value, Reason: reason}
}

func (b *base) rng() *rand.Rand {
	if b.env.RNG == nil {
		b.env.RNG = rand.New(rand.NewPCG(0, 0))
	}
	return b.env.RNG
}

// MotorPortIndex maps outA..outD to 0..3.
func MotorPortIndex(port string) (int, error) {
	if len(port) == 4 && port[:3] == "out" && port[3] >= 'A' && port[3] <= 'D' {
		return int(port[3] - 'A'), nil
	}
	return 0, fmt.Errorf("invalid motor port %q: want outA..outD", port)
}

// SensorPortIndex maps in1..in4 to 0..3.
func SensorPortIndex(port string) (int, error) {
	if len(port) == 3 && port[:2] == "in" && port[2] >= '1' && port[2] <= '4' {
		return int(port[2] - '1'), nil
	}
	return 0, fmt.Errorf("invalid sensor port %q: want in1..in4", port)
}

func newMotorBase(spec Spec, env Env) (base, error) {
	idx, err := MotorPortIndex(spec.Port)
	if err != nil {
		return base{}, err
	}
	return base{
		typ:     sim.DeviceTypeMotor,
		port:    spec.Port,
		objName: "motor" + strconv.Itoa(idx),
		mount:   Mount{Body: env.Body, Offset: spec.Position, Angle: spec.Rotation},
		env:     env,
	}, nil
}

// sensorBase holds the ev3dev lego-sensor attributes shared by every sensor.
type sensorBase struct {
	base
	driver   string
	modes    []string
	commands []string
	mode     string
}

func newSensorBase(spec Spec, env Env, driver string, modes ...string) (sensorBase, error) {
	idx, err := SensorPortIndex(spec.Port)
	if err != nil {
		return sensorBase{}, err
	}
	return sensorBase{
		base: base{
			typ:     sim.DeviceTypeSensor,
			port:    spec.Port,
			objName: "sensor" + strconv.Itoa(idx),
			mount:   Mount{Body: env.Body, Offset: spec.Position, Angle: spec.Rotation},
			env:     env,
		},
		driver: driver,
		modes:  modes,
		mode:   modes[0],
	}, nil
}

// Mode returns the active mode.
func (s *sensorBase) Mode() string { return s.mode }

func (s *sensorBase) hasMode(m string) bool {
	return slices.Contains(s.modes, m)
}

// applyCommon handles mode writes and rejects everything else; sensors with
// further writable attributes check those first.
func (s *sensorBase) applyCommon(attr, value string) error {
	switch attr {
	case "mode":
		if !s.hasMode(value) {
			return s.writeErr(attr, value, fmt.Sprintf("unknown mode, want one of %v", s.modes))
		}
		s.mode = value
		return nil
	case "address", "driver_name", "modes", "num_values", "decimals", "commands":
		return s.writeErr(attr, value, "read-only attribute")
	}
	return s.writeErr(attr, value, "unknown attribute")
}

// object renders the shared attributes plus value0..valueN.
func (s *sensorBase) object(decimals int, values ...int) (map[string]any, error) {
	if !s.hasMode(s.mode) {
		return nil, fmt.Errorf("%s: unknown mode %q", s.objName, s.mode)
	}
	obj := map[string]any{
		"address":     sim.AddressForPort(s.port),
		"driver_name": s.driver,
		"mode":        s.mode,
		"modes":       append([]string(nil), s.modes...),
		"num_values":  len(values),
		"decimals":    decimals,
	}
	if len(s.commands) > 0 {
		obj["commands"] = append([]string(nil), s.commands...)
	}
	for i, v := range values {
		obj["value"+strconv.Itoa(i)] = v
	}
	return obj, nil
}

func atoi(b *base, attr, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, b.writeErr(attr, value, "not an integer")
	}
	return n, nil
}
