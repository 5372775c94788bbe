package devices

import (
	"fmt"
	"math"
	"slices"

	"github.com/ev3sim/ev3sim/sim"
	"github.com/ev3sim/ev3sim/sim/numeric"
)

// Motor commands accepted through the "command" attribute.
const (
	CommandRunForever  = "run-forever"
	CommandRunTimed    = "run-timed"
	CommandRunToRelPos = "run-to-rel-pos"
	CommandRunToAbsPos = "run-to-abs-pos"
	CommandStop        = "stop"
	CommandReset       = "reset"
)

// Motor states reported through the "state" attribute.
const (
	StateIdle    = ""
	StateRunning = "running"
	StateHolding = "holding"
)

var (
	motorCommands    = []string{CommandRunForever, CommandRunTimed, CommandRunToRelPos, CommandRunToAbsPos, CommandStop, CommandReset}
	motorStopActions = []string{"coast", "brake", "hold"}
)

// MotorConfig holds the per-kind constants of a motor.
type MotorConfig struct {
	Driver      string
	MaxSpeed    int     // counts (degrees) per second at 100%
	MaxForce    float64 // force at 100%
	SpeedPoints int     // snapping resolution when randomised
	ForceBand   float64 // multiplier drawn from [1-band, 1+band] when randomised
}

var (
	LargeMotorConfig  = MotorConfig{Driver: "lego-ev3-l-motor", MaxSpeed: 1050, MaxForce: 300, SpeedPoints: 41, ForceBand: 0.05}
	MediumMotorConfig = MotorConfig{Driver: "lego-ev3-m-motor", MaxSpeed: 1560, MaxForce: 200, SpeedPoints: 41, ForceBand: 0.05}
)

// Motor emulates an ev3dev tacho-motor. Writes set the *_sp attributes and
// commands start or stop it; Tick advances position and consumes the
// countdown of timed and positional runs.
type Motor struct {
	base
	cfg MotorConfig

	speedSP, positionSP, timeSP int
	polarity, stopAction        string
	command                     string

	state      string
	speedPct   float64 // commanded speed after snapping, [-100, 100]
	position   float64 // counts
	countdown  float64 // seconds left; <= 0 means unbounded
	target     float64
	hasTarget  bool
	multiplier float64
	snap       []float64
}

// NewMotor creates a motor on an outX port.
func NewMotor(spec Spec, env Env, cfg MotorConfig) (*Motor, error) {
	b, err := newMotorBase(spec, env)
	if err != nil {
		return nil, err
	}
	if f := spec.option("max_force", 0); f > 0 {
		cfg.MaxForce = f
	}
	m := &Motor{base: b, cfg: cfg, multiplier: 1}
	m.reset()
	return m, nil
}

func (m *Motor) reset() {
	m.speedSP, m.positionSP, m.timeSP = 0, 0, 0
	m.polarity, m.stopAction = "normal", "coast"
	m.command = ""
	m.position = 0
	m.speedPct = 0
	m.countdown = 0
	m.hasTarget = false
	m.state = StateIdle
}

// GenerateBias draws the force multiplier and builds the speed snap set.
func (m *Motor) GenerateBias() {
	m.multiplier = 1
	m.snap = nil
	if !m.env.Randomise {
		return
	}
	rng := m.rng()
	m.multiplier = 1 + (rng.Float64()*2-1)*m.cfg.ForceBand
	m.snap = numeric.EvenlySpaced(m.cfg.SpeedPoints, -100, 100, false)
}

// On runs the motor at speedPct percent of max speed. Zero stops it.
func (m *Motor) On(speedPct float64) error {
	if math.Abs(speedPct) > 100 {
		return fmt.Errorf("%s: speed %.1f%% out of range [-100, 100]", m.objName, speedPct)
	}
	if len(m.snap) > 0 {
		speedPct = numeric.NearestValue(m.snap, speedPct)
	}
	if speedPct == 0 {
		m.Off()
		return nil
	}
	m.speedPct = speedPct
	m.state = StateRunning
	return nil
}

// Off stops the motor and holds position.
func (m *Motor) Off() {
	m.speedPct = 0
	m.countdown = 0
	m.hasTarget = false
	m.state = StateHolding
}

// Force is the drive force the motor applies along its mount heading.
func (m *Motor) Force() float64 {
	f := m.speedPct / 100 * m.cfg.MaxForce * m.multiplier
	if m.polarity == "inversed" {
		f = -f
	}
	return f
}

// Multiplier returns the per-instance force multiplier.
func (m *Motor) Multiplier() float64 { return m.multiplier }

// State returns the ev3dev state string.
func (m *Motor) State() string { return m.state }

// Position returns the tacho count.
func (m *Motor) Position() float64 { return m.position }

func (m *Motor) speedCounts() float64 {
	return m.speedPct / 100 * float64(m.cfg.MaxSpeed)
}

// Tick advances the tacho count and the run countdown by dt seconds.
func (m *Motor) Tick(dt float64) {
	if m.state != StateRunning {
		return
	}
	m.position += m.speedCounts() * dt
	if m.countdown <= 0 {
		return
	}
	m.countdown -= dt
	if m.countdown <= 1e-9 {
		if m.hasTarget {
			m.position = m.target
		}
		m.Off()
	}
}

func (m *Motor) ToObject() (map[string]any, error) {
	speed := 0
	if m.state == StateRunning {
		speed = int(math.Round(m.speedCounts()))
	}
	return map[string]any{
		"address":       sim.AddressForPort(m.port),
		"command":       m.command,
		"commands":      append([]string(nil), motorCommands...),
		"count_per_rot": 360,
		"driver_name":   m.cfg.Driver,
		"duty_cycle":    int(math.Round(m.speedPct)),
		"max_speed":     m.cfg.MaxSpeed,
		"polarity":      m.polarity,
		"position":      int(math.Round(m.position)),
		"position_sp":   m.positionSP,
		"speed":         speed,
		"speed_sp":      m.speedSP,
		"state":         m.state,
		"stop_action":   m.stopAction,
		"time_sp":       m.timeSP,
	}, nil
}

func (m *Motor) ApplyWrite(attr, value string) error {
	switch attr {
	case "speed_sp":
		n, err := atoi(&m.base, attr, value)
		if err != nil {
			return err
		}
		if n < -m.cfg.MaxSpeed || n > m.cfg.MaxSpeed {
			return m.writeErr(attr, value, fmt.Sprintf("out of range [-%d, %d]", m.cfg.MaxSpeed, m.cfg.MaxSpeed))
		}
		m.speedSP = n
	case "position_sp":
		n, err := atoi(&m.base, attr, value)
		if err != nil {
			return err
		}
		m.positionSP = n
	case "time_sp":
		n, err := atoi(&m.base, attr, value)
		if err != nil {
			return err
		}
		if n < 0 {
			return m.writeErr(attr, value, "must be >= 0")
		}
		m.timeSP = n
	case "position":
		n, err := atoi(&m.base, attr, value)
		if err != nil {
			return err
		}
		m.position = float64(n)
	case "polarity":
		if value != "normal" && value != "inversed" {
			return m.writeErr(attr, value, "want normal or inversed")
		}
		m.polarity = value
	case "stop_action":
		if !slices.Contains(motorStopActions, value) {
			return m.writeErr(attr, value, fmt.Sprintf("want one of %v", motorStopActions))
		}
		m.stopAction = value
	case "command":
		return m.runCommand(value)
	case "address", "commands", "count_per_rot", "driver_name", "duty_cycle", "max_speed", "speed", "state":
		return m.writeErr(attr, value, "read-only attribute")
	default:
		return m.writeErr(attr, value, "unknown attribute")
	}
	return nil
}

func (m *Motor) runCommand(cmd string) error {
	pct := float64(m.speedSP) / float64(m.cfg.MaxSpeed) * 100
	switch cmd {
	case CommandRunForever:
		if err := m.On(pct); err != nil {
			return m.writeErr("command", cmd, err.Error())
		}
		m.countdown = 0
	case CommandRunTimed:
		if err := m.On(pct); err != nil {
			return m.writeErr("command", cmd, err.Error())
		}
		if m.state == StateRunning {
			m.countdown = float64(m.timeSP) / 1000
			if m.countdown <= 0 {
				m.Off()
			}
		}
	case CommandRunToRelPos:
		m.runTo(m.position + float64(m.positionSP))
	case CommandRunToAbsPos:
		m.runTo(float64(m.positionSP))
	case CommandStop:
		m.Off()
	case CommandReset:
		m.reset()
	default:
		return m.writeErr("command", cmd, fmt.Sprintf("unknown command, want one of %v", motorCommands))
	}
	m.command = cmd
	return nil
}

// runTo drives toward target at |speed_sp|, in the direction of the target.
func (m *Motor) runTo(target float64) {
	delta := target - m.position
	pct := math.Abs(float64(m.speedSP)) / float64(m.cfg.MaxSpeed) * 100
	if delta == 0 || pct == 0 {
		m.Off()
		return
	}
	if err := m.On(math.Copysign(pct, delta)); err != nil || m.state != StateRunning {
		m.Off()
		return
	}
	m.countdown = math.Abs(delta / m.speedCounts())
	m.target = target
	m.hasTarget = true
}
