package sim

import (
	"image/color"

	"github.com/go-gl/mathgl/mgl64"
)

// Device type tags used in attribute paths and snapshots.
const (
	DeviceTypeMotor  = "tacho-motor"
	DeviceTypeSensor = "lego-sensor"
)

// Device is one emulated peripheral attached to a robot port.
type Device interface {
	// Type returns the device type tag ("tacho-motor", "lego-sensor").
	Type() string
	// Port returns the attachment port ("outB", "in4").
	Port() string
	// ObjName returns the object name used in attribute paths ("motor1").
	ObjName() string
	// ToObject snapshots readable attributes. Must not mutate state.
	ToObject() (map[string]any, error)
	// ApplyWrite mutates state or returns a *DeviceWriteError.
	ApplyWrite(attribute, value string) error
	// GenerateBias fixes per-instance randomised constants. Called once per spawn.
	GenerateBias()
}

// Ticker is implemented by devices with per-tick state (motor countdowns).
// Only called while the simulation is not paused.
type Ticker interface {
	Tick(dt float64)
}

// Sensor is implemented by devices that recompute readings after physics.
type Sensor interface {
	Calculate()
}

// World is the physics collaborator the scheduler steps.
type World interface {
	Step(dt float64)
	SetPaused(paused bool)
}

// ScreenObjectManager is the compositor collaborator: colour lookup for
// colour sensors and indicator visuals for devices.
type ScreenObjectManager interface {
	ColourAt(pos mgl64.Vec2) color.RGBA
	RegisterVisual(key string, v Visual)
	UnregisterVisual(key string)
}

// Visual is a drawable registered with the screen object manager.
type Visual interface {
	Contains(pos mgl64.Vec2) bool
	Fill() color.RGBA
	ZPos() float64
	// Sensed reports whether colour sensors can see this visual.
	Sensed() bool
}
