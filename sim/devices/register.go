// register.go wires the built-in kinds into the registry. Presets name a kind
// by these keys.
package devices

import "github.com/ev3sim/ev3sim/sim"

func init() {
	Register("LargeMotor", func(s Spec, e Env) (sim.Device, error) { return NewMotor(s, e, LargeMotorConfig) })
	Register("MediumMotor", func(s Spec, e Env) (sim.Device, error) { return NewMotor(s, e, MediumMotorConfig) })
	Register("ColorSensor", func(s Spec, e Env) (sim.Device, error) { return NewColourSensor(s, e) })
	Register("UltrasonicSensor", func(s Spec, e Env) (sim.Device, error) { return NewUltrasonicSensor(s, e) })
	Register("InfraredSensor", func(s Spec, e Env) (sim.Device, error) { return NewInfraredSensor(s, e) })
	Register("CompassSensor", func(s Spec, e Env) (sim.Device, error) { return NewCompassSensor(s, e) })
	Register("Button", func(s Spec, e Env) (sim.Device, error) { return NewButton(s, e) })
}
