package ev3

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/ev3sim/ev3sim/sim"
)

// Colours reported by ColorSensor.Color.
const (
	ColorNone = iota
	ColorBlack
	ColorBlue
	ColorGreen
	ColorYellow
	ColorRed
	ColorWhite
	ColorBrown
)

// sensor is a lego-sensor on one port. Reads switch the sensor to the mode
// they need first.
type sensor struct {
	brick *Brick
	port  string
}

func (b *Brick) sensor(driver, port string) (sensor, error) {
	p, err := b.find(sim.DeviceTypeSensor, driver, port)
	if err != nil {
		return sensor{}, err
	}
	return sensor{brick: b, port: p}, nil
}

func (s sensor) Port() string { return s.port }

// Mode is the sensor mode at the latest tick.
func (s sensor) Mode() (string, error) {
	return s.brick.readString(sim.DeviceTypeSensor, s.port, "mode")
}

// ensureMode writes mode if the sensor is not in it, then takes the tick
// that reflects the new mode.
func (s sensor) ensureMode(ctx context.Context, mode string) error {
	cur, err := s.Mode()
	if err != nil {
		return err
	}
	if cur == mode {
		return nil
	}
	if err := s.brick.write(ctx, sim.DeviceTypeSensor, s.port, "mode", mode); err != nil {
		return err
	}
	return s.brick.WaitForTick(ctx)
}

func (s sensor) values(ctx context.Context, mode string) ([]int, error) {
	if err := s.ensureMode(ctx, mode); err != nil {
		return nil, err
	}
	n, err := s.brick.readInt(sim.DeviceTypeSensor, s.port, "num_values")
	if err != nil {
		return nil, err
	}
	out := make([]int, n)
	for i := range out {
		if out[i], err = s.brick.readInt(sim.DeviceTypeSensor, s.port, "value"+strconv.Itoa(i)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s sensor) value(ctx context.Context, mode string) (int, error) {
	vs, err := s.values(ctx, mode)
	if err != nil {
		return 0, err
	}
	if len(vs) == 0 {
		return 0, fmt.Errorf("%s: no values in mode %s", s.port, mode)
	}
	return vs[0], nil
}

func (s sensor) command(ctx context.Context, cmd string) error {
	return s.brick.write(ctx, sim.DeviceTypeSensor, s.port, "command", cmd)
}

// ColorSensor reads reflected light, colour index or raw RGB.
type ColorSensor struct{ sensor }

func (b *Brick) ColorSensor(port string) (*ColorSensor, error) {
	s, err := b.sensor("lego-ev3-color", port)
	if err != nil {
		return nil, err
	}
	return &ColorSensor{s}, nil
}

// Reflected is the reflected light intensity, 0-100.
func (c *ColorSensor) Reflected(ctx context.Context) (int, error) {
	return c.value(ctx, "COL-REFLECT")
}

// Color is one of the Color* constants.
func (c *ColorSensor) Color(ctx context.Context) (int, error) {
	return c.value(ctx, "COL-COLOR")
}

// RGB is the raw reading scaled to 0-255 per channel.
func (c *ColorSensor) RGB(ctx context.Context) ([3]int, error) {
	vs, err := c.values(ctx, "RGB-RAW")
	if err != nil {
		return [3]int{}, err
	}
	if len(vs) != 3 {
		return [3]int{}, fmt.Errorf("%s: want 3 RGB values, got %d", c.port, len(vs))
	}
	var rgb [3]int
	for i, v := range vs {
		rgb[i] = int(math.Round(float64(v) * 255 / 1020))
	}
	return rgb, nil
}

// UltrasonicSensor measures distance to the nearest obstacle ahead.
type UltrasonicSensor struct{ sensor }

func (b *Brick) UltrasonicSensor(port string) (*UltrasonicSensor, error) {
	s, err := b.sensor("lego-ev3-us", port)
	if err != nil {
		return nil, err
	}
	return &UltrasonicSensor{s}, nil
}

// DistanceCM is the distance in centimetres, 255 when nothing is in range.
func (u *UltrasonicSensor) DistanceCM(ctx context.Context) (float64, error) {
	v, err := u.value(ctx, "US-DIST-CM")
	return float64(v) / 10, err
}

func (u *UltrasonicSensor) DistanceInches(ctx context.Context) (float64, error) {
	v, err := u.value(ctx, "US-DIST-IN")
	return float64(v) / 10, err
}

// InfraredSensor is the five-segment IR seeker.
type InfraredSensor struct{ sensor }

func (b *Brick) InfraredSensor(port string) (*InfraredSensor, error) {
	s, err := b.sensor("ht-nxt-ir-seek-v2", port)
	if err != nil {
		return nil, err
	}
	return &InfraredSensor{s}, nil
}

// Direction is 1-9 from left to right, 0 when no beacon is seen.
func (i *InfraredSensor) Direction(ctx context.Context) (int, error) {
	return i.value(ctx, "AC")
}

// Strengths are the five sub-sensor strengths, left to right.
func (i *InfraredSensor) Strengths(ctx context.Context) ([5]int, error) {
	vs, err := i.values(ctx, "AC-ALL")
	if err != nil {
		return [5]int{}, err
	}
	if len(vs) != 6 {
		return [5]int{}, fmt.Errorf("%s: want 6 values, got %d", i.port, len(vs))
	}
	var out [5]int
	copy(out[:], vs[1:])
	return out, nil
}

// CompassSensor reports a bearing relative to its calibrated zero.
type CompassSensor struct{ sensor }

func (b *Brick) CompassSensor(port string) (*CompassSensor, error) {
	s, err := b.sensor("ht-nxt-compass", port)
	if err != nil {
		return nil, err
	}
	return &CompassSensor{s}, nil
}

// Bearing is in degrees, [0, 360).
func (c *CompassSensor) Bearing(ctx context.Context) (int, error) {
	return c.value(ctx, "COMPASS")
}

func (c *CompassSensor) BeginCalibration(ctx context.Context) error {
	return c.command(ctx, "BEGIN-CAL")
}

// EndCalibration makes the current heading the new zero.
func (c *CompassSensor) EndCalibration(ctx context.Context) error {
	return c.command(ctx, "END-CAL")
}

// TouchSensor reports whether the robot's button is pressed.
type TouchSensor struct{ sensor }

func (b *Brick) TouchSensor(port string) (*TouchSensor, error) {
	s, err := b.sensor("lego-ev3-touch", port)
	if err != nil {
		return nil, err
	}
	return &TouchSensor{s}, nil
}

func (t *TouchSensor) Pressed(ctx context.Context) (bool, error) {
	v, err := t.value(ctx, "TOUCH")
	return v == 1, err
}
