package devices

import (
	"math"
	"sort"

	"github.com/ojrac/opensimplex-go"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ev3sim/ev3sim/sim/numeric"
)

// Compass mode and calibration commands.
const (
	ModeCompass     = "COMPASS"
	CommandBeginCal = "BEGIN-CAL"
	CommandEndCal   = "END-CAL"
)

// CompassSensor reports a bearing relative to the heading captured at the
// end of the last calibration.
type CompassSensor struct {
	sensorBase
	points      int
	jitter      float64
	amplitude   float64
	noise       opensimplex.Noise
	vertical    float64
	counter     float64
	zero        float64
	calibrating bool
	snap        []float64
	bearing     float64
}

// NewCompassSensor creates a compass on an inN port.
func NewCompassSensor(spec Spec, env Env) (*CompassSensor, error) {
	sb, err := newSensorBase(spec, env, "ht-nxt-compass", ModeCompass)
	if err != nil {
		return nil, err
	}
	sb.commands = []string{CommandBeginCal, CommandEndCal}
	c := &CompassSensor{
		sensorBase: sb,
		points:     int(spec.option("points", 360)),
		jitter:     spec.option("jitter_degrees", 0.3),
		amplitude:  spec.option("noise_degrees", 2),
	}
	if c.points < 1 {
		c.points = 1
	}
	c.regenerate()
	return c, nil
}

// GenerateBias seeds the noise field and the snap set.
func (c *CompassSensor) GenerateBias() {
	c.noise = nil
	if c.env.Randomise {
		rng := c.rng()
		c.noise = opensimplex.New(int64(rng.Uint64()))
		c.vertical = rng.Float64() * 1000
	}
	c.regenerate()
}

// regenerate rebuilds the snap points, jittered when randomised.
func (c *CompassSensor) regenerate() {
	pts := numeric.EvenlySpaced(c.points, 0, 360, true)
	if c.env.Randomise && c.jitter > 0 {
		dist := distuv.Normal{Mu: 0, Sigma: c.jitter, Src: c.rng()}
		for i := range pts {
			pts[i] = numeric.Wrap(pts[i]+dist.Rand(), 0, 360)
		}
		sort.Float64s(pts)
	}
	c.snap = pts
}

// rawBearing is the world bearing in degrees: 0 facing +y, clockwise.
func (c *CompassSensor) rawBearing() float64 {
	return numeric.Wrap(90-c.mount.WorldAngle()*180/math.Pi, 0, 360)
}

// Calculate samples the bearing with noise and snaps it.
func (c *CompassSensor) Calculate() {
	v := c.rawBearing() - c.zero
	if c.noise != nil {
		v += c.amplitude * c.noise.Eval2(c.counter*0.05, c.vertical)
		c.counter++
	}
	c.bearing = numeric.CyclicNearestValue(c.snap, v, 0, 360)
}

// Bearing returns the last reading in degrees.
func (c *CompassSensor) Bearing() float64 { return c.bearing }

// Calibrating reports whether BEGIN-CAL is in effect.
func (c *CompassSensor) Calibrating() bool { return c.calibrating }

func (c *CompassSensor) ToObject() (map[string]any, error) {
	return c.object(0, int(math.Round(c.bearing))%360)
}

func (c *CompassSensor) ApplyWrite(attr, value string) error {
	if attr != "command" {
		return c.applyCommon(attr, value)
	}
	switch value {
	case CommandBeginCal:
		c.calibrating = true
	case CommandEndCal:
		c.zero = c.rawBearing()
		c.calibrating = false
		c.regenerate()
	default:
		return c.writeErr(attr, value, "want BEGIN-CAL or END-CAL")
	}
	return nil
}
