package devices

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ev3sim/ev3sim/sim/numeric"
)

// Infrared seeker modes.
const (
	ModeInfraredAC    = "AC"
	ModeInfraredACAll = "AC-ALL"
)

const (
	irSubSensors  = 5
	irMaxStrength = 9
	irLostTotal   = 4
)

// irAngles are the sub-sensor headings relative to the mount, radians.
var irAngles = [irSubSensors]float64{-2 * math.Pi / 3, -math.Pi / 3, 0, math.Pi / 3, 2 * math.Pi / 3}

// InfraredSensor is a five-segment IR seeker tracking the nearest beacon.
type InfraredSensor struct {
	sensorBase
	maxDistance float64
	width       float64 // angular reach of one sub-sensor, radians
	distBias    [irSubSensors]float64
	strengths   [irSubSensors]int
	direction   int
}

// NewInfraredSensor creates an IR seeker on an inN port.
func NewInfraredSensor(spec Spec, env Env) (*InfraredSensor, error) {
	sb, err := newSensorBase(spec, env, "ht-nxt-ir-seek-v2", ModeInfraredAC, ModeInfraredACAll)
	if err != nil {
		return nil, err
	}
	s := &InfraredSensor{
		sensorBase:  sb,
		maxDistance: spec.option("max_distance", 120),
		width:       spec.option("width_degrees", 60) * math.Pi / 180,
	}
	for i := range s.distBias {
		s.distBias[i] = 1
	}
	return s, nil
}

// GenerateBias draws a distance scale per sub-sensor.
func (s *InfraredSensor) GenerateBias() {
	for i := range s.distBias {
		s.distBias[i] = 1
	}
	if !s.env.Randomise {
		return
	}
	dist := distuv.Normal{Mu: 1, Sigma: 0.05, Src: s.rng()}
	for i := range s.distBias {
		s.distBias[i] = math.Max(0.5, dist.Rand())
	}
}

// SubStrength is one sub-sensor's reading for a beacon at distance d and
// relative angle diff: quadratic falloff in distance, linear in angle.
func SubStrength(d, diff, maxDistance, width float64) int {
	if d >= maxDistance || math.Abs(diff) >= width {
		return 0
	}
	r := d / maxDistance
	v := irMaxStrength * (1 - r*r) * (1 - math.Abs(diff)/width)
	return int(numeric.Clamp(math.Round(v), 0, irMaxStrength))
}

// Calculate recomputes every sub-sensor from the strongest beacon it sees.
func (s *InfraredSensor) Calculate() {
	s.strengths = [irSubSensors]int{}
	if s.env.Beacons != nil {
		origin := s.mount.WorldPosition()
		heading := s.mount.WorldAngle()
		for _, b := range s.env.Beacons() {
			rel := b.Sub(origin)
			d := rel.Len()
			angle := math.Atan2(rel.Y(), rel.X()) - heading
			for i, sub := range irAngles {
				diff := numeric.Wrap(angle-sub, -math.Pi, math.Pi)
				if v := SubStrength(d*s.distBias[i], diff, s.maxDistance, s.width); v > s.strengths[i] {
					s.strengths[i] = v
				}
			}
		}
	}
	s.direction = PredictDirection(s.strengths)
}

// PredictDirection maps sub-sensor strengths to a direction in [1,9], or 0
// when the total signal is too weak. Index 2 (straight ahead) maps to 5.
func PredictDirection(strengths [irSubSensors]int) int {
	total := 0
	weighted := 0
	for i, v := range strengths {
		total += v
		weighted += i * v
	}
	if total <= irLostTotal {
		return 0
	}
	centroid := float64(weighted) / float64(total)
	return int(numeric.Clamp(math.Round(centroid*2)+1, 1, 9))
}

// Strengths returns the last sub-sensor readings.
func (s *InfraredSensor) Strengths() [irSubSensors]int { return s.strengths }

// Direction returns the last predicted direction.
func (s *InfraredSensor) Direction() int { return s.direction }

func (s *InfraredSensor) ToObject() (map[string]any, error) {
	if s.mode == ModeInfraredACAll {
		st := s.strengths
		return s.object(0, s.direction, st[0], st[1], st[2], st[3], st[4])
	}
	return s.object(0, s.direction)
}

func (s *InfraredSensor) ApplyWrite(attr, value string) error {
	return s.applyCommon(attr, value)
}
