package devices

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ev3sim/ev3sim/sim/numeric"
	"github.com/ev3sim/ev3sim/sim/physics"
)

// Ultrasonic sensor modes.
const (
	ModeUltrasonicCM = "US-DIST-CM"
	ModeUltrasonicIN = "US-DIST-IN"
)

// UltrasonicMaxRange is the reading when nothing is in range, in cm.
const UltrasonicMaxRange = 255.0

const (
	ultrasonicTolerance = 0.5
	ultrasonicMaxPasses = 8
)

// UltrasonicSensor measures distance with a narrow fan of segment queries.
type UltrasonicSensor struct {
	sensorBase
	cone      float64 // half-angle of the fan, radians
	offset    float64
	incidence float64
	distance  float64
}

// NewUltrasonicSensor creates an ultrasonic sensor on an inN port.
func NewUltrasonicSensor(spec Spec, env Env) (*UltrasonicSensor, error) {
	sb, err := newSensorBase(spec, env, "lego-ev3-us", ModeUltrasonicCM, ModeUltrasonicIN)
	if err != nil {
		return nil, err
	}
	return &UltrasonicSensor{
		sensorBase: sb,
		cone:       spec.option("cone_degrees", 6) * math.Pi / 180,
		distance:   UltrasonicMaxRange,
	}, nil
}

// GenerateBias fixes the static offset and the incidence coefficient.
func (u *UltrasonicSensor) GenerateBias() {
	u.offset, u.incidence = 0, 0
	if !u.env.Randomise {
		return
	}
	rng := u.rng()
	u.offset = distuv.Normal{Mu: 0, Sigma: 0.5, Src: rng}.Rand()
	u.incidence = 0.05 + 0.05*rng.Float64()
}

// Calculate shrinks the candidate distance past each hit until the fan
// reaches nothing.
func (u *UltrasonicSensor) Calculate() {
	if u.env.World == nil {
		u.distance = UltrasonicMaxRange
		return
	}
	origin := u.mount.WorldPosition()
	heading := u.mount.WorldAngle()
	filter := physics.ShapeFilter{Mask: physics.AllCategories &^ physics.CategoryZone}
	if u.env.Body != nil {
		filter.Ignore = []*physics.Body{u.env.Body}
	}

	candidate := UltrasonicMaxRange
	var nearest *physics.SegmentHit
	var nearestDir mgl64.Vec2
	for pass := 0; pass < ultrasonicMaxPasses && candidate > 0; pass++ {
		best := math.Inf(1)
		for _, a := range []float64{-u.cone, 0, u.cone} {
			dir := mgl64.Vec2{math.Cos(heading + a), math.Sin(heading + a)}
			hit, ok := u.env.World.SegmentQueryFirst(origin, origin.Add(dir.Mul(candidate)), filter)
			if ok && hit.Alpha*candidate < best {
				best = hit.Alpha * candidate
				nearest, nearestDir = &hit, dir
			}
		}
		if math.IsInf(best, 1) {
			break
		}
		candidate = math.Max(0, best-ultrasonicTolerance)
	}

	distance := candidate
	if nearest != nil && u.incidence > 0 {
		cos := math.Abs(nearestDir.Dot(nearest.Normal))
		distance += u.incidence * distance * (1 - cos)
	}
	u.distance = numeric.Clamp(distance+u.offset, 0, UltrasonicMaxRange)
}

// DistanceCM is the last reading in centimetres.
func (u *UltrasonicSensor) DistanceCM() float64 { return u.distance }

func (u *UltrasonicSensor) ToObject() (map[string]any, error) {
	if u.mode == ModeUltrasonicIN {
		return u.object(1, int(math.Round(u.distance/2.54*10)))
	}
	return u.object(1, int(math.Round(u.distance*10)))
}

func (u *UltrasonicSensor) ApplyWrite(attr, value string) error {
	return u.applyCommon(attr, value)
}
