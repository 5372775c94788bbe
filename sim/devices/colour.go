package devices

import (
	"image/color"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ev3sim/ev3sim/sim/numeric"
	"github.com/ev3sim/ev3sim/sim/screen"
)

// Colour sensor modes.
const (
	ModeColourReflect = "COL-REFLECT"
	ModeColourColour  = "COL-COLOR"
	ModeColourRGBRaw  = "RGB-RAW"
)

// colourTable is the COL-COLOR palette, indexed by reported value.
var colourTable = []color.RGBA{
	1: {0, 0, 0, 255},
	2: {0, 0, 255, 255},
	3: {0, 255, 0, 255},
	4: {255, 255, 0, 255},
	5: {255, 0, 0, 255},
	6: {255, 255, 255, 255},
	7: {150, 75, 0, 255},
}

// ColourSensor samples the screen around its mount point.
type ColourSensor struct {
	sensorBase
	samples  int
	radius   float64
	sigma    float64
	ring     []mgl64.Vec2
	bias     [3]float64
	rgb      [3]float64
	visual   *screen.Disc
	visualID string
}

// NewColourSensor creates a colour sensor on an inN port.
func NewColourSensor(spec Spec, env Env) (*ColourSensor, error) {
	sb, err := newSensorBase(spec, env, "lego-ev3-color", ModeColourReflect, ModeColourColour, ModeColourRGBRaw)
	if err != nil {
		return nil, err
	}
	c := &ColourSensor{
		sensorBase: sb,
		samples:    int(spec.option("samples", 8)),
		radius:     spec.option("radius", 1),
		sigma:      spec.option("bias_sigma", 6),
	}
	if c.samples < 1 {
		c.samples = 1
	}
	if env.Screen != nil {
		c.visual = &screen.Disc{Radius: c.radius, Z: 100, Hidden: true}
		c.visualID = env.RobotID + "/" + c.objName
		env.Screen.RegisterVisual(c.visualID, c.visual)
	}
	return c, nil
}

// GenerateBias fixes the sample ring and per-channel bias.
func (c *ColourSensor) GenerateBias() {
	phase, radius := 0.0, c.radius
	c.bias = [3]float64{}
	if c.env.Randomise {
		rng := c.rng()
		phase = rng.Float64() * 2 * math.Pi
		radius *= 0.9 + 0.2*rng.Float64()
		dist := distuv.Normal{Mu: 0, Sigma: c.sigma, Src: rng}
		for i := range c.bias {
			c.bias[i] = dist.Rand()
		}
	}
	c.ring = make([]mgl64.Vec2, c.samples)
	for i := range c.ring {
		a := phase + 2*math.Pi*float64(i)/float64(c.samples)
		c.ring[i] = mgl64.Vec2{radius * math.Cos(a), radius * math.Sin(a)}
	}
}

// Calculate averages the ring samples and applies the bias.
func (c *ColourSensor) Calculate() {
	if c.env.Screen == nil {
		return
	}
	if c.ring == nil {
		c.GenerateBias()
	}
	centre := c.mount.WorldPosition()
	rot := mgl64.Rotate2D(c.mount.WorldAngle())
	var sum [3]float64
	for _, off := range c.ring {
		col := c.env.Screen.ColourAt(centre.Add(rot.Mul2x1(off)))
		sum[0] += float64(col.R)
		sum[1] += float64(col.G)
		sum[2] += float64(col.B)
	}
	for i := range sum {
		c.rgb[i] = numeric.Clamp(sum[i]/float64(len(c.ring))+c.bias[i], 0, 255)
	}
	if c.visual != nil {
		c.visual.Centre = centre
		c.visual.Colour = color.RGBA{uint8(c.rgb[0]), uint8(c.rgb[1]), uint8(c.rgb[2]), 255}
	}
}

// RGB returns the last sensed colour in [0,255] per channel.
func (c *ColourSensor) RGB() [3]float64 { return c.rgb }

// Reflect is the reflected light intensity in [0,100].
func (c *ColourSensor) Reflect() int {
	return int(math.Round((c.rgb[0] + c.rgb[1] + c.rgb[2]) / 3 / 255 * 100))
}

// ColourIndex is the nearest palette entry in [1,7].
func (c *ColourSensor) ColourIndex() int {
	best, bestDist := 0, math.Inf(1)
	for i := 1; i < len(colourTable); i++ {
		ref := colourTable[i]
		dr := c.rgb[0] - float64(ref.R)
		dg := c.rgb[1] - float64(ref.G)
		db := c.rgb[2] - float64(ref.B)
		if d := dr*dr + dg*dg + db*db; d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func (c *ColourSensor) ToObject() (map[string]any, error) {
	switch c.mode {
	case ModeColourReflect:
		return c.object(0, c.Reflect())
	case ModeColourColour:
		return c.object(0, c.ColourIndex())
	default:
		raw := func(v float64) int { return int(math.Round(v / 255 * 1020)) }
		return c.object(0, raw(c.rgb[0]), raw(c.rgb[1]), raw(c.rgb[2]))
	}
}

func (c *ColourSensor) ApplyWrite(attr, value string) error {
	return c.applyCommon(attr, value)
}

// Detach removes the sample indicator from the screen.
func (c *ColourSensor) Detach() {
	if c.visual != nil {
		c.env.Screen.UnregisterVisual(c.visualID)
	}
}
