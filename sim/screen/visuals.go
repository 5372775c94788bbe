package screen

import (
	"image/color"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Rect is an axis-aligned rectangle rotated by Angle about its centre.
type Rect struct {
	Centre mgl64.Vec2
	Size   mgl64.Vec2
	Angle  float64
	Colour color.RGBA
	Z      float64
	Hidden bool // not seen by colour sensors
}

func (r *Rect) Contains(p mgl64.Vec2) bool {
	local := mgl64.Rotate2D(-r.Angle).Mul2x1(p.Sub(r.Centre))
	return math.Abs(local.X()) <= r.Size.X()/2 && math.Abs(local.Y()) <= r.Size.Y()/2
}

func (r *Rect) Fill() color.RGBA { return r.Colour }
func (r *Rect) ZPos() float64 { return r.Z }
func (r *Rect) Sensed() bool { return !r.Hidden }

// Disc is a filled circle.
type Disc struct {
	Centre mgl64.Vec2
	Radius float64
	Colour color.RGBA
	Z      float64
	Hidden bool
}

func (d *Disc) Contains(p mgl64.Vec2) bool { return p.Sub(d.Centre).Len() <= d.Radius }
func (d *Disc) Fill() color.RGBA { return d.Colour }
func (d *Disc) ZPos() float64 { return d.Z }
func (d *Disc) Sensed() bool { return !d.Hidden }

// Line is a stroke of the given width between two points.
type Line struct {
	From, To mgl64.Vec2
	Width    float64
	Colour   color.RGBA
	Z        float64
	Hidden   bool
}

func (l *Line) Contains(p mgl64.Vec2) bool {
	ab := l.To.Sub(l.From)
	t := 0.0
	if l2 := ab.Dot(ab); l2 > 0 {
		t = math.Max(0, math.Min(1, p.Sub(l.From).Dot(ab)/l2))
	}
	return p.Sub(l.From.Add(ab.Mul(t))).Len() <= l.Width/2
}

func (l *Line) Fill() color.RGBA { return l.Colour }
func (l *Line) ZPos() float64 { return l.Z }
func (l *Line) Sensed() bool { return !l.Hidden }

// ParseHex reads "#rrggbb" into an opaque colour.
func ParseHex(s string) (color.RGBA, bool) {
	if len(s) != 7 || s[0] != '#' {
		return color.RGBA{}, false
	}
	var v [3]uint8
	for i := range v {
		hi, ok1 := hexDigit(s[1+2*i])
		lo, ok2 := hexDigit(s[2+2*i])
		if !ok1 || !ok2 {
			return color.RGBA{}, false
		}
		v[i] = hi<<4 | lo
	}
	return color.RGBA{R: v[0], G: v[1], B: v[2], A: 255}, true
}

func hexDigit(c byte) (uint8, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
