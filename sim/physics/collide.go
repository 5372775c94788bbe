package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// worldShape is a shape resolved to world coordinates.
type worldShape struct {
	kind   ShapeKind
	centre mgl64.Vec2
	a, b   mgl64.Vec2
	radius float64
}

func (b *Body) worldShapes() []worldShape {
	out := make([]worldShape, len(b.Shapes))
	for i, s := range b.Shapes {
		ws := worldShape{kind: s.Kind, radius: s.Radius}
		switch s.Kind {
		case ShapeCircle:
			ws.centre = b.LocalToWorld(s.Offset)
		case ShapeSegment:
			ws.a = b.LocalToWorld(s.A)
			ws.b = b.LocalToWorld(s.B)
		}
		out[i] = ws
	}
	return out
}

func contacts(a, b *Body) []Arbiter {
	var out []Arbiter
	for _, sa := range a.worldShapes() {
		for _, sb := range b.worldShapes() {
			if arb, ok := collideShapes(sa, sb); ok {
				arb.A, arb.B = a, b
				out = append(out, arb)
			}
		}
	}
	return out
}

// collideShapes returns a contact with the normal pointing from sa to sb.
// Segment-segment pairs are not collided.
func collideShapes(sa, sb worldShape) (Arbiter, bool) {
	switch {
	case sa.kind == ShapeCircle && sb.kind == ShapeCircle:
		return collideCircles(sa.centre, sa.radius, sb.centre, sb.radius)
	case sa.kind == ShapeCircle && sb.kind == ShapeSegment:
		closest := closestOnSegment(sb.a, sb.b, sa.centre)
		return collideCircles(sa.centre, sa.radius, closest, sb.radius)
	case sa.kind == ShapeSegment && sb.kind == ShapeCircle:
		closest := closestOnSegment(sa.a, sa.b, sb.centre)
		return collideCircles(closest, sa.radius, sb.centre, sb.radius)
	}
	return Arbiter{}, false
}

func collideCircles(ca mgl64.Vec2, ra float64, cb mgl64.Vec2, rb float64) (Arbiter, bool) {
	delta := cb.Sub(ca)
	dist := delta.Len()
	reach := ra + rb
	if dist >= reach {
		return Arbiter{}, false
	}
	normal := mgl64.Vec2{1, 0}
	if dist > 1e-12 {
		normal = delta.Mul(1 / dist)
	}
	depth := reach - dist
	point := ca.Add(normal.Mul(ra - depth/2))
	return Arbiter{Point: point, Normal: normal, Depth: depth}, true
}

func closestOnSegment(a, b, p mgl64.Vec2) mgl64.Vec2 {
	ab := b.Sub(a)
	l2 := ab.Dot(ab)
	if l2 == 0 {
		return a
	}
	t := p.Sub(a).Dot(ab) / l2
	t = math.Max(0, math.Min(1, t))
	return a.Add(ab.Mul(t))
}

func (s worldShape) contains(p mgl64.Vec2) bool {
	switch s.kind {
	case ShapeCircle:
		return p.Sub(s.centre).Len() <= s.radius
	case ShapeSegment:
		return p.Sub(closestOnSegment(s.a, s.b, p)).Len() <= s.radius
	}
	return false
}

// raycast returns the smallest alpha in [0,1] at which the segment from
// start to end enters the shape, and the surface normal there.
func (s worldShape) raycast(start, end mgl64.Vec2) (float64, mgl64.Vec2, bool) {
	switch s.kind {
	case ShapeCircle:
		return rayCircle(start, end, s.centre, s.radius)
	case ShapeSegment:
		best, normal, hit := math.Inf(1), mgl64.Vec2{}, false
		consider := func(alpha float64, n mgl64.Vec2, ok bool) {
			if ok && alpha < best {
				best, normal, hit = alpha, n, true
			}
		}
		if s.radius > 0 {
			consider(rayCircle(start, end, s.a, s.radius))
			consider(rayCircle(start, end, s.b, s.radius))
		}
		dir := s.b.Sub(s.a)
		if dir.Len() > 0 {
			perp := mgl64.Vec2{-dir[1], dir[0]}.Normalize()
			off := perp.Mul(s.radius)
			consider(rayLine(start, end, s.a.Add(off), s.b.Add(off), perp))
			consider(rayLine(start, end, s.a.Sub(off), s.b.Sub(off), perp.Mul(-1)))
		}
		return best, normal, hit
	}
	return 0, mgl64.Vec2{}, false
}

func rayCircle(start, end, centre mgl64.Vec2, r float64) (float64, mgl64.Vec2, bool) {
	d := end.Sub(start)
	f := start.Sub(centre)
	a := d.Dot(d)
	if a == 0 {
		return 0, mgl64.Vec2{}, false
	}
	b := 2 * f.Dot(d)
	c := f.Dot(f) - r*r
	disc := b*b - 4*a*c
	if disc < 0 {
		return 0, mgl64.Vec2{}, false
	}
	sq := math.Sqrt(disc)
	alpha := (-b - sq) / (2 * a)
	if alpha < 0 {
		// start inside the circle
		if c <= 0 {
			return 0, f.Normalize(), true
		}
		return 0, mgl64.Vec2{}, false
	}
	if alpha > 1 {
		return 0, mgl64.Vec2{}, false
	}
	hit := start.Add(d.Mul(alpha))
	return alpha, hit.Sub(centre).Normalize(), true
}

// rayLine intersects with segment p→q whose outward normal is n; only hits
// approaching from the front count.
func rayLine(start, end, p, q, n mgl64.Vec2) (float64, mgl64.Vec2, bool) {
	d := end.Sub(start)
	e := q.Sub(p)
	denom := cross(d, e)
	if math.Abs(denom) < 1e-12 || d.Dot(n) >= 0 {
		return 0, mgl64.Vec2{}, false
	}
	w := p.Sub(start)
	alpha := cross(w, e) / denom
	u := cross(w, d) / denom
	if alpha < 0 || alpha > 1 || u < 0 || u > 1 {
		return 0, mgl64.Vec2{}, false
	}
	return alpha, n, true
}
