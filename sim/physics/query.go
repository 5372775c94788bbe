package physics

import (
	"math"
	"slices"

	"github.com/go-gl/mathgl/mgl64"
)

// ShapeFilter restricts queries. A body matches when its Category
// intersects Mask and its Mask intersects Categories. Zero fields match
// everything.
type ShapeFilter struct {
	Categories uint32
	Mask       uint32
	Ignore     []*Body
}

func (f ShapeFilter) matches(b *Body) bool {
	cats, mask := f.Categories, f.Mask
	if cats == 0 {
		cats = AllCategories
	}
	if mask == 0 {
		mask = AllCategories
	}
	if b.Category&mask == 0 || cats&b.Mask == 0 {
		return false
	}
	return !slices.Contains(f.Ignore, b)
}

// SegmentHit is the first intersection of a segment query.
type SegmentHit struct {
	Body   *Body
	Point  mgl64.Vec2
	Normal mgl64.Vec2
	Alpha  float64 // fraction along the query segment
}

// PointQuery returns every matching body with a shape containing p.
func (w *World) PointQuery(p mgl64.Vec2, filter ShapeFilter) []*Body {
	var out []*Body
	for _, b := range w.bodies {
		if !filter.matches(b) {
			continue
		}
		for _, s := range b.worldShapes() {
			if s.contains(p) {
				out = append(out, b)
				break
			}
		}
	}
	return out
}

// SegmentQueryFirst returns the nearest matching shape crossed by the
// segment from start to end.
func (w *World) SegmentQueryFirst(start, end mgl64.Vec2, filter ShapeFilter) (SegmentHit, bool) {
	best := SegmentHit{Alpha: math.Inf(1)}
	found := false
	for _, b := range w.bodies {
		if !filter.matches(b) {
			continue
		}
		for _, s := range b.worldShapes() {
			alpha, normal, ok := s.raycast(start, end)
			if ok && alpha < best.Alpha {
				best = SegmentHit{Body: b, Normal: normal, Alpha: alpha}
				found = true
			}
		}
	}
	if found {
		best.Point = start.Add(end.Sub(start).Mul(best.Alpha))
	}
	return best, found
}
