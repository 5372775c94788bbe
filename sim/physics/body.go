package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// AllCategories matches every collision category.
const AllCategories = ^uint32(0)

// Collision categories. Zones are sensor areas that solid-object queries
// such as range finders look through.
const (
	CategorySolid uint32 = 1 << iota
	CategoryZone
)

// ShapeKind selects the geometry of a Shape.
type ShapeKind int

const (
	ShapeCircle ShapeKind = iota
	ShapeSegment
)

// Shape is body-local geometry. Circles use Offset and Radius; segments use
// A, B and Radius as their half-thickness.
type Shape struct {
	Kind   ShapeKind
	Offset mgl64.Vec2
	A, B   mgl64.Vec2
	Radius float64
}

// Circle creates a circle shape centred at offset in body coordinates.
func Circle(offset mgl64.Vec2, radius float64) Shape {
	return Shape{Kind: ShapeCircle, Offset: offset, Radius: radius}
}

// Segment creates a segment shape from a to b with the given half-thickness.
func Segment(a, b mgl64.Vec2, radius float64) Shape {
	return Shape{Kind: ShapeSegment, A: a, B: b, Radius: radius}
}

// Body is a rigid body in the world. Fields may be set freely before the
// body is registered; afterwards only the owning goroutine of the world may
// touch them.
type Body struct {
	Position        mgl64.Vec2
	Angle           float64 // radians, counter-clockwise
	Velocity        mgl64.Vec2
	AngularVelocity float64

	Mass           float64
	Moment         float64
	LinearDamping  float64 // fraction of velocity lost per second, in [0,1)
	AngularDamping float64
	Friction       float64 // contact friction coefficient
	Restitution    float64

	Static bool
	// Sensor bodies report contacts to handlers but never resolve them.
	Sensor bool

	CollisionType string
	Category      uint32
	Mask          uint32

	Shapes   []Shape
	UserData any

	id     int
	force  mgl64.Vec2
	torque float64
}

// NewBody creates a dynamic body colliding with everything.
func NewBody(mass, moment float64, shapes ...Shape) *Body {
	return &Body{
		Mass:     mass,
		Moment:   moment,
		Category: CategorySolid,
		Mask:     AllCategories,
		Shapes:   shapes,
	}
}

// NewStaticBody creates an immovable body colliding with everything.
func NewStaticBody(shapes ...Shape) *Body {
	b := NewBody(0, 0, shapes...)
	b.Static = true
	return b
}

// ID is the registration id, zero while unregistered.
func (b *Body) ID() int { return b.id }

// Rotation returns the body's rotation matrix.
func (b *Body) Rotation() mgl64.Mat2 {
	return mgl64.Rotate2D(b.Angle)
}

// Forward is the unit heading vector.
func (b *Body) Forward() mgl64.Vec2 {
	return mgl64.Vec2{math.Cos(b.Angle), math.Sin(b.Angle)}
}

// LocalToWorld maps a body-local point to world coordinates.
func (b *Body) LocalToWorld(p mgl64.Vec2) mgl64.Vec2 {
	return b.Position.Add(b.Rotation().Mul2x1(p))
}

// WorldToLocal maps a world point into body coordinates.
func (b *Body) WorldToLocal(p mgl64.Vec2) mgl64.Vec2 {
	return mgl64.Rotate2D(-b.Angle).Mul2x1(p.Sub(b.Position))
}

// ApplyForce accumulates a force through the centre of mass until the next step.
func (b *Body) ApplyForce(f mgl64.Vec2) {
	b.force = b.force.Add(f)
}

// ApplyForceAtWorldPoint accumulates a force and the torque it produces about
// the centre of mass.
func (b *Body) ApplyForceAtWorldPoint(f, p mgl64.Vec2) {
	b.force = b.force.Add(f)
	b.torque += cross(p.Sub(b.Position), f)
}

// ApplyTorque accumulates a torque until the next step.
func (b *Body) ApplyTorque(t float64) {
	b.torque += t
}

// Force returns the accumulated force since the last step.
func (b *Body) Force() mgl64.Vec2 { return b.force }

// Torque returns the accumulated torque since the last step.
func (b *Body) Torque() float64 { return b.torque }

// VelocityAtWorldPoint includes the rotational contribution.
func (b *Body) VelocityAtWorldPoint(p mgl64.Vec2) mgl64.Vec2 {
	return b.Velocity.Add(crossSV(b.AngularVelocity, p.Sub(b.Position)))
}

func (b *Body) invMass() float64 {
	if b.Static || b.Mass <= 0 {
		return 0
	}
	return 1 / b.Mass
}

func (b *Body) invMoment() float64 {
	if b.Static || b.Moment <= 0 {
		return 0
	}
	return 1 / b.Moment
}

// MomentForCircle is the moment of inertia of a solid disc.
func MomentForCircle(mass, radius float64) float64 {
	return mass * radius * radius / 2
}

// MomentForBox is the moment of inertia of a solid rectangle.
func MomentForBox(mass, width, height float64) float64 {
	return mass * (width*width + height*height) / 12
}

func cross(a, b mgl64.Vec2) float64 {
	return a[0]*b[1] - a[1]*b[0]
}

// crossSV is the 2D cross product of a scalar angular rate with a vector.
func crossSV(w float64, r mgl64.Vec2) mgl64.Vec2 {
	return mgl64.Vec2{-w * r[1], w * r[0]}
}
