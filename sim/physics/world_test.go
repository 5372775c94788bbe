package physics

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ball(pos mgl64.Vec2, r float64) *Body {
	b := NewBody(1, MomentForCircle(1, r), Circle(mgl64.Vec2{}, r))
	b.Position = pos
	return b
}

func TestWorld_RegisterTwice_Errors(t *testing.T) {
	w := NewWorld()
	b := ball(mgl64.Vec2{}, 1)
	require.NoError(t, w.Register(b))
	assert.NotZero(t, b.ID())
	assert.Error(t, w.Register(b))

	w.Unregister(b)
	assert.Zero(t, b.ID())
	assert.Empty(t, w.Bodies())
}

func TestWorld_Step_IntegratesForce(t *testing.T) {
	// GIVEN a unit-mass body with a constant 2N force
	w := NewWorld()
	b := ball(mgl64.Vec2{}, 1)
	require.NoError(t, w.Register(b))

	// WHEN stepped once by 0.5s
	b.ApplyForce(mgl64.Vec2{2, 0})
	w.Step(0.5)

	// THEN velocity is F/m*dt and position follows semi-implicitly
	assert.InDelta(t, 1.0, b.Velocity.X(), 1e-9)
	assert.InDelta(t, 0.5, b.Position.X(), 1e-9)
	// AND forces are cleared
	assert.Equal(t, mgl64.Vec2{}, b.Force())
}

func TestWorld_Step_Damping(t *testing.T) {
	w := NewWorld()
	b := ball(mgl64.Vec2{}, 1)
	b.Velocity = mgl64.Vec2{10, 0}
	b.LinearDamping = 0.5
	require.NoError(t, w.Register(b))
	w.Step(1)
	assert.InDelta(t, 5.0, b.Velocity.X(), 1e-9)
}

func TestWorld_Step_StaticNeverMoves(t *testing.T) {
	w := NewWorld()
	wall := NewStaticBody(Segment(mgl64.Vec2{-10, 0}, mgl64.Vec2{10, 0}, 0.5))
	wall.Velocity = mgl64.Vec2{1, 1}
	require.NoError(t, w.Register(wall))
	wall.ApplyForce(mgl64.Vec2{100, 0})
	w.Step(1)
	assert.Equal(t, mgl64.Vec2{}, wall.Position)
}

func TestWorld_Paused_StepIsNoop(t *testing.T) {
	w := NewWorld()
	b := ball(mgl64.Vec2{}, 1)
	b.Velocity = mgl64.Vec2{1, 0}
	require.NoError(t, w.Register(b))
	w.SetPaused(true)
	w.Step(1)
	assert.Equal(t, mgl64.Vec2{}, b.Position)
	w.SetPaused(false)
	w.Step(1)
	assert.InDelta(t, 1.0, b.Position.X(), 1e-9)
}

func TestWorld_ApplyForceAtWorldPoint_ProducesTorque(t *testing.T) {
	b := ball(mgl64.Vec2{}, 1)
	b.ApplyForceAtWorldPoint(mgl64.Vec2{0, 1}, mgl64.Vec2{1, 0})
	assert.InDelta(t, 1.0, b.Torque(), 1e-9)
	b.ApplyForceAtWorldPoint(mgl64.Vec2{0, 1}, mgl64.Vec2{-1, 0})
	assert.InDelta(t, 0.0, b.Torque(), 1e-9)
	assert.Equal(t, mgl64.Vec2{0, 2}, b.Force())
}

func TestWorld_CircleCollision_SeparatesAndBounces(t *testing.T) {
	// GIVEN two overlapping balls moving toward each other
	w := NewWorld()
	a := ball(mgl64.Vec2{0, 0}, 1)
	b := ball(mgl64.Vec2{1.5, 0}, 1)
	a.Velocity = mgl64.Vec2{1, 0}
	b.Velocity = mgl64.Vec2{-1, 0}
	a.Restitution, b.Restitution = 1, 1
	require.NoError(t, w.Register(a))
	require.NoError(t, w.Register(b))

	w.Step(0.01)

	// THEN they move apart with momentum conserved
	assert.Less(t, a.Velocity.X(), 0.0)
	assert.Greater(t, b.Velocity.X(), 0.0)
	assert.InDelta(t, 0.0, a.Velocity.X()+b.Velocity.X(), 1e-9)
}

func TestWorld_CircleAgainstWall_Stops(t *testing.T) {
	w := NewWorld()
	wall := NewStaticBody(Segment(mgl64.Vec2{-10, 0}, mgl64.Vec2{10, 0}, 0))
	b := ball(mgl64.Vec2{0, 0.9}, 1)
	b.Velocity = mgl64.Vec2{0, -5}
	require.NoError(t, w.Register(wall))
	require.NoError(t, w.Register(b))

	w.Step(0.01)
	assert.GreaterOrEqual(t, b.Velocity.Y(), 0.0)
	assert.Equal(t, mgl64.Vec2{}, wall.Position)
}

func TestWorld_Handler_CanVeto(t *testing.T) {
	w := NewWorld()
	a := ball(mgl64.Vec2{0, 0}, 1)
	a.CollisionType = "robot"
	b := ball(mgl64.Vec2{1.5, 0}, 1)
	b.CollisionType = "ball"
	a.Velocity = mgl64.Vec2{1, 0}
	require.NoError(t, w.Register(a))
	require.NoError(t, w.Register(b))

	var seen *Arbiter
	w.AddHandler("ball", "robot", func(arb *Arbiter) bool {
		seen = arb
		return false
	})
	w.Step(0.01)

	require.NotNil(t, seen)
	assert.Same(t, b, seen.A)
	assert.Same(t, a, seen.B)
	// normal points from the ball to the robot
	assert.Less(t, seen.Normal.X(), 0.0)
	// vetoed: velocities untouched
	assert.InDelta(t, 1.0, a.Velocity.X(), 1e-9)
	assert.Equal(t, mgl64.Vec2{}, b.Velocity)
}

func TestWorld_SensorBody_ReportsWithoutResolving(t *testing.T) {
	w := NewWorld()
	zone := NewStaticBody(Circle(mgl64.Vec2{}, 5))
	zone.Sensor = true
	zone.CollisionType = "zone"
	b := ball(mgl64.Vec2{1, 0}, 1)
	b.Velocity = mgl64.Vec2{1, 0}
	require.NoError(t, w.Register(zone))
	require.NoError(t, w.Register(b))
	hits := 0
	w.AddHandler("zone", "", func(*Arbiter) bool { hits++; return true })
	w.Step(0.01)
	assert.Equal(t, 1, hits)
	assert.InDelta(t, 1.0, b.Velocity.X(), 1e-9)
}

func TestWorld_CategoryMask_FiltersCollisions(t *testing.T) {
	w := NewWorld()
	a := ball(mgl64.Vec2{0, 0}, 1)
	b := ball(mgl64.Vec2{1, 0}, 1)
	a.Category, b.Mask = 2, 1
	require.NoError(t, w.Register(a))
	require.NoError(t, w.Register(b))
	w.Step(0.01)
	assert.Equal(t, mgl64.Vec2{}, a.Velocity)
	assert.Equal(t, mgl64.Vec2{1, 0}, b.Position)
}

func TestWorld_PointQuery(t *testing.T) {
	w := NewWorld()
	a := ball(mgl64.Vec2{0, 0}, 1)
	wall := NewStaticBody(Segment(mgl64.Vec2{5, -5}, mgl64.Vec2{5, 5}, 0.5))
	require.NoError(t, w.Register(a))
	require.NoError(t, w.Register(wall))

	assert.Equal(t, []*Body{a}, w.PointQuery(mgl64.Vec2{0.5, 0.5}, ShapeFilter{}))
	assert.Equal(t, []*Body{wall}, w.PointQuery(mgl64.Vec2{5.4, 0}, ShapeFilter{}))
	assert.Empty(t, w.PointQuery(mgl64.Vec2{3, 0}, ShapeFilter{}))
	assert.Empty(t, w.PointQuery(mgl64.Vec2{0, 0}, ShapeFilter{Ignore: []*Body{a}}))
}

func TestWorld_SegmentQueryFirst(t *testing.T) {
	// GIVEN a robot at the origin facing a ball and a wall behind it
	w := NewWorld()
	self := ball(mgl64.Vec2{0, 0}, 1)
	target := ball(mgl64.Vec2{10, 0}, 1)
	wall := NewStaticBody(Segment(mgl64.Vec2{20, -5}, mgl64.Vec2{20, 5}, 0))
	for _, b := range []*Body{self, target, wall} {
		require.NoError(t, w.Register(b))
	}

	// WHEN casting along +x while ignoring self
	hit, ok := w.SegmentQueryFirst(mgl64.Vec2{0, 0}, mgl64.Vec2{30, 0}, ShapeFilter{Ignore: []*Body{self}})

	// THEN the ball's near surface is hit first
	require.True(t, ok)
	assert.Same(t, target, hit.Body)
	assert.InDelta(t, 9.0, hit.Point.X(), 1e-9)
	assert.InDelta(t, 0.3, hit.Alpha, 1e-9)
	assert.InDelta(t, -1.0, hit.Normal.X(), 1e-9)

	// AND with the ball removed, the wall
	w.Unregister(target)
	hit, ok = w.SegmentQueryFirst(mgl64.Vec2{0, 0}, mgl64.Vec2{30, 0}, ShapeFilter{Ignore: []*Body{self}})
	require.True(t, ok)
	assert.Same(t, wall, hit.Body)
	assert.InDelta(t, 20.0, hit.Point.X(), 1e-9)

	// AND a short ray misses
	_, ok = w.SegmentQueryFirst(mgl64.Vec2{0, 0}, mgl64.Vec2{5, 0}, ShapeFilter{Ignore: []*Body{self}})
	assert.False(t, ok)
}

func TestWorld_SegmentQueryFirst_ThickSegmentAtAngle(t *testing.T) {
	w := NewWorld()
	wall := NewStaticBody(Segment(mgl64.Vec2{-5, 10}, mgl64.Vec2{5, 10}, 1))
	require.NoError(t, w.Register(wall))
	hit, ok := w.SegmentQueryFirst(mgl64.Vec2{0, 0}, mgl64.Vec2{0, 20}, ShapeFilter{})
	require.True(t, ok)
	assert.InDelta(t, 9.0, hit.Point.Y(), 1e-9)
	assert.InDelta(t, -1.0, hit.Normal.Y(), 1e-9)
}

func TestBody_LocalToWorld(t *testing.T) {
	b := ball(mgl64.Vec2{1, 1}, 1)
	b.Angle = math.Pi / 2
	p := b.LocalToWorld(mgl64.Vec2{1, 0})
	assert.InDelta(t, 1.0, p.X(), 1e-9)
	assert.InDelta(t, 2.0, p.Y(), 1e-9)
	back := b.WorldToLocal(p)
	assert.InDelta(t, 1.0, back.X(), 1e-9)
	assert.InDelta(t, 0.0, back.Y(), 1e-9)
	f := b.Forward()
	assert.InDelta(t, 0.0, f.X(), 1e-9)
	assert.InDelta(t, 1.0, f.Y(), 1e-9)
}
