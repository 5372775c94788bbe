// Package physics is a small top-down rigid-body world: circles and thick
// segments, impulse contact resolution, point and segment queries, and
// per collision-type handlers.
package physics

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	positionSlop    = 0.01
	positionPercent = 0.8
)

// Arbiter describes one contact between two bodies. Normal points from A to B.
type Arbiter struct {
	A, B   *Body
	Point  mgl64.Vec2
	Normal mgl64.Vec2
	Depth  float64
}

// CollisionHandler observes a contact during Step. Returning false vetoes the
// default resolution of that contact.
type CollisionHandler func(arb *Arbiter) bool

type handlerKey struct{ a, b string }

// World owns the bodies and steps them. It is not safe for concurrent use.
type World struct {
	bodies   []*Body
	nextID   int
	handlers map[handlerKey]CollisionHandler
	paused   bool
}

// NewWorld creates an empty world.
func NewWorld() *World {
	return &World{handlers: make(map[handlerKey]CollisionHandler)}
}

// Register adds a body. Registering a body twice is an error.
func (w *World) Register(b *Body) error {
	if b.id != 0 {
		return fmt.Errorf("physics: body %d already registered", b.id)
	}
	w.nextID++
	b.id = w.nextID
	w.bodies = append(w.bodies, b)
	return nil
}

// Unregister removes a body. Unknown bodies are ignored.
func (w *World) Unregister(b *Body) {
	for i, other := range w.bodies {
		if other == b {
			w.bodies = append(w.bodies[:i], w.bodies[i+1:]...)
			b.id = 0
			return
		}
	}
}

// Bodies returns the registered bodies in registration order.
func (w *World) Bodies() []*Body {
	out := make([]*Body, len(w.bodies))
	copy(out, w.bodies)
	return out
}

// AddHandler installs a handler for contacts between the two collision
// types. The arbiter passed in always has A of typeA.
func (w *World) AddHandler(typeA, typeB string, h CollisionHandler) {
	w.handlers[handlerKey{typeA, typeB}] = h
}

// SetPaused makes Step a no-op while set.
func (w *World) SetPaused(p bool) { w.paused = p }

// Paused reports the pause flag.
func (w *World) Paused() bool { return w.paused }

// Step integrates every dynamic body by dt and resolves contacts.
func (w *World) Step(dt float64) {
	if w.paused || dt <= 0 {
		return
	}
	for _, b := range w.bodies {
		integrate(b, dt)
	}
	for i := 0; i < len(w.bodies); i++ {
		for j := i + 1; j < len(w.bodies); j++ {
			a, b := w.bodies[i], w.bodies[j]
			if a.Static && b.Static {
				continue
			}
			if !pairFilter(a, b) {
				continue
			}
			for _, arb := range contacts(a, b) {
				if !w.dispatch(&arb) {
					continue
				}
				if arb.A.Sensor || arb.B.Sensor {
					continue
				}
				resolve(&arb)
			}
		}
	}
}

func (w *World) dispatch(arb *Arbiter) bool {
	if h, ok := w.handlers[handlerKey{arb.A.CollisionType, arb.B.CollisionType}]; ok {
		return h(arb)
	}
	if h, ok := w.handlers[handlerKey{arb.B.CollisionType, arb.A.CollisionType}]; ok {
		swapped := Arbiter{A: arb.B, B: arb.A, Point: arb.Point, Normal: arb.Normal.Mul(-1), Depth: arb.Depth}
		return h(&swapped)
	}
	return true
}

func integrate(b *Body, dt float64) {
	if b.Static {
		b.force = mgl64.Vec2{}
		b.torque = 0
		return
	}
	b.Velocity = b.Velocity.Add(b.force.Mul(b.invMass() * dt))
	b.AngularVelocity += b.torque * b.invMoment() * dt
	b.Velocity = b.Velocity.Mul(damping(b.LinearDamping, dt))
	b.AngularVelocity *= damping(b.AngularDamping, dt)
	b.Position = b.Position.Add(b.Velocity.Mul(dt))
	b.Angle += b.AngularVelocity * dt
	b.force = mgl64.Vec2{}
	b.torque = 0
}

// damping turns a per-second loss fraction into the factor for one step.
func damping(perSecond, dt float64) float64 {
	if perSecond <= 0 {
		return 1
	}
	if perSecond >= 1 {
		return 0
	}
	return math.Pow(1-perSecond, dt)
}

func pairFilter(a, b *Body) bool {
	return a.Category&b.Mask != 0 && b.Category&a.Mask != 0
}

func resolve(arb *Arbiter) {
	a, b := arb.A, arb.B
	imA, imB := a.invMass(), b.invMass()
	iiA, iiB := a.invMoment(), b.invMoment()
	if imA+imB == 0 {
		return
	}
	n := arb.Normal

	// positional correction
	if excess := arb.Depth - positionSlop; excess > 0 {
		corr := n.Mul(excess / (imA + imB) * positionPercent)
		a.Position = a.Position.Sub(corr.Mul(imA))
		b.Position = b.Position.Add(corr.Mul(imB))
	}

	rA := arb.Point.Sub(a.Position)
	rB := arb.Point.Sub(b.Position)
	rel := b.VelocityAtWorldPoint(arb.Point).Sub(a.VelocityAtWorldPoint(arb.Point))
	vn := rel.Dot(n)
	if vn > 0 {
		return
	}
	rnA, rnB := cross(rA, n), cross(rB, n)
	k := imA + imB + rnA*rnA*iiA + rnB*rnB*iiB
	e := math.Max(a.Restitution, b.Restitution)
	j := -(1 + e) * vn / k
	applyImpulse(a, b, n.Mul(j), rA, rB)

	// Coulomb friction along the tangent.
	rel = b.VelocityAtWorldPoint(arb.Point).Sub(a.VelocityAtWorldPoint(arb.Point))
	tangent := rel.Sub(n.Mul(rel.Dot(n)))
	if tangent.Len() < 1e-12 {
		return
	}
	tangent = tangent.Normalize()
	rtA, rtB := cross(rA, tangent), cross(rB, tangent)
	kt := imA + imB + rtA*rtA*iiA + rtB*rtB*iiB
	jt := -rel.Dot(tangent) / kt
	mu := math.Sqrt(a.Friction * b.Friction)
	jt = math.Max(-mu*j, math.Min(mu*j, jt))
	applyImpulse(a, b, tangent.Mul(jt), rA, rB)
}

func applyImpulse(a, b *Body, impulse, rA, rB mgl64.Vec2) {
	a.Velocity = a.Velocity.Sub(impulse.Mul(a.invMass()))
	a.AngularVelocity -= cross(rA, impulse) * a.invMoment()
	b.Velocity = b.Velocity.Add(impulse.Mul(b.invMass()))
	b.AngularVelocity += cross(rB, impulse) * b.invMoment()
}
