package modes

import (
	"image/color"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/sirupsen/logrus"

	"github.com/ev3sim/ev3sim/sim"
	"github.com/ev3sim/ev3sim/sim/physics"
	"github.com/ev3sim/ev3sim/sim/screen"
)

// Collision types of arena bodies.
const (
	CollisionWall        = "wall"
	CollisionBall        = "ball"
	CollisionOutOfBounds = "out_of_bounds"
	CollisionGoal        = "goal"
)

// EventResetBall is the input event that puts the ball back on its spot.
const EventResetBall = "reset_ball"

// Goal sides.
const (
	GoalBlue   = "blue"
	GoalYellow = "yellow"
)

// ArenaConfig describes a soccer-style field centred on the origin, in cm.
type ArenaConfig struct {
	Width, Height float64 // playing field inside the white line
	WallGap       float64 // distance from the line to the walls
	GoalWidth     float64
	BallRadius    float64
	BallMass      float64
	BallStart     mgl64.Vec2
	Field         color.RGBA
	Line          color.RGBA
}

// DefaultArenaConfig is a junior soccer field.
func DefaultArenaConfig() ArenaConfig {
	return ArenaConfig{
		Width:      182,
		Height:     243,
		WallGap:    12,
		GoalWidth:  60,
		BallRadius: 3.7,
		BallMass:   0.2,
		Field:      color.RGBA{R: 0x1f, G: 0x7a, B: 0x2e, A: 0xff},
		Line:       color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff},
	}
}

// Arena owns the walls, field markings and an IR-emitting ball. The ball
// goes back to its spot when it leaves the field or enters a goal.
type Arena struct {
	sim.BaseInteractor
	cfg    ArenaConfig
	world  *physics.World
	screen sim.ScreenObjectManager

	ball       *physics.Body
	ballVisual *screen.Disc
	static     []*physics.Body
	visualKeys []string

	resetPending bool
	scored       string
	score        map[string]int

	// OnGoal is called on the scheduler goroutine when a goal is scored.
	OnGoal func(side string, score map[string]int)
}

// NewArena creates an arena. Bodies and visuals are added in StartUp.
func NewArena(cfg ArenaConfig, world *physics.World, som sim.ScreenObjectManager) *Arena {
	if world == nil || som == nil {
		panic("Arena: world and screen are required")
	}
	return &Arena{cfg: cfg, world: world, screen: som, score: make(map[string]int)}
}

// Ball is the ball body.
func (a *Arena) Ball() *physics.Body { return a.ball }

// Beacons lists IR emitters for infrared sensors: the ball, once placed.
func (a *Arena) Beacons() []mgl64.Vec2 {
	if a.ball == nil {
		return nil
	}
	return []mgl64.Vec2{a.ball.Position}
}

// Score returns a copy of the goal count per side.
func (a *Arena) Score() map[string]int {
	out := make(map[string]int, len(a.score))
	for k, v := range a.score {
		out[k] = v
	}
	return out
}

func (a *Arena) StartUp() error {
	c := a.cfg
	hw, hh := c.Width/2, c.Height/2

	a.addVisual("arena/field", &screen.Rect{Size: mgl64.Vec2{c.Width + 2*c.WallGap, c.Height + 2*c.WallGap}, Colour: c.Field})
	corners := []mgl64.Vec2{{-hw, -hh}, {hw, -hh}, {hw, hh}, {-hw, hh}}
	for i, from := range corners {
		to := corners[(i+1)%len(corners)]
		a.addVisual("arena/line"+string(rune('0'+i)), &screen.Line{From: from, To: to, Width: 2, Colour: c.Line, Z: 1})
	}
	goalDepth := c.WallGap - 2
	a.addVisual("arena/goal-blue", &screen.Rect{Centre: mgl64.Vec2{0, hh + goalDepth/2}, Size: mgl64.Vec2{c.GoalWidth, goalDepth}, Colour: color.RGBA{B: 0xff, A: 0xff}, Z: 1})
	a.addVisual("arena/goal-yellow", &screen.Rect{Centre: mgl64.Vec2{0, -hh - goalDepth/2}, Size: mgl64.Vec2{c.GoalWidth, goalDepth}, Colour: color.RGBA{R: 0xff, G: 0xff, A: 0xff}, Z: 1})

	ww, wh := hw+c.WallGap, hh+c.WallGap
	wallCorners := []mgl64.Vec2{{-ww, -wh}, {ww, -wh}, {ww, wh}, {-ww, wh}}
	for i, from := range wallCorners {
		wall := physics.NewStaticBody(physics.Segment(from, wallCorners[(i+1)%4], 1))
		wall.CollisionType = CollisionWall
		wall.Friction = 0.3
		if err := a.addStatic(wall); err != nil {
			return err
		}
	}

	// Out-of-bounds lines sit one ball diameter outside the white line;
	// the goal mouths interrupt the two end lines.
	m := 2 * c.BallRadius
	ox, oy, gx := hw+m, hh+m, c.GoalWidth/2
	zones := []struct {
		kind, side string
		a, b       mgl64.Vec2
	}{
		{CollisionOutOfBounds, "", mgl64.Vec2{-ox, -oy}, mgl64.Vec2{-ox, oy}},
		{CollisionOutOfBounds, "", mgl64.Vec2{ox, -oy}, mgl64.Vec2{ox, oy}},
		{CollisionOutOfBounds, "", mgl64.Vec2{-ox, oy}, mgl64.Vec2{-gx, oy}},
		{CollisionOutOfBounds, "", mgl64.Vec2{gx, oy}, mgl64.Vec2{ox, oy}},
		{CollisionOutOfBounds, "", mgl64.Vec2{-ox, -oy}, mgl64.Vec2{-gx, -oy}},
		{CollisionOutOfBounds, "", mgl64.Vec2{gx, -oy}, mgl64.Vec2{ox, -oy}},
		{CollisionGoal, GoalBlue, mgl64.Vec2{-gx, oy}, mgl64.Vec2{gx, oy}},
		{CollisionGoal, GoalYellow, mgl64.Vec2{-gx, -oy}, mgl64.Vec2{gx, -oy}},
	}
	for _, z := range zones {
		body := physics.NewStaticBody(physics.Segment(z.a, z.b, 0.5))
		body.Sensor = true
		body.CollisionType = z.kind
		body.Category = physics.CategoryZone
		body.UserData = z.side
		if err := a.addStatic(body); err != nil {
			return err
		}
	}

	a.ball = physics.NewBody(c.BallMass, physics.MomentForCircle(c.BallMass, c.BallRadius), physics.Circle(mgl64.Vec2{}, c.BallRadius))
	a.ball.CollisionType = CollisionBall
	a.ball.Position = c.BallStart
	a.ball.LinearDamping = 0.4
	a.ball.AngularDamping = 0.4
	a.ball.Restitution = 0.6
	a.ball.Friction = 0.2
	if err := a.world.Register(a.ball); err != nil {
		return err
	}
	a.ballVisual = &screen.Disc{Centre: c.BallStart, Radius: c.BallRadius, Colour: color.RGBA{R: 0xff, G: 0x80, A: 0xff}, Z: 2}
	a.addVisual("arena/ball", a.ballVisual)

	a.world.AddHandler(CollisionBall, CollisionOutOfBounds, func(*physics.Arbiter) bool {
		a.resetPending = true
		return false
	})
	a.world.AddHandler(CollisionBall, CollisionGoal, func(arb *physics.Arbiter) bool {
		if side, ok := arb.B.UserData.(string); ok && a.scored == "" {
			a.scored = side
		}
		a.resetPending = true
		return false
	})
	logrus.WithField("source", "sim").Infof("arena %gx%g ready, ball at (%g, %g)", c.Width, c.Height, c.BallStart.X(), c.BallStart.Y())
	return nil
}

func (a *Arena) addStatic(b *physics.Body) error {
	if err := a.world.Register(b); err != nil {
		return err
	}
	a.static = append(a.static, b)
	return nil
}

func (a *Arena) addVisual(key string, v sim.Visual) {
	a.screen.RegisterVisual(key, v)
	a.visualKeys = append(a.visualKeys, key)
}

// Tick applies a pending ball reset and reports goals.
func (a *Arena) Tick(tick int64) (bool, error) {
	if a.scored != "" {
		a.score[a.scored]++
		logrus.WithField("source", "sim").Infof("[tick %07d] goal for %s, score blue %d yellow %d",
			tick, a.scored, a.score[GoalBlue], a.score[GoalYellow])
		if a.OnGoal != nil {
			a.OnGoal(a.scored, a.Score())
		}
		a.scored = ""
	}
	if a.resetPending {
		a.ResetBall()
	}
	a.syncVisual()
	return false, nil
}

func (a *Arena) AfterPhysics() error {
	a.syncVisual()
	return nil
}

func (a *Arena) HandleEvent(ev sim.Event) error {
	if ev.Type == EventResetBall {
		a.ResetBall()
		a.syncVisual()
	}
	return nil
}

// ResetBall puts the ball back on its spot at rest.
func (a *Arena) ResetBall() {
	a.resetPending = false
	if a.ball == nil {
		return
	}
	a.ball.Position = a.cfg.BallStart
	a.ball.Velocity = mgl64.Vec2{}
	a.ball.AngularVelocity = 0
}

func (a *Arena) syncVisual() {
	if a.ball == nil || a.ballVisual == nil {
		return
	}
	a.ballVisual.Centre = a.ball.Position
}

func (a *Arena) TearDown() error {
	for _, b := range a.static {
		a.world.Unregister(b)
	}
	if a.ball != nil {
		a.world.Unregister(a.ball)
	}
	for _, key := range a.visualKeys {
		a.screen.UnregisterVisual(key)
	}
	return nil
}

// Inside reports whether p lies within the white line.
func (a *Arena) Inside(p mgl64.Vec2) bool {
	return math.Abs(p.X()) <= a.cfg.Width/2 && math.Abs(p.Y()) <= a.cfg.Height/2
}
