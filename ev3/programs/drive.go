package programs

import (
	"context"

	"github.com/ev3sim/ev3sim/ev3"
)

// tank is a two-motor differential drive. The left motor sits on the
// robot's +y side, so running it faster turns the robot clockwise.
type tank struct {
	brick       *ev3.Brick
	left, right *ev3.Motor
	l, r        float64
	moving      bool
}

func newTank(b *ev3.Brick, args Args) (*tank, error) {
	left, err := b.LargeMotor(args.String("left", ev3.OutB))
	if err != nil {
		return nil, err
	}
	right, err := b.LargeMotor(args.String("right", ev3.OutC))
	if err != nil {
		return nil, err
	}
	return &tank{brick: b, left: left, right: right}, nil
}

// on runs both motors at the given percentages. Repeating the current
// command writes nothing.
func (t *tank) on(ctx context.Context, l, r float64) error {
	if t.moving && l == t.l && r == t.r {
		return nil
	}
	if err := t.left.On(ctx, l); err != nil {
		return err
	}
	if err := t.right.On(ctx, r); err != nil {
		return err
	}
	t.l, t.r, t.moving = l, r, true
	return nil
}

// drive runs both motors for seconds of simulated time.
func (t *tank) drive(ctx context.Context, l, r, seconds float64) error {
	if err := t.on(ctx, l, r); err != nil {
		return err
	}
	return t.brick.Sleep(ctx, seconds)
}

func (t *tank) stop(ctx context.Context) error {
	if err := t.left.Stop(ctx); err != nil {
		return err
	}
	if err := t.right.Stop(ctx); err != nil {
		return err
	}
	t.moving = false
	return nil
}

// Idle follows the tick stream and does nothing else.
func Idle(ctx context.Context, b *ev3.Brick, _ Args) error {
	for {
		if err := b.WaitForTick(ctx); err != nil {
			return err
		}
	}
}

// Square drives a square: straight sides joined by on-the-spot turns.
// Args: left, right (motor ports), side_seconds, turn_seconds, laps
// (0 drives forever).
func Square(ctx context.Context, b *ev3.Brick, args Args) error {
	t, err := newTank(b, args)
	if err != nil {
		return err
	}
	side, err := args.Float("side_seconds", 2)
	if err != nil {
		return err
	}
	turn, err := args.Float("turn_seconds", 0.8)
	if err != nil {
		return err
	}
	laps, err := args.Int("laps", 0)
	if err != nil {
		return err
	}
	for lap := 1; laps == 0 || lap <= laps; lap++ {
		for range 4 {
			if err := t.drive(ctx, 50, 50, side); err != nil {
				return err
			}
			if err := t.drive(ctx, 30, -30, turn); err != nil {
				return err
			}
		}
		if err := b.Logf(ctx, "lap %d done", lap); err != nil {
			return err
		}
	}
	return t.stop(ctx)
}

// Wander drives forward and turns away from anything the ultrasonic
// sensor sees closer than the threshold.
// Args: left, right, sensor (port, empty for the first found), threshold_cm.
func Wander(ctx context.Context, b *ev3.Brick, args Args) error {
	t, err := newTank(b, args)
	if err != nil {
		return err
	}
	us, err := b.UltrasonicSensor(args.String("sensor", ""))
	if err != nil {
		return err
	}
	threshold, err := args.Float("threshold_cm", 25)
	if err != nil {
		return err
	}
	for {
		d, err := us.DistanceCM(ctx)
		if err != nil {
			return err
		}
		if d < threshold {
			if err := t.drive(ctx, -30, 30, 0.5); err != nil {
				return err
			}
			continue
		}
		if err := t.on(ctx, 50, 50); err != nil {
			return err
		}
		if err := b.WaitForTick(ctx); err != nil {
			return err
		}
	}
}

// SeekBall steers toward the strongest infrared beacon and spins on the
// spot while none is visible.
// Args: left, right, sensor, speed.
func SeekBall(ctx context.Context, b *ev3.Brick, args Args) error {
	t, err := newTank(b, args)
	if err != nil {
		return err
	}
	ir, err := b.InfraredSensor(args.String("sensor", ""))
	if err != nil {
		return err
	}
	speed, err := args.Float("speed", 60)
	if err != nil {
		return err
	}
	for {
		dir, err := ir.Direction(ctx)
		if err != nil {
			return err
		}
		l, r := SteerToward(dir, speed)
		if err := t.on(ctx, l, r); err != nil {
			return err
		}
		if err := b.WaitForTick(ctx); err != nil {
			return err
		}
	}
}

// SteerToward maps an IR direction (0 lost, 1..9 with 5 ahead and low
// values clockwise) to left/right motor percentages.
func SteerToward(dir int, speed float64) (l, r float64) {
	step := speed / 5
	switch {
	case dir == 0:
		return speed / 2, -speed / 2
	case dir < 5:
		return speed, speed - step*float64(5-dir)
	case dir > 5:
		return speed - step*float64(dir-5), speed
	}
	return speed, speed
}
