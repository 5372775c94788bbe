// Package modes holds game-mode interactors: rules that run alongside the
// robots, such as a time limit or a soccer arena with a ball.
package modes

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/ev3sim/ev3sim/sim"
)

// TimeLimit halts the run after a fixed amount of simulated time.
type TimeLimit struct {
	sim.BaseInteractor
	limit int64
	halt  func()
}

// NewTimeLimit ends the run through halt once seconds of simulated time
// have passed at tickRate.
func NewTimeLimit(seconds float64, tickRate int, halt func()) *TimeLimit {
	if seconds <= 0 || tickRate <= 0 {
		panic("TimeLimit: seconds and tickRate must be > 0")
	}
	return &TimeLimit{limit: int64(math.Ceil(seconds * float64(tickRate))), halt: halt}
}

// Ticks is the tick at which the limit fires.
func (t *TimeLimit) Ticks() int64 { return t.limit }

func (t *TimeLimit) Tick(tick int64) (bool, error) {
	if tick+1 < t.limit {
		return false, nil
	}
	logrus.WithField("source", "sim").Infof("[tick %07d] time limit reached", tick)
	if t.halt != nil {
		t.halt()
	}
	return true, nil
}
