package ipc

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/sirupsen/logrus"

	"github.com/ev3sim/ev3sim/sim"
)

// Process is a robot program running on its own goroutine.
type Process struct {
	robotID string
	done    chan struct{}
	err     error
}

// Launch runs program for robotID. A returned error or panic becomes a
// *sim.RobotProcessError passed to onFail (if set) and kept in Err.
// Context cancellation is a clean exit.
func Launch(ctx context.Context, robotID string, program func(ctx context.Context) error, onFail func(error)) *Process {
	p := &Process{robotID: robotID, done: make(chan struct{})}
	log := logrus.WithFields(logrus.Fields{"source": "robot", "robot": robotID})
	go func() {
		defer close(p.done)
		defer func() {
			if r := recover(); r != nil {
				p.fail(&sim.RobotProcessError{Robot: robotID, Err: fmt.Errorf("panic: %v", r), Stack: debug.Stack()}, onFail)
			}
		}()
		log.Info("program started")
		err := program(ctx)
		switch {
		case err == nil, ctx.Err() != nil:
			log.Info("program finished")
		default:
			p.fail(&sim.RobotProcessError{Robot: robotID, Err: err}, onFail)
		}
	}()
	return p
}

func (p *Process) fail(err *sim.RobotProcessError, onFail func(error)) {
	p.err = err
	entry := logrus.WithFields(logrus.Fields{"source": "robot", "robot": p.robotID})
	if len(err.Stack) > 0 {
		entry = entry.WithField("stack", string(err.Stack))
	}
	entry.Error(err)
	if onFail != nil {
		onFail(err)
	}
}

// RobotID is the robot the program drives.
func (p *Process) RobotID() string { return p.robotID }

// Done is closed when the program returns.
func (p *Process) Done() <-chan struct{} { return p.done }

// Err is the failure, valid after Done is closed.
func (p *Process) Err() error {
	<-p.done
	return p.err
}
