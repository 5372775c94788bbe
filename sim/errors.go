package sim

import (
	"errors"
	"fmt"
)

var (
	// ErrUnhandledWrite is wrapped by every DeviceWriteError.
	ErrUnhandledWrite = errors.New("unhandled write")
	// ErrSnapshotFailed marks a tick update whose payload is an error string.
	ErrSnapshotFailed = errors.New("snapshot failed")
	// ErrQueueClosed is returned by producers once the write queue is closed.
	ErrQueueClosed = errors.New("write queue closed")
)

// DeviceWriteError reports an attribute or value a device does not accept,
// or a mode it cannot report. Local to one device; the scheduler surfaces it
// in the owning robot's tick payload.
type DeviceWriteError struct {
	Device    string // object name, e.g. "motor1"
	Attribute string
	Value     string
	Reason    string
}

func (e *DeviceWriteError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %s: %s", e.Device, e.Attribute, e.Reason)
	}
	return fmt.Sprintf("%s: %s=%q: %s", e.Device, e.Attribute, e.Value, e.Reason)
}

func (e *DeviceWriteError) Unwrap() error { return ErrUnhandledWrite }

// DeviceNotFoundError reports a port/device combination the robot does not have.
type DeviceNotFoundError struct {
	Robot string
	Kind  string // device type tag or kind name
	Port  string // port or object name requested
}

func (e *DeviceNotFoundError) Error() string {
	return fmt.Sprintf("%s: no %s device at %s", e.Robot, e.Kind, e.Port)
}

// CommunicationsError reports a failed relay verb or a robot whose channel
// stopped making progress.
type CommunicationsError struct {
	Robot string
	Op    string
	Err   error
}

func (e *CommunicationsError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Robot, e.Op, e.Err)
}

func (e *CommunicationsError) Unwrap() error { return e.Err }

// SchedulerFatalError is any failure inside the scheduler's own phases. It
// ends the run.
type SchedulerFatalError struct {
	Phase string
	Tick  int64
	Err   error
	Stack []byte
}

func (e *SchedulerFatalError) Error() string {
	return fmt.Sprintf("scheduler %s phase failed at tick %d: %v", e.Phase, e.Tick, e.Err)
}

func (e *SchedulerFatalError) Unwrap() error { return e.Err }

// RobotProcessError reports a robot program that returned an error or panicked.
type RobotProcessError struct {
	Robot string
	Err   error
	Stack []byte
}

func (e *RobotProcessError) Error() string {
	return fmt.Sprintf("robot %s program failed: %v", e.Robot, e.Err)
}

func (e *RobotProcessError) Unwrap() error { return e.Err }
