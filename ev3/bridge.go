// Package ev3 is the device API robot programs are written against. A
// program holds a Brick, which talks to the simulator through a Bridge:
// in-process (ipc.LocalBridge) or over a websocket (relay.Client).
package ev3

import (
	"context"

	"github.com/ev3sim/ev3sim/sim"
)

// Bridge is the narrow request/response channel between one robot program
// and the simulator.
type Bridge interface {
	RobotID() string
	// Address is the robot's virtual Bluetooth address, used by peers to
	// connect to its servers.
	Address() string

	// WaitForTick blocks until a tick newer than the last one returned.
	WaitForTick(ctx context.Context) (sim.TickUpdate, error)
	// Write stages an attribute write. Writes to "mode" return once a tick
	// update reflects them.
	Write(ctx context.Context, path, value string) error

	ServerStart(ctx context.Context, port int) (string, error)
	ServerAccept(ctx context.Context, server string) (string, error)
	ServerClose(ctx context.Context, server string) error
	ClientConnect(ctx context.Context, address string, port int) (string, error)
	ClientClose(ctx context.Context, conn string) error
	// Send returns once the peer has received data.
	Send(ctx context.Context, conn string, data []byte) error
	Recv(ctx context.Context, conn string) ([]byte, error)

	Log(ctx context.Context, msg string) error
}
